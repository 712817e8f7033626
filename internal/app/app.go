// Package app wires configuration into a running agentpay instance: storage,
// ledger, queue, services, workers and the HTTP router.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"agentpay/config"
	httpHandler "agentpay/internal/adapter/http/handler"
	evmLedger "agentpay/internal/adapter/ledger/evm"
	memLedger "agentpay/internal/adapter/ledger/memory"
	"agentpay/internal/adapter/queue"
	memStorage "agentpay/internal/adapter/storage/memory"
	pgStorage "agentpay/internal/adapter/storage/postgres"
	redisStorage "agentpay/internal/adapter/storage/redis"
	"agentpay/internal/core/ports"
	"agentpay/internal/service"
	"agentpay/pkg/logger"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Options overrides connections that New would otherwise open from config.
// Tests use it to inject miniredis and a pre-funded ledger.
type Options struct {
	Ledger     ports.Ledger
	Redis      *goredis.Client
	HTTPClient service.HTTPClient
}

// App is one composed agentpay instance.
type App struct {
	Config     *config.Config
	Directory  *service.AccountDirectoryService
	Payments   *service.PaymentLedgerService
	Dispatcher *service.PaymentDispatcherService
	Reconciler *service.Reconciler
	Privacy    ports.PrivacyTokenIssuer
	Ledger     ports.Ledger
	Router     *gin.Engine

	log     zerolog.Logger
	queue   ports.PaymentQueue
	closers []func()
}

type repositories struct {
	agents   ports.AgentRepository
	wallets  ports.WalletRepository
	payments ports.PaymentRepository
	audit    ports.AuditRepository
	idemp    ports.IdempotencyCache
}

// New builds the application. On error every connection opened so far is closed.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts Options) (a *App, err error) {
	warnings, err := cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	for _, w := range warnings {
		log.Warn().Msg(w)
	}

	a = &App{Config: cfg, log: log}
	defer func() {
		if err != nil {
			a.Close()
			a = nil
		}
	}()

	var checkers []ports.HealthChecker

	repos, pgCheck, err := a.openStorage(ctx)
	if err != nil {
		return nil, err
	}
	if pgCheck != nil {
		checkers = append(checkers, pgCheck)
	}

	rdb := opts.Redis
	if rdb == nil && cfg.Redis.Enabled {
		rdb, err = redisStorage.NewClient(ctx, cfg.Redis, log)
		if err != nil {
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.onClose(func() { _ = rdb.Close() })
	}
	var rateLimits *redisStorage.RateLimitStore
	if rdb != nil {
		// Redis replaces the storage-backed idempotency map when available.
		repos.idemp = redisStorage.NewIdempotencyCache(rdb)
		rateLimits = redisStorage.NewRateLimitStore(rdb)
		checkers = append(checkers, redisStorage.NewHealthCheck(rdb))
	}

	a.Ledger = opts.Ledger
	if a.Ledger == nil {
		if a.Ledger, err = a.openLedger(ctx); err != nil {
			return nil, err
		}
	}
	if hc, ok := a.Ledger.(ports.HealthChecker); ok {
		checkers = append(checkers, hc)
	}

	if a.queue, err = a.openQueue(rdb); err != nil {
		return nil, err
	}
	a.onClose(func() { _ = a.queue.Close() })

	var encSvc ports.EncryptionService
	if cfg.Security.Passphrase != "" {
		key, err := service.DeriveVaultKey(cfg.Security.Passphrase, cfg.Security.KDFSalt)
		if err != nil {
			return nil, err
		}
		aes, err := service.NewAESEncryptionService(key)
		if err != nil {
			return nil, fmt.Errorf("initializing vault encryption: %w", err)
		}
		encSvc = aes
	}

	var tokenSvc ports.TokenService
	if cfg.JWT.Secret != "" {
		tokenSvc = service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	}

	auditSvc := service.NewAuditService(repos.audit, logger.Component(log, "audit"))
	vault := service.NewKeyVaultService(repos.wallets, encSvc, auditSvc, logger.Component(log, "keyvault"))
	a.Directory = service.NewAccountDirectoryService(repos.agents, repos.wallets, vault, a.Ledger, auditSvc, logger.Component(log, "directory"))
	a.Privacy = service.NewPrivacyTokenIssuer(cfg.Privacy.Endpoint, cfg.Privacy.APIKey, cfg.Privacy.Timeout, opts.HTTPClient, logger.Component(log, "privacy"))
	a.Payments = service.NewPaymentLedgerService(repos.payments, a.Directory, vault, a.Privacy, a.Ledger, logger.Component(log, "payments"),
		service.WithTransferTimeout(cfg.Ledger.TransferTimeout()))
	a.Dispatcher = service.NewPaymentDispatcherService(a.Payments, a.queue, repos.idemp, auditSvc, logger.Component(log, "dispatcher"))
	a.Reconciler = service.NewReconciler(a.Payments, cfg.Reconcile.Interval, cfg.Reconcile.StaleAfter, logger.Component(log, "reconciler"))

	a.Router = httpHandler.SetupRouter(httpHandler.RouterDeps{
		Directory:      a.Directory,
		Payments:       a.Payments,
		Dispatcher:     a.Dispatcher,
		Privacy:        a.Privacy,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimits,
		HealthCheckers: checkers,
		Mode:           cfg.Server.Mode,
		Logger:         logger.Component(log, "http"),
	})

	return a, nil
}

func (a *App) openStorage(ctx context.Context) (*repositories, ports.HealthChecker, error) {
	switch a.Config.Storage.Driver {
	case "postgres":
		pool, err := pgStorage.NewPool(ctx, a.Config.Database, a.log)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		a.onClose(pool.Close)
		if err := pgStorage.Migrate(ctx, pool); err != nil {
			return nil, nil, err
		}
		return &repositories{
			agents:   pgStorage.NewAgentRepo(pool),
			wallets:  pgStorage.NewWalletRepo(pool),
			payments: pgStorage.NewPaymentRepo(pool),
			audit:    pgStorage.NewAuditRepo(pool),
			idemp:    pgStorage.NewIdempotencyRepo(pool),
		}, pgStorage.NewHealthCheck(pool), nil
	default:
		accounts := memStorage.NewAccounts()
		return &repositories{
			agents:   memStorage.NewAgentRepo(accounts),
			wallets:  memStorage.NewWalletRepo(accounts),
			payments: memStorage.NewPaymentRepo(),
			audit:    memStorage.NewAuditRepo(),
			idemp:    memStorage.NewIdempotencyCache(),
		}, nil, nil
	}
}

func (a *App) openLedger(ctx context.Context) (ports.Ledger, error) {
	lc := a.Config.Ledger
	switch lc.Driver {
	case "evm":
		l, err := evmLedger.Dial(ctx, evmLedger.Config{
			RPCURL:         lc.RPCURL,
			ChainID:        lc.ChainID,
			GasLimit:       lc.GasLimit,
			ConfirmTimeout: lc.ConfirmTimeout,
			PollInterval:   lc.PollInterval,
		})
		if err != nil {
			return nil, err
		}
		a.onClose(l.Close)
		a.log.Info().Str("network", lc.Network).Int64("chain_id", lc.ChainID).Msg("ledger connected")
		return l, nil
	default:
		return memLedger.New(memLedger.WithConfirmTimeout(lc.ConfirmTimeout)), nil
	}
}

func (a *App) openQueue(rdb *goredis.Client) (ports.PaymentQueue, error) {
	qc := a.Config.Queue
	switch qc.Driver {
	case "redis":
		if rdb == nil {
			return nil, errors.New("queue driver redis requires a redis connection")
		}
		return queue.NewRedisQueue(rdb, qc.Name, 0), nil
	case "rabbitmq":
		q, err := queue.NewRabbitMQQueue(queue.RabbitMQConfig{
			URL:      qc.RabbitMQURL,
			Queue:    qc.Name,
			Prefetch: qc.Workers,
		})
		if err != nil {
			return nil, err
		}
		return q, nil
	default:
		return queue.NewMemoryQueue(qc.Buffer), nil
	}
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// StartBackground starts queue workers and the reconciler, whose first sweep
// closes out payments left in PROCESSING by a previous run. The returned
// function blocks until both have stopped after ctx is cancelled and any
// payment processed in-process after a failed publish has finished.
func (a *App) StartBackground(ctx context.Context) (wait func()) {
	if a.Config.Reconcile.Interval <= 0 {
		a.Reconciler.Sweep(ctx)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if err := a.Dispatcher.Run(ctx, a.Config.Queue.Workers); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("payment workers stopped")
		}
	}()
	go func() {
		defer wg.Done()
		a.Reconciler.Run(ctx)
	}()
	return func() {
		wg.Wait()
		a.Dispatcher.Wait()
	}
}

// Serve runs the HTTP server and background workers until ctx is cancelled,
// then shuts both down gracefully.
func (a *App) Serve(ctx context.Context) error {
	bgCtx, stopBackground := context.WithCancel(context.Background())
	waitBackground := a.StartBackground(bgCtx)

	addr := fmt.Sprintf("%s:%d", a.Config.Server.Host, a.Config.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	a.log.Info().Msg("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// In-flight payments finish their ledger call; Process ignores cancellation.
	stopBackground()
	waitBackground()

	a.log.Info().Msg("Server exited")
	return serveErr
}
