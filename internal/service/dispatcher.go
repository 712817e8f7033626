package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	idempotencyTTL = 24 * time.Hour
	// idempotencyReserveTTL bounds how long a crashed send can hold its key.
	idempotencyReserveTTL = time.Minute
)

// PaymentDispatcherService implements ports.PaymentDispatcher: it creates the
// payment synchronously and hands its ID to the queue for processing.
type PaymentDispatcherService struct {
	payments   ports.PaymentLedger
	queue      ports.PaymentQueue
	idempCache ports.IdempotencyCache // optional
	audit      ports.AuditService
	log        zerolog.Logger

	inline sync.WaitGroup
}

// NewPaymentDispatcherService creates a new dispatcher. idempCache may be nil.
func NewPaymentDispatcherService(
	payments ports.PaymentLedger,
	queue ports.PaymentQueue,
	idempCache ports.IdempotencyCache,
	audit ports.AuditService,
	log zerolog.Logger,
) *PaymentDispatcherService {
	return &PaymentDispatcherService{
		payments:   payments,
		queue:      queue,
		idempCache: idempCache,
		audit:      audit,
		log:        log,
	}
}

// Send creates the payment and queues it. A repeated IdempotencyKey from the
// same sender returns the payment created by the first call, or a Conflict
// while that call is still creating it. The key is reserved before Create so
// concurrent retries never create a second payment.
func (s *PaymentDispatcherService) Send(ctx context.Context, req ports.SendPaymentRequest) (*domain.PaymentRecord, error) {
	var idempKey string
	if req.IdempotencyKey != "" && s.idempCache != nil {
		idempKey = domain.BuildIdempotencyKey(req.FromAgentID, req.IdempotencyKey)
		existing, err := s.reserveIdempotent(ctx, idempKey, req.FromAgentID)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	payment, err := s.payments.Create(ctx, req.CreatePaymentRequest)
	if err != nil {
		if idempKey != "" {
			if relErr := s.idempCache.Release(ctx, idempKey); relErr != nil {
				s.log.Warn().Err(relErr).Str("key", idempKey).Msg("failed to release idempotency key")
			}
		}
		return nil, err
	}

	if idempKey != "" {
		if err := s.idempCache.Set(ctx, idempKey, payment.ID.String(), idempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("key", idempKey).Str("payment_id", payment.ID.String()).
				Msg("failed to record idempotency key, retries conflict until the reservation expires")
		}
	}

	from := req.FromAgentID
	s.audit.Log(ctx, &domain.AuditLog{
		ID:           uuid.New(),
		AgentID:      &from,
		Action:       domain.AuditActionSendPayment,
		ResourceType: "payment",
		ResourceID:   payment.ID.String(),
		Details:      fmt.Sprintf(`{"to":%q,"amount":%d}`, req.ToAgentID, req.Amount),
		IPAddress:    req.ClientIP,
		CreatedAt:    payment.CreatedAt,
	})

	if err := s.queue.Publish(ctx, payment.ID.String()); err != nil {
		// The record would otherwise stay PENDING forever.
		s.log.Warn().Err(err).Str("payment_id", payment.ID.String()).Msg("queue publish failed, processing in-process")
		s.inline.Add(1)
		go func(id string) {
			defer s.inline.Done()
			_ = s.Handle(context.Background(), id)
		}(payment.ID.String())
	}

	return payment, nil
}

// reserveIdempotent claims key for this send. It returns the earlier payment
// when the key already resolved to one, and nil, nil when the caller now
// holds the key.
func (s *PaymentDispatcherService) reserveIdempotent(ctx context.Context, key, sender string) (*domain.PaymentRecord, error) {
	reserved, err := s.idempCache.Reserve(ctx, key, idempotencyReserveTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("reserve idempotency key: %w", err))
	}
	if reserved {
		return nil, nil
	}

	cached, err := s.idempCache.Get(ctx, key)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency lookup: %w", err))
	}
	if cached == "" || cached == ports.IdempotencyPending {
		return nil, apperror.ErrConflict("a payment with this idempotency key is still being created, retry shortly")
	}
	id, err := uuid.Parse(cached)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("idempotency key %s holds malformed payment id %q", key, cached))
	}
	payment, err := s.payments.Get(ctx, id, &sender)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, apperror.ErrConflict("idempotency key refers to an unknown payment")
	}
	s.log.Info().Str("payment_id", cached).Msg("idempotent send replayed")
	return payment, nil
}

// Wait blocks until payments handed to in-process fallback processing after
// a failed publish have finished.
func (s *PaymentDispatcherService) Wait() {
	s.inline.Wait()
}

// Handle processes one queued payment ID. Terminal state is recorded by the
// payment ledger; errors here are only reported.
func (s *PaymentDispatcherService) Handle(ctx context.Context, paymentID string) error {
	id, err := uuid.Parse(paymentID)
	if err != nil {
		s.log.Error().Str("payment_id", paymentID).Msg("discarding malformed queue message")
		return apperror.InvalidRequest("malformed payment id")
	}

	payment, err := s.payments.Process(ctx, id)
	if err != nil {
		if apperror.HasCode(err, apperror.CodeInvalidState) {
			s.log.Debug().Str("payment_id", paymentID).Msg("payment already claimed, skipping")
			return err
		}
		evt := s.log.Warn().Err(err).Str("payment_id", paymentID).Str("code", apperror.CodeOf(err))
		if payment != nil {
			evt = evt.Str("status", string(payment.Status))
		}
		evt.Msg("queued payment did not complete")
		return err
	}
	return nil
}

// Run consumes the queue with workers until ctx is done.
func (s *PaymentDispatcherService) Run(ctx context.Context, workers int) error {
	s.log.Info().Int("workers", workers).Msg("payment workers started")
	return s.queue.Consume(ctx, workers, s.Handle)
}
