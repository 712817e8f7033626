// agentctl administers agents and payments directly against the configured
// storage and ledger, without going through the HTTP API. Payments sent from
// the command line are processed synchronously.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"agentpay/config"
	"agentpay/internal/app"
	"agentpay/pkg/logger"

	"github.com/spf13/pflag"
)

// env carries what every command needs. The application is opened lazily so
// that commands such as "wallet convert" never touch storage.
type env struct {
	ctx  context.Context
	out  io.Writer
	open func(ctx context.Context) (*app.App, error)
	app  *app.App
}

func (e *env) application() (*app.App, error) {
	if e.app != nil {
		return e.app, nil
	}
	a, err := e.open(e.ctx)
	if err != nil {
		return nil, err
	}
	e.app = a
	return a, nil
}

func rootCommand() *command {
	return &command{
		Name:        "agentctl",
		Summary:     "Manage agentpay agents, wallets and payments",
		Subcommands: []*command{agentCommand(), paymentCommand(), walletCommand()},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	var configPath, logLevel string
	global := pflag.NewFlagSet("agentctl", pflag.ContinueOnError)
	global.SetInterspersed(false)
	global.SetOutput(io.Discard)
	global.StringVarP(&configPath, "config", "c", os.Getenv("APAY_CONFIG"), "path to config file")
	global.StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
	if err := global.Parse(args); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 2
	}

	e := &env{
		ctx: ctx,
		out: stdout,
		open: func(ctx context.Context) (*app.App, error) {
			cfg, err := config.Load(configPath)
			if err != nil {
				return nil, err
			}
			return app.New(ctx, cfg, logger.NewWithWriter(logLevel, stderr), app.Options{})
		},
	}
	defer func() {
		if e.app != nil {
			e.app.Close()
		}
	}()

	if err := rootCommand().execute(e, global.Args()); err != nil {
		fmt.Fprintf(stderr, "error: %v\n", err)
		return 1
	}
	return 0
}
