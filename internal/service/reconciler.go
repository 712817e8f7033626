package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// InterruptedPaymentRecoverer closes out payments stuck in PROCESSING.
type InterruptedPaymentRecoverer interface {
	RecoverInterrupted(ctx context.Context, staleAfter time.Duration) (int, error)
}

// Reconciler periodically sweeps for interrupted payments.
type Reconciler struct {
	recoverer  InterruptedPaymentRecoverer
	interval   time.Duration
	staleAfter time.Duration
	log        zerolog.Logger
}

// NewReconciler creates a new Reconciler.
func NewReconciler(recoverer InterruptedPaymentRecoverer, interval, staleAfter time.Duration, log zerolog.Logger) *Reconciler {
	return &Reconciler{
		recoverer:  recoverer,
		interval:   interval,
		staleAfter: staleAfter,
		log:        log,
	}
}

// Sweep runs one reconciliation pass.
func (r *Reconciler) Sweep(ctx context.Context) int {
	n, err := r.recoverer.RecoverInterrupted(ctx, r.staleAfter)
	if err != nil {
		r.log.Error().Err(err).Msg("reconciliation sweep failed")
		return 0
	}
	if n > 0 {
		r.log.Warn().Int("closed", n).Msg("reconciliation closed interrupted payments")
	}
	return n
}

// Run sweeps once immediately and then every interval until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	if r.interval <= 0 {
		return
	}
	r.Sweep(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}
