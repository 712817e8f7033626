package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"

	"github.com/google/uuid"
)

type paymentEntry struct {
	mu  sync.Mutex
	rec domain.PaymentRecord
	seq uint64 // immutable after insert
}

func (e *paymentEntry) snapshot() domain.PaymentRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return clonePayment(&e.rec)
}

// PaymentRepo implements ports.PaymentRepository. The index lock guards
// membership only; status changes are compare-and-swap under the lock of
// the one record they touch.
type PaymentRepo struct {
	mu       sync.RWMutex
	payments map[uuid.UUID]*paymentEntry
	seq      uint64
}

// NewPaymentRepo creates an empty payment store.
func NewPaymentRepo() *PaymentRepo {
	return &PaymentRepo{payments: make(map[uuid.UUID]*paymentEntry)}
}

func (r *PaymentRepo) lookup(id uuid.UUID) *paymentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.payments[id]
}

func (r *PaymentRepo) entries() []*paymentEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*paymentEntry, 0, len(r.payments))
	for _, e := range r.payments {
		out = append(out, e)
	}
	return out
}

func (r *PaymentRepo) Create(_ context.Context, p *domain.PaymentRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ID]; ok {
		return fmt.Errorf("payment %s already exists", p.ID)
	}
	r.seq++
	r.payments[p.ID] = &paymentEntry{rec: clonePayment(p), seq: r.seq}
	return nil
}

func (r *PaymentRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.PaymentRecord, error) {
	e := r.lookup(id)
	if e == nil {
		return nil, nil
	}
	out := e.snapshot()
	return &out, nil
}

func (r *PaymentRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to domain.PaymentStatus, at time.Time) (bool, error) {
	if !from.CanTransitionTo(to) {
		return false, fmt.Errorf("illegal payment transition %s -> %s", from, to)
	}
	e := r.lookup(id)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Status != from {
		return false, nil
	}
	e.rec.Status = to
	e.rec.UpdatedAt = at
	return true, nil
}

func (r *PaymentRepo) Finalize(_ context.Context, p *domain.PaymentRecord) (bool, error) {
	if !p.Status.IsTerminal() {
		return false, fmt.Errorf("finalize with non-terminal status %s", p.Status)
	}
	e := r.lookup(p.ID)
	if e == nil {
		return false, nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rec.Status != domain.PaymentStatusProcessing {
		return false, nil
	}
	e.rec.Status = p.Status
	e.rec.SettlementID = cloneString(p.SettlementID)
	e.rec.FailureReason = cloneString(p.FailureReason)
	e.rec.CompletedAt = cloneTime(p.CompletedAt)
	e.rec.UpdatedAt = p.UpdatedAt
	return true, nil
}

func (r *PaymentRepo) ListForAgent(_ context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, error) {
	var matched []*paymentEntry
	for _, e := range r.entries() {
		rec := e.snapshot()
		if !rec.InvolvesAgent(params.AgentID) {
			continue
		}
		if params.Status != nil && rec.Status != *params.Status {
			continue
		}
		matched = append(matched, &paymentEntry{rec: rec, seq: e.seq})
	}

	sortPayments(matched, params.Order == domain.SortDescending)
	if params.Limit > 0 && len(matched) > params.Limit {
		matched = matched[:params.Limit]
	}

	out := make([]domain.PaymentRecord, 0, len(matched))
	for _, e := range matched {
		out = append(out, e.rec)
	}
	return out, nil
}

func (r *PaymentRepo) ListStale(_ context.Context, status domain.PaymentStatus, cutoff time.Time) ([]domain.PaymentRecord, error) {
	var out []domain.PaymentRecord
	for _, e := range r.entries() {
		rec := e.snapshot()
		if rec.Status == status && rec.UpdatedAt.Before(cutoff) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// sortPayments orders by creation time, breaking ties by insertion sequence.
func sortPayments(entries []*paymentEntry, desc bool) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		if !a.rec.CreatedAt.Equal(b.rec.CreatedAt) {
			if desc {
				return a.rec.CreatedAt.After(b.rec.CreatedAt)
			}
			return a.rec.CreatedAt.Before(b.rec.CreatedAt)
		}
		if desc {
			return a.seq > b.seq
		}
		return a.seq < b.seq
	})
}

func clonePayment(p *domain.PaymentRecord) domain.PaymentRecord {
	out := *p
	out.Memo = cloneString(p.Memo)
	out.SettlementID = cloneString(p.SettlementID)
	out.PrivacyToken = cloneString(p.PrivacyToken)
	out.FailureReason = cloneString(p.FailureReason)
	out.CompletedAt = cloneTime(p.CompletedAt)
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
