package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"
	"agentpay/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxMemoLen = 256

	// InterruptedReason is recorded on PROCESSING payments closed out by
	// RecoverInterrupted.
	InterruptedReason = "interrupted before settlement confirmation"
)

// PaymentLedgerService implements ports.PaymentLedger. It is the only writer
// of payment status, settlement ID and completion time.
type PaymentLedgerService struct {
	paymentRepo ports.PaymentRepository
	directory   ports.AccountDirectory
	vault       ports.KeyVault
	issuer      ports.PrivacyTokenIssuer
	ledger      ports.Ledger
	log         zerolog.Logger

	transferTimeout time.Duration
}

// PaymentLedgerOption configures a PaymentLedgerService.
type PaymentLedgerOption func(*PaymentLedgerService)

// WithTransferTimeout bounds each ledger submission made by Process. A
// PROCESSING record is only ever this old while its Process call is alive.
func WithTransferTimeout(d time.Duration) PaymentLedgerOption {
	return func(s *PaymentLedgerService) { s.transferTimeout = d }
}

// NewPaymentLedgerService creates a new PaymentLedgerService.
func NewPaymentLedgerService(
	paymentRepo ports.PaymentRepository,
	directory ports.AccountDirectory,
	vault ports.KeyVault,
	issuer ports.PrivacyTokenIssuer,
	ledger ports.Ledger,
	log zerolog.Logger,
	opts ...PaymentLedgerOption,
) *PaymentLedgerService {
	s := &PaymentLedgerService{
		paymentRepo: paymentRepo,
		directory:   directory,
		vault:       vault,
		issuer:      issuer,
		ledger:      ledger,
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Create validates the request, mints a privacy token and stores a PENDING
// record. It never touches the ledger.
func (s *PaymentLedgerService) Create(ctx context.Context, req ports.CreatePaymentRequest) (*domain.PaymentRecord, error) {
	if req.FromAgentID == "" || req.ToAgentID == "" {
		return nil, apperror.InvalidRequest("sender and recipient are required")
	}
	if req.FromAgentID == req.ToAgentID {
		return nil, apperror.InvalidRequest("sender and recipient must differ")
	}
	if req.Amount <= 0 {
		return nil, apperror.InvalidRequest("amount must be greater than zero")
	}
	if req.Memo != nil && len(*req.Memo) > maxMemoLen {
		return nil, apperror.InvalidRequest(fmt.Sprintf("memo exceeds %d bytes", maxMemoLen))
	}

	fromAddr, err := s.directory.ResolveAddress(ctx, req.FromAgentID)
	if err != nil {
		return nil, err
	}
	toAddr, err := s.directory.ResolveAddress(ctx, req.ToAgentID)
	if err != nil {
		return nil, err
	}

	issued, err := s.issuer.Issue(ctx, fromAddr, toAddr, req.Amount, req.Memo)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("issue privacy token: %w", err))
	}

	now := time.Now().UTC()
	payment := &domain.PaymentRecord{
		ID:           uuid.New(),
		FromAgentID:  req.FromAgentID,
		ToAgentID:    req.ToAgentID,
		Amount:       req.Amount,
		Memo:         req.Memo,
		Status:       domain.PaymentStatusPending,
		PrivacyToken: &issued.Token,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("store payment: %w", err))
	}

	s.log.Info().
		Str("payment_id", payment.ID.String()).
		Str("from", req.FromAgentID).
		Str("to", req.ToAgentID).
		Int64("amount", req.Amount).
		Bool("local_token", issued.Local).
		Msg("payment created")

	return payment, nil
}

// Process drives a PENDING payment to COMPLETED or FAILED. Exactly one of any
// number of concurrent callers wins the PENDING->PROCESSING swap; the rest get
// InvalidState without reaching the ledger.
//
// Once the swap succeeds the call ignores caller cancellation and always
// records a terminal state. On failure the returned record carries that
// FAILED state alongside the original error. A transfer that settles after
// another writer already closed the record is reported as an internal error
// carrying the settlement ID.
func (s *PaymentLedgerService) Process(ctx context.Context, paymentID uuid.UUID) (*domain.PaymentRecord, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, apperror.ErrNotFound("Payment")
	}
	if payment.Status != domain.PaymentStatusPending {
		return nil, apperror.ErrInvalidState(fmt.Sprintf("payment is %s, not PENDING", payment.Status))
	}

	ctx = context.WithoutCancel(ctx)

	startedAt := time.Now().UTC()
	won, err := s.paymentRepo.TransitionStatus(ctx, paymentID, domain.PaymentStatusPending, domain.PaymentStatusProcessing, startedAt)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("claim payment: %w", err))
	}
	if !won {
		return nil, apperror.ErrInvalidState("payment is already being processed")
	}
	payment.Status = domain.PaymentStatusProcessing
	payment.UpdatedAt = startedAt

	log := s.log.With().Str("payment_id", paymentID.String()).Logger()
	log.Info().Msg("payment processing")

	settlementID, execErr := s.execute(ctx, payment)
	if execErr != nil {
		payment.Fail(execErr.Error(), time.Now().UTC())
		log.Warn().Err(execErr).Str("code", apperror.CodeOf(execErr)).Msg("payment failed")
	} else {
		payment.Complete(settlementID, time.Now().UTC())
		log.Info().Str("settlement_id", settlementID).Msg("payment completed")
	}

	stored, lost := s.finalize(ctx, payment, log)
	if stored != nil {
		payment = stored
	}
	if lost && execErr == nil {
		status := "unknown"
		if stored != nil {
			status = string(stored.Status)
		}
		log.Error().
			Str("settlement_id", settlementID).
			Str("stored_status", status).
			Str("from", payment.FromAgentID).
			Str("to", payment.ToAgentID).
			Int64("amount", payment.Amount).
			Msg("transfer settled after the payment was closed by another writer, reconcile manually")
		return payment, apperror.InternalError(fmt.Errorf("payment %s settled as %s after it was closed as %s",
			paymentID, settlementID, status))
	}
	return payment, execErr
}

// execute performs the external part of Process. Every returned error is an
// *apperror.AppError.
func (s *PaymentLedgerService) execute(ctx context.Context, payment *domain.PaymentRecord) (string, error) {
	cred, err := s.vault.Reveal(ctx, payment.FromAgentID)
	if err != nil {
		return "", err
	}
	defer cred.Zero()

	toAddr, err := s.directory.ResolveAddress(ctx, payment.ToAgentID)
	if err != nil {
		return "", err
	}

	if s.transferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.transferTimeout)
		defer cancel()
	}

	settlementID, err := s.ledger.SubmitTransfer(ctx, cred, toAddr, payment.Amount, payment.Memo)
	if err != nil {
		var appErr *apperror.AppError
		if !errors.As(err, &appErr) {
			return "", apperror.ErrLedgerUnavailable(err)
		}
		return "", err
	}
	if settlementID == "" {
		return "", apperror.ErrLedgerRejected(fmt.Errorf("ledger returned an empty settlement id"))
	}
	return settlementID, nil
}

// finalize persists the terminal state. lost reports that another writer
// already closed the record; stored is then its copy when it could be read.
func (s *PaymentLedgerService) finalize(ctx context.Context, payment *domain.PaymentRecord, log zerolog.Logger) (stored *domain.PaymentRecord, lost bool) {
	ok, err := s.paymentRepo.Finalize(ctx, payment)
	if err != nil {
		log.Error().Err(err).Str("status", string(payment.Status)).
			Msg("failed to persist terminal payment state, record left PROCESSING for reconciliation")
		return nil, false
	}
	if ok {
		return nil, false
	}

	log.Error().Str("status", string(payment.Status)).Msg("payment was closed by another writer")
	stored, err = s.paymentRepo.GetByID(ctx, payment.ID)
	if err != nil {
		log.Error().Err(err).Msg("failed to reload payment")
		return nil, true
	}
	return stored, true
}

// Get returns the payment, or nil when it is unknown or the requester is not
// a participant. The two cases are indistinguishable to the caller.
func (s *PaymentLedgerService) Get(ctx context.Context, paymentID uuid.UUID, requester *string) (*domain.PaymentRecord, error) {
	payment, err := s.paymentRepo.GetByID(ctx, paymentID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}
	if payment == nil {
		return nil, nil
	}
	if requester != nil && *requester != "" && !payment.InvolvesAgent(*requester) {
		return nil, nil
	}
	return payment, nil
}

// ListForAgent returns payments the agent sent or received, oldest first
// unless params.Order is desc.
func (s *PaymentLedgerService) ListForAgent(ctx context.Context, params ports.PaymentListParams) ([]domain.PaymentRecord, error) {
	if params.AgentID == "" {
		return nil, apperror.InvalidRequest("agent id is required")
	}
	switch params.Order {
	case "":
		params.Order = domain.SortAscending
	case domain.SortAscending, domain.SortDescending:
	default:
		return nil, apperror.InvalidRequest("order must be asc or desc")
	}
	if params.Status != nil && !params.Status.Valid() {
		return nil, apperror.InvalidRequest(fmt.Sprintf("unknown status %q", *params.Status))
	}
	if params.Limit < 0 {
		return nil, apperror.InvalidRequest("limit must not be negative")
	}

	payments, err := s.paymentRepo.ListForAgent(ctx, params)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("list payments: %w", err))
	}
	return payments, nil
}

// RecoverInterrupted fails PROCESSING payments whose last transition is older
// than staleAfter. Such records belong to a Process call whose host died
// before reaching a terminal state. It returns the number of records closed.
func (s *PaymentLedgerService) RecoverInterrupted(ctx context.Context, staleAfter time.Duration) (int, error) {
	now := time.Now().UTC()
	stale, err := s.paymentRepo.ListStale(ctx, domain.PaymentStatusProcessing, now.Add(-staleAfter))
	if err != nil {
		return 0, apperror.InternalError(fmt.Errorf("list stale payments: %w", err))
	}

	closed := 0
	for i := range stale {
		payment := &stale[i]
		payment.Fail(InterruptedReason, now)

		ok, err := s.paymentRepo.Finalize(ctx, payment)
		if err != nil {
			s.log.Error().Err(err).Str("payment_id", payment.ID.String()).Msg("failed to close interrupted payment")
			continue
		}
		if !ok {
			continue
		}
		closed++
		s.log.Error().
			Str("payment_id", payment.ID.String()).
			Str("from", payment.FromAgentID).
			Str("to", payment.ToAgentID).
			Int64("amount", payment.Amount).
			Msg("payment interrupted before settlement confirmation, marked FAILED; verify on the ledger before retrying")
	}
	return closed, nil
}
