package postgres

import (
	"context"
	"testing"
	"time"

	"agentpay/internal/core/domain"
	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestPayment() *domain.PaymentRecord {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PaymentRecord{
		ID:           uuid.New(),
		FromAgentID:  "alice",
		ToAgentID:    "bob",
		Amount:       1000,
		Memo:         strPtr("invoice 7"),
		Status:       domain.PaymentStatusPending,
		PrivacyToken: strPtr("token"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func paymentCols() []string {
	return []string{"id", "from_agent_id", "to_agent_id", "amount", "memo", "settlement_id", "status",
		"privacy_token", "failure_reason", "created_at", "updated_at", "completed_at"}
}

func paymentRow(rows *pgxmock.Rows, p *domain.PaymentRecord) *pgxmock.Rows {
	return rows.AddRow(
		p.ID, p.FromAgentID, p.ToAgentID, p.Amount, p.Memo, p.SettlementID, p.Status,
		p.PrivacyToken, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.CompletedAt,
	)
}

func TestPaymentRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectExec("INSERT INTO payments").
		WithArgs(p.ID, p.FromAgentID, p.ToAgentID, p.Amount, p.Memo, p.SettlementID, p.Status,
			p.PrivacyToken, p.FailureReason, p.CreatedAt, p.UpdatedAt, p.CompletedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Create(context.Background(), p)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(p.ID).
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentCols()), p))

	result, err := repo.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, p.ID, result.ID)
	assert.Equal(t, domain.PaymentStatusPending, result.Status)
	assert.Equal(t, "invoice 7", *result.Memo)
	assert.Nil(t, result.SettlementID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM payments WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows(paymentCols()))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestPaymentRepo_TransitionStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	id := uuid.New()
	at := time.Now().UTC()

	mock.ExpectExec("UPDATE payments SET status .+ WHERE id .+ AND status").
		WithArgs(domain.PaymentStatusProcessing, at, id, domain.PaymentStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE payments SET status .+ WHERE id .+ AND status").
		WithArgs(domain.PaymentStatusProcessing, at, id, domain.PaymentStatusPending).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	won, err := repo.TransitionStatus(context.Background(), id, domain.PaymentStatusPending, domain.PaymentStatusProcessing, at)
	require.NoError(t, err)
	assert.True(t, won)

	won, err = repo.TransitionStatus(context.Background(), id, domain.PaymentStatusPending, domain.PaymentStatusProcessing, at)
	require.NoError(t, err)
	assert.False(t, won)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_TransitionStatus_IllegalTransition(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	_, err = repo.TransitionStatus(context.Background(), uuid.New(), domain.PaymentStatusCompleted, domain.PaymentStatusPending, time.Now())
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Finalize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	p.Complete("0xsettle", time.Now().UTC())

	mock.ExpectExec("UPDATE payments").
		WithArgs(p.Status, p.SettlementID, p.FailureReason, p.CompletedAt, p.UpdatedAt, p.ID, domain.PaymentStatusProcessing).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Finalize(context.Background(), p)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_Finalize_RejectsNonTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	_, err = repo.Finalize(context.Background(), newTestPayment())
	assert.Error(t, err)
}

func TestPaymentRepo_ListForAgent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p1 := newTestPayment()
	p2 := newTestPayment()
	status := domain.PaymentStatusPending

	rows := pgxmock.NewRows(paymentCols())
	paymentRow(rows, p2)
	paymentRow(rows, p1)

	mock.ExpectQuery(`SELECT .+ FROM payments WHERE \(from_agent_id = \$1 OR to_agent_id = \$1\) AND status = \$2 ORDER BY created_at DESC, id DESC LIMIT \$3`).
		WithArgs("alice", status, 10).
		WillReturnRows(rows)

	result, err := repo.ListForAgent(context.Background(), ports.PaymentListParams{
		AgentID: "alice",
		Status:  &status,
		Order:   domain.SortDescending,
		Limit:   10,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, p2.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListForAgent_DefaultAscending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)

	mock.ExpectQuery(`ORDER BY created_at ASC, id ASC$`).
		WithArgs("bob").
		WillReturnRows(pgxmock.NewRows(paymentCols()))

	result, err := repo.ListForAgent(context.Background(), ports.PaymentListParams{AgentID: "bob"})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPaymentRepo_ListStale(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewPaymentRepo(mock)
	p := newTestPayment()
	p.Status = domain.PaymentStatusProcessing
	cutoff := time.Now().UTC()

	mock.ExpectQuery("SELECT .+ FROM payments\\s+WHERE status = \\$1 AND updated_at < \\$2").
		WithArgs(domain.PaymentStatusProcessing, cutoff).
		WillReturnRows(paymentRow(pgxmock.NewRows(paymentCols()), p))

	result, err := repo.ListStale(context.Background(), domain.PaymentStatusProcessing, cutoff)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, domain.PaymentStatusProcessing, result[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
