package postgres

import (
	"context"
	"testing"
	"time"

	"agentpay/internal/core/ports"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdempotencyRepo_Set(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := NewIdempotencyRepo(mock)
	repo.now = func() time.Time { return now }
	paymentID := uuid.New()

	mock.ExpectExec("INSERT INTO idempotency_keys").
		WithArgs("alice:order-1", paymentID, now.Add(time.Hour)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.Set(context.Background(), "alice:order-1", paymentID.String(), time.Hour)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Set_RejectsNonUUID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)
	err = repo.Set(context.Background(), "alice:order-1", "not-a-uuid", time.Hour)
	assert.Error(t, err)
}

func TestIdempotencyRepo_Get(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	repo := NewIdempotencyRepo(mock)
	repo.now = func() time.Time { return now }
	paymentID := uuid.New()

	mock.ExpectQuery("SELECT (.+) FROM idempotency_keys WHERE key").
		WithArgs("alice:order-1", now).
		WillReturnRows(pgxmock.NewRows([]string{"payment_id"}).AddRow(paymentID.String()))

	result, err := repo.Get(context.Background(), "alice:order-1")
	require.NoError(t, err)
	assert.Equal(t, paymentID.String(), result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_Miss(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT (.+) FROM idempotency_keys WHERE key").
		WithArgs("alice:nonexistent", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"payment_id"}))

	result, err := repo.Get(context.Background(), "alice:nonexistent")
	assert.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Get_Reserved(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectQuery("SELECT (.+) FROM idempotency_keys WHERE key").
		WithArgs("alice:order-2", pgxmock.AnyArg()).
		WillReturnRows(pgxmock.NewRows([]string{"payment_id"}).AddRow(""))

	result, err := repo.Get(context.Background(), "alice:order-2")
	require.NoError(t, err)
	assert.Equal(t, ports.IdempotencyPending, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdempotencyRepo_Reserve(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{"inserted", 1, true},
		{"held by another send", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
			repo := NewIdempotencyRepo(mock)
			repo.now = func() time.Time { return now }

			mock.ExpectExec("INSERT INTO idempotency_keys (.+) ON CONFLICT").
				WithArgs("alice:order-3", now.Add(time.Minute), now).
				WillReturnResult(pgxmock.NewResult("INSERT", tt.affected))

			ok, err := repo.Reserve(context.Background(), "alice:order-3", time.Minute)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestIdempotencyRepo_Release(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewIdempotencyRepo(mock)

	mock.ExpectExec("DELETE FROM idempotency_keys WHERE key = \\$1 AND payment_id IS NULL").
		WithArgs("alice:order-4").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))

	require.NoError(t, repo.Release(context.Background(), "alice:order-4"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
