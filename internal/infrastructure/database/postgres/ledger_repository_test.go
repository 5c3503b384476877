package postgres

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNextDailySequenceUpserts(t *testing.T) {
	mockPool := newMockPool(t)
	defer mockPool.Close()
	repo := NewLedgerRepository(mockPool, logger)

	ctx := context.Background()
	day := time.Date(2025, 9, 1, 13, 45, 0, 0, time.UTC)
	tx := beginMockTx(t, mockPool)

	query := `
        INSERT INTO transaction_sequences (seq_date, value)
        VALUES ($1, 1)
        ON CONFLICT (seq_date) DO UPDATE SET value = transaction_sequences.value + 1
        RETURNING value`

	mockPool.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs(day.Truncate(24 * time.Hour)).
		WillReturnRows(pgxmock.NewRows([]string{"value"}).AddRow(int64(7)))

	seq, err := repo.NextDailySequenceInTx(ctx, tx, day)

	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestMarkCompletedOnlyTouchesPending(t *testing.T) {
	mockPool := newMockPool(t)
	defer mockPool.Close()
	repo := NewLedgerRepository(mockPool, logger)

	ctx := context.Background()
	tx := beginMockTx(t, mockPool)

	mockPool.ExpectExec(regexp.QuoteMeta("UPDATE transactions")).
		WithArgs(int64(9), ledger.StatusCompleted).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := repo.MarkCompletedInTx(ctx, tx, 9)

	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestSumCompletedInRange(t *testing.T) {
	mockPool := newMockPool(t)
	defer mockPool.Close()
	repo := NewLedgerRepository(mockPool, logger)

	ctx := context.Background()
	from := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(amount), 0)")).
		WithArgs(int64(5), ledger.TypeWithdrawal, from, to).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(ledger.Money(1250.50)))

	total, err := repo.SumCompletedInRange(ctx, 5, ledger.TypeWithdrawal, from, to)

	require.NoError(t, err)
	assert.Equal(t, ledger.Money(1250.50), total)
	assert.NoError(t, mockPool.ExpectationsWereMet(), pgxmockExpectationsNotMetMsg)
}

func TestGetByReferenceNotFound(t *testing.T) {
	mockPool := newMockPool(t)
	defer mockPool.Close()
	repo := NewLedgerRepository(mockPool, logger)

	mockPool.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("TXN-20250901-00099").
		WillReturnError(context.Canceled)

	_, err := repo.GetByReference(context.Background(), "TXN-20250901-00099")

	assert.ErrorIs(t, err, apperrors.ErrDatabase)
}
