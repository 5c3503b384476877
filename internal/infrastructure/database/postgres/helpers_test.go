package postgres

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

var pgconnUniqueViolation = pgconn.PgError{Code: uniqueViolationCode}

const pgxmockExpectationsNotMetMsg = "there were unfulfilled expectations"

func newMockPool(t *testing.T) pgxmock.PgxPoolIface {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to open a stub database connection: %v", err)
	}
	return mockPool
}

// beginMockTx opens a transaction against the mock pool so the *InTx methods
// can be exercised directly.
func beginMockTx(t *testing.T, mockPool pgxmock.PgxPoolIface) pgx.Tx {
	t.Helper()
	mockPool.ExpectBegin()
	tx, err := mockPool.Begin(context.Background())
	if err != nil {
		t.Fatalf("failed to begin mock transaction: %v", err)
	}
	return tx
}
