package ledger

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	InsertInTx(ctx context.Context, tx pgx.Tx, txn *Transaction) (*Transaction, error)

	// NextDailySequenceInTx returns a strictly increasing, collision-free
	// sequence scoped to the given UTC day. Implementations must serialize
	// concurrent callers (an upsert counter, not a row count).
	NextDailySequenceInTx(ctx context.Context, tx pgx.Tx, day time.Time) (int64, error)

	MarkCompletedInTx(ctx context.Context, tx pgx.Tx, id int64) error

	MarkFailedInTx(ctx context.Context, tx pgx.Tx, id int64) error

	GetByID(ctx context.Context, id int64) (*Transaction, error)

	GetByReference(ctx context.Context, reference string) (*Transaction, error)

	// SumCompletedInRange sums amounts of COMPLETED transactions of one type
	// against one account inside [from, to).
	SumCompletedInRange(ctx context.Context, accountID int64, typ TransactionType, from, to time.Time) (Money, error)

	SumCompletedInRangeInTx(ctx context.Context, tx pgx.Tx, accountID int64, typ TransactionType, from, to time.Time) (Money, error)

	ListByAccount(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
}
