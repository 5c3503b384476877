package savings

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	// CreateInTx inserts the account inside the caller's transaction so
	// onboarding side effects commit or roll back with it.
	CreateInTx(ctx context.Context, tx pgx.Tx, acct *Account) (*Account, error)

	GetByID(ctx context.Context, accountID int64) (*Account, error)

	// GetForUpdateInTx locks the account row for the remainder of the
	// transaction so concurrent mutations against the same account serialize.
	GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*Account, error)

	UpdateBalanceInTx(ctx context.Context, tx pgx.Tx, accountID int64, newBalance Money) error

	UpdateStatusInTx(ctx context.Context, tx pgx.Tx, accountID int64, status AccountStatus) error

	ListActiveByUser(ctx context.Context, userID int64) ([]Account, error)

	CountActiveByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error)
}
