package credit

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	// CreateInTx inserts the facility inside the caller's transaction; used
	// by onboarding so the facility commits with the first savings account.
	CreateInTx(ctx context.Context, tx pgx.Tx, acct *Account) (*Account, error)

	GetByID(ctx context.Context, accountID int64) (*Account, error)

	GetByUserID(ctx context.Context, userID int64) (*Account, error)

	GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*Account, error)

	GetForUpdateByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (*Account, error)

	// UpdateFiguresInTx persists all five financial columns of the facility
	// as one statement.
	UpdateFiguresInTx(ctx context.Context, tx pgx.Tx, acct *Account) error
}
