package postgres

import (
	"banking-engine/internal/domain/credit"
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

type CreditRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewCreditRepository(db DBPool, logger *slog.Logger) *CreditRepository {
	return &CreditRepository{db: db, logger: logger.With("component", "CreditRepository")}
}

const creditColumns = `id, user_id, credit_limit, available_credit, total_borrowed, total_repaid, outstanding_balance, status, created_at, updated_at`

func scanCreditAccount(row pgx.Row) (*credit.Account, error) {
	var acct credit.Account
	err := row.Scan(
		&acct.ID, &acct.UserID, &acct.CreditLimit, &acct.AvailableCredit,
		&acct.TotalBorrowed, &acct.TotalRepaid, &acct.OutstandingBalance,
		&acct.Status, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *CreditRepository) CreateInTx(ctx context.Context, tx pgx.Tx, acct *credit.Account) (*credit.Account, error) {
	sql := `
        INSERT INTO credit_accounts (user_id, credit_limit, available_credit, total_borrowed, total_repaid, outstanding_balance, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
        RETURNING ` + creditColumns

	created, err := scanCreditAccount(tx.QueryRow(ctx, sql,
		acct.UserID, acct.CreditLimit, acct.AvailableCredit,
		acct.TotalBorrowed, acct.TotalRepaid, acct.OutstandingBalance, acct.Status,
	))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert credit account", "user_id", acct.UserID, "error", err)
		return nil, translateError(err, "insert credit account")
	}
	r.logger.InfoContext(ctx, "Credit account created in DB", "credit_account_id", created.ID, "user_id", created.UserID)
	return created, nil
}

func (r *CreditRepository) GetByID(ctx context.Context, accountID int64) (*credit.Account, error) {
	sql := `SELECT ` + creditColumns + ` FROM credit_accounts WHERE id = $1`
	acct, err := scanCreditAccount(r.db.QueryRow(ctx, sql, accountID))
	if err != nil {
		return nil, translateError(err, "get credit account")
	}
	return acct, nil
}

func (r *CreditRepository) GetByUserID(ctx context.Context, userID int64) (*credit.Account, error) {
	sql := `SELECT ` + creditColumns + ` FROM credit_accounts WHERE user_id = $1`
	acct, err := scanCreditAccount(r.db.QueryRow(ctx, sql, userID))
	if err != nil {
		return nil, translateError(err, "get credit account by user")
	}
	return acct, nil
}

func (r *CreditRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*credit.Account, error) {
	sql := `SELECT ` + creditColumns + ` FROM credit_accounts WHERE id = $1 FOR UPDATE`
	acct, err := scanCreditAccount(tx.QueryRow(ctx, sql, accountID))
	if err != nil {
		return nil, translateError(err, "lock credit account")
	}
	return acct, nil
}

func (r *CreditRepository) GetForUpdateByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (*credit.Account, error) {
	sql := `SELECT ` + creditColumns + ` FROM credit_accounts WHERE user_id = $1 FOR UPDATE`
	acct, err := scanCreditAccount(tx.QueryRow(ctx, sql, userID))
	if err != nil {
		return nil, translateError(err, "lock credit account by user")
	}
	return acct, nil
}

func (r *CreditRepository) UpdateFiguresInTx(ctx context.Context, tx pgx.Tx, acct *credit.Account) error {
	sql := `
        UPDATE credit_accounts
        SET credit_limit = $2, available_credit = $3, total_borrowed = $4, total_repaid = $5, outstanding_balance = $6, updated_at = NOW()
        WHERE id = $1`

	tag, err := tx.Exec(ctx, sql,
		acct.ID, acct.CreditLimit, acct.AvailableCredit,
		acct.TotalBorrowed, acct.TotalRepaid, acct.OutstandingBalance,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update credit figures", "credit_account_id", acct.ID, "error", err)
		return translateError(err, "update credit figures")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update credit figures")
	}
	return nil
}
