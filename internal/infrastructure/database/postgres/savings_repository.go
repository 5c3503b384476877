package postgres

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

type SavingsRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewSavingsRepository(db DBPool, logger *slog.Logger) *SavingsRepository {
	return &SavingsRepository{db: db, logger: logger.With("component", "SavingsRepository")}
}

const savingsColumns = `id, user_id, account_number, balance, tier, status, created_at, updated_at`

func scanSavingsAccount(row pgx.Row) (*savings.Account, error) {
	var acct savings.Account
	err := row.Scan(
		&acct.ID, &acct.UserID, &acct.AccountNumber, &acct.Balance,
		&acct.Tier, &acct.Status, &acct.CreatedAt, &acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

func (r *SavingsRepository) CreateInTx(ctx context.Context, tx pgx.Tx, acct *savings.Account) (*savings.Account, error) {
	sql := `
        INSERT INTO savings_accounts (user_id, account_number, balance, tier, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING ` + savingsColumns

	created, err := scanSavingsAccount(tx.QueryRow(ctx, sql,
		acct.UserID, acct.AccountNumber, acct.Balance, acct.Tier, acct.Status,
	))
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert savings account", "user_id", acct.UserID, "error", err)
		return nil, translateError(err, "insert savings account")
	}
	r.logger.InfoContext(ctx, "Savings account created in DB", "account_id", created.ID, "account_number", created.AccountNumber)
	return created, nil
}

func (r *SavingsRepository) GetByID(ctx context.Context, accountID int64) (*savings.Account, error) {
	sql := `SELECT ` + savingsColumns + ` FROM savings_accounts WHERE id = $1`
	acct, err := scanSavingsAccount(r.db.QueryRow(ctx, sql, accountID))
	if err != nil {
		return nil, translateError(err, "get savings account")
	}
	return acct, nil
}

func (r *SavingsRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*savings.Account, error) {
	sql := `SELECT ` + savingsColumns + ` FROM savings_accounts WHERE id = $1 FOR UPDATE`
	acct, err := scanSavingsAccount(tx.QueryRow(ctx, sql, accountID))
	if err != nil {
		return nil, translateError(err, "lock savings account")
	}
	return acct, nil
}

// BalanceInTx serves the ledger's balance snapshot without handing the whole
// account over. Takes the row lock so the snapshot stays valid for the
// remainder of the transaction.
func (r *SavingsRepository) BalanceInTx(ctx context.Context, tx pgx.Tx, accountID int64) (ledger.Money, error) {
	var balance ledger.Money
	err := tx.QueryRow(ctx, `SELECT balance FROM savings_accounts WHERE id = $1 FOR UPDATE`, accountID).Scan(&balance)
	if err != nil {
		return 0, translateError(err, "read savings balance")
	}
	return balance, nil
}

func (r *SavingsRepository) UpdateBalanceInTx(ctx context.Context, tx pgx.Tx, accountID int64, newBalance savings.Money) error {
	tag, err := tx.Exec(ctx, `UPDATE savings_accounts SET balance = $2, updated_at = NOW() WHERE id = $1`, accountID, newBalance)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update savings balance", "account_id", accountID, "error", err)
		return translateError(err, "update savings balance")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update savings balance")
	}
	return nil
}

func (r *SavingsRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, accountID int64, status savings.AccountStatus) error {
	tag, err := tx.Exec(ctx, `UPDATE savings_accounts SET status = $2, updated_at = NOW() WHERE id = $1`, accountID, status)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update savings account status", "account_id", accountID, "status", status, "error", err)
		return translateError(err, "update savings account status")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update savings account status")
	}
	return nil
}

func (r *SavingsRepository) ListActiveByUser(ctx context.Context, userID int64) ([]savings.Account, error) {
	sql := `SELECT ` + savingsColumns + ` FROM savings_accounts WHERE user_id = $1 AND status = 'ACTIVE' ORDER BY created_at ASC`

	rows, err := r.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, translateError(err, "list active savings accounts")
	}
	defer rows.Close()

	var result []savings.Account
	for rows.Next() {
		acct, err := scanSavingsAccount(rows)
		if err != nil {
			return nil, translateError(err, "scan savings account")
		}
		result = append(result, *acct)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate savings accounts")
	}
	return result, nil
}

func (r *SavingsRepository) CountActiveByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	var count int
	err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM savings_accounts WHERE user_id = $1 AND status = 'ACTIVE'`, userID).Scan(&count)
	if err != nil {
		return 0, translateError(err, "count active savings accounts")
	}
	return count, nil
}
