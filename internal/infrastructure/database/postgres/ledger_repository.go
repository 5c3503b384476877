package postgres

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/infrastructure/monitoring"
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

type LedgerRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewLedgerRepository(db DBPool, logger *slog.Logger) *LedgerRepository {
	return &LedgerRepository{db: db, logger: logger.With("component", "LedgerRepository")}
}

const transactionColumns = `id, reference, user_id, account_id, type, amount, balance_before, balance_after, status, description, metadata, processed_at, created_at, updated_at`

func scanTransaction(row pgx.Row) (*ledger.Transaction, error) {
	var txn ledger.Transaction
	err := row.Scan(
		&txn.ID, &txn.Reference, &txn.UserID, &txn.AccountID, &txn.Type, &txn.Amount,
		&txn.BalanceBefore, &txn.BalanceAfter, &txn.Status, &txn.Description,
		&txn.Metadata, &txn.ProcessedAt, &txn.CreatedAt, &txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

func (r *LedgerRepository) InsertInTx(ctx context.Context, tx pgx.Tx, txn *ledger.Transaction) (*ledger.Transaction, error) {
	start := time.Now()
	sql := `
        INSERT INTO transactions (reference, user_id, account_id, type, amount, balance_before, balance_after, status, description, metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())
        RETURNING ` + transactionColumns

	created, err := scanTransaction(tx.QueryRow(ctx, sql,
		txn.Reference, txn.UserID, txn.AccountID, txn.Type, txn.Amount,
		txn.BalanceBefore, txn.BalanceAfter, txn.Status, txn.Description, txn.Metadata,
	))
	monitoring.RecordDBQuery("insert_transaction", time.Since(start), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert transaction", "reference", txn.Reference, "error", err)
		return nil, translateError(err, "insert transaction")
	}
	return created, nil
}

// NextDailySequenceInTx serializes concurrent callers through an upsert
// counter row per UTC day, so two transactions can never share a reference.
func (r *LedgerRepository) NextDailySequenceInTx(ctx context.Context, tx pgx.Tx, day time.Time) (int64, error) {
	start := time.Now()
	sql := `
        INSERT INTO transaction_sequences (seq_date, value)
        VALUES ($1, 1)
        ON CONFLICT (seq_date) DO UPDATE SET value = transaction_sequences.value + 1
        RETURNING value`

	var value int64
	err := tx.QueryRow(ctx, sql, day.UTC().Truncate(24*time.Hour)).Scan(&value)
	monitoring.RecordDBQuery("next_daily_sequence", time.Since(start), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to advance daily transaction sequence", "error", err)
		return 0, translateError(err, "advance daily sequence")
	}
	return value, nil
}

func (r *LedgerRepository) MarkCompletedInTx(ctx context.Context, tx pgx.Tx, id int64) error {
	return r.finalize(ctx, tx, id, ledger.StatusCompleted)
}

func (r *LedgerRepository) MarkFailedInTx(ctx context.Context, tx pgx.Tx, id int64) error {
	return r.finalize(ctx, tx, id, ledger.StatusFailed)
}

func (r *LedgerRepository) finalize(ctx context.Context, tx pgx.Tx, id int64, status ledger.TransactionStatus) error {
	sql := `
        UPDATE transactions
        SET status = $2, processed_at = NOW(), updated_at = NOW()
        WHERE id = $1 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, sql, id, status)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to finalize transaction", "transaction_id", id, "status", status, "error", err)
		return translateError(err, "finalize transaction")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "finalize transaction")
	}
	return nil
}

func (r *LedgerRepository) GetByID(ctx context.Context, id int64) (*ledger.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	txn, err := scanTransaction(r.db.QueryRow(ctx, sql, id))
	if err != nil {
		return nil, translateError(err, "get transaction by id")
	}
	return txn, nil
}

func (r *LedgerRepository) GetByReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	sql := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	txn, err := scanTransaction(r.db.QueryRow(ctx, sql, reference))
	if err != nil {
		return nil, translateError(err, "get transaction by reference")
	}
	return txn, nil
}

const sumCompletedSQL = `
        SELECT COALESCE(SUM(amount), 0)
        FROM transactions
        WHERE account_id = $1 AND type = $2 AND status = 'COMPLETED'
          AND created_at >= $3 AND created_at < $4`

func (r *LedgerRepository) SumCompletedInRange(ctx context.Context, accountID int64, typ ledger.TransactionType, from, to time.Time) (ledger.Money, error) {
	var total ledger.Money
	err := r.db.QueryRow(ctx, sumCompletedSQL, accountID, typ, from, to).Scan(&total)
	if err != nil {
		return 0, translateError(err, "sum transactions in range")
	}
	return total, nil
}

func (r *LedgerRepository) SumCompletedInRangeInTx(ctx context.Context, tx pgx.Tx, accountID int64, typ ledger.TransactionType, from, to time.Time) (ledger.Money, error) {
	var total ledger.Money
	err := tx.QueryRow(ctx, sumCompletedSQL, accountID, typ, from, to).Scan(&total)
	if err != nil {
		return 0, translateError(err, "sum transactions in range")
	}
	return total, nil
}

func (r *LedgerRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	sql := `
        SELECT ` + transactionColumns + `
        FROM transactions
        WHERE account_id = $1
        ORDER BY created_at DESC, id DESC
        LIMIT $2`

	rows, err := r.db.Query(ctx, sql, accountID, limit)
	if err != nil {
		return nil, translateError(err, "list transactions")
	}
	defer rows.Close()

	var result []ledger.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, translateError(err, "scan transaction")
		}
		result = append(result, *txn)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate transactions")
	}
	return result, nil
}
