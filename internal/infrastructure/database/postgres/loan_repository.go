package postgres

import (
	"banking-engine/internal/domain/loan"
	"banking-engine/internal/infrastructure/monitoring"
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

type LoanRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewLoanRepository(db DBPool, logger *slog.Logger) *LoanRepository {
	return &LoanRepository{db: db, logger: logger.With("component", "LoanRepository")}
}

const loanColumns = `id, user_id, credit_account_id, savings_account_id, principal_amount, interest_rate, total_amount, outstanding_amount, tenor_months, status, approval_status, requested_at, disbursed_at, due_date, created_at, updated_at`

const repaymentColumns = `id, loan_id, schedule_number, due_date, due_amount, amount_paid, late_fee, status, paid_at, created_at, updated_at`

func scanLoan(row pgx.Row) (*loan.Loan, error) {
	var l loan.Loan
	err := row.Scan(
		&l.ID, &l.UserID, &l.CreditAccountID, &l.SavingsAccountID,
		&l.PrincipalAmount, &l.InterestRate, &l.TotalAmount, &l.OutstandingAmount,
		&l.TenorMonths, &l.Status, &l.ApprovalStatus,
		&l.RequestedAt, &l.DisbursedAt, &l.DueDate, &l.CreatedAt, &l.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

func scanRepayment(row pgx.Row) (*loan.Repayment, error) {
	var rep loan.Repayment
	err := row.Scan(
		&rep.ID, &rep.LoanID, &rep.ScheduleNumber, &rep.DueDate, &rep.DueAmount,
		&rep.AmountPaid, &rep.LateFee, &rep.Status, &rep.PaidAt, &rep.CreatedAt, &rep.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rep, nil
}

func (r *LoanRepository) Create(ctx context.Context, l *loan.Loan) (*loan.Loan, error) {
	start := time.Now()
	sql := `
        INSERT INTO loans (user_id, credit_account_id, savings_account_id, principal_amount, interest_rate, total_amount, outstanding_amount, tenor_months, status, approval_status, requested_at, due_date, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, NOW(), NOW())
        RETURNING ` + loanColumns

	created, err := scanLoan(r.db.QueryRow(ctx, sql,
		l.UserID, l.CreditAccountID, l.SavingsAccountID,
		l.PrincipalAmount, l.InterestRate, l.TotalAmount, l.OutstandingAmount,
		l.TenorMonths, l.Status, l.ApprovalStatus, l.RequestedAt, l.DueDate,
	))
	monitoring.RecordDBQuery("insert_loan", time.Since(start), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert loan", "user_id", l.UserID, "error", err)
		return nil, translateError(err, "insert loan")
	}
	r.logger.InfoContext(ctx, "Loan created in DB", "loan_id", created.ID)
	return created, nil
}

func (r *LoanRepository) GetByID(ctx context.Context, loanID int64) (*loan.Loan, error) {
	sql := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1`
	l, err := scanLoan(r.db.QueryRow(ctx, sql, loanID))
	if err != nil {
		return nil, translateError(err, "get loan")
	}
	return l, nil
}

func (r *LoanRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Loan, error) {
	sql := `SELECT ` + loanColumns + ` FROM loans WHERE id = $1 FOR UPDATE`
	l, err := scanLoan(tx.QueryRow(ctx, sql, loanID))
	if err != nil {
		return nil, translateError(err, "lock loan")
	}
	return l, nil
}

func (r *LoanRepository) UpdateDecisionInTx(ctx context.Context, tx pgx.Tx, loanID int64, status loan.Status, approval loan.ApprovalStatus) error {
	sql := `UPDATE loans SET status = $2, approval_status = $3, updated_at = NOW() WHERE id = $1`
	tag, err := tx.Exec(ctx, sql, loanID, status, approval)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan decision", "loan_id", loanID, "error", err)
		return translateError(err, "update loan decision")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update loan decision")
	}
	return nil
}

func (r *LoanRepository) SetDisbursedInTx(ctx context.Context, tx pgx.Tx, loanID int64, savingsAccountID int64, at time.Time) error {
	sql := `
        UPDATE loans
        SET status = 'DISBURSED', savings_account_id = $2, disbursed_at = $3, updated_at = NOW()
        WHERE id = $1`

	tag, err := tx.Exec(ctx, sql, loanID, savingsAccountID, at)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark loan disbursed", "loan_id", loanID, "error", err)
		return translateError(err, "mark loan disbursed")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "mark loan disbursed")
	}
	return nil
}

func (r *LoanRepository) UpdateAfterRepaymentInTx(ctx context.Context, tx pgx.Tx, loanID int64, outstanding loan.Money, status loan.Status) error {
	sql := `UPDATE loans SET outstanding_amount = $2, status = $3, updated_at = NOW() WHERE id = $1`
	tag, err := tx.Exec(ctx, sql, loanID, outstanding, status)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan after repayment", "loan_id", loanID, "error", err)
		return translateError(err, "update loan after repayment")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update loan after repayment")
	}
	return nil
}

func (r *LoanRepository) InsertScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64, schedule []loan.Repayment) error {
	sql := `
        INSERT INTO loan_repayments (loan_id, schedule_number, due_date, due_amount, amount_paid, late_fee, status, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())`

	batch := &pgx.Batch{}
	for _, entry := range schedule {
		batch.Queue(sql, loanID, entry.ScheduleNumber, entry.DueDate, entry.DueAmount, entry.AmountPaid, entry.LateFee, entry.Status)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range schedule {
		if _, err := results.Exec(); err != nil {
			results.Close()
			r.logger.ErrorContext(ctx, "Failed executing schedule batch insert", "error", err, "entry_index", i, "loan_id", loanID)
			return translateError(err, "insert repayment schedule entry")
		}
	}
	if err := results.Close(); err != nil {
		r.logger.ErrorContext(ctx, "Failed closing schedule batch results", "error", err, "loan_id", loanID)
		return translateError(err, "close schedule batch")
	}

	r.logger.InfoContext(ctx, "Repayment schedule created in DB", "loan_id", loanID, "num_entries", len(schedule))
	return nil
}

func (r *LoanRepository) HasScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM loan_repayments WHERE loan_id = $1)`, loanID).Scan(&exists)
	if err != nil {
		return false, translateError(err, "check repayment schedule")
	}
	return exists, nil
}

func (r *LoanRepository) GetSchedule(ctx context.Context, loanID int64) ([]loan.Repayment, error) {
	sql := `SELECT ` + repaymentColumns + ` FROM loan_repayments WHERE loan_id = $1 ORDER BY schedule_number ASC`

	rows, err := r.db.Query(ctx, sql, loanID)
	if err != nil {
		return nil, translateError(err, "get repayment schedule")
	}
	defer rows.Close()

	var schedule []loan.Repayment
	for rows.Next() {
		rep, err := scanRepayment(rows)
		if err != nil {
			return nil, translateError(err, "scan repayment")
		}
		schedule = append(schedule, *rep)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate repayments")
	}
	return schedule, nil
}

func (r *LoanRepository) FindNextPayableInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*loan.Repayment, error) {
	sql := `
        SELECT ` + repaymentColumns + `
        FROM loan_repayments
        WHERE loan_id = $1 AND status IN ('SCHEDULED', 'PARTIALLY_PAID', 'OVERDUE')
        ORDER BY CASE WHEN status = 'OVERDUE' THEN 1 ELSE 0 END, schedule_number ASC
        LIMIT 1
        FOR UPDATE`

	rep, err := scanRepayment(tx.QueryRow(ctx, sql, loanID))
	if err != nil {
		return nil, translateError(err, "find next payable installment")
	}
	return rep, nil
}

func (r *LoanRepository) UpdateRepaymentInTx(ctx context.Context, tx pgx.Tx, rep *loan.Repayment) error {
	sql := `
        UPDATE loan_repayments
        SET amount_paid = $2, late_fee = $3, status = $4, paid_at = $5, updated_at = NOW()
        WHERE id = $1`

	tag, err := tx.Exec(ctx, sql, rep.ID, rep.AmountPaid, rep.LateFee, rep.Status, rep.PaidAt)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update repayment", "repayment_id", rep.ID, "error", err)
		return translateError(err, "update repayment")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update repayment")
	}
	return nil
}

func (r *LoanRepository) CountByUserAndStatus(ctx context.Context, userID int64, status loan.Status) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM loans WHERE user_id = $1 AND status = $2`, userID, status).Scan(&count)
	if err != nil {
		return 0, translateError(err, "count loans by status")
	}
	return count, nil
}

func (r *LoanRepository) CountActiveByAccountInTx(ctx context.Context, tx pgx.Tx, savingsAccountID int64) (int, error) {
	sql := `
        SELECT COUNT(*)
        FROM loans
        WHERE savings_account_id = $1 AND status IN ('PENDING', 'APPROVED', 'DISBURSED', 'ACTIVE')`

	var count int
	err := tx.QueryRow(ctx, sql, savingsAccountID).Scan(&count)
	if err != nil {
		return 0, translateError(err, "count active loans by account")
	}
	return count, nil
}

func (r *LoanRepository) LastDisbursedAccountID(ctx context.Context, userID int64) (*int64, error) {
	sql := `
        SELECT savings_account_id
        FROM loans
        WHERE user_id = $1 AND disbursed_at IS NOT NULL
        ORDER BY disbursed_at DESC
        LIMIT 1`

	var accountID int64
	err := r.db.QueryRow(ctx, sql, userID).Scan(&accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, translateError(err, "get last disbursed account")
	}
	return &accountID, nil
}

func (r *LoanRepository) ListByUser(ctx context.Context, userID int64) ([]loan.Loan, error) {
	sql := `SELECT ` + loanColumns + ` FROM loans WHERE user_id = $1 ORDER BY requested_at DESC`

	rows, err := r.db.Query(ctx, sql, userID)
	if err != nil {
		return nil, translateError(err, "list loans")
	}
	defer rows.Close()

	var result []loan.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, translateError(err, "scan loan")
		}
		result = append(result, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate loans")
	}
	return result, nil
}

// MarkOverdueInTx flips every past-due open installment to OVERDUE and sets
// the late fee. GREATEST keeps the fee one-time for installments that cycled
// through PARTIALLY_PAID after already having been marked once.
func (r *LoanRepository) MarkOverdueInTx(ctx context.Context, tx pgx.Tx, asOf time.Time, lateFeeRate float64) (int64, error) {
	start := time.Now()
	sql := `
        UPDATE loan_repayments
        SET status = 'OVERDUE',
            late_fee = GREATEST(late_fee, ROUND((due_amount * $2)::numeric, 2)),
            updated_at = NOW()
        WHERE due_date < $1 AND status IN ('SCHEDULED', 'PARTIALLY_PAID')`

	tag, err := tx.Exec(ctx, sql, asOf, lateFeeRate)
	monitoring.RecordDBQuery("mark_repayments_overdue", time.Since(start), err)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to mark repayments overdue", "error", err)
		return 0, translateError(err, "mark repayments overdue")
	}
	return tag.RowsAffected(), nil
}

func (r *LoanRepository) ListDefaultCandidatesInTx(ctx context.Context, tx pgx.Tx, minOverdue int) ([]int64, error) {
	sql := `
        SELECT l.id
        FROM loans l
        JOIN loan_repayments rep ON rep.loan_id = l.id AND rep.status = 'OVERDUE'
        WHERE l.status IN ('DISBURSED', 'ACTIVE')
        GROUP BY l.id
        HAVING COUNT(*) >= $1`

	rows, err := tx.Query(ctx, sql, minOverdue)
	if err != nil {
		return nil, translateError(err, "list default candidates")
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, translateError(err, "scan default candidate")
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, translateError(err, "iterate default candidates")
	}
	return ids, nil
}

func (r *LoanRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, loanID int64, status loan.Status) error {
	tag, err := tx.Exec(ctx, `UPDATE loans SET status = $2, updated_at = NOW() WHERE id = $1`, loanID, status)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update loan status", "loan_id", loanID, "status", status, "error", err)
		return translateError(err, "update loan status")
	}
	if tag.RowsAffected() == 0 {
		return translateError(pgx.ErrNoRows, "update loan status")
	}
	return nil
}
