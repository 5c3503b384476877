package loan

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

type Repository interface {
	Create(ctx context.Context, l *Loan) (*Loan, error)

	GetByID(ctx context.Context, loanID int64) (*Loan, error)

	GetForUpdateInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error)

	UpdateDecisionInTx(ctx context.Context, tx pgx.Tx, loanID int64, status Status, approval ApprovalStatus) error

	SetDisbursedInTx(ctx context.Context, tx pgx.Tx, loanID int64, savingsAccountID int64, at time.Time) error

	UpdateAfterRepaymentInTx(ctx context.Context, tx pgx.Tx, loanID int64, outstanding Money, status Status) error

	InsertScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64, schedule []Repayment) error

	HasScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64) (bool, error)

	GetSchedule(ctx context.Context, loanID int64) ([]Repayment, error)

	// FindNextPayableInTx locks and returns the installment a repayment
	// applies to: the first SCHEDULED or PARTIALLY_PAID row by schedule
	// number, falling back to the earliest OVERDUE row.
	FindNextPayableInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*Repayment, error)

	UpdateRepaymentInTx(ctx context.Context, tx pgx.Tx, rep *Repayment) error

	CountByUserAndStatus(ctx context.Context, userID int64, status Status) (int, error)

	CountActiveByAccountInTx(ctx context.Context, tx pgx.Tx, savingsAccountID int64) (int, error)

	// LastDisbursedAccountID returns the savings account the customer's most
	// recent disbursement landed on, or nil when there is none.
	LastDisbursedAccountID(ctx context.Context, userID int64) (*int64, error)

	ListByUser(ctx context.Context, userID int64) ([]Loan, error)

	// MarkOverdueInTx flips past-due SCHEDULED/PARTIALLY_PAID installments to
	// OVERDUE and applies the one-time late fee. Returns how many rows moved.
	MarkOverdueInTx(ctx context.Context, tx pgx.Tx, asOf time.Time, lateFeeRate float64) (int64, error)

	// ListDefaultCandidatesInTx returns ids of non-terminal loans carrying at
	// least minOverdue OVERDUE installments.
	ListDefaultCandidatesInTx(ctx context.Context, tx pgx.Tx, minOverdue int) ([]int64, error)

	UpdateStatusInTx(ctx context.Context, tx pgx.Tx, loanID int64, status Status) error
}
