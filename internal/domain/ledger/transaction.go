package ledger

import (
	"banking-engine/internal/pkg/apperrors"
	"fmt"
	"math"
	"time"
)

type Money = float64

type TransactionType string

const (
	TypeDeposit          TransactionType = "DEPOSIT"
	TypeWithdrawal       TransactionType = "WITHDRAWAL"
	TypeLoanDisbursement TransactionType = "LOAN_DISBURSEMENT"
	TypeLoanRepayment    TransactionType = "LOAN_REPAYMENT"
	TypeFeeCharge        TransactionType = "FEE_CHARGE"
	TypeInterestCredit   TransactionType = "INTEREST_CREDIT"
)

// IsCredit reports whether the type moves money into the account.
func (t TransactionType) IsCredit() bool {
	switch t {
	case TypeDeposit, TypeLoanDisbursement, TypeInterestCredit:
		return true
	}
	return false
}

func (t TransactionType) Valid() bool {
	switch t {
	case TypeDeposit, TypeWithdrawal, TypeLoanDisbursement, TypeLoanRepayment, TypeFeeCharge, TypeInterestCredit:
		return true
	}
	return false
}

type TransactionStatus string

const (
	StatusPending   TransactionStatus = "PENDING"
	StatusCompleted TransactionStatus = "COMPLETED"
	StatusFailed    TransactionStatus = "FAILED"
)

// Transaction is one immutable audit record of a balance-affecting operation.
// It is created PENDING, transitions to COMPLETED or FAILED exactly once, and
// is never touched again.
type Transaction struct {
	ID            int64
	Reference     string
	UserID        int64
	AccountID     *int64
	Type          TransactionType
	Amount        Money
	BalanceBefore Money
	BalanceAfter  Money
	Status        TransactionStatus
	Description   string
	Metadata      map[string]string
	ProcessedAt   *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// NewEntry builds a PENDING ledger entry. balanceBefore is the snapshot of the
// target account (0 when there is no account), and balanceAfter follows the
// directional rule of the type: credit types add, debit types subtract.
func NewEntry(userID int64, accountID *int64, balanceBefore Money, typ TransactionType, amount Money, reference, description string, metadata map[string]string) (*Transaction, error) {
	if !typ.Valid() {
		return nil, fmt.Errorf("%w: unknown transaction type %q", apperrors.ErrInvalidArgument, typ)
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrInvalidArgument)
	}
	if reference == "" {
		return nil, fmt.Errorf("%w: transaction reference is required", apperrors.ErrInvalidArgument)
	}

	after := balanceBefore - amount
	if typ.IsCredit() {
		after = balanceBefore + amount
	}

	return &Transaction{
		Reference:     reference,
		UserID:        userID,
		AccountID:     accountID,
		Type:          typ,
		Amount:        round2(amount),
		BalanceBefore: round2(balanceBefore),
		BalanceAfter:  round2(after),
		Status:        StatusPending,
		Description:   description,
		Metadata:      metadata,
	}, nil
}

// BuildReference renders the date-scoped reference: TXN-<YYYYMMDD>-<5 digit
// daily sequence>. The sequence must come from a serialized counter.
func BuildReference(day time.Time, sequence int64) string {
	return fmt.Sprintf("TXN-%s-%05d", day.UTC().Format("20060102"), sequence)
}

// DayWindow returns the UTC day boundaries containing ts.
func DayWindow(ts time.Time) (time.Time, time.Time) {
	u := ts.UTC()
	start := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 0, 1)
}

// MonthWindow returns the UTC calendar month boundaries containing ts.
func MonthWindow(ts time.Time) (time.Time, time.Time) {
	u := ts.UTC()
	start := time.Date(u.Year(), u.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0)
}

func round2(n Money) Money {
	return math.Round(n*100) / 100
}
