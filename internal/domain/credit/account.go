package credit

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/pkg/apperrors"
	"fmt"
	"math"
	"time"
)

type Money = ledger.Money

type FacilityStatus string

const (
	StatusActive    FacilityStatus = "ACTIVE"
	StatusSuspended FacilityStatus = "SUSPENDED"
	StatusClosed    FacilityStatus = "CLOSED"
)

// Account is the customer's revolving credit facility. The bookkeeping
// identity holds after every mutation:
//
//	availableCredit == creditLimit - (totalBorrowed - totalRepaid)
//	outstandingBalance == totalBorrowed - totalRepaid
type Account struct {
	ID                 int64
	UserID             int64
	CreditLimit        Money
	AvailableCredit    Money
	TotalBorrowed      Money
	TotalRepaid        Money
	OutstandingBalance Money
	Status             FacilityStatus
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

func NewAccount(userID int64, initialLimit, minLimit, maxLimit Money) (*Account, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", apperrors.ErrInvalidArgument)
	}
	limit := ClampLimit(initialLimit, minLimit, maxLimit)
	return &Account{
		UserID:          userID,
		CreditLimit:     limit,
		AvailableCredit: limit,
		Status:          StatusActive,
	}, nil
}

// Borrowed is the portion of the limit currently owed.
func (a *Account) Borrowed() Money {
	return round2(a.TotalBorrowed - a.TotalRepaid)
}

// ApplyMovement adjusts the facility for a disbursement (isLoan) or a
// repayment. Sufficiency has already been validated by the caller.
func (a *Account) ApplyMovement(amount Money, isLoan bool) {
	if isLoan {
		a.AvailableCredit = round2(a.AvailableCredit - amount)
		a.TotalBorrowed = round2(a.TotalBorrowed + amount)
		a.OutstandingBalance = round2(a.OutstandingBalance + amount)
		return
	}
	a.AvailableCredit = round2(a.AvailableCredit + amount)
	a.TotalRepaid = round2(a.TotalRepaid + amount)
	a.OutstandingBalance = round2(a.OutstandingBalance - amount)
}

func ClampLimit(limit, minLimit, maxLimit Money) Money {
	if limit < minLimit {
		return minLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}

// CalculateCreditLimit is the scoring formula admin and onboarding flows
// depend on. It must stay stable:
//
//	limit = savingsBalance*2 + avgMonthlyTransactions*3, clamped to [min, max]
func CalculateCreditLimit(savingsBalance, avgMonthlyTransactions, minLimit, maxLimit Money) Money {
	raw := savingsBalance*2 + avgMonthlyTransactions*3
	return ClampLimit(round2(raw), minLimit, maxLimit)
}

func round2(n Money) Money {
	return math.Round(n*100) / 100
}
