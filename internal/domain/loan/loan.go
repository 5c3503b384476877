package loan

import (
	"banking-engine/internal/domain/identity"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/pkg/apperrors"
	"fmt"
	"math"
	"time"
)

type Money = ledger.Money

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusApproved  Status = "APPROVED"
	StatusRejected  Status = "REJECTED"
	StatusDisbursed Status = "DISBURSED"
	StatusActive    Status = "ACTIVE"
	StatusFullyPaid Status = "FULLY_PAID"
	StatusDefaulted Status = "DEFAULTED"
)

type ApprovalStatus string

const (
	ApprovalPendingReview  ApprovalStatus = "PENDING_REVIEW"
	ApprovalAutoApproved   ApprovalStatus = "AUTO_APPROVED"
	ApprovalManualApproved ApprovalStatus = "MANUAL_APPROVED"
	ApprovalRejected       ApprovalStatus = "REJECTED"
)

type RepaymentStatus string

const (
	RepaymentScheduled     RepaymentStatus = "SCHEDULED"
	RepaymentPartiallyPaid RepaymentStatus = "PARTIALLY_PAID"
	RepaymentPaid          RepaymentStatus = "PAID"
	RepaymentOverdue       RepaymentStatus = "OVERDUE"
)

type Loan struct {
	ID                int64
	UserID            int64
	CreditAccountID   int64
	SavingsAccountID  int64
	PrincipalAmount   Money
	InterestRate      float64
	TotalAmount       Money
	OutstandingAmount Money
	TenorMonths       int
	Status            Status
	ApprovalStatus    ApprovalStatus
	RequestedAt       time.Time
	DisbursedAt       *time.Time
	DueDate           time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Schedule          []Repayment
}

// Repayment is one scheduled installment of a loan. AmountPaid only grows;
// status walks SCHEDULED -> (PARTIALLY_PAID)* -> PAID, or to OVERDUE once the
// due date passes unpaid.
type Repayment struct {
	ID             int64
	LoanID         int64
	ScheduleNumber int
	DueDate        time.Time
	DueAmount      Money
	AmountPaid     Money
	LateFee        Money
	Status         RepaymentStatus
	PaidAt         *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Outstanding is what settles the installment in full: due amount plus any
// late fee, minus what has been paid so far.
func (r *Repayment) Outstanding() Money {
	return roundTo(r.DueAmount+r.LateFee-r.AmountPaid, 2)
}

func NewLoan(userID, creditAccountID, savingsAccountID int64, principal Money, tenorMonths int, flatRate float64, requestedAt time.Time) (*Loan, error) {
	if principal <= 0 {
		return nil, fmt.Errorf("%w: principal must be greater than zero", apperrors.ErrInvalidArgument)
	}
	if tenorMonths <= 0 {
		return nil, fmt.Errorf("%w: tenor must be positive", apperrors.ErrInvalidArgument)
	}
	if flatRate < 0 {
		return nil, fmt.Errorf("%w: interest rate cannot be negative", apperrors.ErrInvalidArgument)
	}
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}

	total := roundTo(principal*(1+flatRate), 2)

	return &Loan{
		UserID:            userID,
		CreditAccountID:   creditAccountID,
		SavingsAccountID:  savingsAccountID,
		PrincipalAmount:   principal,
		InterestRate:      flatRate,
		TotalAmount:       total,
		OutstandingAmount: total,
		TenorMonths:       tenorMonths,
		Status:            StatusPending,
		ApprovalStatus:    ApprovalPendingReview,
		RequestedAt:       requestedAt,
		DueDate:           requestedAt.AddDate(0, tenorMonths, 0),
	}, nil
}

// GenerateSchedule produces exactly tenorMonths equal installments with
// consecutive monthly due dates. The last installment absorbs the rounding
// remainder so the schedule sums exactly to the total amount.
func (l *Loan) GenerateSchedule() ([]Repayment, error) {
	if l.TenorMonths <= 0 || l.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: invalid loan terms for schedule generation", apperrors.ErrInvalidArgument)
	}

	installment := roundTo(l.TotalAmount/float64(l.TenorMonths), 2)

	schedule := make([]Repayment, 0, l.TenorMonths)
	accumulated := 0.0
	for i := 1; i <= l.TenorMonths; i++ {
		due := installment
		if i == l.TenorMonths {
			due = roundTo(l.TotalAmount-accumulated, 2)
			if due < 0 {
				due = 0
			}
		}
		schedule = append(schedule, Repayment{
			ScheduleNumber: i,
			DueDate:        l.RequestedAt.AddDate(0, i, 0),
			DueAmount:      due,
			AmountPaid:     0,
			LateFee:        0,
			Status:         RepaymentScheduled,
		})
		accumulated += due
	}

	if math.Abs(roundTo(accumulated, 2)-roundTo(l.TotalAmount, 2)) > 0.01 {
		return nil, fmt.Errorf("%w: schedule total %.2f does not match loan total %.2f",
			apperrors.ErrInternalServer, accumulated, l.TotalAmount)
	}

	return schedule, nil
}

// ApprovalPolicy holds the decision thresholds injected from configuration.
type ApprovalPolicy struct {
	AutoApproveLimit Money
	AutoApproveScore int
	MinCreditScore   int
}

// DetermineApprovalStatus is the deterministic approval decision: rejection
// beats everything, auto-approval requires every gate to pass, anything else
// waits for manual review.
func DetermineApprovalStatus(amount Money, creditScore int, kycStatus identity.KYCStatus, hasDefaulted bool, policy ApprovalPolicy) ApprovalStatus {
	if creditScore < policy.MinCreditScore || hasDefaulted {
		return ApprovalRejected
	}
	if amount <= policy.AutoApproveLimit &&
		creditScore >= policy.AutoApproveScore &&
		kycStatus == identity.KYCVerified {
		return ApprovalAutoApproved
	}
	return ApprovalPendingReview
}

// StatusForApproval maps the decision onto the loan status machine.
func StatusForApproval(decision ApprovalStatus) Status {
	switch decision {
	case ApprovalAutoApproved, ApprovalManualApproved:
		return StatusApproved
	case ApprovalRejected:
		return StatusRejected
	default:
		return StatusPending
	}
}

func roundTo(n float64, decimals int) float64 {
	pow := math.Pow(10, float64(decimals))
	return math.Round(n*pow) / pow
}
