package dto

import (
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/domain/loan"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type RequestLoanRequest struct {
	UserID           int64  `json:"userId"`
	Principal        string `json:"principal"`
	TenorMonths      int    `json:"tenorMonths"`
	SavingsAccountID *int64 `json:"savingsAccountId,omitempty"`
}

func (r *RequestLoanRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("userId must be positive")
	}
	d, err := decimal.NewFromString(r.Principal)
	if err != nil || r.Principal == "" {
		return fmt.Errorf("invalid principal: %w", err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("principal must be greater than zero")
	}
	if r.TenorMonths <= 0 {
		return fmt.Errorf("tenorMonths must be positive")
	}
	if r.SavingsAccountID != nil && *r.SavingsAccountID <= 0 {
		return fmt.Errorf("savingsAccountId must be positive when provided")
	}
	return nil
}

func (r *RequestLoanRequest) PrincipalValue() float64 {
	d, _ := decimal.NewFromString(r.Principal)
	v, _ := d.Float64()
	return v
}

type UpdateCreditLimitRequest struct {
	NewLimit string `json:"newLimit"`
}

func (r *UpdateCreditLimitRequest) Validate() error {
	d, err := decimal.NewFromString(r.NewLimit)
	if err != nil || r.NewLimit == "" {
		return fmt.Errorf("invalid newLimit: %w", err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("newLimit must be greater than zero")
	}
	return nil
}

func (r *UpdateCreditLimitRequest) Value() float64 {
	d, _ := decimal.NewFromString(r.NewLimit)
	v, _ := d.Float64()
	return v
}

type LoanResponse struct {
	ID                string                  `json:"id"`
	UserID            string                  `json:"userId"`
	SavingsAccountID  string                  `json:"savingsAccountId"`
	PrincipalAmount   string                  `json:"principalAmount"`
	InterestRate      string                  `json:"interestRate"`
	TotalAmount       string                  `json:"totalAmount"`
	OutstandingAmount string                  `json:"outstandingAmount"`
	TenorMonths       int                     `json:"tenorMonths"`
	Status            string                  `json:"status"`
	ApprovalStatus    string                  `json:"approvalStatus"`
	RequestedAt       time.Time               `json:"requestedAt"`
	DisbursedAt       *time.Time              `json:"disbursedAt,omitempty"`
	DueDate           time.Time               `json:"dueDate"`
	Schedule          []ScheduleEntryResponse `json:"schedule,omitempty"`
}

type ScheduleEntryResponse struct {
	ScheduleNumber int        `json:"scheduleNumber"`
	DueDate        time.Time  `json:"dueDate"`
	DueAmount      string     `json:"dueAmount"`
	AmountPaid     string     `json:"amountPaid"`
	LateFee        string     `json:"lateFee"`
	Status         string     `json:"status"`
	PaidAt         *time.Time `json:"paidAt,omitempty"`
}

func NewLoanResponse(l *loan.Loan) LoanResponse {
	resp := LoanResponse{
		ID:                strconv.FormatInt(l.ID, 10),
		UserID:            strconv.FormatInt(l.UserID, 10),
		SavingsAccountID:  strconv.FormatInt(l.SavingsAccountID, 10),
		PrincipalAmount:   money(l.PrincipalAmount),
		InterestRate:      decimal.NewFromFloat(l.InterestRate).String(),
		TotalAmount:       money(l.TotalAmount),
		OutstandingAmount: money(l.OutstandingAmount),
		TenorMonths:       l.TenorMonths,
		Status:            string(l.Status),
		ApprovalStatus:    string(l.ApprovalStatus),
		RequestedAt:       l.RequestedAt,
		DisbursedAt:       l.DisbursedAt,
		DueDate:           l.DueDate,
	}
	if len(l.Schedule) > 0 {
		resp.Schedule = NewScheduleResponse(l.Schedule)
	}
	return resp
}

func NewScheduleResponse(schedule []loan.Repayment) []ScheduleEntryResponse {
	entries := make([]ScheduleEntryResponse, 0, len(schedule))
	for _, rep := range schedule {
		entries = append(entries, ScheduleEntryResponse{
			ScheduleNumber: rep.ScheduleNumber,
			DueDate:        rep.DueDate,
			DueAmount:      money(rep.DueAmount),
			AmountPaid:     money(rep.AmountPaid),
			LateFee:        money(rep.LateFee),
			Status:         string(rep.Status),
			PaidAt:         rep.PaidAt,
		})
	}
	return entries
}

// RepaymentReceiptResponse is what a successful repayment returns: the loan
// after the payment, the installment it was applied to, and the ledger entry.
type RepaymentReceiptResponse struct {
	Loan        LoanResponse          `json:"loan"`
	Installment ScheduleEntryResponse `json:"installment"`
	Transaction TransactionResponse   `json:"transaction"`
}

type CreditAccountResponse struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	CreditLimit        string    `json:"creditLimit"`
	AvailableCredit    string    `json:"availableCredit"`
	TotalBorrowed      string    `json:"totalBorrowed"`
	TotalRepaid        string    `json:"totalRepaid"`
	OutstandingBalance string    `json:"outstandingBalance"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

func NewCreditAccountResponse(acct *credit.Account) CreditAccountResponse {
	return CreditAccountResponse{
		ID:                 strconv.FormatInt(acct.ID, 10),
		UserID:             strconv.FormatInt(acct.UserID, 10),
		CreditLimit:        money(acct.CreditLimit),
		AvailableCredit:    money(acct.AvailableCredit),
		TotalBorrowed:      money(acct.TotalBorrowed),
		TotalRepaid:        money(acct.TotalRepaid),
		OutstandingBalance: money(acct.OutstandingBalance),
		Status:             string(acct.Status),
		CreatedAt:          acct.CreatedAt,
		UpdatedAt:          acct.UpdatedAt,
	}
}
