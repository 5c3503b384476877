package dto

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// money renders an amount with exactly two decimal places, the only form the
// API ever exposes.
func money(amount float64) string {
	return decimal.NewFromFloat(amount).StringFixed(2)
}

type OpenAccountRequest struct {
	UserID int64  `json:"userId"`
	Tier   string `json:"tier,omitempty"`
}

func (r *OpenAccountRequest) Validate() error {
	if r.UserID <= 0 {
		return fmt.Errorf("userId must be positive")
	}
	return nil
}

// AmountRequest carries a money amount as a string so clients never send
// binary floats over the wire.
type AmountRequest struct {
	Amount string `json:"amount"`
}

func (r *AmountRequest) Validate() error {
	d, err := decimal.NewFromString(r.Amount)
	if err != nil || r.Amount == "" {
		return fmt.Errorf("invalid amount: %w", err)
	}
	if !d.IsPositive() {
		return fmt.Errorf("amount must be greater than zero")
	}
	return nil
}

// Value returns the parsed amount. Validate must have been called first.
func (r *AmountRequest) Value() float64 {
	d, _ := decimal.NewFromString(r.Amount)
	v, _ := d.Float64()
	return v
}

type AccountResponse struct {
	ID            string    `json:"id"`
	UserID        string    `json:"userId"`
	AccountNumber string    `json:"accountNumber"`
	Balance       string    `json:"balance"`
	Tier          string    `json:"tier"`
	Status        string    `json:"status"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

func NewAccountResponse(acct *savings.Account) AccountResponse {
	return AccountResponse{
		ID:            strconv.FormatInt(acct.ID, 10),
		UserID:        strconv.FormatInt(acct.UserID, 10),
		AccountNumber: acct.AccountNumber,
		Balance:       money(acct.Balance),
		Tier:          string(acct.Tier),
		Status:        string(acct.Status),
		CreatedAt:     acct.CreatedAt,
		UpdatedAt:     acct.UpdatedAt,
	}
}

type BalanceResponse struct {
	AccountID string `json:"accountId"`
	Balance   string `json:"balance"`
}

type TransactionResponse struct {
	ID            string            `json:"id"`
	Reference     string            `json:"reference"`
	Type          string            `json:"type"`
	Amount        string            `json:"amount"`
	BalanceBefore string            `json:"balanceBefore"`
	BalanceAfter  string            `json:"balanceAfter"`
	Status        string            `json:"status"`
	Description   string            `json:"description,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	ProcessedAt   *time.Time        `json:"processedAt,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

func NewTransactionResponse(txn *ledger.Transaction) TransactionResponse {
	return TransactionResponse{
		ID:            strconv.FormatInt(txn.ID, 10),
		Reference:     txn.Reference,
		Type:          string(txn.Type),
		Amount:        money(txn.Amount),
		BalanceBefore: money(txn.BalanceBefore),
		BalanceAfter:  money(txn.BalanceAfter),
		Status:        string(txn.Status),
		Description:   txn.Description,
		Metadata:      txn.Metadata,
		ProcessedAt:   txn.ProcessedAt,
		CreatedAt:     txn.CreatedAt,
	}
}
