package handler

import (
	"banking-engine/internal/api/handler/dto"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
)

type AccountHandler struct {
	service   savings.Service
	statement ledger.Service
	logger    *slog.Logger
}

func NewAccountHandler(s savings.Service, statement ledger.Service, l *slog.Logger) *AccountHandler {
	return &AccountHandler{
		service:   s,
		statement: statement,
		logger:    l.With("component", "AccountHandler"),
	}
}

// OpenAccount opens a new savings account for a customer.
//
// @Summary Open a savings account
// @Description Opens a savings account at the requested tier (BASIC when omitted) and ensures the customer's credit facility exists.
// @Tags Accounts
// @Accept json
// @Produce json
// @Param request body dto.OpenAccountRequest true "Account opening payload"
// @Success 201 {object} dto.AccountResponse "Account opened"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload or unknown tier"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /accounts [post]
func (h *AccountHandler) OpenAccount(w http.ResponseWriter, r *http.Request) {
	var req dto.OpenAccountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	created, err := h.service.OpenAccount(r.Context(), req.UserID, savings.Tier(req.Tier))
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewAccountResponse(created))
}

// GetAccount retrieves one savings account.
//
// @Summary Retrieve a savings account
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} dto.AccountResponse "Account details"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Router /accounts/{accountID} [get]
func (h *AccountHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := idFromURL(r, "accountID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	acct, err := h.service.GetAccount(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewAccountResponse(acct))
}

// GetBalance retrieves the current balance of a savings account.
//
// @Summary Retrieve account balance
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} dto.BalanceResponse "Current balance"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Router /accounts/{accountID}/balance [get]
func (h *AccountHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := idFromURL(r, "accountID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	balance, err := h.service.GetBalance(r.Context(), accountID)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := dto.BalanceResponse{
		AccountID: strconv.FormatInt(accountID, 10),
		Balance:   decimal.NewFromFloat(balance).StringFixed(2),
	}
	respondJSON(w, http.StatusOK, resp)
}

// Deposit credits money into a savings account.
//
// @Summary Deposit into an account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param accountID path int true "Account ID"
// @Param request body dto.AmountRequest true "Deposit payload"
// @Success 201 {object} dto.TransactionResponse "Completed ledger entry"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Failure 422 {object} dto.ErrorResponse "Account inactive or tier ceiling exceeded"
// @Router /accounts/{accountID}/deposits [post]
func (h *AccountHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.service.Deposit)
}

// Withdraw debits money from a savings account.
//
// @Summary Withdraw from an account
// @Tags Accounts
// @Accept json
// @Produce json
// @Param accountID path int true "Account ID"
// @Param request body dto.AmountRequest true "Withdrawal payload"
// @Success 201 {object} dto.TransactionResponse "Completed ledger entry"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Failure 422 {object} dto.ErrorResponse "Insufficient balance or tier ceiling exceeded"
// @Router /accounts/{accountID}/withdrawals [post]
func (h *AccountHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.moveMoney(w, r, h.service.Withdraw)
}

func (h *AccountHandler) moveMoney(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64, savings.Money) (*ledger.Transaction, error)) {
	accountID, err := idFromURL(r, "accountID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.AmountRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	txn, err := apply(r.Context(), accountID, req.Value())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewTransactionResponse(txn))
}

// CloseAccount closes an emptied savings account.
//
// @Summary Close a savings account
// @Description Closes the account. The balance must be zero, no open loans may disburse into it, and the customer must keep at least one other active account.
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Success 200 {object} map[string]string "Account closed"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Failure 409 {object} dto.ErrorResponse "Account already closed or has active loans"
// @Router /accounts/{accountID} [delete]
func (h *AccountHandler) CloseAccount(w http.ResponseWriter, r *http.Request) {
	accountID, err := idFromURL(r, "accountID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.CloseAccount(r.Context(), accountID); err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "Account closed"})
}

// GetStatement lists the most recent ledger entries for an account.
//
// @Summary Retrieve account statement
// @Tags Accounts
// @Produce json
// @Param accountID path int true "Account ID"
// @Param limit query int false "Maximum entries to return (default 50, max 200)"
// @Success 200 {array} dto.TransactionResponse "Ledger entries, newest first"
// @Failure 404 {object} dto.ErrorResponse "Account not found"
// @Router /accounts/{accountID}/transactions [get]
func (h *AccountHandler) GetStatement(w http.ResponseWriter, r *http.Request) {
	accountID, err := idFromURL(r, "accountID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	// Ensures a missing account surfaces as 404 rather than an empty list.
	if _, err := h.service.GetAccount(r.Context(), accountID); err != nil {
		respondError(w, err)
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.statement.GetStatement(r.Context(), accountID, limit)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]dto.TransactionResponse, 0, len(entries))
	for i := range entries {
		resp = append(resp, dto.NewTransactionResponse(&entries[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}
