package handler

import (
	"banking-engine/internal/api/handler/dto"
	"banking-engine/internal/domain/loan"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

type LoanHandler struct {
	service loan.Service
	logger  *slog.Logger
}

func NewLoanHandler(s loan.Service, l *slog.Logger) *LoanHandler {
	return &LoanHandler{
		service: s,
		logger:  l.With("component", "LoanHandler"),
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field := http.StatusInternalServerError, "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found."
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrAlreadyExists), errors.Is(err, apperrors.ErrConflict), errors.Is(err, apperrors.ErrInvalidState):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, apperrors.ErrAccountNotActive),
		errors.Is(err, apperrors.ErrInsufficientBalance),
		errors.Is(err, apperrors.ErrInsufficientCredit),
		errors.Is(err, apperrors.ErrLimitExceeded),
		errors.Is(err, apperrors.ErrAmountExceedsOutstanding),
		errors.Is(err, apperrors.ErrNoPendingRepayments),
		errors.Is(err, apperrors.ErrExistingDefaultedLoans):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.As(err, &validationError):
		status, message, field = http.StatusBadRequest, validationError.Message, validationError.Field
	case errors.As(err, &appErr):
		message = appErr.Error()
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func idFromURL(r *http.Request, param string) (int64, error) {
	idStr := chi.URLParam(r, param)
	if idStr == "" {
		return 0, fmt.Errorf("%s not found in URL path", param)
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// RequestLoan submits a new loan application.
//
// @Summary Request a new loan
// @Description Submits a loan application for a customer. The principal and tenor are checked against the customer's credit facility; eligible applications are auto-approved and disbursed in the same call.
// @Tags Loans
// @Accept json
// @Produce json
// @Param request body dto.RequestLoanRequest true "Loan application payload"
// @Success 201 {object} dto.LoanResponse "Loan application accepted"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload or validation error"
// @Failure 422 {object} dto.ErrorResponse "Insufficient credit or defaulted history"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /loans [post]
func (h *LoanHandler) RequestLoan(w http.ResponseWriter, r *http.Request) {
	var req dto.RequestLoanRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	created, err := h.service.RequestLoan(r.Context(), req.UserID, req.PrincipalValue(), req.TenorMonths, req.SavingsAccountID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewLoanResponse(created))
}

// GetLoan retrieves the details of a specific loan, schedule included.
//
// @Summary Retrieve loan details
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse "Loan details"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Router /loans/{loanID} [get]
func (h *LoanHandler) GetLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	domainLoan, err := h.service.GetLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanResponse(domainLoan))
}

// GetSchedule retrieves the repayment schedule of a loan.
//
// @Summary Retrieve loan repayment schedule
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {array} dto.ScheduleEntryResponse "Repayment schedule"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Router /loans/{loanID}/schedule [get]
func (h *LoanHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	schedule, err := h.service.GetSchedule(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewScheduleResponse(schedule))
}

// ApproveLoan applies a manual approval decision to a pending loan.
//
// @Summary Approve a pending loan
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse "Loan approved"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan is not awaiting review"
// @Router /loans/{loanID}/approve [post]
func (h *LoanHandler) ApproveLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.ApproveLoan)
}

// RejectLoan applies a manual rejection decision to a pending loan.
//
// @Summary Reject a pending loan
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse "Loan rejected"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan is not awaiting review"
// @Router /loans/{loanID}/reject [post]
func (h *LoanHandler) RejectLoan(w http.ResponseWriter, r *http.Request) {
	h.decide(w, r, h.service.RejectLoan)
}

func (h *LoanHandler) decide(w http.ResponseWriter, r *http.Request, apply func(context.Context, int64) (*loan.Loan, error)) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	decided, err := apply(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanResponse(decided))
}

// DisburseLoan pays an approved loan out into the customer's savings account.
//
// @Summary Disburse an approved loan
// @Tags Loans
// @Produce json
// @Param loanID path int true "Loan ID"
// @Success 200 {object} dto.LoanResponse "Loan disbursed"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 409 {object} dto.ErrorResponse "Loan is not approved"
// @Router /loans/{loanID}/disburse [post]
func (h *LoanHandler) DisburseLoan(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	disbursed, err := h.service.DisburseLoan(r.Context(), loanID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewLoanResponse(disbursed))
}

// MakeRepayment applies a payment to the loan's next payable installment.
//
// @Summary Repay a loan installment
// @Tags Loans
// @Accept json
// @Produce json
// @Param loanID path int true "Loan ID"
// @Param request body dto.AmountRequest true "Repayment payload"
// @Success 200 {object} dto.RepaymentReceiptResponse "Repayment applied"
// @Failure 404 {object} dto.ErrorResponse "Loan not found"
// @Failure 422 {object} dto.ErrorResponse "Insufficient balance or amount exceeds outstanding"
// @Router /loans/{loanID}/repayments [post]
func (h *LoanHandler) MakeRepayment(w http.ResponseWriter, r *http.Request) {
	loanID, err := idFromURL(r, "loanID")
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

	result, err := h.service.RepayLoan(r.Context(), loanID, req.Value())
	if err != nil {
		respondError(w, err)
		return
	}

	resp := dto.RepaymentReceiptResponse{
		Loan:        dto.NewLoanResponse(result.Loan),
		Installment: dto.NewScheduleResponse([]loan.Repayment{*result.Installment})[0],
		Transaction: dto.NewTransactionResponse(result.Transaction),
	}
	respondJSON(w, http.StatusOK, resp)
}

// ListUserLoans lists every loan a customer has requested, newest first.
//
// @Summary List a customer's loans
// @Tags Loans
// @Produce json
// @Param userID path int true "User ID"
// @Success 200 {array} dto.LoanResponse "Loans"
// @Router /users/{userID}/loans [get]
func (h *LoanHandler) ListUserLoans(w http.ResponseWriter, r *http.Request) {
	userID, err := idFromURL(r, "userID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	loans, err := h.service.ListLoans(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	resp := make([]dto.LoanResponse, 0, len(loans))
	for i := range loans {
		resp = append(resp, dto.NewLoanResponse(&loans[i]))
	}
	respondJSON(w, http.StatusOK, resp)
}
