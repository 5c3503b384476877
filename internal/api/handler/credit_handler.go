package handler

import (
	"banking-engine/internal/api/handler/dto"
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/pkg/apperrors"
	"fmt"
	"log/slog"
	"net/http"
)

type CreditHandler struct {
	service credit.Service
	logger  *slog.Logger
}

func NewCreditHandler(s credit.Service, l *slog.Logger) *CreditHandler {
	return &CreditHandler{
		service: s,
		logger:  l.With("component", "CreditHandler"),
	}
}

// GetFacility retrieves a customer's credit facility.
//
// @Summary Retrieve a customer's credit facility
// @Tags Credit
// @Produce json
// @Param userID path int true "User ID"
// @Success 200 {object} dto.CreditAccountResponse "Credit facility"
// @Failure 404 {object} dto.ErrorResponse "No facility for this user"
// @Router /users/{userID}/credit [get]
func (h *CreditHandler) GetFacility(w http.ResponseWriter, r *http.Request) {
	userID, err := idFromURL(r, "userID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	acct, err := h.service.GetFacility(r.Context(), userID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCreditAccountResponse(acct))
}

// UpdateCreditLimit applies an administrative credit limit change.
//
// @Summary Update a customer's credit limit
// @Description Sets a new credit limit. The limit may not shrink below the amount currently borrowed and is clamped to the configured bounds.
// @Tags Credit
// @Accept json
// @Produce json
// @Param userID path int true "User ID"
// @Param request body dto.UpdateCreditLimitRequest true "New limit payload"
// @Success 200 {object} dto.CreditAccountResponse "Updated facility"
// @Failure 400 {object} dto.ErrorResponse "Invalid payload or limit below borrowed amount"
// @Failure 404 {object} dto.ErrorResponse "No facility for this user"
// @Router /users/{userID}/credit/limit [put]
func (h *CreditHandler) UpdateCreditLimit(w http.ResponseWriter, r *http.Request) {
	userID, err := idFromURL(r, "userID")
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateCreditLimitRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	updated, err := h.service.UpdateCreditLimit(r.Context(), userID, req.Value())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewCreditAccountResponse(updated))
}
