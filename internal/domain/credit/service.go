package credit

import (
	"banking-engine/internal/domain/uow"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// Limits carries the facility bounds injected from configuration.
type Limits struct {
	Initial Money
	Min     Money
	Max     Money
}

type Service interface {
	// EnsureFacilityInTx opens the customer's facility at the configured
	// initial limit if they do not have one yet. Runs inside the onboarding
	// transaction so the facility commits with the first savings account;
	// idempotent.
	EnsureFacilityInTx(ctx context.Context, tx pgx.Tx, userID int64) error

	GetFacility(ctx context.Context, userID int64) (*Account, error)

	// UpdateCreditLimit applies an admin limit change: the new limit may not
	// shrink below what is already owed, and is clamped to the configured
	// bounds before available credit is recomputed.
	UpdateCreditLimit(ctx context.Context, userID int64, newLimit Money) (*Account, error)

	// CalculateCreditLimit exposes the scoring formula with the configured
	// bounds applied.
	CalculateCreditLimit(savingsBalance, avgMonthlyTransactions Money) Money
}

type creditService struct {
	repo   Repository
	uow    uow.UnitOfWork
	limits Limits
	logger *slog.Logger
}

func NewService(repo Repository, unit uow.UnitOfWork, limits Limits, logger *slog.Logger) Service {
	if repo == nil || unit == nil {
		panic("credit service dependencies cannot be nil")
	}
	return &creditService{
		repo:   repo,
		uow:    unit,
		limits: limits,
		logger: logger.With("component", "creditService"),
	}
}

func (s *creditService) EnsureFacilityInTx(ctx context.Context, tx pgx.Tx, userID int64) error {
	_, err := s.repo.GetForUpdateByUserInTx(ctx, tx, userID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, apperrors.ErrNotFound) {
		return err
	}

	acct, err := NewAccount(userID, s.limits.Initial, s.limits.Min, s.limits.Max)
	if err != nil {
		return err
	}

	created, err := s.repo.CreateInTx(ctx, tx, acct)
	if err != nil {
		// Lost a race against a concurrent onboarding for the same user.
		if errors.Is(err, apperrors.ErrAlreadyExists) {
			return nil
		}
		return err
	}

	s.logger.InfoContext(ctx, "Credit facility opened", "user_id", userID, "credit_account_id", created.ID, "limit", created.CreditLimit)
	return nil
}

func (s *creditService) GetFacility(ctx context.Context, userID int64) (*Account, error) {
	acct, err := s.repo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no credit facility for user %d", apperrors.ErrNotFound, userID)
		}
		return nil, err
	}
	return acct, nil
}

func (s *creditService) UpdateCreditLimit(ctx context.Context, userID int64, newLimit Money) (*Account, error) {
	var updated *Account

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		acct, err := s.repo.GetForUpdateByUserInTx(ctx, tx, userID)
		if err != nil {
			return err
		}

		borrowed := acct.Borrowed()
		if newLimit < borrowed {
			return fmt.Errorf("%w: new limit %.2f is below current borrowed amount %.2f", apperrors.ErrValidation, newLimit, borrowed)
		}

		acct.CreditLimit = ClampLimit(newLimit, s.limits.Min, s.limits.Max)
		acct.AvailableCredit = round2(acct.CreditLimit - borrowed)

		if err := s.repo.UpdateFiguresInTx(ctx, tx, acct); err != nil {
			return err
		}
		updated = acct
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Credit limit update rejected", "user_id", userID, "new_limit", newLimit, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Credit limit updated", "user_id", userID, "limit", updated.CreditLimit, "available", updated.AvailableCredit)
	return updated, nil
}

func (s *creditService) CalculateCreditLimit(savingsBalance, avgMonthlyTransactions Money) Money {
	return CalculateCreditLimit(savingsBalance, avgMonthlyTransactions, s.limits.Min, s.limits.Max)
}

// ApplyMovement is the primitive the loan engine calls inside its unit of
// work: lock the facility row, shift the figures, persist.
func ApplyMovement(ctx context.Context, tx pgx.Tx, repo Repository, accountID int64, amount Money, isLoan bool) (*Account, error) {
	acct, err := repo.GetForUpdateInTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}
	acct.ApplyMovement(amount, isLoan)
	if err := repo.UpdateFiguresInTx(ctx, tx, acct); err != nil {
		return nil, err
	}
	return acct, nil
}
