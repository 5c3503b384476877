package savings

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/uow"
	"banking-engine/internal/infrastructure/monitoring"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
)

// LoanGuard is the slice of the loan store account closure needs: whether any
// non-terminal loan still disburses into the account.
type LoanGuard interface {
	CountActiveByAccountInTx(ctx context.Context, tx pgx.Tx, accountID int64) (int, error)
}

// CreditOnboarder opens the customer's credit facility when their first
// savings account is created. It runs inside the onboarding transaction so
// account and facility commit or roll back together.
type CreditOnboarder interface {
	EnsureFacilityInTx(ctx context.Context, tx pgx.Tx, userID int64) error
}

// Dispatcher delivers notification requests to the excluded notification
// layer. Failures are logged and swallowed, never propagated.
type Dispatcher interface {
	Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error
}

type Service interface {
	OpenAccount(ctx context.Context, userID int64, tier Tier) (*Account, error)

	GetAccount(ctx context.Context, accountID int64) (*Account, error)

	GetBalance(ctx context.Context, accountID int64) (Money, error)

	Deposit(ctx context.Context, accountID int64, amount Money) (*ledger.Transaction, error)

	Withdraw(ctx context.Context, accountID int64, amount Money) (*ledger.Transaction, error)

	CloseAccount(ctx context.Context, accountID int64) error
}

type savingsService struct {
	repo       Repository
	ledgerRepo ledger.Repository
	loans      LoanGuard
	credit     CreditOnboarder
	uow        uow.UnitOfWork
	tiers      TierTable
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewService(repo Repository, ledgerRepo ledger.Repository, loans LoanGuard, credit CreditOnboarder, unit uow.UnitOfWork, tiers TierTable, dispatcher Dispatcher, logger *slog.Logger) Service {
	if repo == nil || ledgerRepo == nil || loans == nil || credit == nil || unit == nil {
		panic("savings service dependencies cannot be nil")
	}
	if len(tiers) == 0 {
		panic("savings service requires a tier limits table")
	}
	return &savingsService{
		repo:       repo,
		ledgerRepo: ledgerRepo,
		loans:      loans,
		credit:     credit,
		uow:        unit,
		tiers:      tiers,
		dispatcher: dispatcher,
		logger:     logger.With("component", "savingsService"),
	}
}

func (s *savingsService) OpenAccount(ctx context.Context, userID int64, tier Tier) (*Account, error) {
	if tier != "" {
		if _, err := s.tiers.Limits(tier); err != nil {
			return nil, fmt.Errorf("%w: unknown tier %q", apperrors.ErrValidation, tier)
		}
	}

	acct, err := NewAccount(userID, tier)
	if err != nil {
		return nil, err
	}

	var created *Account
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		created, err = s.repo.CreateInTx(ctx, tx, acct)
		if err != nil {
			return err
		}
		if err := s.credit.EnsureFacilityInTx(ctx, tx, userID); err != nil {
			return fmt.Errorf("failed to open credit facility for user %d: %w", userID, err)
		}
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Account onboarding rolled back", "user_id", userID, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Savings account opened", "account_id", created.ID, "user_id", userID, "tier", created.Tier)
	s.notify(ctx, "account.opened", map[string]any{
		"accountId":     created.ID,
		"accountNumber": created.AccountNumber,
		"tier":          created.Tier,
	})
	return created, nil
}

func (s *savingsService) GetAccount(ctx context.Context, accountID int64) (*Account, error) {
	acct, err := s.repo.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: savings account %d not found", apperrors.ErrNotFound, accountID)
		}
		return nil, err
	}
	return acct, nil
}

func (s *savingsService) GetBalance(ctx context.Context, accountID int64) (Money, error) {
	acct, err := s.GetAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	return acct.Balance, nil
}

func (s *savingsService) Deposit(ctx context.Context, accountID int64, amount Money) (*ledger.Transaction, error) {
	txn, err := s.moveMoney(ctx, accountID, amount, ledger.TypeDeposit)
	if err != nil {
		return nil, err
	}
	monitoring.RecordTransaction(string(ledger.TypeDeposit), string(ledger.StatusCompleted))
	s.notify(ctx, "account.credited", map[string]any{
		"accountId": accountID,
		"amount":    amount,
		"reference": txn.Reference,
		"balance":   txn.BalanceAfter,
	})
	return txn, nil
}

func (s *savingsService) Withdraw(ctx context.Context, accountID int64, amount Money) (*ledger.Transaction, error) {
	txn, err := s.moveMoney(ctx, accountID, amount, ledger.TypeWithdrawal)
	if err != nil {
		return nil, err
	}
	monitoring.RecordTransaction(string(ledger.TypeWithdrawal), string(ledger.StatusCompleted))
	s.notify(ctx, "account.debited", map[string]any{
		"accountId": accountID,
		"amount":    amount,
		"reference": txn.Reference,
		"balance":   txn.BalanceAfter,
	})
	return txn, nil
}

// moveMoney runs the full customer-initiated mutation as one atomic unit:
// status check, balance check, tier ceiling checks, PENDING ledger entry,
// balance update, entry completion. Any failure rolls the whole unit back.
func (s *savingsService) moveMoney(ctx context.Context, accountID int64, amount Money, typ ledger.TransactionType) (*ledger.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: amount must be greater than zero", apperrors.ErrInvalidArgument)
	}

	var result *ledger.Transaction
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		acct, err := s.repo.GetForUpdateInTx(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return fmt.Errorf("%w: savings account %d is %s", apperrors.ErrAccountNotActive, accountID, acct.Status)
		}
		if typ == ledger.TypeWithdrawal && acct.Balance < amount {
			return fmt.Errorf("%w: balance %.2f is below requested %.2f", apperrors.ErrInsufficientBalance, acct.Balance, amount)
		}

		if err := s.checkCeilings(ctx, tx, acct, amount, typ); err != nil {
			return err
		}

		now := time.Now()
		seq, err := s.ledgerRepo.NextDailySequenceInTx(ctx, tx, now)
		if err != nil {
			return err
		}

		entry, err := ledger.NewEntry(acct.UserID, &accountID, acct.Balance, typ, amount,
			ledger.BuildReference(now, seq), describe(typ, acct.AccountNumber), nil)
		if err != nil {
			return err
		}

		created, err := s.ledgerRepo.InsertInTx(ctx, tx, entry)
		if err != nil {
			return err
		}

		if err := s.repo.UpdateBalanceInTx(ctx, tx, accountID, created.BalanceAfter); err != nil {
			return err
		}

		if err := s.ledgerRepo.MarkCompletedInTx(ctx, tx, created.ID); err != nil {
			return err
		}

		created.Status = ledger.StatusCompleted
		result = created
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Balance mutation rejected", "account_id", accountID, "type", typ, "error", err)
		return nil, err
	}

	s.logger.InfoContext(ctx, "Balance mutation committed", "account_id", accountID, "type", typ, "reference", result.Reference)
	return result, nil
}

func (s *savingsService) checkCeilings(ctx context.Context, tx pgx.Tx, acct *Account, amount Money, typ ledger.TransactionType) error {
	limits, err := s.tiers.Limits(acct.Tier)
	if err != nil {
		return err
	}

	dayFrom, dayTo := ledger.DayWindow(time.Now())
	dailyTotal, err := s.ledgerRepo.SumCompletedInRangeInTx(ctx, tx, acct.ID, typ, dayFrom, dayTo)
	if err != nil {
		return err
	}

	dailyCeiling := limits.DailyDepositLimit
	if typ == ledger.TypeWithdrawal {
		dailyCeiling = limits.DailyWithdrawalLimit
	}
	if dailyTotal+amount > dailyCeiling {
		return fmt.Errorf("%w: daily %s ceiling %.2f for tier %s would be exceeded", apperrors.ErrLimitExceeded, typ, dailyCeiling, acct.Tier)
	}

	if typ == ledger.TypeWithdrawal {
		monthFrom, monthTo := ledger.MonthWindow(time.Now())
		monthlyTotal, err := s.ledgerRepo.SumCompletedInRangeInTx(ctx, tx, acct.ID, typ, monthFrom, monthTo)
		if err != nil {
			return err
		}
		if monthlyTotal+amount > limits.MonthlyWithdrawalLimit {
			return fmt.Errorf("%w: monthly withdrawal ceiling %.2f for tier %s would be exceeded", apperrors.ErrLimitExceeded, limits.MonthlyWithdrawalLimit, acct.Tier)
		}
	}

	return nil
}

func (s *savingsService) CloseAccount(ctx context.Context, accountID int64) error {
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		acct, err := s.repo.GetForUpdateInTx(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if acct.Status == StatusClosed {
			return fmt.Errorf("%w: savings account %d is already closed", apperrors.ErrInvalidState, accountID)
		}
		if acct.Balance != 0 {
			return fmt.Errorf("%w: account balance must be zero before closure", apperrors.ErrValidation)
		}

		activeLoans, err := s.loans.CountActiveByAccountInTx(ctx, tx, accountID)
		if err != nil {
			return err
		}
		if activeLoans > 0 {
			return fmt.Errorf("%w: account %d has %d active loans against it", apperrors.ErrConflict, accountID, activeLoans)
		}

		active, err := s.repo.CountActiveByUserInTx(ctx, tx, acct.UserID)
		if err != nil {
			return err
		}
		others := active
		if acct.Status == StatusActive {
			others--
		}
		if others < 1 {
			return fmt.Errorf("%w: customer must keep at least one other active account", apperrors.ErrValidation)
		}

		return s.repo.UpdateStatusInTx(ctx, tx, accountID, StatusClosed)
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Account closure rejected", "account_id", accountID, "error", err)
		return err
	}

	s.logger.InfoContext(ctx, "Savings account closed", "account_id", accountID)
	s.notify(ctx, "account.closed", map[string]any{"accountId": accountID})
	return nil
}

// ApplyBalanceChange is the internal primitive the loan engine uses inside
// its own unit of work. Tier ceilings do not apply to loan-driven movements;
// the non-negative balance invariant always does.
func ApplyBalanceChange(ctx context.Context, tx pgx.Tx, repo Repository, accountID int64, amount Money, isDebit bool) (*Account, error) {
	acct, err := repo.GetForUpdateInTx(ctx, tx, accountID)
	if err != nil {
		return nil, err
	}

	newBalance := acct.Balance + amount
	if isDebit {
		if acct.Balance < amount {
			return nil, fmt.Errorf("%w: balance %.2f is below requested %.2f", apperrors.ErrInsufficientBalance, acct.Balance, amount)
		}
		newBalance = acct.Balance - amount
	}
	newBalance = math.Round(newBalance*100) / 100

	if err := repo.UpdateBalanceInTx(ctx, tx, accountID, newBalance); err != nil {
		return nil, err
	}
	acct.Balance = newBalance
	return acct, nil
}

func (s *savingsService) notify(ctx context.Context, templateKey string, payload map[string]any) {
	if s.dispatcher == nil {
		return
	}
	if err := s.dispatcher.Dispatch(ctx, templateKey, nil, payload); err != nil {
		s.logger.WarnContext(ctx, "Notification dispatch failed", "template", templateKey, "error", err)
	}
}

func describe(typ ledger.TransactionType, accountNumber string) string {
	switch typ {
	case ledger.TypeDeposit:
		return "Deposit to " + accountNumber
	case ledger.TypeWithdrawal:
		return "Withdrawal from " + accountNumber
	default:
		return string(typ) + " on " + accountNumber
	}
}
