package ledger

import (
	"banking-engine/internal/domain/uow"
	"banking-engine/internal/infrastructure/monitoring"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// AccountSource is the slice of the savings store the ledger needs: a balance
// snapshot for the account a transaction is recorded against.
type AccountSource interface {
	BalanceInTx(ctx context.Context, tx pgx.Tx, accountID int64) (Money, error)
}

type Service interface {
	CreateTransaction(ctx context.Context, userID int64, accountID *int64, typ TransactionType, amount Money, description string, metadata map[string]string) (*Transaction, error)

	CompleteTransaction(ctx context.Context, id int64) error

	FailTransaction(ctx context.Context, id int64) error

	GetTransaction(ctx context.Context, id int64) (*Transaction, error)

	GetDailyTransactionTotal(ctx context.Context, accountID int64, typ TransactionType) (Money, error)

	GetMonthlyTransactionTotal(ctx context.Context, accountID int64, typ TransactionType) (Money, error)

	GetStatement(ctx context.Context, accountID int64, limit int) ([]Transaction, error)
}

type ledgerService struct {
	repo     Repository
	accounts AccountSource
	uow      uow.UnitOfWork
	logger   *slog.Logger
}

func NewService(repo Repository, accounts AccountSource, unit uow.UnitOfWork, logger *slog.Logger) Service {
	if repo == nil || accounts == nil || unit == nil {
		panic("ledger service dependencies cannot be nil")
	}
	return &ledgerService{
		repo:     repo,
		accounts: accounts,
		uow:      unit,
		logger:   logger.With("component", "ledgerService"),
	}
}

func (s *ledgerService) CreateTransaction(ctx context.Context, userID int64, accountID *int64, typ TransactionType, amount Money, description string, metadata map[string]string) (*Transaction, error) {
	var created *Transaction

	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		balanceBefore := Money(0)
		if accountID != nil {
			b, err := s.accounts.BalanceInTx(ctx, tx, *accountID)
			if err != nil {
				return err
			}
			balanceBefore = b
		}

		now := time.Now()
		seq, err := s.repo.NextDailySequenceInTx(ctx, tx, now)
		if err != nil {
			return err
		}

		entry, err := NewEntry(userID, accountID, balanceBefore, typ, amount, BuildReference(now, seq), description, metadata)
		if err != nil {
			return err
		}

		created, err = s.repo.InsertInTx(ctx, tx, entry)
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to create transaction", "type", typ, "error", err)
		return nil, err
	}

	monitoring.RecordTransaction(string(typ), string(StatusPending))
	s.logger.InfoContext(ctx, "Transaction created", "reference", created.Reference, "type", typ, "amount", amount)
	return created, nil
}

func (s *ledgerService) CompleteTransaction(ctx context.Context, id int64) error {
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.repo.MarkCompletedInTx(ctx, tx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to complete transaction", "transaction_id", id, "error", err)
		return err
	}
	return nil
}

func (s *ledgerService) FailTransaction(ctx context.Context, id int64) error {
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		return s.repo.MarkFailedInTx(ctx, tx, id)
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to fail transaction", "transaction_id", id, "error", err)
		return err
	}
	return nil
}

func (s *ledgerService) GetTransaction(ctx context.Context, id int64) (*Transaction, error) {
	txn, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: transaction %d not found", apperrors.ErrNotFound, id)
		}
		return nil, err
	}
	return txn, nil
}

func (s *ledgerService) GetDailyTransactionTotal(ctx context.Context, accountID int64, typ TransactionType) (Money, error) {
	from, to := DayWindow(time.Now())
	return s.repo.SumCompletedInRange(ctx, accountID, typ, from, to)
}

func (s *ledgerService) GetMonthlyTransactionTotal(ctx context.Context, accountID int64, typ TransactionType) (Money, error) {
	from, to := MonthWindow(time.Now())
	return s.repo.SumCompletedInRange(ctx, accountID, typ, from, to)
}

func (s *ledgerService) GetStatement(ctx context.Context, accountID int64, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListByAccount(ctx, accountID, limit)
}
