package postgres

import (
	"banking-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
)

// UnitOfWork runs closures inside one database transaction. A returned error
// or a panic rolls everything back; otherwise the transaction commits.
type UnitOfWork struct {
	db     DBPool
	logger *slog.Logger
}

func NewUnitOfWork(db DBPool, logger *slog.Logger) *UnitOfWork {
	return &UnitOfWork{db: db, logger: logger.With("component", "UnitOfWork")}
}

func (u *UnitOfWork) WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) (err error) {
	tx, err := u.db.Begin(ctx)
	if err != nil {
		u.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}

	defer func() {
		if p := recover(); p != nil {
			u.rollback(ctx, tx)
			panic(p)
		}
		if err != nil {
			u.rollback(ctx, tx)
		}
	}()

	if err = fn(ctx, tx); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		u.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf("%w: %w", apperrors.ErrDatabase, err)
	}
	return nil
}

func (u *UnitOfWork) rollback(ctx context.Context, tx pgx.Tx) {
	if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
		u.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", rbErr)
	}
}
