package postgres

import (
	"banking-engine/internal/pkg/apperrors"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolationCode = "23505"

// translateError maps driver errors onto the application sentinels so the
// domain layer never inspects SQLSTATEs.
func translateError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperrors.ErrNotFound
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
		return fmt.Errorf("%w: %s", apperrors.ErrAlreadyExists, what)
	}
	return fmt.Errorf("%w: %s: %w", apperrors.ErrDatabase, what, err)
}
