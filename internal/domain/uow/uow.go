// Package uow defines the atomic unit of work every multi-entity financial
// mutation runs inside. The closure receives the open transaction and uses
// the repositories' InTx methods against it; the implementation commits when
// the closure returns nil and rolls everything back otherwise.
package uow

import (
	"context"

	"github.com/jackc/pgx/v5"
)

type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error
}
