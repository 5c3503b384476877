package batch

import (
	"banking-engine/internal/domain/loan"
	"banking-engine/internal/domain/uow"
	"banking-engine/internal/infrastructure/monitoring"
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

// OverdueJob is the nightly sweep over the repayment book: every past-due
// open installment is flipped to OVERDUE with its late fee applied, and loans
// carrying at least the configured number of overdue installments are marked
// DEFAULTED. The whole sweep runs as one unit of work.
type OverdueJob struct {
	loanRepo         loan.Repository
	uow              uow.UnitOfWork
	lateFeeRate      float64
	overdueThreshold int
	dispatcher       loan.Dispatcher
	logger           *slog.Logger
}

func NewOverdueJob(loanRepo loan.Repository, unit uow.UnitOfWork, lateFeeRate float64, overdueThreshold int, dispatcher loan.Dispatcher, logger *slog.Logger) *OverdueJob {
	if loanRepo == nil || unit == nil || logger == nil {
		panic("OverdueJob dependencies cannot be nil")
	}
	if overdueThreshold <= 0 {
		overdueThreshold = 2
	}
	return &OverdueJob{
		loanRepo:         loanRepo,
		uow:              unit,
		lateFeeRate:      lateFeeRate,
		overdueThreshold: overdueThreshold,
		dispatcher:       dispatcher,
		logger:           logger.With("job", "OverdueSweep"),
	}
}

func (j *OverdueJob) Run(ctx context.Context) error {
	startTime := time.Now()
	j.logger.InfoContext(ctx, "Starting overdue repayment sweep.")

	var (
		markedOverdue int64
		defaulted     []int64
	)
	err := j.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		moved, err := j.loanRepo.MarkOverdueInTx(ctx, tx, time.Now(), j.lateFeeRate)
		if err != nil {
			return fmt.Errorf("failed to mark overdue installments: %w", err)
		}
		markedOverdue = moved

		candidates, err := j.loanRepo.ListDefaultCandidatesInTx(ctx, tx, j.overdueThreshold)
		if err != nil {
			return fmt.Errorf("failed to list default candidates: %w", err)
		}

		for _, loanID := range candidates {
			if err := j.loanRepo.UpdateStatusInTx(ctx, tx, loanID, loan.StatusDefaulted); err != nil {
				return fmt.Errorf("failed to default loan %d: %w", loanID, err)
			}
		}
		defaulted = candidates
		return nil
	})
	if err != nil {
		j.logger.ErrorContext(ctx, "Overdue sweep aborted, unit rolled back.", slog.Any("error", err))
		return err
	}

	monitoring.RecordOverdueMarked(markedOverdue)
	for _, loanID := range defaulted {
		monitoring.RecordLoanEvent("defaulted")
		j.notify(ctx, loanID)
	}

	j.logger.InfoContext(ctx, "Overdue sweep finished.",
		slog.Duration("duration", time.Since(startTime)),
		slog.Int64("installments_marked_overdue", markedOverdue),
		slog.Int("loans_defaulted", len(defaulted)),
	)
	return nil
}

func (j *OverdueJob) notify(ctx context.Context, loanID int64) {
	if j.dispatcher == nil {
		return
	}
	if err := j.dispatcher.Dispatch(ctx, "loan.defaulted", nil, map[string]any{"loanId": loanID}); err != nil {
		j.logger.WarnContext(ctx, "Notification dispatch failed", slog.Int64("loanID", loanID), slog.Any("error", err))
	}
}
