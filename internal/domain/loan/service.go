package loan

import (
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/domain/identity"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"banking-engine/internal/domain/uow"
	"banking-engine/internal/infrastructure/monitoring"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// RateTable maps tenor in months to the flat interest rate for that tenor.
type RateTable map[int]float64

func (t RateTable) Rate(tenorMonths int) (float64, bool) {
	rate, ok := t[tenorMonths]
	return rate, ok
}

// Dispatcher delivers notification requests to the excluded notification
// layer; failures never affect financial state.
type Dispatcher interface {
	Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error
}

// RepaymentResult is what a committed repayment hands back to the caller.
type RepaymentResult struct {
	Loan        *Loan
	Installment *Repayment
	Transaction *ledger.Transaction
}

type Service interface {
	RequestLoan(ctx context.Context, userID int64, principal Money, tenorMonths int, savingsAccountID *int64) (*Loan, error)

	ApproveLoan(ctx context.Context, loanID int64) (*Loan, error)

	RejectLoan(ctx context.Context, loanID int64) (*Loan, error)

	DisburseLoan(ctx context.Context, loanID int64) (*Loan, error)

	RepayLoan(ctx context.Context, loanID int64, amount Money) (*RepaymentResult, error)

	GetLoan(ctx context.Context, loanID int64) (*Loan, error)

	GetSchedule(ctx context.Context, loanID int64) ([]Repayment, error)

	ListLoans(ctx context.Context, userID int64) ([]Loan, error)
}

type loanService struct {
	repo        Repository
	savingsRepo savings.Repository
	creditRepo  credit.Repository
	ledgerRepo  ledger.Repository
	directory   identity.Directory
	uow         uow.UnitOfWork
	policy      ApprovalPolicy
	rates       RateTable
	dispatcher  Dispatcher
	logger      *slog.Logger
}

func NewService(repo Repository, savingsRepo savings.Repository, creditRepo credit.Repository, ledgerRepo ledger.Repository, directory identity.Directory, unit uow.UnitOfWork, policy ApprovalPolicy, rates RateTable, dispatcher Dispatcher, logger *slog.Logger) Service {
	if repo == nil || savingsRepo == nil || creditRepo == nil || ledgerRepo == nil || directory == nil || unit == nil {
		panic("loan service dependencies cannot be nil")
	}
	if len(rates) == 0 {
		panic("loan service requires a tenor rate table")
	}
	return &loanService{
		repo:        repo,
		savingsRepo: savingsRepo,
		creditRepo:  creditRepo,
		ledgerRepo:  ledgerRepo,
		directory:   directory,
		uow:         unit,
		policy:      policy,
		rates:       rates,
		dispatcher:  dispatcher,
		logger:      logger.With("component", "loanService"),
	}
}

func (s *loanService) RequestLoan(ctx context.Context, userID int64, principal Money, tenorMonths int, savingsAccountID *int64) (*Loan, error) {
	s.logger.InfoContext(ctx, "Loan requested", "user_id", userID, "principal", principal, "tenor_months", tenorMonths)

	user, err := s.directory.GetUser(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d not found", apperrors.ErrNotFound, userID)
		}
		return nil, fmt.Errorf("failed to verify user: %w", err)
	}
	if !user.IsCustomer() {
		return nil, fmt.Errorf("%w: user %d is not a customer", apperrors.ErrValidation, userID)
	}

	facility, err := s.creditRepo.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: no credit facility for user %d", apperrors.ErrNotFound, userID)
		}
		return nil, err
	}
	if facility.AvailableCredit < principal {
		return nil, fmt.Errorf("%w: available credit %.2f is below requested %.2f", apperrors.ErrInsufficientCredit, facility.AvailableCredit, principal)
	}

	defaulted, err := s.repo.CountByUserAndStatus(ctx, userID, StatusDefaulted)
	if err != nil {
		return nil, err
	}
	if defaulted > 0 {
		return nil, fmt.Errorf("%w: user %d has %d defaulted loans", apperrors.ErrExistingDefaultedLoans, userID, defaulted)
	}

	destination, err := s.resolveDestination(ctx, userID, savingsAccountID)
	if err != nil {
		return nil, err
	}

	rate, ok := s.rates.Rate(tenorMonths)
	if !ok {
		return nil, fmt.Errorf("%w: no interest rate configured for a %d month tenor", apperrors.ErrValidation, tenorMonths)
	}

	newLoan, err := NewLoan(userID, facility.ID, destination.ID, principal, tenorMonths, rate, time.Now())
	if err != nil {
		return nil, err
	}

	decision := DetermineApprovalStatus(principal, user.Customer.CreditScore, user.Customer.KYCStatus, defaulted > 0, s.policy)
	newLoan.ApprovalStatus = decision
	newLoan.Status = StatusForApproval(decision)

	created, err := s.repo.Create(ctx, newLoan)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to persist loan: %v", apperrors.ErrInternalServer, err)
	}
	monitoring.RecordLoanEvent("requested")
	s.logger.InfoContext(ctx, "Loan persisted", "loan_id", created.ID, "status", created.Status, "approval_status", created.ApprovalStatus)

	switch decision {
	case ApprovalAutoApproved:
		disbursed, err := s.DisburseLoan(ctx, created.ID)
		if err != nil {
			s.logger.ErrorContext(ctx, "Auto-approved loan failed to disburse", "loan_id", created.ID, "error", err)
			return nil, err
		}
		return disbursed, nil
	case ApprovalRejected:
		s.notify(ctx, "loan.rejected", user.Email, map[string]any{"loanId": created.ID})
	default:
		s.notify(ctx, "loan.pending_review", user.Email, map[string]any{"loanId": created.ID, "principal": principal})
	}

	return created, nil
}

// resolveDestination picks the savings account a disbursement lands on:
// caller-specified, then the account of the customer's last disbursement,
// then their first active account.
func (s *loanService) resolveDestination(ctx context.Context, userID int64, requested *int64) (*savings.Account, error) {
	if requested != nil {
		acct, err := s.savingsRepo.GetByID(ctx, *requested)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
				return nil, fmt.Errorf("%w: savings account %d not found", apperrors.ErrNotFound, *requested)
			}
			return nil, err
		}
		if acct.UserID != userID {
			return nil, fmt.Errorf("%w: savings account %d does not belong to user %d", apperrors.ErrValidation, *requested, userID)
		}
		if !acct.IsActive() {
			return nil, fmt.Errorf("%w: savings account %d is %s", apperrors.ErrAccountNotActive, *requested, acct.Status)
		}
		return acct, nil
	}

	if lastID, err := s.repo.LastDisbursedAccountID(ctx, userID); err != nil {
		return nil, err
	} else if lastID != nil {
		acct, err := s.savingsRepo.GetByID(ctx, *lastID)
		if err == nil && acct.IsActive() {
			return acct, nil
		}
		if err != nil && !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, apperrors.ErrNotFound) {
			return nil, err
		}
	}

	accounts, err := s.savingsRepo.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, fmt.Errorf("%w: user %d has no active savings account to disburse into", apperrors.ErrNotFound, userID)
	}
	return &accounts[0], nil
}

func (s *loanService) ApproveLoan(ctx context.Context, loanID int64) (*Loan, error) {
	return s.decide(ctx, loanID, StatusApproved, ApprovalManualApproved, "loan.approved")
}

func (s *loanService) RejectLoan(ctx context.Context, loanID int64) (*Loan, error) {
	return s.decide(ctx, loanID, StatusRejected, ApprovalRejected, "loan.rejected")
}

func (s *loanService) decide(ctx context.Context, loanID int64, status Status, approval ApprovalStatus, templateKey string) (*Loan, error) {
	var decided *Loan
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		l, err := s.repo.GetForUpdateInTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if l.Status != StatusPending || l.ApprovalStatus != ApprovalPendingReview {
			return fmt.Errorf("%w: loan %d is %s/%s, decision requires PENDING/PENDING_REVIEW", apperrors.ErrInvalidState, loanID, l.Status, l.ApprovalStatus)
		}
		if err := s.repo.UpdateDecisionInTx(ctx, tx, loanID, status, approval); err != nil {
			return err
		}
		l.Status = status
		l.ApprovalStatus = approval
		decided = l
		return nil
	})
	if err != nil {
		return nil, err
	}

	monitoring.RecordLoanEvent(string(approval))
	s.notify(ctx, templateKey, "", map[string]any{"loanId": loanID})
	return decided, nil
}

func (s *loanService) DisburseLoan(ctx context.Context, loanID int64) (*Loan, error) {
	current, err := s.repo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, err
	}

	// The destination chosen at request time may have been closed since;
	// fall back to re-resolution before entering the atomic unit.
	destination, err := s.savingsRepo.GetByID(ctx, current.SavingsAccountID)
	if err != nil || !destination.IsActive() {
		destination, err = s.resolveDestination(ctx, current.UserID, nil)
		if err != nil {
			return nil, err
		}
	}

	var (
		disbursed *Loan
		txn       *ledger.Transaction
	)
	err = s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		l, err := s.repo.GetForUpdateInTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if l.Status != StatusApproved {
			return fmt.Errorf("%w: loan %d is %s, disbursement requires APPROVED", apperrors.ErrInvalidState, loanID, l.Status)
		}

		acct, err := s.savingsRepo.GetForUpdateInTx(ctx, tx, destination.ID)
		if err != nil {
			return err
		}
		if !acct.IsActive() {
			return fmt.Errorf("%w: savings account %d is %s", apperrors.ErrAccountNotActive, acct.ID, acct.Status)
		}

		hasSchedule, err := s.repo.HasScheduleInTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if !hasSchedule {
			schedule, err := l.GenerateSchedule()
			if err != nil {
				return err
			}
			if err := s.repo.InsertScheduleInTx(ctx, tx, loanID, schedule); err != nil {
				return err
			}
		}

		now := time.Now()
		seq, err := s.ledgerRepo.NextDailySequenceInTx(ctx, tx, now)
		if err != nil {
			return err
		}
		entry, err := ledger.NewEntry(l.UserID, &acct.ID, acct.Balance, ledger.TypeLoanDisbursement, l.PrincipalAmount,
			ledger.BuildReference(now, seq), fmt.Sprintf("Disbursement of loan %d", loanID), map[string]string{
				"loanId":         strconv.FormatInt(loanID, 10),
				"idempotencyKey": uuid.NewString(),
			})
		if err != nil {
			return err
		}
		created, err := s.ledgerRepo.InsertInTx(ctx, tx, entry)
		if err != nil {
			return err
		}

		if err := s.savingsRepo.UpdateBalanceInTx(ctx, tx, acct.ID, created.BalanceAfter); err != nil {
			return err
		}

		if _, err := credit.ApplyMovement(ctx, tx, s.creditRepo, l.CreditAccountID, l.PrincipalAmount, true); err != nil {
			return err
		}

		if err := s.repo.SetDisbursedInTx(ctx, tx, loanID, acct.ID, now); err != nil {
			return err
		}

		if err := s.ledgerRepo.MarkCompletedInTx(ctx, tx, created.ID); err != nil {
			return err
		}

		created.Status = ledger.StatusCompleted
		txn = created
		l.Status = StatusDisbursed
		l.SavingsAccountID = acct.ID
		l.DisbursedAt = &now
		disbursed = l
		return nil
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "Disbursement failed, unit rolled back", "loan_id", loanID, "error", err)
		return nil, err
	}

	monitoring.RecordLoanEvent("disbursed")
	monitoring.RecordTransaction(string(ledger.TypeLoanDisbursement), string(ledger.StatusCompleted))
	s.logger.InfoContext(ctx, "Loan disbursed", "loan_id", loanID, "reference", txn.Reference, "account_id", disbursed.SavingsAccountID)
	s.notify(ctx, "loan.disbursed", "", map[string]any{
		"loanId":    loanID,
		"amount":    disbursed.PrincipalAmount,
		"reference": txn.Reference,
	})
	return disbursed, nil
}

func (s *loanService) RepayLoan(ctx context.Context, loanID int64, amount Money) (*RepaymentResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: repayment amount must be greater than zero", apperrors.ErrInvalidArgument)
	}

	var result RepaymentResult
	err := s.uow.WithinTx(ctx, func(ctx context.Context, tx pgx.Tx) error {
		l, err := s.repo.GetForUpdateInTx(ctx, tx, loanID)
		if err != nil {
			return err
		}
		if l.Status != StatusActive && l.Status != StatusDisbursed {
			return fmt.Errorf("%w: loan %d is %s, repayment requires ACTIVE or DISBURSED", apperrors.ErrInvalidState, loanID, l.Status)
		}
		if amount > l.OutstandingAmount {
			return fmt.Errorf("%w: %.2f exceeds outstanding %.2f", apperrors.ErrAmountExceedsOutstanding, amount, l.OutstandingAmount)
		}

		installment, err := s.repo.FindNextPayableInTx(ctx, tx, loanID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
				return fmt.Errorf("%w: loan %d", apperrors.ErrNoPendingRepayments, loanID)
			}
			return err
		}

		acct, err := savings.ApplyBalanceChange(ctx, tx, s.savingsRepo, l.SavingsAccountID, amount, true)
		if err != nil {
			return err
		}

		now := time.Now()
		seq, err := s.ledgerRepo.NextDailySequenceInTx(ctx, tx, now)
		if err != nil {
			return err
		}
		// The balance change above already landed on the row; snapshot the
		// pre-debit balance for the audit record.
		entry, err := ledger.NewEntry(l.UserID, &acct.ID, acct.Balance+amount, ledger.TypeLoanRepayment, amount,
			ledger.BuildReference(now, seq), fmt.Sprintf("Repayment of loan %d installment %d", loanID, installment.ScheduleNumber),
			map[string]string{
				"loanId":         strconv.FormatInt(loanID, 10),
				"scheduleNumber": strconv.Itoa(installment.ScheduleNumber),
				"idempotencyKey": uuid.NewString(),
			})
		if err != nil {
			return err
		}
		created, err := s.ledgerRepo.InsertInTx(ctx, tx, entry)
		if err != nil {
			return err
		}

		installment.AmountPaid = roundTo(installment.AmountPaid+amount, 2)
		if installment.AmountPaid >= installment.DueAmount+installment.LateFee {
			installment.Status = RepaymentPaid
			installment.PaidAt = &now
		} else {
			installment.Status = RepaymentPartiallyPaid
		}
		if err := s.repo.UpdateRepaymentInTx(ctx, tx, installment); err != nil {
			return err
		}

		newOutstanding := roundTo(l.OutstandingAmount-amount, 2)
		newStatus := StatusActive
		if newOutstanding <= 0 {
			newOutstanding = 0
			newStatus = StatusFullyPaid
		}
		if err := s.repo.UpdateAfterRepaymentInTx(ctx, tx, loanID, newOutstanding, newStatus); err != nil {
			return err
		}

		if _, err := credit.ApplyMovement(ctx, tx, s.creditRepo, l.CreditAccountID, amount, false); err != nil {
			return err
		}

		if err := s.ledgerRepo.MarkCompletedInTx(ctx, tx, created.ID); err != nil {
			return err
		}

		created.Status = ledger.StatusCompleted
		l.OutstandingAmount = newOutstanding
		l.Status = newStatus
		result = RepaymentResult{Loan: l, Installment: installment, Transaction: created}
		return nil
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Repayment failed, unit rolled back", "loan_id", loanID, "amount", amount, "error", err)
		return nil, err
	}

	monitoring.RecordLoanEvent("repayment")
	monitoring.RecordTransaction(string(ledger.TypeLoanRepayment), string(ledger.StatusCompleted))
	if result.Loan.Status == StatusFullyPaid {
		monitoring.RecordLoanEvent("fully_paid")
	}
	s.logger.InfoContext(ctx, "Repayment applied", "loan_id", loanID, "amount", amount, "outstanding", result.Loan.OutstandingAmount, "loan_status", result.Loan.Status)
	s.notify(ctx, "loan.repayment", "", map[string]any{
		"loanId":      loanID,
		"amount":      amount,
		"outstanding": result.Loan.OutstandingAmount,
		"reference":   result.Transaction.Reference,
	})
	return &result, nil
}

func (s *loanService) GetLoan(ctx context.Context, loanID int64) (*Loan, error) {
	l, err := s.repo.GetByID(ctx, loanID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: loan %d not found", apperrors.ErrNotFound, loanID)
		}
		return nil, err
	}

	schedule, err := s.repo.GetSchedule(ctx, loanID)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) && !errors.Is(err, apperrors.ErrNotFound) {
		s.logger.ErrorContext(ctx, "Failed to load loan schedule", "loan_id", loanID, "error", err)
	}
	l.Schedule = schedule
	return l, nil
}

func (s *loanService) GetSchedule(ctx context.Context, loanID int64) ([]Repayment, error) {
	schedule, err := s.repo.GetSchedule(ctx, loanID)
	if err != nil {
		return nil, err
	}
	if len(schedule) == 0 {
		if _, err := s.repo.GetByID(ctx, loanID); err != nil {
			return nil, fmt.Errorf("%w: loan %d not found", apperrors.ErrNotFound, loanID)
		}
	}
	return schedule, nil
}

func (s *loanService) ListLoans(ctx context.Context, userID int64) ([]Loan, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *loanService) notify(ctx context.Context, templateKey, recipient string, payload map[string]any) {
	if s.dispatcher == nil {
		return
	}
	var recipients []string
	if recipient != "" {
		recipients = []string{recipient}
	}
	if err := s.dispatcher.Dispatch(ctx, templateKey, recipients, payload); err != nil {
		s.logger.WarnContext(ctx, "Notification dispatch failed", "template", templateKey, "error", err)
	}
}
