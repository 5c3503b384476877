package loan

import (
	"banking-engine/internal/domain/credit"
	"banking-engine/internal/domain/identity"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, nil))

type TxMock struct {
	pgx.Tx
}

var tx pgx.Tx = &TxMock{}

// uowStub runs the unit directly against the shared TxMock, so a returned
// error stands in for a rollback.
type uowStub struct{}

func (uowStub) WithinTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	return fn(ctx, tx)
}

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) Create(ctx context.Context, l *Loan) (*Loan, error) {
	args := m.Called(ctx, l)
	return args.Get(0).(*Loan), args.Error(1)
}

func (m *MockRepository) GetByID(ctx context.Context, loanID int64) (*Loan, error) {
	args := m.Called(ctx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Loan), args.Error(1)
}

func (m *MockRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*Loan, error) {
	args := m.Called(ctx, tx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Loan), args.Error(1)
}

func (m *MockRepository) UpdateDecisionInTx(ctx context.Context, tx pgx.Tx, loanID int64, status Status, approval ApprovalStatus) error {
	args := m.Called(ctx, tx, loanID, status, approval)
	return args.Error(0)
}

func (m *MockRepository) SetDisbursedInTx(ctx context.Context, tx pgx.Tx, loanID int64, savingsAccountID int64, at time.Time) error {
	args := m.Called(ctx, tx, loanID, savingsAccountID, at)
	return args.Error(0)
}

func (m *MockRepository) UpdateAfterRepaymentInTx(ctx context.Context, tx pgx.Tx, loanID int64, outstanding Money, status Status) error {
	args := m.Called(ctx, tx, loanID, outstanding, status)
	return args.Error(0)
}

func (m *MockRepository) InsertScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64, schedule []Repayment) error {
	args := m.Called(ctx, tx, loanID, schedule)
	return args.Error(0)
}

func (m *MockRepository) HasScheduleInTx(ctx context.Context, tx pgx.Tx, loanID int64) (bool, error) {
	args := m.Called(ctx, tx, loanID)
	return args.Bool(0), args.Error(1)
}

func (m *MockRepository) GetSchedule(ctx context.Context, loanID int64) ([]Repayment, error) {
	args := m.Called(ctx, loanID)
	return args.Get(0).([]Repayment), args.Error(1)
}

func (m *MockRepository) FindNextPayableInTx(ctx context.Context, tx pgx.Tx, loanID int64) (*Repayment, error) {
	args := m.Called(ctx, tx, loanID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Repayment), args.Error(1)
}

func (m *MockRepository) UpdateRepaymentInTx(ctx context.Context, tx pgx.Tx, rep *Repayment) error {
	args := m.Called(ctx, tx, rep)
	return args.Error(0)
}

func (m *MockRepository) CountByUserAndStatus(ctx context.Context, userID int64, status Status) (int, error) {
	args := m.Called(ctx, userID, status)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) CountActiveByAccountInTx(ctx context.Context, tx pgx.Tx, savingsAccountID int64) (int, error) {
	args := m.Called(ctx, tx, savingsAccountID)
	return args.Int(0), args.Error(1)
}

func (m *MockRepository) LastDisbursedAccountID(ctx context.Context, userID int64) (*int64, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*int64), args.Error(1)
}

func (m *MockRepository) ListByUser(ctx context.Context, userID int64) ([]Loan, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]Loan), args.Error(1)
}

func (m *MockRepository) MarkOverdueInTx(ctx context.Context, tx pgx.Tx, asOf time.Time, lateFeeRate float64) (int64, error) {
	args := m.Called(ctx, tx, asOf, lateFeeRate)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockRepository) ListDefaultCandidatesInTx(ctx context.Context, tx pgx.Tx, minOverdue int) ([]int64, error) {
	args := m.Called(ctx, tx, minOverdue)
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, loanID int64, status Status) error {
	args := m.Called(ctx, tx, loanID, status)
	return args.Error(0)
}

type MockSavingsRepository struct {
	mock.Mock
}

func (m *MockSavingsRepository) CreateInTx(ctx context.Context, tx pgx.Tx, acct *savings.Account) (*savings.Account, error) {
	args := m.Called(ctx, tx, acct)
	return args.Get(0).(*savings.Account), args.Error(1)
}

func (m *MockSavingsRepository) GetByID(ctx context.Context, accountID int64) (*savings.Account, error) {
	args := m.Called(ctx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*savings.Account), args.Error(1)
}

func (m *MockSavingsRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*savings.Account, error) {
	args := m.Called(ctx, tx, accountID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*savings.Account), args.Error(1)
}

func (m *MockSavingsRepository) UpdateBalanceInTx(ctx context.Context, tx pgx.Tx, accountID int64, newBalance savings.Money) error {
	args := m.Called(ctx, tx, accountID, newBalance)
	return args.Error(0)
}

func (m *MockSavingsRepository) UpdateStatusInTx(ctx context.Context, tx pgx.Tx, accountID int64, status savings.AccountStatus) error {
	args := m.Called(ctx, tx, accountID, status)
	return args.Error(0)
}

func (m *MockSavingsRepository) ListActiveByUser(ctx context.Context, userID int64) ([]savings.Account, error) {
	args := m.Called(ctx, userID)
	return args.Get(0).([]savings.Account), args.Error(1)
}

func (m *MockSavingsRepository) CountActiveByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (int, error) {
	args := m.Called(ctx, tx, userID)
	return args.Int(0), args.Error(1)
}

type MockCreditRepository struct {
	mock.Mock
}

func (m *MockCreditRepository) CreateInTx(ctx context.Context, tx pgx.Tx, acct *credit.Account) (*credit.Account, error) {
	args := m.Called(ctx, tx, acct)
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockCreditRepository) GetByID(ctx context.Context, accountID int64) (*credit.Account, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockCreditRepository) GetByUserID(ctx context.Context, userID int64) (*credit.Account, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockCreditRepository) GetForUpdateInTx(ctx context.Context, tx pgx.Tx, accountID int64) (*credit.Account, error) {
	args := m.Called(ctx, tx, accountID)
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockCreditRepository) GetForUpdateByUserInTx(ctx context.Context, tx pgx.Tx, userID int64) (*credit.Account, error) {
	args := m.Called(ctx, tx, userID)
	return args.Get(0).(*credit.Account), args.Error(1)
}

func (m *MockCreditRepository) UpdateFiguresInTx(ctx context.Context, tx pgx.Tx, acct *credit.Account) error {
	args := m.Called(ctx, tx, acct)
	return args.Error(0)
}

type MockLedgerRepository struct {
	mock.Mock
}

func (m *MockLedgerRepository) InsertInTx(ctx context.Context, tx pgx.Tx, txn *ledger.Transaction) (*ledger.Transaction, error) {
	args := m.Called(ctx, tx, txn)
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) NextDailySequenceInTx(ctx context.Context, tx pgx.Tx, day time.Time) (int64, error) {
	args := m.Called(ctx, tx, day)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockLedgerRepository) MarkCompletedInTx(ctx context.Context, tx pgx.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockLedgerRepository) MarkFailedInTx(ctx context.Context, tx pgx.Tx, id int64) error {
	args := m.Called(ctx, tx, id)
	return args.Error(0)
}

func (m *MockLedgerRepository) GetByID(ctx context.Context, id int64) (*ledger.Transaction, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) GetByReference(ctx context.Context, reference string) (*ledger.Transaction, error) {
	args := m.Called(ctx, reference)
	return args.Get(0).(*ledger.Transaction), args.Error(1)
}

func (m *MockLedgerRepository) SumCompletedInRange(ctx context.Context, accountID int64, typ ledger.TransactionType, from, to time.Time) (ledger.Money, error) {
	args := m.Called(ctx, accountID, typ, from, to)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *MockLedgerRepository) SumCompletedInRangeInTx(ctx context.Context, tx pgx.Tx, accountID int64, typ ledger.TransactionType, from, to time.Time) (ledger.Money, error) {
	args := m.Called(ctx, tx, accountID, typ, from, to)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *MockLedgerRepository) ListByAccount(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	return args.Get(0).([]ledger.Transaction), args.Error(1)
}

type MockDirectory struct {
	mock.Mock
}

func (m *MockDirectory) GetUser(ctx context.Context, id int64) (*identity.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*identity.User), args.Error(1)
}

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Dispatch(ctx context.Context, templateKey string, recipients []string, payload map[string]any) error {
	args := m.Called(ctx, templateKey, recipients, payload)
	return args.Error(0)
}

type serviceFixture struct {
	repo        *MockRepository
	savingsRepo *MockSavingsRepository
	creditRepo  *MockCreditRepository
	ledgerRepo  *MockLedgerRepository
	directory   *MockDirectory
	service     Service
}

func newFixture() *serviceFixture {
	f := &serviceFixture{
		repo:        new(MockRepository),
		savingsRepo: new(MockSavingsRepository),
		creditRepo:  new(MockCreditRepository),
		ledgerRepo:  new(MockLedgerRepository),
		directory:   new(MockDirectory),
	}
	policy := ApprovalPolicy{AutoApproveLimit: 500000, AutoApproveScore: 650, MinCreditScore: 400}
	rates := RateTable{3: 0.05, 6: 0.08, 9: 0.10, 12: 0.12}
	f.service = NewService(f.repo, f.savingsRepo, f.creditRepo, f.ledgerRepo, f.directory, uowStub{}, policy, rates, nil, logger)
	return f
}

func verifiedCustomer(score int) *identity.User {
	return &identity.User{
		ID:       1,
		Role:     identity.RoleCustomer,
		Email:    "alice@example.com",
		Customer: &identity.CustomerProfile{CreditScore: score, KYCStatus: identity.KYCVerified},
	}
}

func TestRequestLoanGoesToManualReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, CreditLimit: 1000000, AvailableCredit: 1000000}, nil)
	f.repo.On("CountByUserAndStatus", ctx, int64(1), StatusDefaulted).Return(0, nil)
	f.repo.On("LastDisbursedAccountID", ctx, int64(1)).Return(nil, nil)
	f.savingsRepo.On("ListActiveByUser", ctx, int64(1)).Return([]savings.Account{{ID: 100, UserID: 1, Status: savings.StatusActive}}, nil)
	f.repo.On("Create", ctx, mock.Anything).Return(&Loan{ID: 7, Status: StatusPending, ApprovalStatus: ApprovalPendingReview}, nil)

	// Above the auto-approve limit, so no disbursement happens here.
	result, err := f.service.RequestLoan(ctx, 1, 600000, 6, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusPending, result.Status)
	assert.Equal(t, ApprovalPendingReview, result.ApprovalStatus)
	f.repo.AssertExpectations(t)
}

func TestRequestLoanAutoApprovedDisbursesImmediately(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	acct := &savings.Account{ID: 100, UserID: 1, Balance: 2500, Status: savings.StatusActive, AccountNumber: "SAV-TEST"}
	approved := &Loan{
		ID: 7, UserID: 1, CreditAccountID: 10, SavingsAccountID: 100,
		PrincipalAmount: 100000, TotalAmount: 108000, OutstandingAmount: 108000,
		TenorMonths: 6, InterestRate: 0.08,
		Status: StatusApproved, ApprovalStatus: ApprovalAutoApproved,
		RequestedAt: time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC),
	}

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, CreditLimit: 1000000, AvailableCredit: 1000000}, nil)
	f.repo.On("CountByUserAndStatus", ctx, int64(1), StatusDefaulted).Return(0, nil)
	f.repo.On("LastDisbursedAccountID", ctx, int64(1)).Return(nil, nil)
	f.savingsRepo.On("ListActiveByUser", ctx, int64(1)).Return([]savings.Account{*acct}, nil)
	f.repo.On("Create", ctx, mock.MatchedBy(func(l *Loan) bool {
		return l.ApprovalStatus == ApprovalAutoApproved && l.Status == StatusApproved
	})).Return(approved, nil)

	// Under the auto-approve limit with a qualifying score and verified KYC,
	// the request carries straight through schedule generation and disbursement.
	f.repo.On("GetByID", ctx, int64(7)).Return(approved, nil)
	f.savingsRepo.On("GetByID", ctx, int64(100)).Return(acct, nil)
	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(approved, nil)
	f.savingsRepo.On("GetForUpdateInTx", ctx, tx, int64(100)).Return(acct, nil)
	f.repo.On("HasScheduleInTx", ctx, tx, int64(7)).Return(false, nil)
	f.repo.On("InsertScheduleInTx", ctx, tx, int64(7), mock.MatchedBy(func(s []Repayment) bool {
		return len(s) == 6 && s[0].DueAmount == 18000
	})).Return(nil)
	f.ledgerRepo.On("NextDailySequenceInTx", ctx, tx, mock.Anything).Return(int64(42), nil)
	f.ledgerRepo.On("InsertInTx", ctx, tx, mock.MatchedBy(func(txn *ledger.Transaction) bool {
		return txn.Type == ledger.TypeLoanDisbursement && txn.Amount == 100000
	})).Return(&ledger.Transaction{ID: 900, Reference: "TXN-20250401-00042", Type: ledger.TypeLoanDisbursement, Amount: 100000, BalanceAfter: 102500}, nil)
	f.savingsRepo.On("UpdateBalanceInTx", ctx, tx, int64(100), savings.Money(102500)).Return(nil)
	f.creditRepo.On("GetForUpdateInTx", ctx, tx, int64(10)).Return(&credit.Account{ID: 10, UserID: 1, CreditLimit: 1000000, AvailableCredit: 1000000}, nil)
	f.creditRepo.On("UpdateFiguresInTx", ctx, tx, mock.Anything).Return(nil)
	f.repo.On("SetDisbursedInTx", ctx, tx, int64(7), int64(100), mock.Anything).Return(nil)
	f.ledgerRepo.On("MarkCompletedInTx", ctx, tx, int64(900)).Return(nil)

	result, err := f.service.RequestLoan(ctx, 1, 100000, 6, nil)

	require.NoError(t, err)
	assert.Equal(t, StatusDisbursed, result.Status)
	assert.Equal(t, ApprovalAutoApproved, result.ApprovalStatus)
	assert.NotNil(t, result.DisbursedAt)
	f.repo.AssertCalled(t, "InsertScheduleInTx", ctx, tx, int64(7), mock.Anything)
	f.repo.AssertExpectations(t)
	f.ledgerRepo.AssertExpectations(t)
}

func TestRequestLoanInsufficientCredit(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, CreditLimit: 100000, AvailableCredit: 40000}, nil)

	_, err := f.service.RequestLoan(ctx, 1, 50000, 6, nil)

	assert.ErrorIs(t, err, apperrors.ErrInsufficientCredit)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequestLoanRejectsDefaultedHistory(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, AvailableCredit: 1000000}, nil)
	f.repo.On("CountByUserAndStatus", ctx, int64(1), StatusDefaulted).Return(1, nil)

	_, err := f.service.RequestLoan(ctx, 1, 50000, 6, nil)

	assert.ErrorIs(t, err, apperrors.ErrExistingDefaultedLoans)
	f.repo.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRequestLoanUnknownTenor(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, AvailableCredit: 1000000}, nil)
	f.repo.On("CountByUserAndStatus", ctx, int64(1), StatusDefaulted).Return(0, nil)
	f.repo.On("LastDisbursedAccountID", ctx, int64(1)).Return(nil, nil)
	f.savingsRepo.On("ListActiveByUser", ctx, int64(1)).Return([]savings.Account{{ID: 100, UserID: 1, Status: savings.StatusActive}}, nil)

	_, err := f.service.RequestLoan(ctx, 1, 50000, 7, nil)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestRequestLoanExplicitDestinationMustBelongToUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	other := int64(999)

	f.directory.On("GetUser", ctx, int64(1)).Return(verifiedCustomer(700), nil)
	f.creditRepo.On("GetByUserID", ctx, int64(1)).Return(&credit.Account{ID: 10, UserID: 1, AvailableCredit: 1000000}, nil)
	f.repo.On("CountByUserAndStatus", ctx, int64(1), StatusDefaulted).Return(0, nil)
	f.savingsRepo.On("GetByID", ctx, other).Return(&savings.Account{ID: other, UserID: 2, Status: savings.StatusActive}, nil)

	_, err := f.service.RequestLoan(ctx, 1, 50000, 6, &other)

	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestApproveLoanRequiresPendingReview(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(&Loan{ID: 7, Status: StatusApproved, ApprovalStatus: ApprovalAutoApproved}, nil)

	_, err := f.service.ApproveLoan(ctx, 7)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	f.repo.AssertNotCalled(t, "UpdateDecisionInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(&Loan{ID: 7, Status: StatusPending, ApprovalStatus: ApprovalPendingReview}, nil)
	f.repo.On("UpdateDecisionInTx", ctx, tx, int64(7), StatusApproved, ApprovalManualApproved).Return(nil)

	result, err := f.service.ApproveLoan(ctx, 7)

	require.NoError(t, err)
	assert.Equal(t, StatusApproved, result.Status)
	assert.Equal(t, ApprovalManualApproved, result.ApprovalStatus)
	f.repo.AssertExpectations(t)
}

func TestDisburseLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	requestedAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	approved := &Loan{
		ID: 7, UserID: 1, CreditAccountID: 10, SavingsAccountID: 100,
		PrincipalAmount: 100000, TotalAmount: 108000, OutstandingAmount: 108000,
		TenorMonths: 6, InterestRate: 0.08,
		Status: StatusApproved, ApprovalStatus: ApprovalManualApproved,
		RequestedAt: requestedAt,
	}
	acct := &savings.Account{ID: 100, UserID: 1, Balance: 2500, Status: savings.StatusActive, AccountNumber: "SAV-TEST"}

	f.repo.On("GetByID", ctx, int64(7)).Return(approved, nil)
	f.savingsRepo.On("GetByID", ctx, int64(100)).Return(acct, nil)
	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(approved, nil)
	f.savingsRepo.On("GetForUpdateInTx", ctx, tx, int64(100)).Return(acct, nil)
	f.repo.On("HasScheduleInTx", ctx, tx, int64(7)).Return(false, nil)
	f.repo.On("InsertScheduleInTx", ctx, tx, int64(7), mock.MatchedBy(func(s []Repayment) bool {
		return len(s) == 6 && s[0].DueAmount == 18000
	})).Return(nil)
	f.ledgerRepo.On("NextDailySequenceInTx", ctx, tx, mock.Anything).Return(int64(42), nil)
	f.ledgerRepo.On("InsertInTx", ctx, tx, mock.MatchedBy(func(txn *ledger.Transaction) bool {
		return txn.Type == ledger.TypeLoanDisbursement && txn.Amount == 100000 && txn.BalanceAfter == 102500
	})).Return(&ledger.Transaction{ID: 900, Reference: "TXN-20250401-00042", Type: ledger.TypeLoanDisbursement, Amount: 100000, BalanceAfter: 102500}, nil)
	f.savingsRepo.On("UpdateBalanceInTx", ctx, tx, int64(100), savings.Money(102500)).Return(nil)
	f.creditRepo.On("GetForUpdateInTx", ctx, tx, int64(10)).Return(&credit.Account{ID: 10, UserID: 1, CreditLimit: 1000000, AvailableCredit: 1000000}, nil)
	f.creditRepo.On("UpdateFiguresInTx", ctx, tx, mock.MatchedBy(func(a *credit.Account) bool {
		return a.AvailableCredit == 900000 && a.TotalBorrowed == 100000 && a.OutstandingBalance == 100000
	})).Return(nil)
	f.repo.On("SetDisbursedInTx", ctx, tx, int64(7), int64(100), mock.Anything).Return(nil)
	f.ledgerRepo.On("MarkCompletedInTx", ctx, tx, int64(900)).Return(nil)

	result, err := f.service.DisburseLoan(ctx, 7)

	require.NoError(t, err)
	assert.Equal(t, StatusDisbursed, result.Status)
	assert.NotNil(t, result.DisbursedAt)
	f.repo.AssertExpectations(t)
	f.ledgerRepo.AssertExpectations(t)
	f.creditRepo.AssertExpectations(t)
}

func TestDisburseLoanRequiresApproved(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	pending := &Loan{ID: 7, UserID: 1, SavingsAccountID: 100, Status: StatusPending}
	f.repo.On("GetByID", ctx, int64(7)).Return(pending, nil)
	f.savingsRepo.On("GetByID", ctx, int64(100)).Return(&savings.Account{ID: 100, UserID: 1, Status: savings.StatusActive}, nil)
	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(pending, nil)

	_, err := f.service.DisburseLoan(ctx, 7)

	assert.ErrorIs(t, err, apperrors.ErrInvalidState)
	f.ledgerRepo.AssertNotCalled(t, "InsertInTx", mock.Anything, mock.Anything, mock.Anything)
}

func TestRepayLoanPartialInstallment(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	active := &Loan{
		ID: 7, UserID: 1, CreditAccountID: 10, SavingsAccountID: 100,
		TotalAmount: 108000, OutstandingAmount: 108000, Status: StatusActive,
	}
	installment := &Repayment{ID: 50, LoanID: 7, ScheduleNumber: 1, DueAmount: 18000, Status: RepaymentScheduled}

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(active, nil)
	f.repo.On("FindNextPayableInTx", ctx, tx, int64(7)).Return(installment, nil)
	f.savingsRepo.On("GetForUpdateInTx", ctx, tx, int64(100)).Return(&savings.Account{ID: 100, UserID: 1, Balance: 50000, Status: savings.StatusActive}, nil)
	f.savingsRepo.On("UpdateBalanceInTx", ctx, tx, int64(100), savings.Money(40000)).Return(nil)
	f.ledgerRepo.On("NextDailySequenceInTx", ctx, tx, mock.Anything).Return(int64(3), nil)
	f.ledgerRepo.On("InsertInTx", ctx, tx, mock.MatchedBy(func(txn *ledger.Transaction) bool {
		return txn.Type == ledger.TypeLoanRepayment && txn.Amount == 10000 && txn.BalanceBefore == 50000 && txn.BalanceAfter == 40000
	})).Return(&ledger.Transaction{ID: 901, Reference: "TXN-20250501-00003", Type: ledger.TypeLoanRepayment, Amount: 10000}, nil)
	f.repo.On("UpdateRepaymentInTx", ctx, tx, mock.MatchedBy(func(r *Repayment) bool {
		return r.AmountPaid == 10000 && r.Status == RepaymentPartiallyPaid && r.PaidAt == nil
	})).Return(nil)
	f.repo.On("UpdateAfterRepaymentInTx", ctx, tx, int64(7), Money(98000), StatusActive).Return(nil)
	f.creditRepo.On("GetForUpdateInTx", ctx, tx, int64(10)).Return(&credit.Account{ID: 10, CreditLimit: 1000000, AvailableCredit: 892000, TotalBorrowed: 108000, OutstandingBalance: 108000}, nil)
	f.creditRepo.On("UpdateFiguresInTx", ctx, tx, mock.MatchedBy(func(a *credit.Account) bool {
		return a.AvailableCredit == 902000 && a.TotalRepaid == 10000 && a.OutstandingBalance == 98000
	})).Return(nil)
	f.ledgerRepo.On("MarkCompletedInTx", ctx, tx, int64(901)).Return(nil)

	result, err := f.service.RepayLoan(ctx, 7, 10000)

	require.NoError(t, err)
	assert.Equal(t, StatusActive, result.Loan.Status)
	assert.Equal(t, Money(98000), result.Loan.OutstandingAmount)
	assert.Equal(t, RepaymentPartiallyPaid, result.Installment.Status)
	f.repo.AssertExpectations(t)
}

func TestRepayLoanFinalPaymentClosesLoan(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	active := &Loan{
		ID: 7, UserID: 1, CreditAccountID: 10, SavingsAccountID: 100,
		TotalAmount: 108000, OutstandingAmount: 18000, Status: StatusActive,
	}
	installment := &Repayment{ID: 55, LoanID: 7, ScheduleNumber: 6, DueAmount: 18000, Status: RepaymentScheduled}

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(active, nil)
	f.repo.On("FindNextPayableInTx", ctx, tx, int64(7)).Return(installment, nil)
	f.savingsRepo.On("GetForUpdateInTx", ctx, tx, int64(100)).Return(&savings.Account{ID: 100, UserID: 1, Balance: 20000, Status: savings.StatusActive}, nil)
	f.savingsRepo.On("UpdateBalanceInTx", ctx, tx, int64(100), savings.Money(2000)).Return(nil)
	f.ledgerRepo.On("NextDailySequenceInTx", ctx, tx, mock.Anything).Return(int64(4), nil)
	f.ledgerRepo.On("InsertInTx", ctx, tx, mock.Anything).Return(&ledger.Transaction{ID: 902, Reference: "TXN-20250901-00004", Type: ledger.TypeLoanRepayment, Amount: 18000}, nil)
	f.repo.On("UpdateRepaymentInTx", ctx, tx, mock.MatchedBy(func(r *Repayment) bool {
		return r.Status == RepaymentPaid && r.PaidAt != nil
	})).Return(nil)
	f.repo.On("UpdateAfterRepaymentInTx", ctx, tx, int64(7), Money(0), StatusFullyPaid).Return(nil)
	f.creditRepo.On("GetForUpdateInTx", ctx, tx, int64(10)).Return(&credit.Account{ID: 10, CreditLimit: 1000000, AvailableCredit: 982000, TotalBorrowed: 108000, TotalRepaid: 90000, OutstandingBalance: 18000}, nil)
	f.creditRepo.On("UpdateFiguresInTx", ctx, tx, mock.Anything).Return(nil)
	f.ledgerRepo.On("MarkCompletedInTx", ctx, tx, int64(902)).Return(nil)

	result, err := f.service.RepayLoan(ctx, 7, 18000)

	require.NoError(t, err)
	assert.Equal(t, StatusFullyPaid, result.Loan.Status)
	assert.Equal(t, Money(0), result.Loan.OutstandingAmount)
	f.repo.AssertExpectations(t)
}

func TestRepayLoanAmountExceedsOutstanding(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(&Loan{ID: 7, Status: StatusActive, OutstandingAmount: 5000}, nil)

	_, err := f.service.RepayLoan(ctx, 7, 5000.01)

	assert.ErrorIs(t, err, apperrors.ErrAmountExceedsOutstanding)
	f.savingsRepo.AssertNotCalled(t, "UpdateBalanceInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRepayLoanInsufficientBalanceRollsBack(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.repo.On("GetForUpdateInTx", ctx, tx, int64(7)).Return(&Loan{
		ID: 7, UserID: 1, CreditAccountID: 10, SavingsAccountID: 100,
		OutstandingAmount: 18000, Status: StatusActive,
	}, nil)
	f.repo.On("FindNextPayableInTx", ctx, tx, int64(7)).Return(&Repayment{ID: 50, LoanID: 7, ScheduleNumber: 1, DueAmount: 18000}, nil)
	f.savingsRepo.On("GetForUpdateInTx", ctx, tx, int64(100)).Return(&savings.Account{ID: 100, UserID: 1, Balance: 100, Status: savings.StatusActive}, nil)

	_, err := f.service.RepayLoan(ctx, 7, 18000)

	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
	f.repo.AssertNotCalled(t, "UpdateAfterRepaymentInTx", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestGetLoanAttachesSchedule(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	f.repo.On("GetByID", ctx, int64(7)).Return(&Loan{ID: 7, Status: StatusActive}, nil)
	f.repo.On("GetSchedule", ctx, int64(7)).Return([]Repayment{{ScheduleNumber: 1}, {ScheduleNumber: 2}}, nil)

	result, err := f.service.GetLoan(ctx, 7)

	require.NoError(t, err)
	assert.Len(t, result.Schedule, 2)
}
