package handler

import (
	"banking-engine/internal/api/handler/dto"
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/domain/savings"
	"banking-engine/internal/pkg/apperrors"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type MockSavingsService struct {
	mock.Mock
}

func (m *MockSavingsService) OpenAccount(ctx context.Context, userID int64, tier savings.Tier) (*savings.Account, error) {
	args := m.Called(ctx, userID, tier)
	if acct, ok := args.Get(0).(*savings.Account); ok {
		return acct, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSavingsService) GetAccount(ctx context.Context, accountID int64) (*savings.Account, error) {
	args := m.Called(ctx, accountID)
	if acct, ok := args.Get(0).(*savings.Account); ok {
		return acct, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSavingsService) GetBalance(ctx context.Context, accountID int64) (savings.Money, error) {
	args := m.Called(ctx, accountID)
	return args.Get(0).(savings.Money), args.Error(1)
}

func (m *MockSavingsService) Deposit(ctx context.Context, accountID int64, amount savings.Money) (*ledger.Transaction, error) {
	args := m.Called(ctx, accountID, amount)
	if txn, ok := args.Get(0).(*ledger.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSavingsService) Withdraw(ctx context.Context, accountID int64, amount savings.Money) (*ledger.Transaction, error) {
	args := m.Called(ctx, accountID, amount)
	if txn, ok := args.Get(0).(*ledger.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSavingsService) CloseAccount(ctx context.Context, accountID int64) error {
	args := m.Called(ctx, accountID)
	return args.Error(0)
}

type MockLedgerService struct {
	mock.Mock
}

func (m *MockLedgerService) CreateTransaction(ctx context.Context, userID int64, accountID *int64, typ ledger.TransactionType, amount ledger.Money, description string, metadata map[string]string) (*ledger.Transaction, error) {
	args := m.Called(ctx, userID, accountID, typ, amount, description, metadata)
	if txn, ok := args.Get(0).(*ledger.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerService) CompleteTransaction(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLedgerService) FailTransaction(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockLedgerService) GetTransaction(ctx context.Context, id int64) (*ledger.Transaction, error) {
	args := m.Called(ctx, id)
	if txn, ok := args.Get(0).(*ledger.Transaction); ok {
		return txn, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockLedgerService) GetDailyTransactionTotal(ctx context.Context, accountID int64, typ ledger.TransactionType) (ledger.Money, error) {
	args := m.Called(ctx, accountID, typ)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *MockLedgerService) GetMonthlyTransactionTotal(ctx context.Context, accountID int64, typ ledger.TransactionType) (ledger.Money, error) {
	args := m.Called(ctx, accountID, typ)
	return args.Get(0).(ledger.Money), args.Error(1)
}

func (m *MockLedgerService) GetStatement(ctx context.Context, accountID int64, limit int) ([]ledger.Transaction, error) {
	args := m.Called(ctx, accountID, limit)
	if entries, ok := args.Get(0).([]ledger.Transaction); ok {
		return entries, args.Error(1)
	}
	return nil, args.Error(1)
}

func TestAccountHandlerOpenAccount(t *testing.T) {
	t.Run("opens an account at the requested tier", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		created := &savings.Account{
			ID:            1,
			UserID:        42,
			AccountNumber: "SAV-1693526400000042",
			Tier:          savings.TierGold,
			Status:        savings.StatusActive,
		}
		mockSavings.On("OpenAccount", mock.Anything, int64(42), savings.TierGold).Return(created, nil)

		body := `{"userId":42,"tier":"GOLD"}`
		req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.OpenAccount(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.AccountResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "GOLD", resp.Tier)
		assert.Equal(t, "0.00", resp.Balance)
		mockSavings.AssertExpectations(t)
	})

	t.Run("rejects a missing user", func(t *testing.T) {
		handler := NewAccountHandler(new(MockSavingsService), new(MockLedgerService), testLogger())

		body := `{"tier":"GOLD"}`
		req := httptest.NewRequest(http.MethodPost, "/accounts", strings.NewReader(body))
		rec := httptest.NewRecorder()

		handler.OpenAccount(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestAccountHandlerDeposit(t *testing.T) {
	t.Run("returns the completed ledger entry", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		txn := &ledger.Transaction{
			ID:            3,
			Reference:     "TXN-20250601-00001",
			Type:          ledger.TypeDeposit,
			Amount:        500,
			BalanceBefore: 100,
			BalanceAfter:  600,
			Status:        ledger.StatusCompleted,
		}
		mockSavings.On("Deposit", mock.Anything, int64(1), 500.0).Return(txn, nil)

		body := `{"amount":"500"}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/accounts/1/deposits", strings.NewReader(body)), "accountID", "1")
		rec := httptest.NewRecorder()

		handler.Deposit(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		var resp dto.TransactionResponse
		assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Equal(t, "TXN-20250601-00001", resp.Reference)
		assert.Equal(t, "600.00", resp.BalanceAfter)
	})

	t.Run("maps a tier ceiling breach to 422", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		mockSavings.On("Deposit", mock.Anything, int64(1), 500.0).
			Return(nil, fmt.Errorf("%w: daily deposit ceiling", apperrors.ErrLimitExceeded))

		body := `{"amount":"500"}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/accounts/1/deposits", strings.NewReader(body)), "accountID", "1")
		rec := httptest.NewRecorder()

		handler.Deposit(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestAccountHandlerWithdraw(t *testing.T) {
	t.Run("maps insufficient balance to 422", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		mockSavings.On("Withdraw", mock.Anything, int64(1), 500.0).
			Return(nil, fmt.Errorf("%w: balance 100.00 is below requested 500.00", apperrors.ErrInsufficientBalance))

		body := `{"amount":"500"}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/accounts/1/withdrawals", strings.NewReader(body)), "accountID", "1")
		rec := httptest.NewRecorder()

		handler.Withdraw(rec, req)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("rejects a zero amount before touching the service", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		body := `{"amount":"0"}`
		req := withURLParam(httptest.NewRequest(http.MethodPost, "/accounts/1/withdrawals", strings.NewReader(body)), "accountID", "1")
		rec := httptest.NewRecorder()

		handler.Withdraw(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		mockSavings.AssertNotCalled(t, "Withdraw", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestAccountHandlerGetBalance(t *testing.T) {
	mockSavings := new(MockSavingsService)
	handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

	mockSavings.On("GetBalance", mock.Anything, int64(1)).Return(savings.Money(1234.5), nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/accounts/1/balance", nil), "accountID", "1")
	rec := httptest.NewRecorder()

	handler.GetBalance(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp dto.BalanceResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "1234.50", resp.Balance)
}

func TestAccountHandlerCloseAccount(t *testing.T) {
	t.Run("maps active loans to 409", func(t *testing.T) {
		mockSavings := new(MockSavingsService)
		handler := NewAccountHandler(mockSavings, new(MockLedgerService), testLogger())

		mockSavings.On("CloseAccount", mock.Anything, int64(1)).
			Return(fmt.Errorf("%w: account 1 has 2 active loans against it", apperrors.ErrConflict))

		req := withURLParam(httptest.NewRequest(http.MethodDelete, "/accounts/1", nil), "accountID", "1")
		rec := httptest.NewRecorder()

		handler.CloseAccount(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})
}

func TestAccountHandlerGetStatement(t *testing.T) {
	mockSavings := new(MockSavingsService)
	mockLedger := new(MockLedgerService)
	handler := NewAccountHandler(mockSavings, mockLedger, testLogger())

	mockSavings.On("GetAccount", mock.Anything, int64(1)).Return(&savings.Account{ID: 1}, nil)
	entries := []ledger.Transaction{
		{ID: 2, Reference: "TXN-20250602-00001", Type: ledger.TypeWithdrawal, Amount: 50},
		{ID: 1, Reference: "TXN-20250601-00001", Type: ledger.TypeDeposit, Amount: 100},
	}
	mockLedger.On("GetStatement", mock.Anything, int64(1), 10).Return(entries, nil)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/accounts/1/transactions?limit=10", nil), "accountID", "1")
	rec := httptest.NewRecorder()

	handler.GetStatement(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	var resp []dto.TransactionResponse
	assert.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Len(t, resp, 2)
	assert.Equal(t, "TXN-20250602-00001", resp[0].Reference)
}
