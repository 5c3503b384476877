package credit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateCreditLimit(t *testing.T) {
	tests := []struct {
		name    string
		balance Money
		avgTxns Money
		want    Money
	}{
		{"formula inside bounds", 500000, 100000, 1300000},
		{"clamped to floor", 1000, 500, 50000},
		{"clamped to ceiling", 6000000, 1000000, 10000000},
		{"zero inputs hit floor", 0, 0, 50000},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateCreditLimit(tt.balance, tt.avgTxns, 50000, 10000000)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApplyMovementKeepsInvariant(t *testing.T) {
	acct, err := NewAccount(1, 100000, 50000, 10000000)
	require.NoError(t, err)

	acct.ApplyMovement(60000, true)
	assert.Equal(t, Money(40000), acct.AvailableCredit)
	assert.Equal(t, Money(60000), acct.TotalBorrowed)
	assert.Equal(t, Money(60000), acct.OutstandingBalance)

	acct.ApplyMovement(25000, false)
	assert.Equal(t, Money(65000), acct.AvailableCredit)
	assert.Equal(t, Money(25000), acct.TotalRepaid)
	assert.Equal(t, Money(35000), acct.OutstandingBalance)

	// availableCredit == creditLimit - (totalBorrowed - totalRepaid)
	assert.Equal(t, acct.CreditLimit-(acct.TotalBorrowed-acct.TotalRepaid), acct.AvailableCredit)
	assert.Equal(t, acct.Borrowed(), acct.OutstandingBalance)
}

func TestNewAccountClampsInitialLimit(t *testing.T) {
	acct, err := NewAccount(1, 10, 50000, 10000000)
	require.NoError(t, err)

	assert.Equal(t, Money(50000), acct.CreditLimit)
	assert.Equal(t, Money(50000), acct.AvailableCredit)
	assert.Equal(t, StatusActive, acct.Status)
}
