package savings

import (
	"banking-engine/internal/domain/ledger"
	"banking-engine/internal/pkg/apperrors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Money = ledger.Money

type AccountStatus string

const (
	StatusActive AccountStatus = "ACTIVE"
	StatusFrozen AccountStatus = "FROZEN"
	StatusClosed AccountStatus = "CLOSED"
)

type Tier string

const (
	TierBasic    Tier = "BASIC"
	TierSilver   Tier = "SILVER"
	TierGold     Tier = "GOLD"
	TierPlatinum Tier = "PLATINUM"
)

// TierLimit holds the ceilings and interest rate one tier grants. The table
// itself is produced by an external batch process and injected at
// construction; this engine only reads it.
type TierLimit struct {
	DailyDepositLimit      Money
	DailyWithdrawalLimit   Money
	MonthlyWithdrawalLimit Money
	InterestRate           float64
}

type TierTable map[Tier]TierLimit

func (t TierTable) Limits(tier Tier) (TierLimit, error) {
	limit, ok := t[tier]
	if !ok {
		return TierLimit{}, fmt.Errorf("%w: no limits configured for tier %q", apperrors.ErrInternalServer, tier)
	}
	return limit, nil
}

type Account struct {
	ID            int64
	UserID        int64
	AccountNumber string
	Balance       Money
	Tier          Tier
	Status        AccountStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func NewAccount(userID int64, tier Tier) (*Account, error) {
	if userID <= 0 {
		return nil, fmt.Errorf("%w: user id is required", apperrors.ErrInvalidArgument)
	}
	if tier == "" {
		tier = TierBasic
	}
	return &Account{
		UserID:        userID,
		AccountNumber: newAccountNumber(),
		Balance:       0,
		Tier:          tier,
		Status:        StatusActive,
	}, nil
}

func (a *Account) IsActive() bool {
	return a.Status == StatusActive
}

func newAccountNumber() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "SAV-" + strings.ToUpper(raw[:12])
}
