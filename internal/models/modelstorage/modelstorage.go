// Package modelstorage provides types for querying relational DB.

package modelstorage

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepositEntry is one row of the append-only deposits ledger.
type DepositEntry struct {
	ID          int64           `db:"id"`
	UserID      int64           `db:"user_id"`
	Login       string          `db:"login"`
	Amount      decimal.Decimal `db:"amount"`
	Bonus       decimal.Decimal `db:"bonus"`
	Provider    string          `db:"provider"`
	OperationID string          `db:"operation_id"`
	CreatedAt   time.Time       `db:"created_at"`
	ProcessedAt time.Time       `db:"processed_at"`
}

type BonusTierEntry struct {
	ID         int64               `db:"id"`
	Position   int                 `db:"position"`
	AmountMin  decimal.Decimal     `db:"amount_min"`
	AmountMax  decimal.NullDecimal `db:"amount_max"`
	Multiplier decimal.Decimal     `db:"multiplier"`
}

// CommissionEntry is a referral commission owed for one deposit.
// Amount is the commission itself, DepositAmount the deposit it derives from.
type CommissionEntry struct {
	DepositID     int64           `db:"deposit_id"`
	DepositorID   int64           `db:"depositor_id"`
	ReferrerID    int64           `db:"referrer_id"`
	DepositAmount decimal.Decimal `db:"deposit_amount"`
	Amount        decimal.Decimal `db:"amount"`
}

type WalletEntry struct {
	UserID    int64     `db:"user_id"`
	Kind      string    `db:"kind"`
	Address   string    `db:"address"`
	CreatedAt time.Time `db:"created_at"`
}

// InvoiceEntry is a pending FreeKassa order created before redirecting the user.
type InvoiceEntry struct {
	ID        int64           `db:"id"`
	UserID    int64           `db:"user_id"`
	Login     string          `db:"login"`
	Amount    decimal.Decimal `db:"amount"`
	CreatedAt time.Time       `db:"created_at"`
}

// UserEntry is the balance-bearing part of an account owned by the account system.
// A zero ReferrerID means the user has no referrer.
type UserEntry struct {
	ID                int64           `db:"id"`
	Login             string          `db:"login"`
	ReferrerID        int64           `db:"referrer_id"`
	DepositedTotal    decimal.Decimal `db:"deposited_total"`
	BonusBalance      decimal.Decimal `db:"bonus_balance"`
	CommissionBalance decimal.Decimal `db:"commission_balance"`
	ReferralEarned    decimal.Decimal `db:"referral_earned"`
	ReferralGenerated decimal.Decimal `db:"referral_generated"`
}
