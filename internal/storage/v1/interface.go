package storage

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/shopspring/decimal"
)

// Tx is a unit of work opened by Ledger.WithinTx. Every call shares one database transaction.
type Tx interface {
	InsertDeposit(ctx context.Context, entry modelstorage.DepositEntry) (int64, error)
	ReferrerOf(ctx context.Context, userID int64) (int64, bool, error)
	CreditUser(ctx context.Context, userID int64, amount, total decimal.Decimal) error
	AddDepositStats(ctx context.Context, amount decimal.Decimal) error
	InsertCommission(ctx context.Context, entry modelstorage.CommissionEntry) (bool, error)
	CreditReferrer(ctx context.Context, referrerID int64, commission decimal.Decimal) error
	AddReferralGenerated(ctx context.Context, depositorID int64, commission decimal.Decimal) error
	Savepoint(ctx context.Context, fn func() error) error
}

type Ledger interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	PendingCommissions(ctx context.Context, limit int) ([]modelstorage.CommissionEntry, error)
}

type Tiers interface {
	ListBonusTiers(ctx context.Context) ([]modelstorage.BonusTierEntry, error)
}

type Invoices interface {
	CreateInvoice(ctx context.Context, entry modelstorage.InvoiceEntry) (int64, error)
	GetInvoice(ctx context.Context, id int64) (*modelstorage.InvoiceEntry, error)
}

type Wallets interface {
	BindWallet(ctx context.Context, entry modelstorage.WalletEntry) error
	ListWallets(ctx context.Context, userID int64) ([]modelstorage.WalletEntry, error)
}

type Deposits interface {
	ListDeposits(ctx context.Context, userID int64) ([]modelstorage.DepositEntry, error)
}

type Storage interface {
	Ledger
	Tiers
	Invoices
	Wallets
	Deposits
	Ping(ctx context.Context) error
}
