package processor

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/shopspring/decimal"
)

// Processor defines the deposit intake operations served over HTTP.
type Processor interface {
	DepositPayeer(ctx context.Context, user modeldto.User, txn string) *modeldto.DepositResult
	CreateFreeKassaInvoice(ctx context.Context, user modeldto.User, sum decimal.Decimal) (*modeldto.FreeKassaForm, error)
	HandleFreeKassaCallback(ctx context.Context, cb modeldto.FreeKassaCallback) (*modeldto.DepositResult, error)
	BonusPreview(ctx context.Context, sum decimal.Decimal) (*modeldto.BonusPreview, error)
	ListDeposits(ctx context.Context, user modeldto.User) ([]modeldto.Deposit, error)
	BindWallet(ctx context.Context, user modeldto.User, req modeldto.WalletBindRequest) (*modeldto.Wallet, error)
	ListWallets(ctx context.Context, user modeldto.User) ([]modeldto.Wallet, error)
	Ping(ctx context.Context) error
}
