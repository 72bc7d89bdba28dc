package commission

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	"github.com/shopspring/decimal"
)

type Distributor interface {
	Apply(ctx context.Context, tx storage.Tx, depositID, depositorID, referrerID int64, amount decimal.Decimal) error
	Retry(ctx context.Context, entry modelstorage.CommissionEntry) error
}
