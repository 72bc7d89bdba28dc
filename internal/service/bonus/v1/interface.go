package bonus

import (
	"context"

	"github.com/shopspring/decimal"
)

type Resolver interface {
	Resolve(ctx context.Context, amount decimal.Decimal) (multiplier, bonus decimal.Decimal, err error)
}
