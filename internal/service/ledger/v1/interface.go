package ledger

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
)

type Ledger interface {
	Credit(ctx context.Context, req modeldto.CreditRequest) (*modeldto.CreditResult, error)
}
