package verifier

import (
	"context"

	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelpayeer"
)

type Verifier interface {
	Verify(ctx context.Context, creds modelpayeer.Credentials, externalID string) (*modeldto.VerifiedTransaction, error)
}
