// Package verifier confirms Payeer transfers against the merchant account history.
package verifier

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/client"
	"github.com/danilovkiri/dk-go-fastcore/internal/logger"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelpayeer"
	verifierErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/verifier/v1/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	statusExecute   = "execute"
	typeTransfer    = "transfer"
	protectDisabled = "N"
	dateLayout      = "2006-01-02 15:04:05"
)

// providerZone is the local time of Payeer history timestamps.
var providerZone = time.FixedZone("MSK", 3*60*60)

// HistoryClient retrieves a single operation from the merchant history.
type HistoryClient interface {
	GetHistoryInfo(ctx context.Context, creds modelpayeer.Credentials, historyID string) (*modelpayeer.HistoryInfoResponse, error)
}

// Verifier defines attributes of a struct available to its methods.
type Verifier struct {
	client HistoryClient
	log    *zerolog.Logger
}

// NewVerifier initializes a transaction verifier.
func NewVerifier(c HistoryClient, log *zerolog.Logger) *Verifier {
	return &Verifier{client: c, log: log}
}

// Verify fetches the operation and checks recipient, status, type, protection and
// currency in that order. It performs no crediting.
func (v *Verifier) Verify(ctx context.Context, creds modelpayeer.Credentials, externalID string) (*modeldto.VerifiedTransaction, error) {
	log := logger.FromContext(ctx, v.log)
	reject := func(reason verifierErrors.Reason, err error) error {
		return &verifierErrors.RejectionError{Reason: reason, ID: externalID, Err: err}
	}

	response, err := v.client.GetHistoryInfo(ctx, creds, externalID)
	if err != nil {
		var authError *client.AuthError
		if errors.As(err, &authError) {
			log.Error().Err(err).Str("operation", externalID).Msg("payeer api refused merchant access")
			return nil, reject(verifierErrors.AuthFailure, err)
		}
		var unavailableError *client.UnavailableError
		if !errors.As(err, &unavailableError) {
			log.Error().Err(err).Str("operation", externalID).Msg("unexpected gateway reply")
		}
		return nil, reject(verifierErrors.GatewayUnavailable, err)
	}
	if !response.Authorized() {
		log.Error().Str("operation", externalID).Msg("payeer api rejected merchant credentials")
		return nil, reject(verifierErrors.AuthFailure, nil)
	}
	if response.HasErrors() {
		return nil, reject(verifierErrors.NotFound, nil)
	}
	info, err := response.Operation()
	if err != nil {
		return nil, reject(verifierErrors.NotFound, err)
	}
	if info == nil {
		return nil, reject(verifierErrors.NotFound, nil)
	}

	switch {
	case !strings.EqualFold(strings.TrimSpace(info.To), creds.Account):
		return nil, reject(verifierErrors.WrongRecipient, nil)
	case info.Status != statusExecute:
		return nil, reject(verifierErrors.NotExecuted, nil)
	case info.Type != typeTransfer:
		return nil, reject(verifierErrors.WrongType, nil)
	case info.Protect != protectDisabled:
		return nil, reject(verifierErrors.ProtectedTransfer, nil)
	case info.CurOut != creds.Currency:
		return nil, reject(verifierErrors.WrongCurrency, nil)
	}

	amount, err := decimal.NewFromString(info.SumOut.String())
	if err != nil {
		return nil, reject(verifierErrors.InvalidAmount, err)
	}
	if !amount.IsPositive() {
		return nil, reject(verifierErrors.InvalidAmount, nil)
	}

	originTime, err := time.ParseInLocation(dateLayout, info.DateCreate, providerZone)
	if err != nil {
		log.Warn().Err(err).Str("operation", externalID).Msg("unparsable operation date, using local time")
		originTime = time.Now()
	}
	return &modeldto.VerifiedTransaction{
		ExternalID: externalID,
		Amount:     amount,
		OriginTime: originTime.UTC(),
	}, nil
}
