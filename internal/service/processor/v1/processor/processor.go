// Package processor drives deposit attempts from the authenticated user or the provider callback
// through verification and crediting.
package processor

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/logger"
	"github.com/danilovkiri/dk-go-fastcore/internal/metrics"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelpayeer"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/bonus/v1"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/ledger/v1"
	serviceErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1/errors"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/purse/v1/purse"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/signer/v1/signer"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/verifier/v1"
	verifierErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/verifier/v1/errors"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	ProviderPayeer    = "payeer"
	ProviderFreeKassa = "freekassa"
)

var (
	minInvoiceSum = decimal.NewFromInt(1)
	maxInvoiceSum = decimal.NewFromInt(15000)
)

var messages = map[modeldto.DepositStatus]string{
	modeldto.StatusSuccess:            "Deposit credited",
	modeldto.StatusAlreadyProcessed:   "This transaction has already been credited",
	modeldto.StatusInvalidTransaction: "Transaction not found or not eligible for deposit",
	modeldto.StatusWrongCurrency:      "Transaction currency is not accepted",
	modeldto.StatusProtectedTransfer:  "Protected transfers are not accepted",
	modeldto.StatusGatewayError:       "Payment provider is unavailable, try again later",
	modeldto.StatusInternalError:      "Deposit could not be processed, try again later",
}

// Processor defines attributes of a struct available to its methods.
type Processor struct {
	storage   storage.Storage
	verifier  verifier.Verifier
	bonus     bonus.Resolver
	ledger    ledger.Ledger
	payeer    *config.PayeerConfig
	freeKassa *config.FreeKassaConfig
	log       *zerolog.Logger
}

// InitService initializes a deposit processor.
func InitService(st storage.Storage, ver verifier.Verifier, res bonus.Resolver, led ledger.Ledger, cfg *config.Config, log *zerolog.Logger) (*Processor, error) {
	if st == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil storage was passed to service initializer"}
	}
	if ver == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil verifier was passed to service initializer"}
	}
	if res == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil bonus resolver was passed to service initializer"}
	}
	if led == nil {
		return nil, &serviceErrors.ServiceFoundNilArgument{Msg: "nil ledger was passed to service initializer"}
	}
	return &Processor{
		storage:   st,
		verifier:  ver,
		bonus:     res,
		ledger:    led,
		payeer:    cfg.PayeerConfig,
		freeKassa: cfg.FreeKassaConfig,
		log:       log,
	}, nil
}

// attempt tracks one deposit attempt through its states; nothing leaves a terminal state.
type attempt struct {
	state modeldto.AttemptState
	log   zerolog.Logger
}

func (proc *Processor) newAttempt(ctx context.Context, provider, externalID string, userID int64) *attempt {
	a := &attempt{
		state: modeldto.StateSubmitted,
		log:   logger.FromContext(ctx, proc.log).With().Str("provider", provider).Str("operation", externalID).Int64("user", userID).Logger(),
	}
	a.log.Debug().Str("state", string(a.state)).Msg("deposit attempt submitted")
	return a
}

func (a *attempt) to(next modeldto.AttemptState) {
	if a.state.Terminal() {
		a.log.Warn().Str("state", string(a.state)).Str("next", string(next)).Msg("transition from terminal state ignored")
		return
	}
	a.state = next
	a.log.Debug().Str("state", string(next)).Msg("deposit attempt state changed")
}

func result(status modeldto.DepositStatus) *modeldto.DepositResult {
	return &modeldto.DepositResult{Status: status, Message: messages[status]}
}

func creditedResult(res *modeldto.CreditResult) *modeldto.DepositResult {
	if res.Status == modeldto.CreditStatusAlreadyProcessed {
		return result(modeldto.StatusAlreadyProcessed)
	}
	out := result(modeldto.StatusSuccess)
	out.DepositID = res.DepositID
	out.Amount = &res.Amount
	out.Bonus = &res.Bonus
	return out
}

func rejectionStatus(reason verifierErrors.Reason) modeldto.DepositStatus {
	switch reason {
	case verifierErrors.WrongCurrency:
		return modeldto.StatusWrongCurrency
	case verifierErrors.ProtectedTransfer:
		return modeldto.StatusProtectedTransfer
	case verifierErrors.GatewayUnavailable, verifierErrors.AuthFailure:
		return modeldto.StatusGatewayError
	default:
		return modeldto.StatusInvalidTransaction
	}
}

func isNumeric(s string) bool {
	if s == "" || len(s) > 20 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// DepositPayeer verifies a Payeer transfer submitted by the user and credits it once.
func (proc *Processor) DepositPayeer(ctx context.Context, user modeldto.User, txn string) (out *modeldto.DepositResult) {
	a := proc.newAttempt(ctx, ProviderPayeer, txn, user.ID)
	defer func() {
		metrics.RecordDeposit(ProviderPayeer, string(out.Status))
	}()

	if !isNumeric(txn) {
		a.to(modeldto.StateRejected)
		return result(modeldto.StatusInvalidTransaction)
	}

	a.to(modeldto.StateVerifying)
	creds := modelpayeer.Credentials{
		Account:  proc.payeer.Wallet,
		APIID:    proc.payeer.APIID,
		APIKey:   proc.payeer.APIKey,
		Currency: proc.payeer.Currency,
	}
	verified, err := proc.verifier.Verify(ctx, creds, txn)
	if err != nil {
		a.to(modeldto.StateRejected)
		var rejectionError *verifierErrors.RejectionError
		if errors.As(err, &rejectionError) {
			a.log.Info().Str("reason", string(rejectionError.Reason)).Bool("retriable", rejectionError.Retriable()).Msg("transaction rejected")
			return result(rejectionStatus(rejectionError.Reason))
		}
		a.log.Error().Err(err).Msg("transaction verification failed")
		return result(modeldto.StatusGatewayError)
	}
	a.to(modeldto.StateVerified)

	a.to(modeldto.StateCrediting)
	res, err := proc.ledger.Credit(ctx, modeldto.CreditRequest{
		UserID:      user.ID,
		Login:       user.Login,
		Provider:    ProviderPayeer,
		OperationID: verified.ExternalID,
		Amount:      verified.Amount,
		OriginTime:  verified.OriginTime,
	})
	if err != nil {
		a.to(modeldto.StateFailed)
		return result(modeldto.StatusInternalError)
	}
	if res.Status == modeldto.CreditStatusAlreadyProcessed {
		a.to(modeldto.StateAlreadyProcessed)
	} else {
		a.to(modeldto.StateCredited)
	}
	return creditedResult(res)
}

// CreateFreeKassaInvoice records a pending order and returns the signed payment form parameters.
func (proc *Processor) CreateFreeKassaInvoice(ctx context.Context, user modeldto.User, sum decimal.Decimal) (*modeldto.FreeKassaForm, error) {
	amount := sum.Round(2)
	if amount.LessThan(minInvoiceSum) || amount.GreaterThan(maxInvoiceSum) {
		return nil, &serviceErrors.ValidationError{Field: "sum", Msg: "must be between 1 and 15000"}
	}
	id, err := proc.storage.CreateInvoice(ctx, modelstorage.InvoiceEntry{
		UserID:    user.ID,
		Login:     user.Login,
		Amount:    amount,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		logger.FromContext(ctx, proc.log).Error().Err(err).Int64("user", user.ID).Msg("invoice creation failed")
		return nil, err
	}
	orderID := strconv.FormatInt(id, 10)
	oa := amount.String()
	return &modeldto.FreeKassaForm{
		URL: proc.freeKassa.URL,
		Params: map[string]string{
			"m":     proc.freeKassa.MerchantID,
			"oa":    oa,
			"o":     orderID,
			"s":     signer.Sign(proc.freeKassa.MerchantID, oa, proc.freeKassa.FormKey, orderID),
			"us_id": strconv.FormatInt(user.ID, 10),
		},
	}, nil
}

// HandleFreeKassaCallback authenticates a provider notification, matches it to its invoice and credits it once.
func (proc *Processor) HandleFreeKassaCallback(ctx context.Context, cb modeldto.FreeKassaCallback) (*modeldto.DepositResult, error) {
	a := proc.newAttempt(ctx, ProviderFreeKassa, cb.OrderID, 0)
	a.to(modeldto.StateVerifying)

	if cb.MerchantID != proc.freeKassa.MerchantID {
		a.to(modeldto.StateRejected)
		metrics.RecordDeposit(ProviderFreeKassa, string(modeldto.StatusInvalidTransaction))
		return nil, &serviceErrors.ValidationError{Field: "MERCHANT_ID", Msg: "unknown merchant"}
	}
	if !signer.Verify(cb.MerchantID, cb.Amount, cb.OrderID, proc.freeKassa.NotifyKey, cb.Sign) {
		a.to(modeldto.StateRejected)
		a.log.Warn().Msg("callback signature mismatch")
		metrics.RecordDeposit(ProviderFreeKassa, string(modeldto.StatusInvalidTransaction))
		return nil, &serviceErrors.ValidationError{Field: "SIGN", Msg: "signature mismatch"}
	}
	invoice, err := proc.matchInvoice(ctx, cb)
	if err != nil {
		a.to(modeldto.StateRejected)
		var mismatch *serviceErrors.InvoiceMismatchError
		if errors.As(err, &mismatch) {
			a.log.Warn().Err(err).Msg("callback does not match invoice")
			metrics.RecordDeposit(ProviderFreeKassa, string(modeldto.StatusInvalidTransaction))
		} else {
			metrics.RecordDeposit(ProviderFreeKassa, string(modeldto.StatusInternalError))
		}
		return nil, err
	}
	a.to(modeldto.StateVerified)

	a.to(modeldto.StateCrediting)
	res, err := proc.ledger.Credit(ctx, modeldto.CreditRequest{
		UserID:      invoice.UserID,
		Login:       invoice.Login,
		Provider:    ProviderFreeKassa,
		OperationID: cb.OrderID,
		Amount:      invoice.Amount,
		OriginTime:  time.Now().UTC(),
	})
	if err != nil {
		a.to(modeldto.StateFailed)
		metrics.RecordDeposit(ProviderFreeKassa, string(modeldto.StatusInternalError))
		return nil, err
	}
	if res.Status == modeldto.CreditStatusAlreadyProcessed {
		a.to(modeldto.StateAlreadyProcessed)
	} else {
		a.to(modeldto.StateCredited)
	}
	out := creditedResult(res)
	metrics.RecordDeposit(ProviderFreeKassa, string(out.Status))
	return out, nil
}

func (proc *Processor) matchInvoice(ctx context.Context, cb modeldto.FreeKassaCallback) (*modelstorage.InvoiceEntry, error) {
	id, err := strconv.ParseInt(cb.OrderID, 10, 64)
	if err != nil {
		return nil, &serviceErrors.InvoiceMismatchError{OrderID: cb.OrderID, Msg: "malformed order id"}
	}
	invoice, err := proc.storage.GetInvoice(ctx, id)
	if err != nil {
		var notFoundError *storageErrors.NotFoundError
		if errors.As(err, &notFoundError) {
			return nil, &serviceErrors.InvoiceMismatchError{OrderID: cb.OrderID, Msg: "no such invoice"}
		}
		return nil, err
	}
	amount, err := decimal.NewFromString(cb.Amount)
	if err != nil || !amount.Equal(invoice.Amount) {
		return nil, &serviceErrors.InvoiceMismatchError{OrderID: cb.OrderID, Msg: "amount differs from invoice"}
	}
	if cb.UserID != "" && cb.UserID != strconv.FormatInt(invoice.UserID, 10) {
		return nil, &serviceErrors.InvoiceMismatchError{OrderID: cb.OrderID, Msg: "user differs from invoice"}
	}
	return invoice, nil
}

// BonusPreview reports the bonus a deposit of sum would receive.
func (proc *Processor) BonusPreview(ctx context.Context, sum decimal.Decimal) (*modeldto.BonusPreview, error) {
	if !sum.IsPositive() {
		return nil, &serviceErrors.ValidationError{Field: "sum", Msg: "must be positive"}
	}
	multiplier, bonusAmount, err := proc.bonus.Resolve(ctx, sum)
	if err != nil {
		return nil, err
	}
	return &modeldto.BonusPreview{
		Multiplier: multiplier,
		Bonus:      bonusAmount,
		Total:      sum.Add(bonusAmount),
	}, nil
}

func (proc *Processor) ListDeposits(ctx context.Context, user modeldto.User) ([]modeldto.Deposit, error) {
	entries, err := proc.storage.ListDeposits(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	deposits := make([]modeldto.Deposit, 0, len(entries))
	for _, e := range entries {
		deposits = append(deposits, modeldto.Deposit{
			ID:          e.ID,
			Provider:    e.Provider,
			OperationID: e.OperationID,
			Amount:      e.Amount,
			Bonus:       e.Bonus,
			CreatedAt:   e.CreatedAt,
			ProcessedAt: e.ProcessedAt,
		})
	}
	return deposits, nil
}

// BindWallet canonicalizes the address and binds it to the user once per kind.
func (proc *Processor) BindWallet(ctx context.Context, user modeldto.User, req modeldto.WalletBindRequest) (*modeldto.Wallet, error) {
	address, ok := purse.Validate(req.Kind, req.Address)
	if !ok {
		return nil, &serviceErrors.ValidationError{Field: "address", Msg: "invalid-format"}
	}
	err := proc.storage.BindWallet(ctx, modelstorage.WalletEntry{
		UserID:    user.ID,
		Kind:      string(address.Kind),
		Address:   address.Value,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		var alreadyExistsError *storageErrors.AlreadyExistsError
		if errors.As(err, &alreadyExistsError) {
			return nil, &serviceErrors.WalletAlreadyBoundError{Kind: string(address.Kind), Address: address.Value}
		}
		return nil, err
	}
	logger.FromContext(ctx, proc.log).Info().Int64("user", user.ID).Str("kind", string(address.Kind)).Msg("wallet bound")
	return &modeldto.Wallet{Kind: string(address.Kind), Address: address.Value}, nil
}

func (proc *Processor) ListWallets(ctx context.Context, user modeldto.User) ([]modeldto.Wallet, error) {
	entries, err := proc.storage.ListWallets(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	wallets := make([]modeldto.Wallet, 0, len(entries))
	for _, e := range entries {
		wallets = append(wallets, modeldto.Wallet{Kind: e.Kind, Address: e.Address})
	}
	return wallets, nil
}

func (proc *Processor) Ping(ctx context.Context) error {
	return proc.storage.Ping(ctx)
}
