// Package handlers provides API endpoint handling functionality.

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	handlersErrors "github.com/danilovkiri/dk-go-fastcore/internal/api/rest/v1/errors"
	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/v1/middleware"
	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/logger"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1"
	serviceErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1/errors"
	storageErrors "github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/errors"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	errInvalidFormat = "invalid-format"
	errAlreadyBound  = "already-bound"
)

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	service        processor.Processor
	validate       *validator.Validate
	storageTimeout time.Duration
	depositTimeout time.Duration
	log            *zerolog.Logger
}

// InitHandlers initializes a handler object.
func InitHandlers(mainService processor.Processor, cfg *config.Config, log *zerolog.Logger) (*Handler, error) {
	if mainService == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil processor was passed to handlers initializer"}
	}
	return &Handler{
		service:        mainService,
		validate:       validator.New(),
		storageTimeout: cfg.StorageConfig.StorageTimeout,
		depositTimeout: cfg.PayeerConfig.Timeout + cfg.StorageConfig.StorageTimeout,
		log:            log,
	}, nil
}

var depositStatusCodes = map[modeldto.DepositStatus]int{
	modeldto.StatusSuccess:            http.StatusOK,
	modeldto.StatusAlreadyProcessed:   http.StatusOK,
	modeldto.StatusInvalidTransaction: http.StatusUnprocessableEntity,
	modeldto.StatusWrongCurrency:      http.StatusUnprocessableEntity,
	modeldto.StatusProtectedTransfer:  http.StatusUnprocessableEntity,
	modeldto.StatusGatewayError:       http.StatusBadGateway,
	modeldto.StatusInternalError:      http.StatusInternalServerError,
}

// HandlePayeerDeposit verifies a Payeer transfer id submitted by the user and credits it.
func (h *Handler) HandlePayeerDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.depositTimeout)
		defer cancel()
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		var req modeldto.PayeerDepositRequest
		if !h.decode(w, r, &req, "HandlePayeerDeposit") {
			return
		}
		h.logger(r).Info().Str("txn", req.Txn).Int64("user", user.ID).Msg("new payeer deposit request detected")
		res := h.service.DepositPayeer(ctx, user, req.Txn)
		code, ok := depositStatusCodes[res.Status]
		if !ok {
			code = http.StatusInternalServerError
		}
		h.writeJSON(w, code, res)
	}
}

// HandleFreeKassaDeposit creates a FreeKassa invoice and returns the payment form parameters.
func (h *Handler) HandleFreeKassaDeposit() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		var req modeldto.FreeKassaDepositRequest
		if !h.decode(w, r, &req, "HandleFreeKassaDeposit") {
			return
		}
		form, err := h.service.CreateFreeKassaInvoice(ctx, user, req.Sum)
		if err != nil {
			h.logger(r).Error().Err(err).Msg("HandleFreeKassaDeposit failed")
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, form)
	}
}

// HandleFreeKassaCallback processes provider payment notifications. The provider expects a bare "YES".
func (h *Handler) HandleFreeKassaCallback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		cb := modeldto.FreeKassaCallback{
			MerchantID: r.Form.Get("MERCHANT_ID"),
			Amount:     r.Form.Get("AMOUNT"),
			OrderID:    r.Form.Get("MERCHANT_ORDER_ID"),
			Sign:       r.Form.Get("SIGN"),
			UserID:     r.Form.Get("us_id"),
		}
		if err := h.validate.Struct(cb); err != nil {
			h.logger(r).Warn().Err(err).Msg("HandleFreeKassaCallback rejected payload")
			http.Error(w, "malformed payload", http.StatusBadRequest)
			return
		}
		_, err := h.service.HandleFreeKassaCallback(ctx, cb)
		if err != nil {
			var validationError *serviceErrors.ValidationError
			var invoiceMismatchError *serviceErrors.InvoiceMismatchError
			if errors.As(err, &validationError) || errors.As(err, &invoiceMismatchError) {
				h.logger(r).Warn().Err(err).Msg("HandleFreeKassaCallback rejected notification")
				http.Error(w, err.Error(), http.StatusBadRequest)
			} else {
				h.logger(r).Error().Err(err).Msg("HandleFreeKassaCallback failed")
				http.Error(w, "temporarily unavailable", http.StatusServiceUnavailable)
			}
			return
		}
		w.Header().Set("Content-Type", "text/plain")
		w.WriteHeader(http.StatusOK)
		if _, err = w.Write([]byte("YES")); err != nil {
			h.logger(r).Error().Err(err).Msg("HandleFreeKassaCallback failed")
		}
	}
}

// HandleBonusPreview reports the bonus for a prospective deposit.
func (h *Handler) HandleBonusPreview() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		sum, err := decimal.NewFromString(r.URL.Query().Get("sum"))
		if err != nil {
			h.writeJSON(w, http.StatusBadRequest, modeldto.Error{Error: "sum must be a number"})
			return
		}
		preview, err := h.service.BonusPreview(ctx, sum)
		if err != nil {
			h.logger(r).Error().Err(err).Msg("HandleBonusPreview failed")
			h.writeError(w, err)
			return
		}
		h.writeJSON(w, http.StatusOK, preview)
	}
}

// HandleGetDeposits processes deposit history requests.
func (h *Handler) HandleGetDeposits() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		deposits, err := h.service.ListDeposits(ctx, user)
		if err != nil {
			h.logger(r).Error().Err(err).Msg("HandleGetDeposits failed")
			h.writeError(w, err)
			return
		}
		if len(deposits) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, http.StatusOK, deposits)
	}
}

// HandleBindWallet binds an external wallet to the user.
func (h *Handler) HandleBindWallet() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		var req modeldto.WalletBindRequest
		if !h.decode(w, r, &req, "HandleBindWallet") {
			return
		}
		if err := h.validate.Struct(req); err != nil {
			h.writeJSON(w, http.StatusUnprocessableEntity, modeldto.Error{Error: errInvalidFormat})
			return
		}
		wallet, err := h.service.BindWallet(ctx, user, req)
		if err != nil {
			var validationError *serviceErrors.ValidationError
			var walletAlreadyBoundError *serviceErrors.WalletAlreadyBoundError
			switch {
			case errors.As(err, &validationError):
				h.writeJSON(w, http.StatusUnprocessableEntity, modeldto.Error{Error: errInvalidFormat})
			case errors.As(err, &walletAlreadyBoundError):
				h.writeJSON(w, http.StatusConflict, modeldto.Error{Error: errAlreadyBound})
			default:
				h.logger(r).Error().Err(err).Msg("HandleBindWallet failed")
				h.writeError(w, err)
			}
			return
		}
		h.writeJSON(w, http.StatusOK, wallet)
	}
}

// HandleGetWallets lists the user's bound wallets.
func (h *Handler) HandleGetWallets() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		user, ok := middleware.UserFromContext(r.Context())
		if !ok {
			http.Error(w, "Token authorization required", http.StatusUnauthorized)
			return
		}
		wallets, err := h.service.ListWallets(ctx, user)
		if err != nil {
			h.logger(r).Error().Err(err).Msg("HandleGetWallets failed")
			h.writeError(w, err)
			return
		}
		if len(wallets) == 0 {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeJSON(w, http.StatusOK, wallets)
	}
}

// HandlePing checks storage availability.
func (h *Handler) HandlePing() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), h.storageTimeout)
		defer cancel()
		if err := h.service.Ping(ctx); err != nil {
			h.logger(r).Error().Err(err).Msg("HandlePing failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

// logger returns the request-scoped logger set by the request middleware.
func (h *Handler) logger(r *http.Request) *zerolog.Logger {
	return logger.FromContext(r.Context(), h.log)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}, op string) bool {
	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		return false
	}
	b, err := io.ReadAll(r.Body)
	if err != nil {
		h.logger(r).Error().Err(err).Msg(op + " failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return false
	}
	if err = json.Unmarshal(b, dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, modeldto.Error{Error: err.Error()})
		return false
	}
	return true
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var validationError *serviceErrors.ValidationError
	var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
	switch {
	case errors.As(err, &validationError):
		h.writeJSON(w, http.StatusUnprocessableEntity, modeldto.Error{Error: err.Error()})
	case errors.As(err, &contextTimeoutExceededError):
		http.Error(w, err.Error(), http.StatusGatewayTimeout)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, v interface{}) {
	resBody, err := json.Marshal(v)
	if err != nil {
		h.log.Error().Err(err).Msg("response encoding failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err = w.Write(resBody); err != nil {
		h.log.Error().Err(err).Msg("response writing failed")
	}
}
