package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/api/rest/v1/middleware"
	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	serviceErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1/errors"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	deposit     *modeldto.DepositResult
	callbackErr error
	callback    modeldto.FreeKassaCallback
	bindErr     error
	wallets     []modeldto.Wallet
	pingErr     error
	txn         string
}

func (f *fakeProcessor) DepositPayeer(_ context.Context, _ modeldto.User, txn string) *modeldto.DepositResult {
	f.txn = txn
	return f.deposit
}

func (f *fakeProcessor) CreateFreeKassaInvoice(_ context.Context, user modeldto.User, sum decimal.Decimal) (*modeldto.FreeKassaForm, error) {
	if !sum.IsPositive() {
		return nil, &serviceErrors.ValidationError{Field: "sum", Msg: "must be between 1 and 15000"}
	}
	return &modeldto.FreeKassaForm{URL: "https://pay.example", Params: map[string]string{"oa": sum.String()}}, nil
}

func (f *fakeProcessor) HandleFreeKassaCallback(_ context.Context, cb modeldto.FreeKassaCallback) (*modeldto.DepositResult, error) {
	f.callback = cb
	if f.callbackErr != nil {
		return nil, f.callbackErr
	}
	return &modeldto.DepositResult{Status: modeldto.StatusSuccess}, nil
}

func (f *fakeProcessor) BonusPreview(_ context.Context, sum decimal.Decimal) (*modeldto.BonusPreview, error) {
	return &modeldto.BonusPreview{Multiplier: decimal.Zero, Bonus: decimal.Zero, Total: sum}, nil
}

func (f *fakeProcessor) ListDeposits(_ context.Context, _ modeldto.User) ([]modeldto.Deposit, error) {
	return nil, nil
}

func (f *fakeProcessor) BindWallet(_ context.Context, _ modeldto.User, req modeldto.WalletBindRequest) (*modeldto.Wallet, error) {
	if f.bindErr != nil {
		return nil, f.bindErr
	}
	return &modeldto.Wallet{Kind: req.Kind, Address: req.Address}, nil
}

func (f *fakeProcessor) ListWallets(_ context.Context, _ modeldto.User) ([]modeldto.Wallet, error) {
	return f.wallets, nil
}

func (f *fakeProcessor) Ping(_ context.Context) error {
	return f.pingErr
}

func newHandler(t *testing.T, proc *fakeProcessor) *Handler {
	t.Helper()
	log := zerolog.Nop()
	h, err := InitHandlers(proc, &config.Config{
		StorageConfig: &config.StorageConfig{StorageTimeout: time.Second},
		PayeerConfig:  &config.PayeerConfig{Timeout: time.Second},
	}, &log)
	require.NoError(t, err)
	return h
}

func authorized(r *http.Request) *http.Request {
	return r.WithContext(middleware.WithUser(r.Context(), modeldto.User{ID: 2, Login: "alice"}))
}

func jsonRequest(method, target, body string) *http.Request {
	r := httptest.NewRequest(method, target, strings.NewReader(body))
	r.Header.Set("Content-Type", "application/json")
	return authorized(r)
}

func TestInitHandlers_NilProcessor(t *testing.T) {
	log := zerolog.Nop()
	_, err := InitHandlers(nil, &config.Config{}, &log)
	assert.Error(t, err)
}

func TestHandlePayeerDeposit_StatusCodes(t *testing.T) {
	tests := []struct {
		status modeldto.DepositStatus
		code   int
	}{
		{modeldto.StatusSuccess, http.StatusOK},
		{modeldto.StatusAlreadyProcessed, http.StatusOK},
		{modeldto.StatusInvalidTransaction, http.StatusUnprocessableEntity},
		{modeldto.StatusWrongCurrency, http.StatusUnprocessableEntity},
		{modeldto.StatusProtectedTransfer, http.StatusUnprocessableEntity},
		{modeldto.StatusGatewayError, http.StatusBadGateway},
		{modeldto.StatusInternalError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			proc := &fakeProcessor{deposit: &modeldto.DepositResult{Status: tt.status, Message: "m"}}
			w := httptest.NewRecorder()
			newHandler(t, proc).HandlePayeerDeposit()(w, jsonRequest(http.MethodPost, "/api/deposits/payeer", `{"txn":"123"}`))

			assert.Equal(t, tt.code, w.Code)
			assert.Equal(t, "123", proc.txn)
			var res modeldto.DepositResult
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestHandlePayeerDeposit_BadInput(t *testing.T) {
	proc := &fakeProcessor{deposit: &modeldto.DepositResult{Status: modeldto.StatusInvalidTransaction}}
	h := newHandler(t, proc)

	for _, txn := range []string{"", "abc", "123456789012345678901"} {
		w := httptest.NewRecorder()
		h.HandlePayeerDeposit()(w, jsonRequest(http.MethodPost, "/api/deposits/payeer", `{"txn":"`+txn+`"}`))
		assert.Equal(t, http.StatusUnprocessableEntity, w.Code, txn)
		assert.Equal(t, txn, proc.txn)
		var res modeldto.DepositResult
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
		assert.Equal(t, modeldto.StatusInvalidTransaction, res.Status)
	}

	proc.txn = "untouched"
	w := httptest.NewRecorder()
	h.HandlePayeerDeposit()(w, jsonRequest(http.MethodPost, "/api/deposits/payeer", `not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "untouched", proc.txn)

	w = httptest.NewRecorder()
	h.HandlePayeerDeposit()(w, httptest.NewRequest(http.MethodPost, "/api/deposits/payeer", strings.NewReader(`{"txn":"1"}`)))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestHandleFreeKassaDeposit(t *testing.T) {
	h := newHandler(t, &fakeProcessor{})

	w := httptest.NewRecorder()
	h.HandleFreeKassaDeposit()(w, jsonRequest(http.MethodPost, "/api/deposits/freekassa", `{"sum":"150"}`))
	require.Equal(t, http.StatusOK, w.Code)
	var form modeldto.FreeKassaForm
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &form))
	assert.Equal(t, "150", form.Params["oa"])

	w = httptest.NewRecorder()
	h.HandleFreeKassaDeposit()(w, jsonRequest(http.MethodPost, "/api/deposits/freekassa", `{"sum":0}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestHandleFreeKassaCallback(t *testing.T) {
	form := url.Values{
		"MERCHANT_ID":       {"777"},
		"AMOUNT":            {"100"},
		"MERCHANT_ORDER_ID": {"5"},
		"SIGN":              {"abc"},
		"us_id":             {"2"},
	}
	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{name: "credited", code: http.StatusOK, body: "YES"},
		{name: "bad signature", err: &serviceErrors.ValidationError{Field: "SIGN"}, code: http.StatusBadRequest},
		{name: "mismatch", err: &serviceErrors.InvoiceMismatchError{OrderID: "5"}, code: http.StatusBadRequest},
		{name: "storage", err: errors.New("connection refused"), code: http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &fakeProcessor{callbackErr: tt.err}
			r := httptest.NewRequest(http.MethodPost, "/api/callbacks/freekassa", strings.NewReader(form.Encode()))
			r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			w := httptest.NewRecorder()
			newHandler(t, proc).HandleFreeKassaCallback()(w, r)

			assert.Equal(t, tt.code, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
			assert.Equal(t, "5", proc.callback.OrderID)
			assert.Equal(t, "2", proc.callback.UserID)
		})
	}
}

func TestHandleFreeKassaCallback_QueryAndMissingFields(t *testing.T) {
	proc := &fakeProcessor{}
	h := newHandler(t, proc)

	w := httptest.NewRecorder()
	h.HandleFreeKassaCallback()(w, httptest.NewRequest(http.MethodGet, "/api/callbacks/freekassa?MERCHANT_ID=777&AMOUNT=10&MERCHANT_ORDER_ID=9&SIGN=x", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "9", proc.callback.OrderID)

	w = httptest.NewRecorder()
	h.HandleFreeKassaCallback()(w, httptest.NewRequest(http.MethodGet, "/api/callbacks/freekassa?MERCHANT_ID=777&AMOUNT=10&MERCHANT_ORDER_ID=x9&SIGN=x", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBonusPreview(t *testing.T) {
	h := newHandler(t, &fakeProcessor{})

	w := httptest.NewRecorder()
	h.HandleBonusPreview()(w, httptest.NewRequest(http.MethodGet, "/api/bonus/preview?sum=250", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var preview modeldto.BonusPreview
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &preview))
	assert.True(t, preview.Total.Equal(decimal.NewFromInt(250)))

	w = httptest.NewRecorder()
	h.HandleBonusPreview()(w, httptest.NewRequest(http.MethodGet, "/api/bonus/preview?sum=lots", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleBindWallet(t *testing.T) {
	tests := []struct {
		name string
		body string
		err  error
		code int
		want string
	}{
		{name: "bound", body: `{"kind":"payeer","address":"P1234567"}`, code: http.StatusOK},
		{name: "unknown kind", body: `{"kind":"paypal","address":"x"}`, code: http.StatusUnprocessableEntity, want: errInvalidFormat},
		{name: "bad format", body: `{"kind":"payeer","address":"P1"}`, err: &serviceErrors.ValidationError{}, code: http.StatusUnprocessableEntity, want: errInvalidFormat},
		{name: "taken", body: `{"kind":"payeer","address":"P1234567"}`, err: &serviceErrors.WalletAlreadyBoundError{}, code: http.StatusConflict, want: errAlreadyBound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			newHandler(t, &fakeProcessor{bindErr: tt.err}).HandleBindWallet()(w, jsonRequest(http.MethodPost, "/api/user/wallets", tt.body))
			assert.Equal(t, tt.code, w.Code)
			if tt.want != "" {
				var e modeldto.Error
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
				assert.Equal(t, tt.want, e.Error)
			}
		})
	}
}

func TestHandleGetWallets(t *testing.T) {
	w := httptest.NewRecorder()
	newHandler(t, &fakeProcessor{}).HandleGetWallets()(w, authorized(httptest.NewRequest(http.MethodGet, "/api/user/wallets", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	proc := &fakeProcessor{wallets: []modeldto.Wallet{{Kind: "qiwi", Address: "+79991234567"}}}
	newHandler(t, proc).HandleGetWallets()(w, authorized(httptest.NewRequest(http.MethodGet, "/api/user/wallets", nil)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"kind":"qiwi","address":"+79991234567"}]`, w.Body.String())
}

func TestHandleGetDeposits_Empty(t *testing.T) {
	w := httptest.NewRecorder()
	newHandler(t, &fakeProcessor{}).HandleGetDeposits()(w, authorized(httptest.NewRequest(http.MethodGet, "/api/user/deposits", nil)))
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestHandlePing(t *testing.T) {
	w := httptest.NewRecorder()
	newHandler(t, &fakeProcessor{}).HandlePing()(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	newHandler(t, &fakeProcessor{pingErr: errors.New("down")}).HandlePing()(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}
