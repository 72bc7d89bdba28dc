package processor

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/danilovkiri/dk-go-fastcore/internal/config"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modeldto"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelpayeer"
	"github.com/danilovkiri/dk-go-fastcore/internal/models/modelstorage"
	bonusResolver "github.com/danilovkiri/dk-go-fastcore/internal/service/bonus/v1/bonus"
	commissionDistributor "github.com/danilovkiri/dk-go-fastcore/internal/service/commission/v1/commission"
	ledgerService "github.com/danilovkiri/dk-go-fastcore/internal/service/ledger/v1/ledger"
	serviceErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/processor/v1/errors"
	"github.com/danilovkiri/dk-go-fastcore/internal/service/signer/v1/signer"
	verifierErrors "github.com/danilovkiri/dk-go-fastcore/internal/service/verifier/v1/errors"
	"github.com/danilovkiri/dk-go-fastcore/internal/storage/v1/inmemory"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeVerifier struct {
	mu     sync.Mutex
	calls  int
	creds  modelpayeer.Credentials
	amount decimal.Decimal
	err    error
}

func (f *fakeVerifier) Verify(_ context.Context, creds modelpayeer.Credentials, externalID string) (*modeldto.VerifiedTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.creds = creds
	if f.err != nil {
		return nil, f.err
	}
	return &modeldto.VerifiedTransaction{
		ExternalID: externalID,
		Amount:     f.amount,
		OriginTime: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}, nil
}

type nopQueue struct{}

func (nopQueue) Enqueue(modelstorage.CommissionEntry) {}

func testConfig() *config.Config {
	return &config.Config{
		PayeerConfig: &config.PayeerConfig{Wallet: "P1000001", APIID: "id", APIKey: "key", Currency: "RUB"},
		FreeKassaConfig: &config.FreeKassaConfig{
			MerchantID: "777",
			FormKey:    "form-secret",
			NotifyKey:  "notify-secret",
			URL:        "https://pay.example/cash.php",
		},
		CommissionConfig: &config.CommissionConfig{ReferralRate: 0.05},
		StorageConfig:    &config.StorageConfig{StorageTimeout: time.Second},
	}
}

func newProcessor(t *testing.T, ver *fakeVerifier) (*Processor, *inmemory.Storage) {
	t.Helper()
	log := zerolog.Nop()
	cfg := testConfig()
	st := inmemory.New()
	st.AddUser(modelstorage.UserEntry{ID: 1, Login: "referrer"})
	st.AddUser(modelstorage.UserEntry{ID: 2, Login: "alice", ReferrerID: 1})
	st.SetBonusTiers([]modelstorage.BonusTierEntry{
		{ID: 1, Position: 0, AmountMin: decimal.Zero, AmountMax: decimal.NewNullDecimal(decimal.NewFromInt(999)), Multiplier: decimal.Zero},
		{ID: 2, Position: 1, AmountMin: decimal.NewFromInt(1000), Multiplier: decimal.RequireFromString("0.05")},
	})
	res := bonusResolver.NewResolver(st, &log)
	dist := commissionDistributor.NewDistributor(st, cfg.CommissionConfig, &log)
	led := ledgerService.NewLedger(st, res, dist, nopQueue{}, cfg.StorageConfig, &log)
	proc, err := InitService(st, ver, res, led, cfg, &log)
	require.NoError(t, err)
	return proc, st
}

var alice = modeldto.User{ID: 2, Login: "alice"}

func TestInitService_NilArguments(t *testing.T) {
	log := zerolog.Nop()
	_, err := InitService(nil, &fakeVerifier{}, nil, nil, testConfig(), &log)
	var nilArg *serviceErrors.ServiceFoundNilArgument
	assert.ErrorAs(t, err, &nilArg)
}

func TestDepositPayeer_Credited(t *testing.T) {
	ver := &fakeVerifier{amount: decimal.NewFromInt(1500)}
	proc, st := newProcessor(t, ver)

	out := proc.DepositPayeer(context.Background(), alice, "123456789")
	require.Equal(t, modeldto.StatusSuccess, out.Status)
	assert.NotZero(t, out.DepositID)
	require.NotNil(t, out.Bonus)
	assert.True(t, out.Bonus.Equal(decimal.NewFromInt(75)))
	assert.Equal(t, "P1000001", ver.creds.Account)
	assert.Equal(t, "RUB", ver.creds.Currency)

	user, _ := st.User(2)
	assert.True(t, user.BonusBalance.Equal(decimal.NewFromInt(1575)), user.BonusBalance.String())
	referrer, _ := st.User(1)
	assert.True(t, referrer.CommissionBalance.Equal(decimal.NewFromInt(75)), referrer.CommissionBalance.String())
}

func TestDepositPayeer_Resubmitted(t *testing.T) {
	ver := &fakeVerifier{amount: decimal.NewFromInt(500)}
	proc, st := newProcessor(t, ver)

	first := proc.DepositPayeer(context.Background(), alice, "42")
	second := proc.DepositPayeer(context.Background(), alice, "42")
	assert.Equal(t, modeldto.StatusSuccess, first.Status)
	assert.Equal(t, modeldto.StatusAlreadyProcessed, second.Status)
	assert.Nil(t, second.Amount)

	user, _ := st.User(2)
	assert.True(t, user.DepositedTotal.Equal(decimal.NewFromInt(500)))
}

func TestDepositPayeer_Concurrent(t *testing.T) {
	ver := &fakeVerifier{amount: decimal.NewFromInt(100)}
	proc, st := newProcessor(t, ver)

	const n = 10
	statuses := make(chan modeldto.DepositStatus, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses <- proc.DepositPayeer(context.Background(), alice, "9001").Status
		}()
	}
	wg.Wait()
	close(statuses)

	counts := map[modeldto.DepositStatus]int{}
	for s := range statuses {
		counts[s]++
	}
	assert.Equal(t, 1, counts[modeldto.StatusSuccess])
	assert.Equal(t, n-1, counts[modeldto.StatusAlreadyProcessed])
	assert.True(t, st.DepositsTotal().Equal(decimal.NewFromInt(100)))
}

func TestDepositPayeer_Rejections(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want modeldto.DepositStatus
	}{
		{name: "wrong currency", err: &verifierErrors.RejectionError{Reason: verifierErrors.WrongCurrency}, want: modeldto.StatusWrongCurrency},
		{name: "protected", err: &verifierErrors.RejectionError{Reason: verifierErrors.ProtectedTransfer}, want: modeldto.StatusProtectedTransfer},
		{name: "wrong recipient", err: &verifierErrors.RejectionError{Reason: verifierErrors.WrongRecipient}, want: modeldto.StatusInvalidTransaction},
		{name: "not found", err: &verifierErrors.RejectionError{Reason: verifierErrors.NotFound}, want: modeldto.StatusInvalidTransaction},
		{name: "auth", err: &verifierErrors.RejectionError{Reason: verifierErrors.AuthFailure}, want: modeldto.StatusGatewayError},
		{name: "gateway", err: &verifierErrors.RejectionError{Reason: verifierErrors.GatewayUnavailable}, want: modeldto.StatusGatewayError},
		{name: "untyped", err: errors.New("boom"), want: modeldto.StatusGatewayError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc, st := newProcessor(t, &fakeVerifier{err: tt.err})
			out := proc.DepositPayeer(context.Background(), alice, "77")
			assert.Equal(t, tt.want, out.Status)
			assert.NotEmpty(t, out.Message)
			assert.True(t, st.DepositsTotal().IsZero())
		})
	}
}

func TestDepositPayeer_NonNumericSkipsGateway(t *testing.T) {
	ver := &fakeVerifier{amount: decimal.NewFromInt(100)}
	proc, _ := newProcessor(t, ver)
	for _, txn := range []string{"12a", "", "123456789012345678901"} {
		out := proc.DepositPayeer(context.Background(), alice, txn)
		assert.Equal(t, modeldto.StatusInvalidTransaction, out.Status, txn)
		assert.NotEmpty(t, out.Message)
	}
	assert.Zero(t, ver.calls)
}

func TestDepositPayeer_UnknownUser(t *testing.T) {
	proc, _ := newProcessor(t, &fakeVerifier{amount: decimal.NewFromInt(100)})
	out := proc.DepositPayeer(context.Background(), modeldto.User{ID: 99, Login: "ghost"}, "5")
	assert.Equal(t, modeldto.StatusInternalError, out.Status)
}

func TestCreateFreeKassaInvoice(t *testing.T) {
	proc, _ := newProcessor(t, &fakeVerifier{})

	form, err := proc.CreateFreeKassaInvoice(context.Background(), alice, decimal.RequireFromString("250.555"))
	require.NoError(t, err)
	assert.Equal(t, "https://pay.example/cash.php", form.URL)
	assert.Equal(t, "777", form.Params["m"])
	assert.Equal(t, "250.56", form.Params["oa"])
	assert.Equal(t, "2", form.Params["us_id"])
	assert.Equal(t, signer.Sign("777", "250.56", "form-secret", form.Params["o"]), form.Params["s"])

	for _, sum := range []string{"0", "0.5", "15000.01", "-3"} {
		_, err = proc.CreateFreeKassaInvoice(context.Background(), alice, decimal.RequireFromString(sum))
		var validationError *serviceErrors.ValidationError
		assert.ErrorAs(t, err, &validationError, sum)
	}
}

func callback(orderID, amount, userID, key string) modeldto.FreeKassaCallback {
	return modeldto.FreeKassaCallback{
		MerchantID: "777",
		Amount:     amount,
		OrderID:    orderID,
		Sign:       signer.Sign("777", amount, key, orderID),
		UserID:     userID,
	}
}

func TestHandleFreeKassaCallback(t *testing.T) {
	proc, st := newProcessor(t, &fakeVerifier{})
	form, err := proc.CreateFreeKassaInvoice(context.Background(), alice, decimal.NewFromInt(1000))
	require.NoError(t, err)
	orderID := form.Params["o"]

	out, err := proc.HandleFreeKassaCallback(context.Background(), callback(orderID, "1000", "2", "notify-secret"))
	require.NoError(t, err)
	assert.Equal(t, modeldto.StatusSuccess, out.Status)

	out, err = proc.HandleFreeKassaCallback(context.Background(), callback(orderID, "1000.00", "2", "notify-secret"))
	require.NoError(t, err)
	assert.Equal(t, modeldto.StatusAlreadyProcessed, out.Status)

	user, _ := st.User(2)
	assert.True(t, user.BonusBalance.Equal(decimal.NewFromInt(1050)), user.BonusBalance.String())
}

func TestHandleFreeKassaCallback_Rejected(t *testing.T) {
	proc, st := newProcessor(t, &fakeVerifier{})
	form, err := proc.CreateFreeKassaInvoice(context.Background(), alice, decimal.NewFromInt(100))
	require.NoError(t, err)
	orderID := form.Params["o"]

	wrongMerchant := callback(orderID, "100", "2", "notify-secret")
	wrongMerchant.MerchantID = "778"

	tests := []struct {
		name     string
		cb       modeldto.FreeKassaCallback
		mismatch bool
	}{
		{name: "form key used", cb: callback(orderID, "100", "2", "form-secret")},
		{name: "tampered amount", cb: func() modeldto.FreeKassaCallback {
			cb := callback(orderID, "100", "2", "notify-secret")
			cb.Amount = "1000"
			return cb
		}()},
		{name: "unknown merchant", cb: wrongMerchant},
		{name: "amount differs", cb: callback(orderID, "90", "2", "notify-secret"), mismatch: true},
		{name: "user differs", cb: callback(orderID, "100", "3", "notify-secret"), mismatch: true},
		{name: "no invoice", cb: callback("999", "100", "2", "notify-secret"), mismatch: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := proc.HandleFreeKassaCallback(context.Background(), tt.cb)
			require.Error(t, err)
			if tt.mismatch {
				var mismatch *serviceErrors.InvoiceMismatchError
				assert.ErrorAs(t, err, &mismatch)
			} else {
				var validationError *serviceErrors.ValidationError
				assert.ErrorAs(t, err, &validationError)
			}
		})
	}
	assert.True(t, st.DepositsTotal().IsZero())
}

func TestBonusPreview(t *testing.T) {
	proc, _ := newProcessor(t, &fakeVerifier{})
	preview, err := proc.BonusPreview(context.Background(), decimal.NewFromInt(2000))
	require.NoError(t, err)
	assert.True(t, preview.Multiplier.Equal(decimal.RequireFromString("0.05")))
	assert.True(t, preview.Bonus.Equal(decimal.NewFromInt(100)))
	assert.True(t, preview.Total.Equal(decimal.NewFromInt(2100)))

	_, err = proc.BonusPreview(context.Background(), decimal.Zero)
	var validationError *serviceErrors.ValidationError
	assert.ErrorAs(t, err, &validationError)
}

func TestListDeposits(t *testing.T) {
	proc, _ := newProcessor(t, &fakeVerifier{amount: decimal.NewFromInt(10)})
	proc.DepositPayeer(context.Background(), alice, "1")
	proc.DepositPayeer(context.Background(), alice, "2")

	deposits, err := proc.ListDeposits(context.Background(), alice)
	require.NoError(t, err)
	require.Len(t, deposits, 2)
	assert.Equal(t, "2", deposits[0].OperationID)
	assert.Equal(t, ProviderPayeer, deposits[0].Provider)
}

func TestBindWallet(t *testing.T) {
	proc, _ := newProcessor(t, &fakeVerifier{})
	ctx := context.Background()

	wallet, err := proc.BindWallet(ctx, alice, modeldto.WalletBindRequest{Kind: "qiwi", Address: "8 (999) 123-45-67"})
	require.NoError(t, err)
	assert.Equal(t, modeldto.Wallet{Kind: "qiwi", Address: "+79991234567"}, *wallet)

	wallet, err = proc.BindWallet(ctx, alice, modeldto.WalletBindRequest{Kind: "yad", Address: "4100112345678"})
	require.NoError(t, err)
	assert.Equal(t, "yoomoney", wallet.Kind)

	_, err = proc.BindWallet(ctx, modeldto.User{ID: 1}, modeldto.WalletBindRequest{Kind: "qiwi", Address: "+79991234567"})
	var bound *serviceErrors.WalletAlreadyBoundError
	assert.ErrorAs(t, err, &bound)

	_, err = proc.BindWallet(ctx, alice, modeldto.WalletBindRequest{Kind: "payeer", Address: "P123"})
	var validationError *serviceErrors.ValidationError
	assert.ErrorAs(t, err, &validationError)

	wallets, err := proc.ListWallets(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, wallets, 2)
}
