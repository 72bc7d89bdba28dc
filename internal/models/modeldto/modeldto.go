package modeldto

import (
	"time"

	"github.com/shopspring/decimal"
)

// AttemptState is a stage of a single deposit attempt.
// Submitted -> Verifying -> Verified|Rejected -> Crediting -> Credited|AlreadyProcessed|Failed.
type AttemptState string

const (
	StateSubmitted        AttemptState = "submitted"
	StateVerifying        AttemptState = "verifying"
	StateVerified         AttemptState = "verified"
	StateRejected         AttemptState = "rejected"
	StateCrediting        AttemptState = "crediting"
	StateCredited         AttemptState = "credited"
	StateAlreadyProcessed AttemptState = "already-processed"
	StateFailed           AttemptState = "failed"
)

// Terminal reports whether no further transition is allowed from s.
func (s AttemptState) Terminal() bool {
	switch s {
	case StateRejected, StateCredited, StateAlreadyProcessed, StateFailed:
		return true
	}
	return false
}

// DepositStatus is the message class reported for a deposit attempt.
type DepositStatus string

const (
	StatusSuccess            DepositStatus = "success"
	StatusAlreadyProcessed   DepositStatus = "already-processed"
	StatusInvalidTransaction DepositStatus = "invalid-transaction"
	StatusWrongCurrency      DepositStatus = "wrong-currency"
	StatusProtectedTransfer  DepositStatus = "protected-transfer"
	StatusGatewayError       DepositStatus = "gateway-error"
	StatusInternalError      DepositStatus = "internal-error"
)

// User is the authenticated caller.
type User struct {
	ID    int64
	Login string
}

type (
	PayeerDepositRequest struct {
		Txn string `json:"txn"`
	}
	DepositResult struct {
		Status    DepositStatus    `json:"status"`
		Message   string           `json:"message"`
		DepositID int64            `json:"deposit_id,omitempty"`
		Amount    *decimal.Decimal `json:"amount,omitempty"`
		Bonus     *decimal.Decimal `json:"bonus,omitempty"`
	}
	FreeKassaDepositRequest struct {
		Sum decimal.Decimal `json:"sum"`
	}
	FreeKassaForm struct {
		URL    string            `json:"url"`
		Params map[string]string `json:"params"`
	}
	FreeKassaCallback struct {
		MerchantID string `validate:"required"`
		Amount     string `validate:"required"`
		OrderID    string `validate:"required,numeric"`
		Sign       string `validate:"required"`
		UserID     string
	}
	BonusPreview struct {
		Multiplier decimal.Decimal `json:"multiplier"`
		Bonus      decimal.Decimal `json:"bonus"`
		Total      decimal.Decimal `json:"total"`
	}
	Deposit struct {
		ID          int64           `json:"id"`
		Provider    string          `json:"provider"`
		OperationID string          `json:"operation_id"`
		Amount      decimal.Decimal `json:"amount"`
		Bonus       decimal.Decimal `json:"bonus"`
		CreatedAt   time.Time       `json:"created_at"`
		ProcessedAt time.Time       `json:"processed_at"`
	}
	WalletBindRequest struct {
		Kind    string `json:"kind" validate:"required,oneof=payeer qiwi yoomoney yandex yad"`
		Address string `json:"address" validate:"required,max=64"`
	}
	Wallet struct {
		Kind    string `json:"kind"`
		Address string `json:"address"`
	}
	Error struct {
		Error string `json:"error"`
	}
)

// VerifiedTransaction is a provider transfer that passed every verification check.
type VerifiedTransaction struct {
	ExternalID string
	Amount     decimal.Decimal
	OriginTime time.Time
}

// CreditStatus is the outcome of a successful ledger call.
type CreditStatus string

const (
	CreditStatusCredited         CreditStatus = "credited"
	CreditStatusAlreadyProcessed CreditStatus = "already-processed"
)

// CreditRequest describes a verified deposit to be recorded and credited once.
type CreditRequest struct {
	UserID      int64
	Login       string
	Provider    string
	OperationID string
	Amount      decimal.Decimal
	OriginTime  time.Time
}

type CreditResult struct {
	Status    CreditStatus
	DepositID int64
	Amount    decimal.Decimal
	Bonus     decimal.Decimal
}
