// Package errors provides custom error types.

package errors

import "fmt"

// Reason names the verification check a transaction failed.
type Reason string

const (
	WrongRecipient     Reason = "wrong recipient"
	NotExecuted        Reason = "not executed"
	WrongType          Reason = "wrong type"
	ProtectedTransfer  Reason = "protected transfer"
	WrongCurrency      Reason = "wrong currency"
	InvalidAmount      Reason = "invalid amount"
	AuthFailure        Reason = "auth failure"
	NotFound           Reason = "not found"
	GatewayUnavailable Reason = "gateway unavailable"
)

type (
	RejectionError struct {
		Reason Reason
		ID     string
		Err    error
	}
)

func (e *RejectionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transaction %s rejected: %s: %s", e.ID, e.Reason, e.Err.Error())
	}
	return fmt.Sprintf("transaction %s rejected: %s", e.ID, e.Reason)
}

func (e *RejectionError) Unwrap() error {
	return e.Err
}

// Retriable reports whether the same request may succeed later.
func (e *RejectionError) Retriable() bool {
	return e.Reason == GatewayUnavailable
}
