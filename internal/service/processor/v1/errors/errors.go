// Package errors provides custom error types.

package errors

import "fmt"

type (
	ServiceFoundNilArgument struct {
		Msg string
	}
	ValidationError struct {
		Field string
		Msg   string
	}
	WalletAlreadyBoundError struct {
		Kind    string
		Address string
	}
	InvoiceMismatchError struct {
		OrderID string
		Msg     string
	}
)

func (e *ServiceFoundNilArgument) Error() string {
	return e.Msg
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

func (e *WalletAlreadyBoundError) Error() string {
	return fmt.Sprintf("%s wallet %s is already bound", e.Kind, e.Address)
}

func (e *InvoiceMismatchError) Error() string {
	return fmt.Sprintf("invoice %s: %s", e.OrderID, e.Msg)
}
