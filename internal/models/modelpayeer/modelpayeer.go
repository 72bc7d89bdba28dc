// Package modelpayeer provides types of the Payeer merchant API.

package modelpayeer

import (
	"bytes"
	"encoding/json"
)

// Credentials identify the merchant account. Account is also the wallet
// that must receive verified transfers.
type Credentials struct {
	Account  string
	APIID    string
	APIKey   string
	Currency string
}

// HistoryInfoResponse is the reply to the historyInfo action.
// The API is loosely typed: auth_error is "0", 0 or false on success, and
// info is false or an empty array when the operation is unknown.
type HistoryInfoResponse struct {
	AuthError json.RawMessage `json:"auth_error"`
	Errors    json.RawMessage `json:"errors"`
	Info      json.RawMessage `json:"info"`
}

// HistoryInfo describes one operation in the merchant account history.
// Numeric fields arrive either quoted or bare.
type HistoryInfo struct {
	ID         json.Number `json:"id"`
	DateCreate string      `json:"dateCreate"`
	Type       string      `json:"type"`
	Status     string      `json:"status"`
	From       string      `json:"from"`
	SumIn      json.Number `json:"sumIn"`
	CurIn      string      `json:"curIn"`
	To         string      `json:"to"`
	SumOut     json.Number `json:"sumOut"`
	CurOut     string      `json:"curOut"`
	Protect    string      `json:"protect"`
	Comment    string      `json:"comment"`
}

func isEmpty(raw json.RawMessage) bool {
	v := bytes.TrimSpace(raw)
	switch string(v) {
	case "", "null", "0", `"0"`, `""`, "false", "[]", "{}":
		return true
	}
	return false
}

// Authorized reports whether the API accepted the merchant credentials.
func (r *HistoryInfoResponse) Authorized() bool {
	return isEmpty(r.AuthError)
}

// HasErrors reports whether the API returned a non-empty errors list.
func (r *HistoryInfoResponse) HasErrors() bool {
	return !isEmpty(r.Errors)
}

// Operation decodes the info object, returning nil when it is absent.
func (r *HistoryInfoResponse) Operation() (*HistoryInfo, error) {
	if isEmpty(r.Info) {
		return nil, nil
	}
	var info HistoryInfo
	if err := json.Unmarshal(r.Info, &info); err != nil {
		return nil, err
	}
	return &info, nil
}
