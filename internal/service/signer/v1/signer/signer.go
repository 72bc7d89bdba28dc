// Package signer computes and verifies FreeKassa merchant signatures.
package signer

import (
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"github.com/shopspring/decimal"
)

// Sign returns md5("merchantID:amount:secret:orderID") in lowercase hex.
func Sign(merchantID, amount, secret, orderID string) string {
	sum := md5.Sum([]byte(merchantID + ":" + amount + ":" + secret + ":" + orderID))
	return hex.EncodeToString(sum[:])
}

// Verify reports whether provided is the signature of the given fields.
// Any missing field, a non-numeric amount or a mismatch yields false.
func Verify(merchantID, amount, orderID, secret, provided string) bool {
	if merchantID == "" || amount == "" || orderID == "" || secret == "" || provided == "" {
		return false
	}
	if _, err := decimal.NewFromString(amount); err != nil {
		return false
	}
	expected := Sign(merchantID, amount, secret, orderID)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(provided))) == 1
}
