// Package purse validates and canonicalizes external payment wallet identifiers.
package purse

import (
	"regexp"
	"strings"
)

// Kind is a payment provider whose wallet identifiers can be bound to an account.
type Kind string

const (
	KindPayeer   Kind = "payeer"
	KindQiwi     Kind = "qiwi"
	KindYooMoney Kind = "yoomoney"
)

// Kinds lists every supported wallet kind.
var Kinds = []Kind{KindPayeer, KindQiwi, KindYooMoney}

// Address is a canonical wallet identifier tagged with its kind.
type Address struct {
	Kind  Kind
	Value string
}

var (
	rePayeer      = regexp.MustCompile(`^P[0-9]{7,12}$`)
	reQiwiStrict  = regexp.MustCompile(`^\+79[0-9]{9}$`)
	reQiwiFlex    = regexp.MustCompile(`^[78]9[0-9]{9}$`)
	reYooMoney    = regexp.MustCompile(`^41001[0-9]{7,11}$`)
	separatorsMap = strings.NewReplacer(
		" ", "", "-", "", "(", "", ")", "", ".", "",
		"\t", "", "\n", "", "\r", "", "\u00a0", "",
		"\u200b", "", "\u200c", "", "\u200d", "", "\ufeff", "",
	)
)

// ParseKind maps a provider name, including legacy aliases, to a Kind.
func ParseKind(name string) (Kind, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "payeer":
		return KindPayeer, true
	case "qiwi":
		return KindQiwi, true
	case "yoomoney", "yandex", "yad":
		return KindYooMoney, true
	default:
		return "", false
	}
}

func normalize(raw string) string {
	return separatorsMap.Replace(strings.ToUpper(strings.TrimSpace(raw)))
}

// Payeer accepts "P" followed by 7 to 12 digits.
func Payeer(raw string) (string, bool) {
	s := normalize(raw)
	if !rePayeer.MatchString(s) {
		return "", false
	}
	return s, true
}

// Qiwi accepts "+79XXXXXXXXX", or "79XXXXXXXXX"/"89XXXXXXXXX" which are rewritten to "+7" and the last 10 digits.
func Qiwi(raw string) (string, bool) {
	s := normalize(raw)
	if reQiwiStrict.MatchString(s) {
		return s, true
	}
	if reQiwiFlex.MatchString(s) {
		return "+7" + s[len(s)-10:], true
	}
	return "", false
}

// YooMoney accepts "41001" followed by 7 to 11 digits.
func YooMoney(raw string) (string, bool) {
	s := normalize(raw)
	if !reYooMoney.MatchString(s) {
		return "", false
	}
	return s, true
}

// Validate canonicalizes raw for the named provider kind.
func Validate(kind, raw string) (Address, bool) {
	k, ok := ParseKind(kind)
	if !ok {
		return Address{}, false
	}
	var (
		value string
		valid bool
	)
	switch k {
	case KindPayeer:
		value, valid = Payeer(raw)
	case KindQiwi:
		value, valid = Qiwi(raw)
	case KindYooMoney:
		value, valid = YooMoney(raw)
	}
	if !valid {
		return Address{}, false
	}
	return Address{Kind: k, Value: value}, true
}
