package domain

import (
	"regexp"
	"strings"
)

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	txHashPattern  = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// NormalizeAddress validates raw as a 0x-prefixed 40-hex-char address and
// returns the lowercase canonical form. The canonical form is what every
// storage key and lookup uses; normalizing twice is a no-op.
func NormalizeAddress(raw string) (string, error) {
	if !addressPattern.MatchString(raw) {
		return "", &ValidationError{Code: ErrInvalidAddress, Value: raw}
	}
	return strings.ToLower(raw), nil
}

// NormalizeTxHash validates raw as a 0x-prefixed 64-hex-char transaction
// hash and returns the lowercase canonical form.
func NormalizeTxHash(raw string) (string, error) {
	if !txHashPattern.MatchString(raw) {
		return "", &ValidationError{Code: ErrInvalidHash, Value: raw}
	}
	return strings.ToLower(raw), nil
}
