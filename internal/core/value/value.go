// Package value converts between base-unit integer amounts and display
// decimals. Base units travel as decimal digit strings because token
// balances routinely exceed the 53-bit float-safe range; all conversion
// here is exact decimal arithmetic, never binary floating point.
package value

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vietanh/walletledger/internal/core/domain"
)

// DefaultDecimals is used when a token or network does not specify a
// decimal count.
const DefaultDecimals = 18

// ToDisplay divides a base-unit amount by 10^decimals and returns the exact
// decimal string, with trailing zeros trimmed ("1.500" -> "1.5", "1" stays
// "1"). decimals <= 0 means DefaultDecimals is assumed by callers that have
// no token metadata; pass 0 explicitly for indivisible units.
func ToDisplay(baseAmount string, decimals int) (string, error) {
	n, err := parseBaseAmount(baseAmount)
	if err != nil {
		return "", err
	}
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	// Shifting the exponent is exact: no division actually happens.
	return n.Shift(int32(-decimals)).String(), nil
}

// ToBaseUnits converts a display decimal string back to a base-unit integer
// string. It fails if the input is malformed, negative, or has more
// fractional digits than decimals allows (that would silently truncate).
func ToBaseUnits(displayAmount string, decimals int) (string, error) {
	s := strings.TrimSpace(displayAmount)
	if s == "" {
		return "", &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: displayAmount}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return "", &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: displayAmount}
	}
	if d.IsNegative() {
		return "", &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: displayAmount}
	}
	if decimals < 0 {
		decimals = DefaultDecimals
	}
	shifted := d.Shift(int32(decimals))
	if !shifted.IsInteger() {
		return "", &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: displayAmount}
	}
	return shifted.String(), nil
}

// TokenDisplayBalance renders a token balance using the token's own decimal
// count, defaulting to 18 when unset.
func TokenDisplayBalance(t *domain.TokenBalance) (string, error) {
	decimals := t.Decimals
	if decimals <= 0 {
		decimals = DefaultDecimals
	}
	return ToDisplay(t.Balance, decimals)
}

// SheetTotalUSD sums display-balance * price across a sheet's tokens.
//
// This is a display-only aggregate: prices are floats supplied by an
// external source, so the result must never feed an invariant check or an
// equality comparison. Exact comparisons always operate on base units.
func SheetTotalUSD(sheet *domain.BalanceSheet) (string, error) {
	total := decimal.Zero
	for _, t := range sheet.Tokens {
		if t.PriceUSD == 0 || t.Balance == "" {
			continue
		}
		decimals := t.Decimals
		if decimals <= 0 {
			decimals = DefaultDecimals
		}
		n, err := parseBaseAmount(t.Balance)
		if err != nil {
			return "", err
		}
		price := decimal.NewFromFloat(t.PriceUSD)
		total = total.Add(n.Shift(int32(-decimals)).Mul(price))
	}
	return total.String(), nil
}

// ValidateBaseAmount checks that s is a well-formed base-unit amount: a
// non-empty string of decimal digits. Negative and fractional inputs fail.
func ValidateBaseAmount(s string) error {
	_, err := parseBaseAmount(s)
	return err
}

// parseBaseAmount validates a non-negative decimal digit string.
func parseBaseAmount(s string) (decimal.Decimal, error) {
	if s == "" || !isDigits(s) {
		return decimal.Decimal{}, &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: s}
	}
	n, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Decimal{}, &domain.ValidationError{Code: domain.ErrInvalidAmount, Value: s}
	}
	return n, nil
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
