package ethereum

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// ParseUnits scales a decimal string such as "1.5" by 10^decimals. Digits past
// the token's precision are rounded half-up on the first dropped digit.
func ParseUnits(value string, decimals int) (*big.Int, error) {
	if decimals < 0 {
		return nil, fmt.Errorf("invalid decimals %d", decimals)
	}
	s := strings.TrimSpace(value)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}
	if s == "" || s == "." {
		return nil, fmt.Errorf("invalid decimal number %q", value)
	}

	whole, frac, _ := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("invalid decimal number %q", value)
	}

	roundUp := false
	if len(frac) > decimals {
		roundUp = frac[decimals] >= '5'
		frac = frac[:decimals]
	}
	frac += strings.Repeat("0", decimals-len(frac))

	out, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal number %q", value)
	}
	if roundUp {
		out.Add(out, big.NewInt(1))
	}
	if neg {
		out.Neg(out)
	}
	return out, nil
}

// FloatToUnits is ParseUnits for already-parsed amounts. The float is printed
// with the shortest representation that round-trips, so 0.1 scales to exactly
// 10^(decimals-1).
func FloatToUnits(amount float64, decimals int) (*big.Int, error) {
	return ParseUnits(strconv.FormatFloat(amount, 'f', -1, 64), decimals)
}

// FormatUnits is the inverse of ParseUnits, trimming trailing zeros.
func FormatUnits(v *big.Int, decimals int) string {
	neg := v.Sign() < 0
	digits := new(big.Int).Abs(v).String()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")

	out := whole
	if frac != "" {
		out += "." + frac
	}
	if neg {
		out = "-" + out
	}
	return out
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}
