// Package money handles fixed-point currency amounts as int64 minor units.
// Nothing in this codebase stores or computes money as a binary float; wire
// values arrive as decimal strings or JSON numbers and are converted once here.
package money

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

var ErrInvalidAmount = errors.New("invalid money amount")

// ParseDecimal converts a decimal major-unit string ("45.90", "45", "45.9")
// into minor units without going through a float. A comma decimal separator
// is accepted since several delivery platforms send pt-BR formatted values.
func ParseDecimal(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")

	negative := false
	if s[0] == '+' || s[0] == '-' {
		negative = s[0] == '-'
		s = s[1:]
	}

	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" && frac == "" {
		return 0, ErrInvalidAmount
	}
	if whole == "" {
		whole = "0"
	}

	var minor int64
	for _, c := range whole {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		minor = minor*10 + int64(c-'0')
	}
	minor *= 100

	// Two fractional digits count; a third digit rounds half-up.
	for i, c := range frac {
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
		}
		switch i {
		case 0:
			minor += int64(c-'0') * 10
		case 1:
			minor += int64(c - '0')
		case 2:
			if c >= '5' {
				minor++
			}
		}
	}

	if negative {
		minor = -minor
	}
	return minor, nil
}

// FromFloat converts a major-unit JSON number into minor units, rounding to
// the cent. Non-finite values collapse to zero: upstream payloads are not
// trusted to be clean and a zero total is logged as a data-quality event by
// the caller, never treated as fatal.
func FromFloat(v float64) int64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int64(math.Round(v * 100))
}

// Format renders minor units as a plain decimal string ("4590" -> "45.90").
func Format(minor int64) string {
	sign := ""
	u := uint64(minor)
	if minor < 0 {
		// Magnitude via two's complement so math.MinInt64 does not overflow.
		sign = "-"
		u = -uint64(minor)
	}
	return fmt.Sprintf("%s%d.%02d", sign, u/100, u%100)
}
