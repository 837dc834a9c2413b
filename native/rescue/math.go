package rescue

import (
	"errors"
	"fmt"
	"strings"

	"github.com/holiman/uint256"
)

const (
	// WadDecimals is the precision of amounts and prices.
	WadDecimals = 18
	// RayDecimals is the precision of rates and ratios.
	RayDecimals = 27
)

var (
	ErrMathOverflow    = errors.New("rescue math: overflow")
	ErrMathUnderflow   = errors.New("rescue math: underflow")
	ErrDivisionByZero  = errors.New("rescue math: division by zero")
	ErrInvalidDecimal  = errors.New("rescue math: invalid decimal")
	errTooManyDecimals = fmt.Errorf("%w: too many fractional digits", ErrInvalidDecimal)
)

var (
	wad         = uint256.NewInt(1_000_000_000_000_000_000)
	ray         = uint256.MustFromDecimal("1000000000000000000000000000")
	wadRayRatio = uint256.NewInt(1_000_000_000)
)

// Wad returns 1.0 in the 18-decimal scale.
func Wad() *uint256.Int { return new(uint256.Int).Set(wad) }

// Ray returns 1.0 in the 27-decimal scale.
func Ray() *uint256.Int { return new(uint256.Int).Set(ray) }

// mulDiv computes a*b/d with a 512-bit intermediate. The result truncates and
// is rejected when it does not fit in 256 bits.
func mulDiv(a, b, d *uint256.Int) (*uint256.Int, error) {
	if a == nil || b == nil {
		return new(uint256.Int), nil
	}
	if d == nil || d.IsZero() {
		return nil, ErrDivisionByZero
	}
	z, overflow := new(uint256.Int).MulDivOverflow(a, b, d)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// WadMul multiplies two WAD values.
func WadMul(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, b, wad) }

// WadDiv divides a by b, both WAD, returning WAD.
func WadDiv(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, wad, b) }

// RayMul multiplies a value by a RAY factor, keeping the scale of a.
func RayMul(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, b, ray) }

// RayDiv divides a by a RAY factor, keeping the scale of a.
func RayDiv(a, b *uint256.Int) (*uint256.Int, error) { return mulDiv(a, ray, b) }

// WadToRay widens a WAD value to RAY.
func WadToRay(a *uint256.Int) (*uint256.Int, error) {
	if a == nil {
		return new(uint256.Int), nil
	}
	z, overflow := new(uint256.Int).MulOverflow(a, wadRayRatio)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

// RayToWad narrows a RAY value to WAD, truncating the low nine digits.
func RayToWad(a *uint256.Int) *uint256.Int {
	if a == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Div(a, wadRayRatio)
}

func add(a, b *uint256.Int) (*uint256.Int, error) {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return nil, ErrMathOverflow
	}
	return z, nil
}

func sub(a, b *uint256.Int) (*uint256.Int, error) {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return nil, ErrMathUnderflow
	}
	return z, nil
}

// ParseWad parses a non-negative decimal string such as "66.67" into WAD.
func ParseWad(value string) (*uint256.Int, error) { return ParseFixed(value, WadDecimals) }

// ParseRay parses a non-negative decimal string into RAY.
func ParseRay(value string) (*uint256.Int, error) { return ParseFixed(value, RayDecimals) }

// ParseFixed parses a non-negative decimal string into a fixed-point integer
// with the given number of fractional digits. Excess precision is rejected
// rather than rounded.
func ParseFixed(value string, decimals int) (*uint256.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, ErrInvalidDecimal
	}
	whole, frac, hasPoint := strings.Cut(trimmed, ".")
	if whole == "" {
		whole = "0"
	}
	if hasPoint && frac == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}
	if !isDigits(whole) || (frac != "" && !isDigits(frac)) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidDecimal, value)
	}
	frac = strings.TrimRight(frac, "0")
	if len(frac) > decimals {
		return nil, fmt.Errorf("%w: %q", errTooManyDecimals, value)
	}
	digits := strings.TrimLeft(whole+frac+strings.Repeat("0", decimals-len(frac)), "0")
	if digits == "" {
		return new(uint256.Int), nil
	}
	z, err := uint256.FromDecimal(digits)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMathOverflow, err)
	}
	return z, nil
}

// FormatWad renders a WAD value as a decimal string without trailing zeros.
func FormatWad(v *uint256.Int) string { return FormatFixed(v, WadDecimals) }

// FormatFixed renders a fixed-point integer as a decimal string.
func FormatFixed(v *uint256.Int, decimals int) string {
	if v == nil || v.IsZero() {
		return "0"
	}
	digits := v.Dec()
	if len(digits) <= decimals {
		digits = strings.Repeat("0", decimals-len(digits)+1) + digits
	}
	whole := digits[:len(digits)-decimals]
	frac := strings.TrimRight(digits[len(digits)-decimals:], "0")
	if frac == "" {
		return whole
	}
	return whole + "." + frac
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
