package rescue

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"
)

func mustWad(t *testing.T, v string) *uint256.Int {
	t.Helper()
	out, err := ParseWad(v)
	if err != nil {
		t.Fatalf("parse %q: %v", v, err)
	}
	return out
}

func TestParseWad(t *testing.T) {
	cases := map[string]string{
		"66.67":                 "66670000000000000000",
		"0.9":                   "900000000000000000",
		"100":                   "100000000000000000000",
		".5":                    "500000000000000000",
		"1.000000000000000001":  "1000000000000000001",
		"12.3400":               "12340000000000000000",
		" 7 ":                   "7000000000000000000",
		"0":                     "0",
		"0.000000000000000000":  "0",
		"00042.000000000000001": "42000000000000001000",
	}
	for in, want := range cases {
		got, err := ParseWad(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got.Dec() != want {
			t.Fatalf("parse %q: got %s want %s", in, got.Dec(), want)
		}
	}

	for _, bad := range []string{"", "-1", "1.", "1e18", "abc", "1.2.3", "0.0000000000000000001"} {
		if _, err := ParseWad(bad); !errors.Is(err, ErrInvalidDecimal) {
			t.Fatalf("parse %q: expected ErrInvalidDecimal, got %v", bad, err)
		}
	}
}

func TestFormatWad(t *testing.T) {
	cases := map[string]string{
		"0":                    "0",
		"1":                    "0.000000000000000001",
		"11111111111111111111": "11.111111111111111111",
		"100000000000000000000": "100",
		"1500000000000000000":  "1.5",
	}
	for in, want := range cases {
		if got := FormatWad(uint256.MustFromDecimal(in)); got != want {
			t.Fatalf("format %s: got %s want %s", in, got, want)
		}
	}
	if got := FormatWad(nil); got != "0" {
		t.Fatalf("format nil: got %s", got)
	}
	if got := FormatFixed(Ray(), RayDecimals); got != "1" {
		t.Fatalf("format ray: got %s", got)
	}
}

func TestFixedPointOperations(t *testing.T) {
	product, err := WadMul(mustWad(t, "1.5"), mustWad(t, "2"))
	if err != nil || FormatWad(product) != "3" {
		t.Fatalf("wadmul: %s %v", FormatWad(product), err)
	}
	quotient, err := WadDiv(mustWad(t, "10"), mustWad(t, "0.9"))
	if err != nil || FormatWad(quotient) != "11.111111111111111111" {
		t.Fatalf("waddiv: %s %v", FormatWad(quotient), err)
	}
	rate, err := ParseRay("1.05")
	if err != nil {
		t.Fatalf("parse ray: %v", err)
	}
	scaled, err := RayMul(mustWad(t, "200"), rate)
	if err != nil || FormatWad(scaled) != "210" {
		t.Fatalf("raymul: %s %v", FormatWad(scaled), err)
	}
	back, err := RayDiv(scaled, rate)
	if err != nil || FormatWad(back) != "200" {
		t.Fatalf("raydiv: %s %v", FormatWad(back), err)
	}
	widened, err := WadToRay(mustWad(t, "1"))
	if err != nil || !widened.Eq(Ray()) {
		t.Fatalf("wadtoray: %s %v", widened.Dec(), err)
	}
	if narrowed := RayToWad(new(uint256.Int).AddUint64(Ray(), 999_999_999)); !narrowed.Eq(Wad()) {
		t.Fatalf("raytowad should truncate, got %s", narrowed.Dec())
	}
}

func TestFixedPointErrors(t *testing.T) {
	maxInt := new(uint256.Int).SetAllOne()
	if _, err := WadMul(maxInt, mustWad(t, "2")); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := WadDiv(Wad(), new(uint256.Int)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
	if _, err := WadToRay(maxInt); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := sub(Wad(), Ray()); !errors.Is(err, ErrMathUnderflow) {
		t.Fatalf("expected underflow, got %v", err)
	}
	if _, err := add(maxInt, Wad()); !errors.Is(err, ErrMathOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	// max*1e18/1e18 fits in 256 bits even though max*1e18 does not.
	if got, err := WadMul(maxInt, Wad()); err != nil || !got.Eq(maxInt) {
		t.Fatalf("wide intermediate: %v", err)
	}
}

func TestRequiredCollateralScenarios(t *testing.T) {
	market := MarketSnapshot{
		AccumulatedRate:  Ray(),
		LiquidationPrice: mustWad(t, "1"),
		SafetyPrice:      mustWad(t, "0.9"),
	}
	for _, debt := range []string{"66.67", "95", "100"} {
		_, err := RequiredCollateral(PositionSnapshot{LockedCollateral: mustWad(t, "100"), GeneratedDebt: mustWad(t, debt)}, market)
		if !errors.Is(err, ErrNoShortfall) {
			t.Fatalf("debt %s: expected no shortfall, got %v", debt, err)
		}
	}

	required, err := RequiredCollateral(PositionSnapshot{LockedCollateral: mustWad(t, "100"), GeneratedDebt: mustWad(t, "110")}, market)
	if err != nil {
		t.Fatalf("required: %v", err)
	}
	if FormatWad(required) != "11.111111111111111111" {
		t.Fatalf("unexpected required collateral %s", FormatWad(required))
	}

	market.SafetyPrice = new(uint256.Int)
	_, err = RequiredCollateral(PositionSnapshot{LockedCollateral: mustWad(t, "100"), GeneratedDebt: mustWad(t, "110")}, market)
	if !errors.Is(err, ErrSafetyRatioNotMet) {
		t.Fatalf("zero safety price: expected ErrSafetyRatioNotMet, got %v", err)
	}

	// A safety price above the liquidation price cannot restore the position.
	market.SafetyPrice = mustWad(t, "2")
	_, err = RequiredCollateral(PositionSnapshot{LockedCollateral: mustWad(t, "100"), GeneratedDebt: mustWad(t, "110")}, market)
	if !errors.Is(err, ErrSafetyRatioNotMet) || errors.Is(err, ErrNoShortfall) {
		t.Fatalf("expected ErrSafetyRatioNotMet, got %v", err)
	}

	_, err = RequiredCollateral(PositionSnapshot{}, market)
	if !errors.Is(err, ErrNoShortfall) {
		t.Fatalf("empty position: expected no shortfall, got %v", err)
	}
}

func TestReason(t *testing.T) {
	cases := map[string]error{
		"ok":                       nil,
		"unauthorized":             ErrUnauthorized,
		"not_eligible":             &VaultNotEligibleError{VaultID: 3},
		"no_shortfall":             ErrNoShortfall,
		"safety_ratio_not_met":     ErrSafetyRatioNotMet,
		"transfer_failed":          ErrCollateralTransferFailed,
		"oracle_unavailable":       ErrOracleUnavailable,
		"collateral_type_mismatch": ErrCollateralTypeMismatch,
		"math_overflow":            ErrMathOverflow,
		"error":                    errors.New("boom"),
	}
	for want, err := range cases {
		if got := Reason(err); got != want {
			t.Fatalf("Reason(%v) = %s, want %s", err, got, want)
		}
	}
}

func TestCollateralTypeText(t *testing.T) {
	ct, err := NewCollateralType(" ETH-A ")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if ct.String() != "ETH-A" {
		t.Fatalf("unexpected label %q", ct.String())
	}
	var decoded CollateralType
	if err := decoded.UnmarshalText([]byte("ETH-A")); err != nil || decoded != ct {
		t.Fatalf("unmarshal: %v", err)
	}
	if _, err := NewCollateralType(""); !errors.Is(err, ErrInvalidCollateralType) {
		t.Fatalf("expected invalid collateral type, got %v", err)
	}
	if _, err := NewCollateralType("a-label-that-is-far-longer-than-thirty-two-bytes"); !errors.Is(err, ErrInvalidCollateralType) {
		t.Fatalf("expected invalid collateral type, got %v", err)
	}
}
