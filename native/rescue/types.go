package rescue

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
)

// CollateralType is a fixed-width tag naming a category of backing asset.
type CollateralType [32]byte

// NewCollateralType packs a short label into a collateral type tag.
func NewCollateralType(name string) (CollateralType, error) {
	var ct CollateralType
	trimmed := strings.TrimSpace(name)
	if trimmed == "" || len(trimmed) > len(ct) {
		return ct, fmt.Errorf("%w: %q", ErrInvalidCollateralType, name)
	}
	copy(ct[:], trimmed)
	return ct, nil
}

// MustCollateralType is NewCollateralType for constants and fixtures.
func MustCollateralType(name string) CollateralType {
	ct, err := NewCollateralType(name)
	if err != nil {
		panic(err)
	}
	return ct
}

// String returns the label with trailing padding removed.
func (c CollateralType) String() string {
	return string(bytes.TrimRight(c[:], "\x00"))
}

// IsZero reports whether the tag is unset.
func (c CollateralType) IsZero() bool {
	return c == CollateralType{}
}

func (c CollateralType) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *CollateralType) UnmarshalText(text []byte) error {
	ct, err := NewCollateralType(string(text))
	if err != nil {
		return err
	}
	*c = ct
	return nil
}

// VaultID identifies a position in the external ledger.
type VaultID uint64

// PositionSnapshot is the freshly read collateral and debt of a vault, both
// WAD.
type PositionSnapshot struct {
	LockedCollateral *uint256.Int
	GeneratedDebt    *uint256.Int
}

// MarketSnapshot carries the per-collateral-type rates read from the ledger
// and the oracle. AccumulatedRate is RAY; prices are WAD.
type MarketSnapshot struct {
	AccumulatedRate  *uint256.Int
	LiquidationPrice *uint256.Int
	SafetyPrice      *uint256.Int
	OraclePrice      *uint256.Int
}

// Parameters groups the governance controlled scalars of the engine.
type Parameters struct {
	// LiquidatorReward is reported back to the trigger on every rescue. It
	// may be zero.
	LiquidatorReward *uint256.Int
	// Treasury funds every top-up and holds the treasury role.
	Treasury crypto.Address
	// ProtocolCaller is the only principal allowed to trigger rescues.
	ProtocolCaller crypto.Address
}

// Clone returns a deep copy of the parameters.
func (p Parameters) Clone() Parameters {
	clone := Parameters{
		LiquidatorReward: new(uint256.Int),
		Treasury:         p.Treasury,
		ProtocolCaller:   p.ProtocolCaller,
	}
	if p.LiquidatorReward != nil {
		clone.LiquidatorReward.Set(p.LiquidatorReward)
	}
	return clone
}

// Outcome tags how a rescue invocation concluded.
type Outcome uint8

const (
	OutcomeUnspecified Outcome = iota
	// OutcomeRescued means collateral was added to the vault.
	OutcomeRescued
	// OutcomeNotManaged means the handler maps to no vault; nothing changed.
	OutcomeNotManaged
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRescued:
		return "rescued"
	case OutcomeNotManaged:
		return "not_managed"
	default:
		return "unspecified"
	}
}

// Result describes a successful rescue invocation. Rejections are reported as
// errors instead.
type Result struct {
	Outcome         Outcome
	VaultID         VaultID
	CollateralAdded *uint256.Int
	Reward          *uint256.Int
	// CollateralValue is CollateralAdded priced at the oracle price.
	CollateralValue *uint256.Int
	ReceiptID       [32]byte
}
