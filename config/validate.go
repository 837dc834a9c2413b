package config

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

// ParsedCollateral is a CollateralType with every field decoded.
type ParsedCollateral struct {
	Type             rescue.CollateralType
	Token            crypto.Address
	TokenFeeBps      uint64
	AccumulatedRate  *uint256.Int
	LiquidationPrice *uint256.Int
	SafetyPrice      *uint256.Int
	OraclePrice      *uint256.Int
}

// ParsedVault is a Vault with every field decoded.
type ParsedVault struct {
	ID               rescue.VaultID
	Handler          crypto.Address
	CollateralType   rescue.CollateralType
	LockedCollateral *uint256.Int
	GeneratedDebt    *uint256.Int
	Eligible         bool
}

// Validate checks that every address and amount decodes and that vaults only
// reference configured collateral types.
func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.StorageBackend)) {
	case storage.BackendMemory, storage.BackendLevelDB, storage.BackendBolt:
	default:
		return fmt.Errorf("StorageBackend: unknown backend %q", c.StorageBackend)
	}
	if _, err := c.RescueGenesis(); err != nil {
		return err
	}

	types := make(map[rescue.CollateralType]struct{}, len(c.CollateralTypes))
	for i, ct := range c.CollateralTypes {
		parsed, err := ct.Parse()
		if err != nil {
			return fmt.Errorf("collateral[%d]: %w", i, err)
		}
		if _, dup := types[parsed.Type]; dup {
			return fmt.Errorf("collateral[%d]: duplicate collateral type %s", i, parsed.Type)
		}
		if c.Devnet.Enabled && (parsed.LiquidationPrice.IsZero() || parsed.SafetyPrice.IsZero() || parsed.OraclePrice.IsZero()) {
			return fmt.Errorf("collateral[%d]: devnet requires non-zero prices for %s", i, parsed.Type)
		}
		types[parsed.Type] = struct{}{}
	}

	ids := make(map[rescue.VaultID]struct{}, len(c.Vaults))
	for i, v := range c.Vaults {
		parsed, err := v.Parse()
		if err != nil {
			return fmt.Errorf("vault[%d]: %w", i, err)
		}
		if _, dup := ids[parsed.ID]; dup {
			return fmt.Errorf("vault[%d]: duplicate vault id %d", i, parsed.ID)
		}
		if _, ok := types[parsed.CollateralType]; !ok {
			return fmt.Errorf("vault[%d]: collateral type %s is not configured", i, parsed.CollateralType)
		}
		ids[parsed.ID] = struct{}{}
	}

	for module := range c.Pauses {
		if strings.TrimSpace(module) == "" {
			return fmt.Errorf("pauses: empty module name")
		}
	}

	if c.Devnet.Enabled {
		if _, err := parseAmount(c.Devnet.TreasuryFunds); err != nil {
			return fmt.Errorf("devnet.TreasuryFunds: %w", err)
		}
		if _, err := parseAddress(c.Devnet.CollateralJoin, crypto.PrincipalPrefix); err != nil {
			return fmt.Errorf("devnet.CollateralJoin: %w", err)
		}
	}
	return nil
}

// RescueGenesis decodes the genesis section.
func (c *Config) RescueGenesis() (rescue.Genesis, error) {
	var (
		g   rescue.Genesis
		err error
	)
	if g.Governance, err = parseAddress(c.Genesis.Governance, crypto.PrincipalPrefix); err != nil {
		return g, fmt.Errorf("genesis.Governance: %w", err)
	}
	if g.ProtocolCaller, err = parseAddress(c.Genesis.ProtocolCaller, crypto.PrincipalPrefix); err != nil {
		return g, fmt.Errorf("genesis.ProtocolCaller: %w", err)
	}
	if g.Treasury, err = parseAddress(c.Genesis.Treasury, crypto.PrincipalPrefix); err != nil {
		return g, fmt.Errorf("genesis.Treasury: %w", err)
	}
	if g.LiquidatorReward, err = parseAmount(c.Genesis.LiquidatorReward); err != nil {
		return g, fmt.Errorf("genesis.LiquidatorReward: %w", err)
	}
	return g, nil
}

// Parse decodes the collateral type. A missing accumulated rate defaults to
// 1.0 and missing prices to zero.
func (c CollateralType) Parse() (ParsedCollateral, error) {
	var (
		out ParsedCollateral
		err error
	)
	if out.Type, err = rescue.NewCollateralType(c.Name); err != nil {
		return out, err
	}
	if out.Token, err = parseAddress(c.Token, crypto.TokenPrefix); err != nil {
		return out, fmt.Errorf("Token: %w", err)
	}
	if c.TokenFeeBps > 10_000 {
		return out, fmt.Errorf("TokenFeeBps: %d exceeds 10000", c.TokenFeeBps)
	}
	out.TokenFeeBps = c.TokenFeeBps
	out.AccumulatedRate = rescue.Ray()
	if strings.TrimSpace(c.AccumulatedRate) != "" {
		if out.AccumulatedRate, err = rescue.ParseRay(c.AccumulatedRate); err != nil {
			return out, fmt.Errorf("AccumulatedRate: %w", err)
		}
	}
	if out.LiquidationPrice, err = parseAmount(c.LiquidationPrice); err != nil {
		return out, fmt.Errorf("LiquidationPrice: %w", err)
	}
	if out.SafetyPrice, err = parseAmount(c.SafetyPrice); err != nil {
		return out, fmt.Errorf("SafetyPrice: %w", err)
	}
	if out.OraclePrice, err = parseAmount(c.OraclePrice); err != nil {
		return out, fmt.Errorf("OraclePrice: %w", err)
	}
	return out, nil
}

// Parse decodes the vault.
func (v Vault) Parse() (ParsedVault, error) {
	var (
		out ParsedVault
		err error
	)
	out.ID = rescue.VaultID(v.ID)
	out.Eligible = v.Eligible
	if out.Handler, err = parseAddress(v.Handler, crypto.HandlerPrefix); err != nil {
		return out, fmt.Errorf("Handler: %w", err)
	}
	if out.CollateralType, err = rescue.NewCollateralType(v.CollateralType); err != nil {
		return out, err
	}
	if out.LockedCollateral, err = parseAmount(v.LockedCollateral); err != nil {
		return out, fmt.Errorf("LockedCollateral: %w", err)
	}
	if out.GeneratedDebt, err = parseAmount(v.GeneratedDebt); err != nil {
		return out, fmt.Errorf("GeneratedDebt: %w", err)
	}
	return out, nil
}

func parseAmount(value string) (*uint256.Int, error) {
	if strings.TrimSpace(value) == "" {
		return new(uint256.Int), nil
	}
	return rescue.ParseWad(value)
}

func parseAddress(value string, prefix crypto.AddressPrefix) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(value))
	if err != nil {
		return crypto.Address{}, err
	}
	if addr.Prefix() != prefix {
		return crypto.Address{}, fmt.Errorf("expected %s prefix, got %s", prefix, addr.Prefix())
	}
	return addr, nil
}
