package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

func principal(label string) string {
	return crypto.MustAddress(crypto.PrincipalPrefix, label).String()
}

func validConfig() *Config {
	return &Config{
		StorageBackend: storage.BackendMemory,
		Genesis: Genesis{
			Governance:       principal("gov"),
			ProtocolCaller:   principal("protocol"),
			Treasury:         principal("treasury"),
			LiquidatorReward: "2.5",
		},
		CollateralTypes: []CollateralType{{
			Name:             "ETH-A",
			Token:            crypto.MustAddress(crypto.TokenPrefix, "weth").String(),
			LiquidationPrice: "1",
			SafetyPrice:      "0.9",
			OraclePrice:      "1",
		}},
		Vaults: []Vault{{
			ID:             1,
			Handler:        crypto.MustAddress(crypto.HandlerPrefix, "vault-1").String(),
			CollateralType: "ETH-A",
			GeneratedDebt:  "110",
			Eligible:       true,
		}},
		Devnet: Devnet{Enabled: true, TreasuryFunds: "100", CollateralJoin: principal("join")},
	}
}

func TestLoadCreatesDefault(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rescued.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, filepath.Join(dir, "engine.keystore"), cfg.EngineKeystorePath)
	require.NoError(t, cfg.Validate())

	addr, err := cfg.EngineAddress()
	require.NoError(t, err)
	require.False(t, addr.IsZero())

	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Genesis, reloaded.Genesis)
	require.Len(t, reloaded.Vaults, 1)
	reloadedAddr, err := reloaded.EngineAddress()
	require.NoError(t, err)
	require.True(t, addr.Equal(reloadedAddr))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rescued.toml")
	require.NoError(t, os.WriteFile(path, []byte("StorageBackend = \"memory\"\nSurplusBuffer = 3\n"), 0o644))
	_, err := Load(path)
	require.ErrorContains(t, err, "SurplusBuffer")
}

func TestValidate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	cases := map[string]func(*Config){
		"backend":          func(c *Config) { c.StorageBackend = "postgres" },
		"governance":       func(c *Config) { c.Genesis.Governance = "" },
		"treasury prefix":  func(c *Config) { c.Genesis.Treasury = crypto.MustAddress(crypto.TokenPrefix, "t").String() },
		"reward":           func(c *Config) { c.Genesis.LiquidatorReward = "-1" },
		"token":            func(c *Config) { c.CollateralTypes[0].Token = principal("weth") },
		"fee":              func(c *Config) { c.CollateralTypes[0].TokenFeeBps = 10_001 },
		"devnet price":     func(c *Config) { c.CollateralTypes[0].OraclePrice = "" },
		"duplicate type":   func(c *Config) { c.CollateralTypes = append(c.CollateralTypes, c.CollateralTypes[0]) },
		"unknown type":     func(c *Config) { c.Vaults[0].CollateralType = "WBTC-A" },
		"duplicate vault":  func(c *Config) { c.Vaults = append(c.Vaults, c.Vaults[0]) },
		"handler":          func(c *Config) { c.Vaults[0].Handler = "" },
		"treasury funds":   func(c *Config) { c.Devnet.TreasuryFunds = "lots" },
		"collateral join":  func(c *Config) { c.Devnet.CollateralJoin = "" },
		"empty pause name": func(c *Config) { c.Pauses = map[string]bool{" ": true} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			require.Error(t, cfg.Validate())
		})
	}
}

func TestParseCollateralDefaults(t *testing.T) {
	parsed, err := CollateralType{Name: "ETH-A", Token: crypto.MustAddress(crypto.TokenPrefix, "weth").String()}.Parse()
	require.NoError(t, err)
	require.True(t, parsed.AccumulatedRate.Eq(rescue.Ray()))
	require.True(t, parsed.OraclePrice.IsZero())

	parsed, err = CollateralType{Name: "ETH-A", Token: crypto.MustAddress(crypto.TokenPrefix, "weth").String(), AccumulatedRate: "1.02"}.Parse()
	require.NoError(t, err)
	require.Equal(t, "1.02", rescue.FormatFixed(parsed.AccumulatedRate, rescue.RayDecimals))
}

func TestRescueGenesis(t *testing.T) {
	g, err := validConfig().RescueGenesis()
	require.NoError(t, err)
	require.Equal(t, principal("gov"), g.Governance.String())
	require.Equal(t, "2.5", rescue.FormatWad(g.LiquidatorReward))
}
