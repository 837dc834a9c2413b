package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"safesaviour/crypto"
	"safesaviour/storage"

	"github.com/BurntSushi/toml"
)

// PassphraseEnv names the variable holding the engine keystore passphrase.
const PassphraseEnv = "RESCUED_KEYSTORE_PASSPHRASE"

type Config struct {
	DataDir            string           `toml:"DataDir"`
	StorageBackend     string           `toml:"StorageBackend"`
	EngineKeystorePath string           `toml:"EngineKeystorePath"`
	Genesis            Genesis          `toml:"genesis"`
	CollateralTypes    []CollateralType `toml:"collateral"`
	Vaults             []Vault          `toml:"vault"`
	Pauses             map[string]bool  `toml:"pauses"`
	Devnet             Devnet           `toml:"devnet"`
}

// Load loads the configuration from the given path. A missing file is created
// with devnet defaults.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %s", path, undecoded[0])
	}

	if strings.TrimSpace(cfg.StorageBackend) == "" {
		cfg.StorageBackend = storage.BackendMemory
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./rescue-data"
	}
	if cfg.Pauses == nil {
		cfg.Pauses = map[string]bool{}
	}
	if err := ensureKeystore(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EngineAddress returns the custody account of the engine as recorded in its
// keystore.
func (c *Config) EngineAddress() (crypto.Address, error) {
	return crypto.KeystoreAddress(c.EngineKeystorePath)
}

func ensureKeystore(configPath string, cfg *Config) error {
	keystorePath := cfg.EngineKeystorePath
	if keystorePath == "" {
		keystorePath = defaultKeystorePath(configPath)
	}

	if _, err := os.Stat(keystorePath); os.IsNotExist(err) {
		key, genErr := crypto.GeneratePrivateKey()
		if genErr != nil {
			return genErr
		}
		if err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(PassphraseEnv)); err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if cfg.EngineKeystorePath != keystorePath {
		cfg.EngineKeystorePath = keystorePath
		return persist(configPath, cfg)
	}
	return nil
}

// createDefault creates and saves a devnet configuration with one collateral
// type and one unsafe vault.
func createDefault(path string) (*Config, error) {
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, os.Getenv(PassphraseEnv)); err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:            "./rescue-data",
		StorageBackend:     storage.BackendMemory,
		EngineKeystorePath: keystorePath,
		Genesis: Genesis{
			Governance:       crypto.MustAddress(crypto.PrincipalPrefix, "governance").String(),
			ProtocolCaller:   crypto.MustAddress(crypto.PrincipalPrefix, "liquidation-engine").String(),
			Treasury:         crypto.MustAddress(crypto.PrincipalPrefix, "treasury").String(),
			LiquidatorReward: "0",
		},
		CollateralTypes: []CollateralType{{
			Name:             "ETH-A",
			Token:            crypto.MustAddress(crypto.TokenPrefix, "weth").String(),
			AccumulatedRate:  "1",
			LiquidationPrice: "1",
			SafetyPrice:      "0.9",
			OraclePrice:      "1",
		}},
		Vaults: []Vault{{
			ID:               1,
			Handler:          crypto.MustAddress(crypto.HandlerPrefix, "vault-1").String(),
			CollateralType:   "ETH-A",
			LockedCollateral: "100",
			GeneratedDebt:    "110",
			Eligible:         true,
		}},
		Pauses: map[string]bool{},
		Devnet: Devnet{
			Enabled:        true,
			TreasuryFunds:  "1000000",
			CollateralJoin: crypto.MustAddress(crypto.PrincipalPrefix, "collateral-join").String(),
		},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	dir := filepath.Dir(configPath)
	if dir == "." || dir == "" {
		dir = ""
	}
	return filepath.Join(dir, "engine.keystore")
}
