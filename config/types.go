package config

// Genesis lists the principals and parameters written on first start.
type Genesis struct {
	Governance       string `toml:"Governance"`
	ProtocolCaller   string `toml:"ProtocolCaller"`
	Treasury         string `toml:"Treasury"`
	LiquidatorReward string `toml:"LiquidatorReward"`
}

// CollateralType binds a collateral type to its reserve token. The price and
// rate fields seed the in-memory ledger in devnet mode.
type CollateralType struct {
	Name             string `toml:"Name"`
	Token            string `toml:"Token"`
	TokenFeeBps      uint64 `toml:"TokenFeeBps,omitempty"`
	AccumulatedRate  string `toml:"AccumulatedRate,omitempty"`
	LiquidationPrice string `toml:"LiquidationPrice,omitempty"`
	SafetyPrice      string `toml:"SafetyPrice,omitempty"`
	OraclePrice      string `toml:"OraclePrice,omitempty"`
}

// Vault describes a devnet vault and whether it is enabled for rescues.
type Vault struct {
	ID               uint64 `toml:"ID"`
	Handler          string `toml:"Handler"`
	CollateralType   string `toml:"CollateralType"`
	LockedCollateral string `toml:"LockedCollateral,omitempty"`
	GeneratedDebt    string `toml:"GeneratedDebt,omitempty"`
	Eligible         bool   `toml:"Eligible"`
}

// Devnet seeds the in-memory collaborators used when no external ledger is
// attached.
type Devnet struct {
	Enabled        bool   `toml:"Enabled"`
	TreasuryFunds  string `toml:"TreasuryFunds"`
	CollateralJoin string `toml:"CollateralJoin"`
}
