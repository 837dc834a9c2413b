package rescue

import (
	"context"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
)

// VaultRegistry maps vault handlers to vault identifiers.
type VaultRegistry interface {
	Resolve(ctx context.Context, handler crypto.Address) (VaultID, bool, error)
	CollateralTypeOf(ctx context.Context, id VaultID) (CollateralType, error)
}

// Ledger exposes the collateral and debt records of vaults.
type Ledger interface {
	PositionOf(ctx context.Context, ct CollateralType, handler crypto.Address) (PositionSnapshot, error)
	// RatesFor returns the accumulated rate and the liquidation and safety
	// prices. OraclePrice is left unset.
	RatesFor(ctx context.Context, ct CollateralType) (MarketSnapshot, error)
	IncreaseLockedCollateral(ctx context.Context, id VaultID, amount *uint256.Int) error
}

// PriceOracle reports the current WAD price of a collateral type.
type PriceOracle interface {
	Read(ctx context.Context, ct CollateralType) (*uint256.Int, error)
}

// ReserveToken is the debit/credit contract of a reserve token. Transfers
// either move the full amount or report false/an error.
type ReserveToken interface {
	TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *uint256.Int) (bool, error)
	Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (bool, error)
	Approve(ctx context.Context, owner, spender crypto.Address, amount *uint256.Int) error
	BalanceOf(ctx context.Context, account crypto.Address) (*uint256.Int, error)
}

// TokenDirectory resolves a token handle to its implementation.
type TokenDirectory interface {
	Token(handle crypto.Address) (ReserveToken, error)
}

// DepositSink moves tokens from the engine's custody into the ledger's
// backing reserve for a collateral type.
type DepositSink interface {
	Address() crypto.Address
	Deposit(ctx context.Context, ct CollateralType, handler, from crypto.Address, amount *uint256.Int) error
	// Withdraw reverses a deposit. The engine only calls it to unwind a
	// rescue whose ledger update failed.
	Withdraw(ctx context.Context, ct CollateralType, handler, to crypto.Address, amount *uint256.Int) error
}

// Collaborators bundles the external components the engine consumes.
type Collaborators struct {
	Vaults VaultRegistry
	Ledger Ledger
	Oracle PriceOracle
	Tokens TokenDirectory
	Sink   DepositSink
}

func (c Collaborators) complete() bool {
	return c.Vaults != nil && c.Ledger != nil && c.Oracle != nil && c.Tokens != nil && c.Sink != nil
}
