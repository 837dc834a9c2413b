package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
)

// Rates are the per collateral type figures kept by the book.
type Rates struct {
	AccumulatedRate  *uint256.Int
	LiquidationPrice *uint256.Int
	SafetyPrice      *uint256.Int
}

// Book keeps the collateral and debt of every vault in a registry.
type Book struct {
	mu        sync.RWMutex
	registry  *Registry
	positions map[rescue.VaultID]rescue.PositionSnapshot
	rates     map[rescue.CollateralType]Rates
}

var _ rescue.Ledger = (*Book)(nil)

func NewBook(registry *Registry) *Book {
	return &Book{
		registry:  registry,
		positions: make(map[rescue.VaultID]rescue.PositionSnapshot),
		rates:     make(map[rescue.CollateralType]Rates),
	}
}

// SetPosition overwrites the collateral and debt of a vault.
func (b *Book) SetPosition(id rescue.VaultID, locked, debt *uint256.Int) error {
	if _, ok := b.registry.Vault(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVault, id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.positions[id] = rescue.PositionSnapshot{
		LockedCollateral: clone(locked),
		GeneratedDebt:    clone(debt),
	}
	return nil
}

// SetRates overwrites the rates of a collateral type.
func (b *Book) SetRates(ct rescue.CollateralType, rates Rates) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rates[ct] = Rates{
		AccumulatedRate:  clone(rates.AccumulatedRate),
		LiquidationPrice: clone(rates.LiquidationPrice),
		SafetyPrice:      clone(rates.SafetyPrice),
	}
}

// Position returns the stored position of a vault.
func (b *Book) Position(id rescue.VaultID) (rescue.PositionSnapshot, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.positions[id]
	if !ok {
		return rescue.PositionSnapshot{}, false
	}
	return rescue.PositionSnapshot{LockedCollateral: clone(p.LockedCollateral), GeneratedDebt: clone(p.GeneratedDebt)}, true
}

func (b *Book) PositionOf(ctx context.Context, ct rescue.CollateralType, handler crypto.Address) (rescue.PositionSnapshot, error) {
	id, ok, err := b.registry.Resolve(ctx, handler)
	if err != nil {
		return rescue.PositionSnapshot{}, err
	}
	if !ok {
		return rescue.PositionSnapshot{}, fmt.Errorf("%w: handler %s", ErrUnknownVault, handler)
	}
	vault, _ := b.registry.Vault(id)
	if vault.CollateralType != ct {
		return rescue.PositionSnapshot{}, fmt.Errorf("%w: vault %d is %s", rescue.ErrCollateralTypeMismatch, id, vault.CollateralType)
	}
	position, ok := b.Position(id)
	if !ok {
		return rescue.PositionSnapshot{LockedCollateral: new(uint256.Int), GeneratedDebt: new(uint256.Int)}, nil
	}
	return position, nil
}

func (b *Book) RatesFor(_ context.Context, ct rescue.CollateralType) (rescue.MarketSnapshot, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	r, ok := b.rates[ct]
	if !ok {
		return rescue.MarketSnapshot{}, fmt.Errorf("ledger: no rates for %s", ct)
	}
	return rescue.MarketSnapshot{
		AccumulatedRate:  clone(r.AccumulatedRate),
		LiquidationPrice: clone(r.LiquidationPrice),
		SafetyPrice:      clone(r.SafetyPrice),
	}, nil
}

func (b *Book) IncreaseLockedCollateral(_ context.Context, id rescue.VaultID, amount *uint256.Int) error {
	if _, ok := b.registry.Vault(id); !ok {
		return fmt.Errorf("%w: %d", ErrUnknownVault, id)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	p := b.positions[id]
	locked := clone(p.LockedCollateral)
	if _, overflow := locked.AddOverflow(locked, amount); overflow {
		return rescue.ErrMathOverflow
	}
	p.LockedCollateral = locked
	if p.GeneratedDebt == nil {
		p.GeneratedDebt = new(uint256.Int)
	}
	b.positions[id] = p
	return nil
}

// Oracle serves fixed prices per collateral type.
type Oracle struct {
	mu     sync.RWMutex
	prices map[rescue.CollateralType]*uint256.Int
}

var _ rescue.PriceOracle = (*Oracle)(nil)

func NewOracle() *Oracle {
	return &Oracle{prices: make(map[rescue.CollateralType]*uint256.Int)}
}

func (o *Oracle) SetPrice(ct rescue.CollateralType, price *uint256.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[ct] = clone(price)
}

func (o *Oracle) Read(_ context.Context, ct rescue.CollateralType) (*uint256.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	price, ok := o.prices[ct]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPrice, ct)
	}
	return clone(price), nil
}

func clone(v *uint256.Int) *uint256.Int {
	if v == nil {
		return new(uint256.Int)
	}
	return new(uint256.Int).Set(v)
}
