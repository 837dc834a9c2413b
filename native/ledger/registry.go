package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
)

var (
	ErrUnknownVault   = rescue.ErrUnknownVault
	ErrDuplicateVault = errors.New("ledger: vault already open")
	ErrNoPrice        = errors.New("ledger: no price for collateral type")
	ErrUnknownToken   = errors.New("ledger: unknown token")
	ErrInsufficient   = errors.New("ledger: insufficient balance")
	ErrAllowance      = errors.New("ledger: allowance exceeded")
)

// Vault is a position opened in the registry.
type Vault struct {
	ID             rescue.VaultID
	Handler        crypto.Address
	CollateralType rescue.CollateralType
}

// Registry maps vault handlers to vault identifiers.
type Registry struct {
	mu        sync.RWMutex
	byHandler map[string]rescue.VaultID
	vaults    map[rescue.VaultID]Vault
}

var _ rescue.VaultRegistry = (*Registry)(nil)

func NewRegistry() *Registry {
	return &Registry{
		byHandler: make(map[string]rescue.VaultID),
		vaults:    make(map[rescue.VaultID]Vault),
	}
}

// Open records a new vault. Handlers and identifiers are unique.
func (r *Registry) Open(id rescue.VaultID, handler crypto.Address, ct rescue.CollateralType) error {
	if handler.IsZero() || ct.IsZero() {
		return fmt.Errorf("ledger: vault %d requires a handler and collateral type", id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.vaults[id]; ok {
		return fmt.Errorf("%w: %d", ErrDuplicateVault, id)
	}
	if _, ok := r.byHandler[string(handler.Bytes())]; ok {
		return fmt.Errorf("%w: handler %s", ErrDuplicateVault, handler)
	}
	r.vaults[id] = Vault{ID: id, Handler: handler, CollateralType: ct}
	r.byHandler[string(handler.Bytes())] = id
	return nil
}

// Vault returns the vault record for id.
func (r *Registry) Vault(id rescue.VaultID) (Vault, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[id]
	return v, ok
}

func (r *Registry) Resolve(_ context.Context, handler crypto.Address) (rescue.VaultID, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byHandler[string(handler.Bytes())]
	return id, ok, nil
}

func (r *Registry) CollateralTypeOf(_ context.Context, id rescue.VaultID) (rescue.CollateralType, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.vaults[id]
	if !ok {
		return rescue.CollateralType{}, fmt.Errorf("%w: %d", ErrUnknownVault, id)
	}
	return v.CollateralType, nil
}
