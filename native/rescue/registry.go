package rescue

import (
	"context"
	"fmt"

	"safesaviour/core/events"
	"safesaviour/crypto"
)

// RegisterCollateralType binds a reserve token to a collateral type. Each type
// can be registered once; later changes go through ReassignCollateralToken.
func (e *Engine) RegisterCollateralType(caller crypto.Address, ct CollateralType, token crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := requireGovernance(e.state, caller); err != nil {
		return err
	}
	if ct.IsZero() {
		return ErrInvalidCollateralType
	}
	if token.IsZero() {
		return ErrInvalidAddress
	}
	err := e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		_, bound, err := w.CollateralToken(ct)
		if err != nil {
			return err
		}
		if bound {
			return fmt.Errorf("%w: %s", ErrAlreadyInitialized, ct)
		}
		return w.PutCollateralToken(ct, token)
	})
	if err != nil {
		return err
	}
	e.emit(events.CollateralTypeBound{
		CollateralType: ct.String(),
		Token:          token.String(),
		Caller:         caller.String(),
	})
	return nil
}

// ReassignCollateralToken rebinds an already registered collateral type.
func (e *Engine) ReassignCollateralToken(caller crypto.Address, ct CollateralType, token crypto.Address) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := requireGovernance(e.state, caller); err != nil {
		return err
	}
	if ct.IsZero() {
		return ErrInvalidCollateralType
	}
	if token.IsZero() {
		return ErrInvalidAddress
	}
	var previous crypto.Address
	err := e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		current, bound, err := w.CollateralToken(ct)
		if err != nil {
			return err
		}
		if !bound {
			return fmt.Errorf("%w: %s", ErrUninitialized, ct)
		}
		previous = current
		return w.PutCollateralToken(ct, token)
	})
	if err != nil {
		return err
	}
	e.emit(events.CollateralTypeBound{
		CollateralType: ct.String(),
		Token:          token.String(),
		Previous:       previous.String(),
		Caller:         caller.String(),
	})
	return nil
}

// TokenFor returns the reserve token bound to ct, or the zero address when the
// type is unregistered.
func (e *Engine) TokenFor(ct CollateralType) (crypto.Address, error) {
	if e == nil || e.state == nil {
		return crypto.Address{}, ErrNilState
	}
	token, bound, err := e.state.CollateralToken(ct)
	if err != nil {
		return crypto.Address{}, err
	}
	if !bound {
		return crypto.Address{}, nil
	}
	return token, nil
}

// SetEligible enables or disables rescues for a vault. Enabling requires the
// vault's collateral type to have a reserve token so that every enabled vault
// can be funded. Disabling is always allowed.
func (e *Engine) SetEligible(ctx context.Context, caller crypto.Address, id VaultID, enabled bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := requireGovernance(e.state, caller); err != nil {
		return err
	}
	if e.deps.Vaults == nil {
		return ErrCollaboratorMissing
	}
	ct, err := e.deps.Vaults.CollateralTypeOf(ctx, id)
	if err != nil {
		return fmt.Errorf("resolve collateral type of vault %d: %w", id, err)
	}
	err = e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		if enabled {
			_, bound, err := w.CollateralToken(ct)
			if err != nil {
				return err
			}
			if !bound {
				return fmt.Errorf("%w: %s", ErrCollateralTypeUninitialized, ct)
			}
		}
		return w.PutVaultEligible(id, enabled)
	})
	if err != nil {
		return err
	}
	e.emit(events.VaultEligibilityUpdated{
		VaultID: uint64(id),
		Enabled: enabled,
		Caller:  caller.String(),
	})
	return nil
}

// IsEligible reports whether rescues are enabled for the vault.
func (e *Engine) IsEligible(id VaultID) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	return e.state.VaultEligible(id)
}
