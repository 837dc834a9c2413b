package rescue

import "safesaviour/crypto"

// StateReader exposes the persisted configuration of the engine.
type StateReader interface {
	HasRole(role Role, addr crypto.Address) (bool, error)
	RoleMembers(role Role) ([]crypto.Address, error)
	// CollateralToken returns the reserve token bound to ct and whether a
	// binding exists.
	CollateralToken(ct CollateralType) (crypto.Address, bool, error)
	VaultEligible(id VaultID) (bool, error)
	// Parameters returns the stored parameters and whether the engine has
	// been bootstrapped.
	Parameters() (Parameters, bool, error)
}

// StateWriter stages mutations inside an Update call.
type StateWriter interface {
	StateReader
	SetRole(role Role, addr crypto.Address, member bool) error
	PutCollateralToken(ct CollateralType, token crypto.Address) error
	PutVaultEligible(id VaultID, enabled bool) error
	PutParameters(params Parameters) error
	// PutModulePaused records the pause switch of a module.
	PutModulePaused(module string, paused bool) error
}

// State persists the engine configuration. Update applies every write staged
// by fn atomically, or none of them when fn returns an error.
type State interface {
	StateReader
	Update(fn func(StateWriter) error) error
}
