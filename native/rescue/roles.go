package rescue

import (
	"strings"

	"safesaviour/core/events"
	"safesaviour/crypto"
)

// Role names a privilege held by principals.
type Role string

const (
	// RoleGovernance administers roles and the configuration surface.
	RoleGovernance Role = "governance"
	// RoleTreasury is held by the funding principal. It carries governance
	// authority and always matches Parameters.Treasury.
	RoleTreasury Role = "treasury"
	// RoleProtocol is held by the liquidation module that triggers rescues.
	// It always matches Parameters.ProtocolCaller.
	RoleProtocol Role = "protocol"
)

// ParseRole normalises a role name.
func ParseRole(name string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(name)))
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	return role, nil
}

// Valid reports whether the role is known.
func (r Role) Valid() bool {
	switch r {
	case RoleGovernance, RoleTreasury, RoleProtocol:
		return true
	default:
		return false
	}
}

func (r Role) String() string { return string(r) }

// IsAuthorized reports whether principal holds role.
func (e *Engine) IsAuthorized(principal crypto.Address, role Role) (bool, error) {
	if e == nil || e.state == nil {
		return false, ErrNilState
	}
	if !role.Valid() {
		return false, ErrInvalidRole
	}
	return e.state.HasRole(role, principal)
}

// RoleMembers lists the principals holding role.
func (e *Engine) RoleMembers(role Role) ([]crypto.Address, error) {
	if e == nil || e.state == nil {
		return nil, ErrNilState
	}
	if !role.Valid() {
		return nil, ErrInvalidRole
	}
	return e.state.RoleMembers(role)
}

// Grant adds principal to role. Treasury and protocol roles follow their
// parameters and cannot be granted directly.
func (e *Engine) Grant(caller crypto.Address, role Role, principal crypto.Address) error {
	return e.setRole(caller, role, principal, true)
}

// Revoke removes principal from role. The last governance principal cannot be
// removed.
func (e *Engine) Revoke(caller crypto.Address, role Role, principal crypto.Address) error {
	return e.setRole(caller, role, principal, false)
}

func (e *Engine) setRole(caller crypto.Address, role Role, principal crypto.Address, grant bool) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := requireGovernance(e.state, caller); err != nil {
		return err
	}
	if !role.Valid() {
		return ErrInvalidRole
	}
	if role != RoleGovernance {
		return ErrRoleBoundToParameter
	}
	if principal.IsZero() {
		return ErrInvalidAddress
	}
	err := e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		if !grant {
			members, err := w.RoleMembers(role)
			if err != nil {
				return err
			}
			held := false
			for _, member := range members {
				if member.Equal(principal) {
					held = true
					break
				}
			}
			if held && len(members) == 1 {
				return ErrLastGovernor
			}
		}
		return w.SetRole(role, principal, grant)
	})
	if err != nil {
		return err
	}
	e.emit(events.RoleChanged{
		Role:      role.String(),
		Principal: principal.String(),
		Granted:   grant,
		Caller:    caller.String(),
	})
	return nil
}

// requireGovernance admits governance and treasury principals.
func requireGovernance(r StateReader, caller crypto.Address) error {
	if caller.IsZero() {
		return ErrUnauthorized
	}
	for _, role := range []Role{RoleGovernance, RoleTreasury} {
		ok, err := r.HasRole(role, caller)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
	}
	return ErrUnauthorized
}
