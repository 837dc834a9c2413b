package rescue

import (
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"safesaviour/core/events"
	"safesaviour/crypto"
)

const (
	ParamLiquidatorReward = "liquidatorReward"
	ParamTreasury         = "treasury"
	ParamProtocolCaller   = "protocolCaller"
)

// Genesis lists the principals and parameters written when the engine is
// first deployed.
type Genesis struct {
	Governance       crypto.Address
	ProtocolCaller   crypto.Address
	Treasury         crypto.Address
	LiquidatorReward *uint256.Int
}

// Bootstrap grants the initial roles and stores the starting parameters. It
// runs once per state.
func (e *Engine) Bootstrap(g Genesis) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if g.Governance.IsZero() || g.ProtocolCaller.IsZero() || g.Treasury.IsZero() {
		return ErrInvalidAddress
	}
	params := Parameters{
		LiquidatorReward: g.LiquidatorReward,
		Treasury:         g.Treasury,
		ProtocolCaller:   g.ProtocolCaller,
	}.Clone()
	return e.state.Update(func(w StateWriter) error {
		_, ok, err := w.Parameters()
		if err != nil {
			return err
		}
		if ok {
			return ErrAlreadyBootstrapped
		}
		if err := w.SetRole(RoleGovernance, g.Governance, true); err != nil {
			return err
		}
		if err := w.SetRole(RoleTreasury, g.Treasury, true); err != nil {
			return err
		}
		if err := w.SetRole(RoleProtocol, g.ProtocolCaller, true); err != nil {
			return err
		}
		return w.PutParameters(params)
	})
}

// Parameters returns a copy of the current parameters.
func (e *Engine) Parameters() (Parameters, error) {
	if e == nil || e.state == nil {
		return Parameters{}, ErrNilState
	}
	params, _, err := e.state.Parameters()
	if err != nil {
		return Parameters{}, err
	}
	return params.Clone(), nil
}

// ModifyParameters updates a governance parameter. Values are decimal strings
// for amounts and bech32 strings for principals. Changing the treasury or the
// protocol caller moves the matching role in the same atomic update.
func (e *Engine) ModifyParameters(caller crypto.Address, key, value string) error {
	if e == nil || e.state == nil {
		return ErrNilState
	}
	if err := requireGovernance(e.state, caller); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	var apply func(w StateWriter, params *Parameters) (string, error)
	switch key {
	case ParamLiquidatorReward:
		reward, err := ParseWad(value)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		apply = func(_ StateWriter, params *Parameters) (string, error) {
			previous := FormatWad(params.LiquidatorReward)
			params.LiquidatorReward = reward
			return previous, nil
		}
	case ParamTreasury, ParamProtocolCaller:
		principal, err := crypto.DecodeAddress(strings.TrimSpace(value))
		if err != nil {
			return fmt.Errorf("%s: %w: %v", key, ErrInvalidAddress, err)
		}
		role, field := RoleTreasury, func(p *Parameters) *crypto.Address { return &p.Treasury }
		if key == ParamProtocolCaller {
			role, field = RoleProtocol, func(p *Parameters) *crypto.Address { return &p.ProtocolCaller }
		}
		apply = func(w StateWriter, params *Parameters) (string, error) {
			return swapPrincipal(w, role, field(params), principal)
		}
	default:
		return &UnrecognizedParameterError{Key: key}
	}

	var previous string
	err := e.state.Update(func(w StateWriter) error {
		if err := requireGovernance(w, caller); err != nil {
			return err
		}
		params, _, err := w.Parameters()
		if err != nil {
			return err
		}
		params = params.Clone()
		if previous, err = apply(w, &params); err != nil {
			return err
		}
		return w.PutParameters(params)
	})
	if err != nil {
		return err
	}
	e.emit(events.ParameterModified{
		Key:      key,
		Value:    strings.TrimSpace(value),
		Previous: previous,
		Caller:   caller.String(),
	})
	return nil
}

// swapPrincipal revokes role from the current holder and grants it to next.
// Both writes are staged in the same update.
func swapPrincipal(w StateWriter, role Role, current *crypto.Address, next crypto.Address) (string, error) {
	previous := current.String()
	if current.Equal(next) {
		return previous, nil
	}
	if !current.IsZero() {
		if err := w.SetRole(role, *current, false); err != nil {
			return "", err
		}
	}
	if err := w.SetRole(role, next, true); err != nil {
		return "", err
	}
	*current = next
	return previous, nil
}
