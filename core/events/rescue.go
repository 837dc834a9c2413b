package events

import (
	"math/big"
	"strconv"
)

const (
	// TypeRescueExecuted is emitted after a vault has been topped up.
	TypeRescueExecuted = "rescue.executed"
	// TypeCollateralTypeBound is emitted when a reserve token is registered or
	// reassigned for a collateral type.
	TypeCollateralTypeBound = "rescue.collateral_type"
	// TypeVaultEligibility is emitted when a vault is enabled or disabled.
	TypeVaultEligibility = "rescue.vault_eligibility"
	// TypeParameterModified is emitted for every governance parameter change.
	TypeParameterModified = "rescue.parameter"
	// TypeRoleChanged is emitted when a role is granted or revoked.
	TypeRoleChanged = "rescue.role"
	// TypeModulePause is emitted when a module is paused or resumed.
	TypeModulePause = "rescue.pause"
)

// RescueExecuted records a committed rescue.
type RescueExecuted struct {
	ReceiptID       string
	VaultID         uint64
	CollateralType  string
	Handler         string
	CollateralAdded *big.Int
	Reward          *big.Int
}

func (RescueExecuted) EventType() string { return TypeRescueExecuted }

func (e RescueExecuted) Attributes() map[string]string {
	return map[string]string{
		"receiptId":       normalizeLabel(e.ReceiptID),
		"vaultId":         vaultString(e.VaultID),
		"collateralType":  normalizeLabel(e.CollateralType),
		"handler":         normalizeLabel(e.Handler),
		"collateralAdded": amountString(e.CollateralAdded),
		"reward":          amountString(e.Reward),
	}
}

// CollateralTypeBound records a reserve token binding.
type CollateralTypeBound struct {
	CollateralType string
	Token          string
	Previous       string
	Caller         string
}

func (CollateralTypeBound) EventType() string { return TypeCollateralTypeBound }

func (e CollateralTypeBound) Attributes() map[string]string {
	return map[string]string{
		"collateralType": normalizeLabel(e.CollateralType),
		"token":          normalizeLabel(e.Token),
		"previous":       normalizeLabel(e.Previous),
		"caller":         normalizeLabel(e.Caller),
	}
}

// VaultEligibilityUpdated records a change to a vault's rescue flag.
type VaultEligibilityUpdated struct {
	VaultID uint64
	Enabled bool
	Caller  string
}

func (VaultEligibilityUpdated) EventType() string { return TypeVaultEligibility }

func (e VaultEligibilityUpdated) Attributes() map[string]string {
	return map[string]string{
		"vaultId": vaultString(e.VaultID),
		"enabled": strconv.FormatBool(e.Enabled),
		"caller":  normalizeLabel(e.Caller),
	}
}

// ModulePauseUpdated records a change to a module's pause switch.
type ModulePauseUpdated struct {
	Module string
	Paused bool
	Caller string
}

func (ModulePauseUpdated) EventType() string { return TypeModulePause }

func (e ModulePauseUpdated) Attributes() map[string]string {
	return map[string]string{
		"module": normalizeLabel(e.Module),
		"paused": strconv.FormatBool(e.Paused),
		"caller": normalizeLabel(e.Caller),
	}
}

// ParameterModified records a governance parameter update.
type ParameterModified struct {
	Key      string
	Value    string
	Previous string
	Caller   string
}

func (ParameterModified) EventType() string { return TypeParameterModified }

func (e ParameterModified) Attributes() map[string]string {
	return map[string]string{
		"key":      normalizeLabel(e.Key),
		"value":    normalizeLabel(e.Value),
		"previous": normalizeLabel(e.Previous),
		"caller":   normalizeLabel(e.Caller),
	}
}

// RoleChanged records a role grant or revocation.
type RoleChanged struct {
	Role      string
	Principal string
	Granted   bool
	Caller    string
}

func (RoleChanged) EventType() string { return TypeRoleChanged }

func (e RoleChanged) Attributes() map[string]string {
	return map[string]string{
		"role":      normalizeLabel(e.Role),
		"principal": normalizeLabel(e.Principal),
		"granted":   strconv.FormatBool(e.Granted),
		"caller":    normalizeLabel(e.Caller),
	}
}
