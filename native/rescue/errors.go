package rescue

import (
	"errors"
	"fmt"
)

var (
	ErrNilState                    = errors.New("rescue engine: state not configured")
	ErrUnauthorized                = errors.New("rescue engine: unauthorized")
	ErrAlreadyInitialized          = errors.New("rescue engine: collateral type already initialized")
	ErrUninitialized               = errors.New("rescue engine: collateral type not initialized")
	ErrCollateralTypeUninitialized = errors.New("rescue engine: vault collateral type has no reserve token")
	ErrVaultNotEligible            = errors.New("rescue engine: vault not eligible for rescue")
	ErrSafetyRatioNotMet           = errors.New("rescue engine: top-up does not restore the safety ratio")
	ErrNoShortfall                 = fmt.Errorf("%w: position has no collateral shortfall", ErrSafetyRatioNotMet)
	ErrCollateralTransferFailed    = errors.New("rescue engine: collateral transfer from treasury failed")
	ErrUnrecognizedParameter       = errors.New("rescue engine: unrecognized parameter")
	ErrOracleUnavailable           = errors.New("rescue engine: oracle price unavailable")
	ErrCollateralTypeMismatch      = errors.New("rescue engine: collateral type does not match vault")
	ErrInvalidCollateralType       = errors.New("rescue engine: invalid collateral type")
	ErrInvalidAddress              = errors.New("rescue engine: invalid address")
	ErrInvalidRole                 = errors.New("rescue engine: unknown role")
	ErrRoleBoundToParameter        = errors.New("rescue engine: role is managed through parameter modification")
	ErrLastGovernor                = errors.New("rescue engine: cannot revoke the last governance principal")
	ErrAlreadyBootstrapped         = errors.New("rescue engine: already bootstrapped")
	ErrCollaboratorMissing         = errors.New("rescue engine: collaborator not configured")
	ErrUnknownVault                = errors.New("rescue engine: unknown vault")
	ErrInvalidModule               = errors.New("rescue engine: invalid module name")
)

// VaultNotEligibleError reports the vault that failed the eligibility check.
type VaultNotEligibleError struct {
	VaultID VaultID
}

func (e *VaultNotEligibleError) Error() string {
	return fmt.Sprintf("%s: %d", ErrVaultNotEligible, e.VaultID)
}

// Is lets errors.Is match the sentinel.
func (e *VaultNotEligibleError) Is(target error) bool {
	return target == ErrVaultNotEligible
}

// UnrecognizedParameterError reports an unknown governance key.
type UnrecognizedParameterError struct {
	Key string
}

func (e *UnrecognizedParameterError) Error() string {
	return fmt.Sprintf("%s: %q", ErrUnrecognizedParameter, e.Key)
}

// Is lets errors.Is match the sentinel.
func (e *UnrecognizedParameterError) Is(target error) bool {
	return target == ErrUnrecognizedParameter
}
