package server

import (
	"errors"
	"net/http"

	nativecommon "safesaviour/native/common"
	"safesaviour/native/rescue"
)

var (
	errBadRequest = errors.New("bad request")
	errNotFound   = errors.New("not found")
)

// apiError is the JSON body returned for every failed request.
type apiError struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// toStatus maps engine errors to an HTTP status and a stable code.
func toStatus(err error) (int, string) {
	var (
		notEligible *rescue.VaultNotEligibleError
		unknownKey  *rescue.UnrecognizedParameterError
	)
	switch {
	case err == nil:
		return http.StatusOK, "ok"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return http.StatusServiceUnavailable, "paused"
	case errors.Is(err, rescue.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, rescue.ErrAlreadyInitialized):
		return http.StatusConflict, "already_initialized"
	case errors.Is(err, rescue.ErrUninitialized):
		return http.StatusConflict, "uninitialized"
	case errors.Is(err, rescue.ErrCollateralTypeUninitialized):
		return http.StatusConflict, "collateral_type_uninitialized"
	case errors.As(err, &notEligible), errors.Is(err, rescue.ErrVaultNotEligible):
		return http.StatusUnprocessableEntity, "not_eligible"
	case errors.Is(err, rescue.ErrNoShortfall):
		return http.StatusUnprocessableEntity, "no_shortfall"
	case errors.Is(err, rescue.ErrSafetyRatioNotMet):
		return http.StatusUnprocessableEntity, "safety_ratio_not_met"
	case errors.Is(err, rescue.ErrCollateralTypeMismatch):
		return http.StatusUnprocessableEntity, "collateral_type_mismatch"
	case errors.Is(err, rescue.ErrMathOverflow), errors.Is(err, rescue.ErrMathUnderflow):
		return http.StatusUnprocessableEntity, "math_overflow"
	case errors.Is(err, rescue.ErrCollateralTransferFailed):
		return http.StatusConflict, "transfer_failed"
	case errors.As(err, &unknownKey), errors.Is(err, rescue.ErrUnrecognizedParameter):
		return http.StatusBadRequest, "unrecognized_parameter"
	case errors.Is(err, rescue.ErrRoleBoundToParameter):
		return http.StatusConflict, "role_bound_to_parameter"
	case errors.Is(err, rescue.ErrLastGovernor):
		return http.StatusConflict, "last_governor"
	case errors.Is(err, rescue.ErrAlreadyBootstrapped):
		return http.StatusConflict, "already_bootstrapped"
	case errors.Is(err, rescue.ErrInvalidRole),
		errors.Is(err, rescue.ErrInvalidAddress),
		errors.Is(err, rescue.ErrInvalidCollateralType),
		errors.Is(err, rescue.ErrInvalidModule),
		errors.Is(err, rescue.ErrInvalidDecimal),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, rescue.ErrUnknownVault), errors.Is(err, errNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, rescue.ErrOracleUnavailable):
		return http.StatusServiceUnavailable, "oracle_unavailable"
	default:
		return http.StatusInternalServerError, "internal"
	}
}
