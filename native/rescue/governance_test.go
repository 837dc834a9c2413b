package rescue_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"safesaviour/core/events"
	"safesaviour/crypto"
	nativecommon "safesaviour/native/common"
	"safesaviour/native/rescue"
)

func TestRegisterCollateralTypeOnce(t *testing.T) {
	f := newFixture(t, "110")
	other := crypto.MustAddress(crypto.TokenPrefix, "other")

	err := f.engine.RegisterCollateralType(f.governance, f.ct, other)
	require.ErrorIs(t, err, rescue.ErrAlreadyInitialized)
	token, err := f.engine.TokenFor(f.ct)
	require.NoError(t, err)
	require.True(t, token.Equal(f.token.Handle()))

	require.ErrorIs(t, f.engine.RegisterCollateralType(f.governance, rescue.CollateralType{}, other), rescue.ErrInvalidCollateralType)
	require.ErrorIs(t, f.engine.RegisterCollateralType(f.governance, rescue.MustCollateralType("NEW"), crypto.Address{}), rescue.ErrInvalidAddress)
}

func TestTokenForUnregisteredType(t *testing.T) {
	f := newFixture(t, "110")
	token, err := f.engine.TokenFor(rescue.MustCollateralType("NEW"))
	require.NoError(t, err)
	require.True(t, token.IsZero())
}

func TestReassignCollateralToken(t *testing.T) {
	f := newFixture(t, "110")
	next := crypto.MustAddress(crypto.TokenPrefix, "tkn-v2")

	require.ErrorIs(t, f.engine.ReassignCollateralToken(f.governance, rescue.MustCollateralType("NEW"), next), rescue.ErrUninitialized)
	require.NoError(t, f.engine.ReassignCollateralToken(f.treasury, f.ct, next))

	token, err := f.engine.TokenFor(f.ct)
	require.NoError(t, err)
	require.True(t, token.Equal(next))

	bound := f.eventsOfType(events.TypeCollateralTypeBound)
	require.Len(t, bound, 2)
	last := bound[1].(events.CollateralTypeBound)
	require.Equal(t, f.token.Handle().String(), last.Previous)
	require.Equal(t, next.String(), last.Token)
}

func TestSetEligibleRequiresBoundType(t *testing.T) {
	f := newFixture(t, "110")
	other := rescue.MustCollateralType("OTHER")
	require.NoError(t, f.registry.Open(2, crypto.MustAddress(crypto.HandlerPrefix, "vault-2"), other))

	err := f.engine.SetEligible(f.ctx, f.governance, 2, true)
	require.ErrorIs(t, err, rescue.ErrCollateralTypeUninitialized)
	eligible, err := f.engine.IsEligible(2)
	require.NoError(t, err)
	require.False(t, eligible)

	require.Error(t, f.engine.SetEligible(f.ctx, f.governance, 99, true))
}

func TestSetEligibleDisablesUnboundType(t *testing.T) {
	f := newFixture(t, "110")
	other := rescue.MustCollateralType("OTHER")
	require.NoError(t, f.registry.Open(2, crypto.MustAddress(crypto.HandlerPrefix, "vault-2"), other))

	require.NoError(t, f.engine.SetEligible(f.ctx, f.governance, 2, false))
	eligible, err := f.engine.IsEligible(2)
	require.NoError(t, err)
	require.False(t, eligible)

	updates := f.eventsOfType(events.TypeVaultEligibility)
	last := updates[len(updates)-1].(events.VaultEligibilityUpdated)
	require.Equal(t, uint64(2), last.VaultID)
	require.False(t, last.Enabled)
}

func TestSetEligibleToggles(t *testing.T) {
	f := newFixture(t, "110")
	require.NoError(t, f.engine.SetEligible(f.ctx, f.treasury, f.vault, false))
	eligible, err := f.engine.IsEligible(f.vault)
	require.NoError(t, err)
	require.False(t, eligible)

	updates := f.eventsOfType(events.TypeVaultEligibility)
	require.Len(t, updates, 2)
	require.False(t, updates[1].(events.VaultEligibilityUpdated).Enabled)
}

func TestGovernanceOperationsRejectOutsiders(t *testing.T) {
	f := newFixture(t, "110")
	mallory := crypto.MustAddress(crypto.PrincipalPrefix, "mallory")
	before := len(f.recorder.Events())

	require.ErrorIs(t, f.engine.RegisterCollateralType(mallory, rescue.MustCollateralType("NEW"), f.token.Handle()), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.ReassignCollateralToken(mallory, f.ct, mallory), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SetEligible(f.ctx, mallory, f.vault, false), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.ModifyParameters(mallory, rescue.ParamLiquidatorReward, "1"), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.ModifyParameters(mallory, "bogus", "1"), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Grant(mallory, rescue.RoleGovernance, mallory), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Revoke(mallory, rescue.RoleGovernance, f.governance), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.Grant(f.protocol, rescue.RoleGovernance, mallory), rescue.ErrUnauthorized)
	require.ErrorIs(t, f.engine.SetPaused(mallory, "rescue", true), rescue.ErrUnauthorized)

	require.Len(t, f.recorder.Events(), before)
	eligible, _ := f.engine.IsEligible(f.vault)
	require.True(t, eligible)
	require.False(t, f.pauses.IsPaused("rescue"))
}

func TestSetPausedPersistsAndHaltsRescues(t *testing.T) {
	f := newFixture(t, "110")

	require.ErrorIs(t, f.engine.SetPaused(f.governance, "  ", true), rescue.ErrInvalidModule)
	require.NoError(t, f.engine.SetPaused(f.governance, " Rescue ", true))
	require.True(t, f.pauses.IsPaused("rescue"))

	_, err := f.rescue()
	require.ErrorIs(t, err, nativecommon.ErrModulePaused)
	f.requireUntouched()

	stored, err := f.state.PausedModules()
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"rescue": true}, stored)

	require.NoError(t, f.engine.SetPaused(f.treasury, "rescue", false))
	stored, err = f.state.PausedModules()
	require.NoError(t, err)
	require.Equal(t, map[string]bool{"rescue": false}, stored)
	_, err = f.rescue()
	require.NoError(t, err)

	updates := f.eventsOfType(events.TypeModulePause)
	require.Len(t, updates, 2)
	first := updates[0].(events.ModulePauseUpdated)
	require.Equal(t, "rescue", first.Module)
	require.True(t, first.Paused)
	require.Equal(t, f.governance.String(), first.Caller)
	require.Equal(t, "false", updates[1].(events.Attributed).Attributes()["paused"])
}

func TestModifyLiquidatorReward(t *testing.T) {
	f := newFixture(t, "110")
	require.NoError(t, f.engine.ModifyParameters(f.governance, rescue.ParamLiquidatorReward, "7.25"))
	params, err := f.engine.Parameters()
	require.NoError(t, err)
	require.Equal(t, "7.25", rescue.FormatWad(params.LiquidatorReward))

	modified := f.eventsOfType(events.TypeParameterModified)
	require.Len(t, modified, 1)
	evt := modified[0].(events.ParameterModified)
	require.Equal(t, "5", evt.Previous)
	require.Equal(t, "7.25", evt.Value)

	require.ErrorIs(t, f.engine.ModifyParameters(f.governance, rescue.ParamLiquidatorReward, "-1"), rescue.ErrInvalidDecimal)
	require.Error(t, f.engine.ModifyParameters(f.governance, rescue.ParamTreasury, "not-an-address"))
	params, err = f.engine.Parameters()
	require.NoError(t, err)
	require.True(t, params.Treasury.Equal(f.treasury))
}

func TestModifyUnrecognizedParameter(t *testing.T) {
	f := newFixture(t, "110")
	err := f.engine.ModifyParameters(f.governance, "surplusBuffer", "1")
	var unrecognized *rescue.UnrecognizedParameterError
	require.ErrorAs(t, err, &unrecognized)
	require.Equal(t, "surplusBuffer", unrecognized.Key)
	require.ErrorIs(t, err, rescue.ErrUnrecognizedParameter)
}

func TestModifyTreasurySwapsRole(t *testing.T) {
	f := newFixture(t, "110")
	next := crypto.MustAddress(crypto.PrincipalPrefix, "treasury-2")
	require.NoError(t, f.engine.ModifyParameters(f.governance, rescue.ParamTreasury, next.String()))

	params, err := f.engine.Parameters()
	require.NoError(t, err)
	require.True(t, params.Treasury.Equal(next))

	members, err := f.engine.RoleMembers(rescue.RoleTreasury)
	require.NoError(t, err)
	require.Len(t, members, 1)
	require.True(t, members[0].Equal(next))

	held, err := f.engine.IsAuthorized(f.treasury, rescue.RoleTreasury)
	require.NoError(t, err)
	require.False(t, held)
	require.ErrorIs(t, f.engine.SetEligible(f.ctx, f.treasury, f.vault, false), rescue.ErrUnauthorized)
	require.NoError(t, f.engine.SetEligible(f.ctx, next, f.vault, false))
}

func TestModifyProtocolCallerSwapsRole(t *testing.T) {
	f := newFixture(t, "110")
	next := crypto.MustAddress(crypto.PrincipalPrefix, "liquidation-engine-2")
	require.NoError(t, f.engine.ModifyParameters(f.governance, rescue.ParamProtocolCaller, next.String()))

	_, err := f.rescue()
	require.ErrorIs(t, err, rescue.ErrUnauthorized)
	result, err := f.engine.Rescue(f.ctx, next, f.ct, f.handler)
	require.NoError(t, err)
	require.Equal(t, rescue.OutcomeRescued, result.Outcome)
}

func TestGrantAndRevokeGovernance(t *testing.T) {
	f := newFixture(t, "110")
	second := crypto.MustAddress(crypto.PrincipalPrefix, "governance-2")

	require.ErrorIs(t, f.engine.Revoke(f.governance, rescue.RoleGovernance, f.governance), rescue.ErrLastGovernor)
	require.NoError(t, f.engine.Grant(f.governance, rescue.RoleGovernance, second))
	require.NoError(t, f.engine.Revoke(second, rescue.RoleGovernance, f.governance))

	held, err := f.engine.IsAuthorized(f.governance, rescue.RoleGovernance)
	require.NoError(t, err)
	require.False(t, held)
	require.ErrorIs(t, f.engine.Revoke(second, rescue.RoleGovernance, second), rescue.ErrLastGovernor)

	changes := f.eventsOfType(events.TypeRoleChanged)
	require.Len(t, changes, 2)
	require.True(t, changes[0].(events.RoleChanged).Granted)
	require.False(t, changes[1].(events.RoleChanged).Granted)
}

func TestRolesBoundToParametersCannotBeGranted(t *testing.T) {
	f := newFixture(t, "110")
	mallory := crypto.MustAddress(crypto.PrincipalPrefix, "mallory")
	require.ErrorIs(t, f.engine.Grant(f.governance, rescue.RoleTreasury, mallory), rescue.ErrRoleBoundToParameter)
	require.ErrorIs(t, f.engine.Grant(f.governance, rescue.RoleProtocol, mallory), rescue.ErrRoleBoundToParameter)
	require.ErrorIs(t, f.engine.Revoke(f.governance, rescue.RoleProtocol, f.protocol), rescue.ErrRoleBoundToParameter)
	require.ErrorIs(t, f.engine.Grant(f.governance, rescue.Role("admin"), mallory), rescue.ErrInvalidRole)
	require.ErrorIs(t, f.engine.Grant(f.governance, rescue.RoleGovernance, crypto.Address{}), rescue.ErrInvalidAddress)
}

func TestBootstrapRunsOnce(t *testing.T) {
	f := newFixture(t, "110")
	err := f.engine.Bootstrap(rescue.Genesis{
		Governance:     f.governance,
		ProtocolCaller: f.protocol,
		Treasury:       f.treasury,
	})
	require.ErrorIs(t, err, rescue.ErrAlreadyBootstrapped)
}

func TestParseRole(t *testing.T) {
	role, err := rescue.ParseRole(" Governance ")
	require.NoError(t, err)
	require.Equal(t, rescue.RoleGovernance, role)
	_, err = rescue.ParseRole("root")
	require.ErrorIs(t, err, rescue.ErrInvalidRole)
}
