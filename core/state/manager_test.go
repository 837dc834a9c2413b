package state

import (
	"errors"
	"testing"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

func newTestManager(t *testing.T) (*Manager, storage.Database) {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(func() { db.Close() })
	return NewManager(db), db
}

func TestRoleMembershipRoundTrip(t *testing.T) {
	manager, _ := newTestManager(t)
	alice := crypto.MustAddress(crypto.PrincipalPrefix, "alice")
	bob := crypto.MustAddress(crypto.PrincipalPrefix, "bob")

	err := manager.Update(func(w rescue.StateWriter) error {
		if err := w.SetRole(rescue.RoleGovernance, alice, true); err != nil {
			return err
		}
		return w.SetRole(rescue.RoleGovernance, bob, true)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	members, err := manager.RoleMembers(rescue.RoleGovernance)
	if err != nil {
		t.Fatalf("members: %v", err)
	}
	if len(members) != 2 {
		t.Fatalf("expected 2 members, got %d", len(members))
	}
	if err := manager.Update(func(w rescue.StateWriter) error {
		return w.SetRole(rescue.RoleGovernance, alice, false)
	}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	ok, err := manager.HasRole(rescue.RoleGovernance, alice)
	if err != nil || ok {
		t.Fatalf("alice should be revoked: ok=%v err=%v", ok, err)
	}
	ok, err = manager.HasRole(rescue.RoleGovernance, bob)
	if err != nil || !ok {
		t.Fatalf("bob should remain: ok=%v err=%v", ok, err)
	}
	ok, _ = manager.HasRole(rescue.RoleTreasury, bob)
	if ok {
		t.Fatalf("roles must not leak across namespaces")
	}
}

func TestUpdateDiscardsOnError(t *testing.T) {
	manager, _ := newTestManager(t)
	ct := rescue.MustCollateralType("ETH-A")
	token := crypto.MustAddress(crypto.TokenPrefix, "weth")
	boom := errors.New("boom")

	err := manager.Update(func(w rescue.StateWriter) error {
		if err := w.PutCollateralToken(ct, token); err != nil {
			return err
		}
		if err := w.PutVaultEligible(7, true); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok, _ := manager.CollateralToken(ct); ok {
		t.Fatalf("binding must not persist after failed update")
	}
	if enabled, _ := manager.VaultEligible(7); enabled {
		t.Fatalf("eligibility must not persist after failed update")
	}
}

func TestUpdateReadsOwnWrites(t *testing.T) {
	manager, _ := newTestManager(t)
	ct := rescue.MustCollateralType("ETH-A")
	token := crypto.MustAddress(crypto.TokenPrefix, "weth")

	err := manager.Update(func(w rescue.StateWriter) error {
		if err := w.PutCollateralToken(ct, token); err != nil {
			return err
		}
		got, ok, err := w.CollateralToken(ct)
		if err != nil {
			return err
		}
		if !ok || !got.Equal(token) {
			t.Fatalf("staged binding not visible inside update")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok, err := manager.CollateralToken(ct)
	if err != nil || !ok {
		t.Fatalf("binding missing: ok=%v err=%v", ok, err)
	}
	if got.Prefix() != crypto.TokenPrefix || !got.Equal(token) {
		t.Fatalf("unexpected token %s", got)
	}
}

func TestParametersPersistAcrossManagers(t *testing.T) {
	manager, db := newTestManager(t)
	if _, ok, err := manager.Parameters(); err != nil || ok {
		t.Fatalf("expected no parameters: ok=%v err=%v", ok, err)
	}
	treasury := crypto.MustAddress(crypto.PrincipalPrefix, "treasury")
	protocol := crypto.MustAddress(crypto.PrincipalPrefix, "protocol")
	reward := uint256.NewInt(5)

	if err := manager.Update(func(w rescue.StateWriter) error {
		return w.PutParameters(rescue.Parameters{LiquidatorReward: reward, Treasury: treasury, ProtocolCaller: protocol})
	}); err != nil {
		t.Fatalf("update: %v", err)
	}

	reopened := NewManager(db)
	params, ok, err := reopened.Parameters()
	if err != nil || !ok {
		t.Fatalf("parameters missing: ok=%v err=%v", ok, err)
	}
	if !params.LiquidatorReward.Eq(reward) {
		t.Fatalf("reward mismatch: %s", params.LiquidatorReward)
	}
	if !params.Treasury.Equal(treasury) || !params.ProtocolCaller.Equal(protocol) {
		t.Fatalf("principal mismatch: %+v", params)
	}
}

func TestListings(t *testing.T) {
	manager, _ := newTestManager(t)
	eth := rescue.MustCollateralType("ETH-A")
	wbtc := rescue.MustCollateralType("WBTC-A")
	err := manager.Update(func(w rescue.StateWriter) error {
		if err := w.PutCollateralToken(eth, crypto.MustAddress(crypto.TokenPrefix, "weth")); err != nil {
			return err
		}
		if err := w.PutCollateralToken(wbtc, crypto.MustAddress(crypto.TokenPrefix, "wbtc")); err != nil {
			return err
		}
		if err := w.PutVaultEligible(1, true); err != nil {
			return err
		}
		if err := w.PutVaultEligible(2, false); err != nil {
			return err
		}
		return w.PutVaultEligible(3, true)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	bindings, err := manager.Bindings()
	if err != nil {
		t.Fatalf("bindings: %v", err)
	}
	if len(bindings) != 2 {
		t.Fatalf("expected 2 bindings, got %d", len(bindings))
	}
	vaults, err := manager.EligibleVaults()
	if err != nil {
		t.Fatalf("vaults: %v", err)
	}
	if len(vaults) != 2 || vaults[0] != 1 || vaults[1] != 3 {
		t.Fatalf("unexpected eligible vaults %v", vaults)
	}
}

func TestPausedModules(t *testing.T) {
	manager, _ := newTestManager(t)
	err := manager.Update(func(w rescue.StateWriter) error {
		if err := w.PutModulePaused("rescue", true); err != nil {
			return err
		}
		if err := w.PutModulePaused("ledger", true); err != nil {
			return err
		}
		return w.PutModulePaused("ledger", false)
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	paused, err := manager.PausedModules()
	if err != nil {
		t.Fatalf("paused modules: %v", err)
	}
	if len(paused) != 2 || !paused["rescue"] || paused["ledger"] {
		t.Fatalf("unexpected pause switches %v", paused)
	}

	err = manager.Update(func(w rescue.StateWriter) error {
		return w.PutModulePaused("", true)
	})
	if err == nil {
		t.Fatalf("expected empty module to be rejected")
	}
}
