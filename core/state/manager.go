package state

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"
	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

// Manager persists the rescue engine configuration in a key-value database.
// Values are RLP encoded; role keys are keccak hashed.
type Manager struct {
	mu sync.RWMutex
	db storage.Database
}

var _ rescue.State = (*Manager)(nil)

// NewManager creates a state manager operating on the provided database.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db}
}

type paramsRecord struct {
	LiquidatorReward *big.Int
	Treasury         []byte
	ProtocolCaller   []byte
}

// Binding pairs a collateral type with its reserve token.
type Binding struct {
	CollateralType rescue.CollateralType
	Token          crypto.Address
}

type getter func(key []byte) ([]byte, bool, error)

func (m *Manager) get(key []byte) ([]byte, bool, error) {
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

// HasRole reports whether addr is a member of role.
func (m *Manager) HasRole(role rescue.Role, addr crypto.Address) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return hasRole(m.get, role, addr)
}

// RoleMembers returns all addresses assigned to the provided role.
func (m *Manager) RoleMembers(role rescue.Role) ([]crypto.Address, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return roleMembers(m.get, role)
}

// CollateralToken returns the reserve token bound to ct.
func (m *Manager) CollateralToken(ct rescue.CollateralType) (crypto.Address, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return collateralToken(m.get, ct)
}

// VaultEligible reports whether the vault is enabled for rescues.
func (m *Manager) VaultEligible(id rescue.VaultID) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return vaultEligible(m.get, id)
}

// Parameters loads the stored parameters.
func (m *Manager) Parameters() (rescue.Parameters, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return parameters(m.get)
}

// Bindings lists every registered collateral type in key order.
func (m *Manager) Bindings() ([]Binding, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Binding
	err := m.db.Iterate(collateralPrefix, func(key, value []byte) error {
		var ct rescue.CollateralType
		copy(ct[:], key[len(collateralPrefix):])
		token, err := decodeAddress(value, crypto.TokenPrefix)
		if err != nil {
			return err
		}
		out = append(out, Binding{CollateralType: ct, Token: token})
		return nil
	})
	return out, err
}

// EligibleVaults lists the vaults currently enabled for rescues.
func (m *Manager) EligibleVaults() ([]rescue.VaultID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []rescue.VaultID
	err := m.db.Iterate(vaultPrefix, func(key, value []byte) error {
		var enabled bool
		if err := rlp.DecodeBytes(value, &enabled); err != nil {
			return err
		}
		if enabled {
			out = append(out, rescue.VaultID(binary.BigEndian.Uint64(key[len(vaultPrefix):])))
		}
		return nil
	})
	return out, err
}

// PausedModules returns every module whose pause switch was set through the
// engine, keyed by module name.
func (m *Manager) PausedModules() (map[string]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]bool)
	err := m.db.Iterate(pausePrefix, func(key, value []byte) error {
		var paused bool
		if err := rlp.DecodeBytes(value, &paused); err != nil {
			return fmt.Errorf("state: decode pause %q: %w", key[len(pausePrefix):], err)
		}
		out[string(key[len(pausePrefix):])] = paused
		return nil
	})
	return out, err
}

// Update runs fn against a staged view of the state. Writes become visible
// together when fn succeeds and are discarded otherwise.
func (m *Manager) Update(fn func(rescue.StateWriter) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &txn{m: m, writes: make(map[string][]byte)}
	if err := fn(tx); err != nil {
		return err
	}
	if len(tx.order) == 0 {
		return nil
	}
	batch := m.db.NewBatch()
	for _, key := range tx.order {
		batch.Put([]byte(key), tx.writes[key])
	}
	if err := batch.Write(); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	return nil
}

type txn struct {
	m      *Manager
	writes map[string][]byte
	order  []string
}

func (t *txn) get(key []byte) ([]byte, bool, error) {
	if value, ok := t.writes[string(key)]; ok {
		return value, true, nil
	}
	return t.m.get(key)
}

func (t *txn) put(key []byte, value []byte) {
	if _, ok := t.writes[string(key)]; !ok {
		t.order = append(t.order, string(key))
	}
	t.writes[string(key)] = value
}

func (t *txn) HasRole(role rescue.Role, addr crypto.Address) (bool, error) {
	return hasRole(t.get, role, addr)
}

func (t *txn) RoleMembers(role rescue.Role) ([]crypto.Address, error) {
	return roleMembers(t.get, role)
}

func (t *txn) CollateralToken(ct rescue.CollateralType) (crypto.Address, bool, error) {
	return collateralToken(t.get, ct)
}

func (t *txn) VaultEligible(id rescue.VaultID) (bool, error) {
	return vaultEligible(t.get, id)
}

func (t *txn) Parameters() (rescue.Parameters, bool, error) {
	return parameters(t.get)
}

// SetRole adds or removes addr from role. The stored member list stays sorted
// for determinism.
func (t *txn) SetRole(role rescue.Role, addr crypto.Address, member bool) error {
	if addr.IsZero() {
		return fmt.Errorf("state: role member must not be empty")
	}
	members, err := rawMembers(t.get, role)
	if err != nil {
		return err
	}
	next := make([][]byte, 0, len(members)+1)
	for _, existing := range members {
		if !bytes.Equal(existing, addr.Bytes()) {
			next = append(next, existing)
		}
	}
	if member {
		next = append(next, append([]byte(nil), addr.Bytes()...))
	}
	sort.Slice(next, func(i, j int) bool { return bytes.Compare(next[i], next[j]) < 0 })
	encoded, err := rlp.EncodeToBytes(next)
	if err != nil {
		return err
	}
	t.put(roleKey(role), encoded)
	return nil
}

func (t *txn) PutCollateralToken(ct rescue.CollateralType, token crypto.Address) error {
	if token.IsZero() {
		return fmt.Errorf("state: token must not be empty")
	}
	t.put(collateralKey(ct), append([]byte(nil), token.Bytes()...))
	return nil
}

func (t *txn) PutVaultEligible(id rescue.VaultID, enabled bool) error {
	encoded, err := rlp.EncodeToBytes(enabled)
	if err != nil {
		return err
	}
	t.put(vaultKey(id), encoded)
	return nil
}

func (t *txn) PutModulePaused(module string, paused bool) error {
	if module == "" {
		return fmt.Errorf("state: module must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(paused)
	if err != nil {
		return err
	}
	t.put(pauseKey(module), encoded)
	return nil
}

func (t *txn) PutParameters(params rescue.Parameters) error {
	record := paramsRecord{
		LiquidatorReward: big.NewInt(0),
		Treasury:         params.Treasury.Bytes(),
		ProtocolCaller:   params.ProtocolCaller.Bytes(),
	}
	if params.LiquidatorReward != nil {
		record.LiquidatorReward = params.LiquidatorReward.ToBig()
	}
	encoded, err := rlp.EncodeToBytes(record)
	if err != nil {
		return err
	}
	t.put(paramsKey, encoded)
	return nil
}

func rawMembers(get getter, role rescue.Role) ([][]byte, error) {
	data, ok, err := get(roleKey(role))
	if err != nil || !ok || len(data) == 0 {
		return nil, err
	}
	var members [][]byte
	if err := rlp.DecodeBytes(data, &members); err != nil {
		return nil, fmt.Errorf("state: decode role %s: %w", role, err)
	}
	return members, nil
}

func hasRole(get getter, role rescue.Role, addr crypto.Address) (bool, error) {
	if addr.IsZero() {
		return false, nil
	}
	members, err := rawMembers(get, role)
	if err != nil {
		return false, err
	}
	for _, member := range members {
		if bytes.Equal(member, addr.Bytes()) {
			return true, nil
		}
	}
	return false, nil
}

func roleMembers(get getter, role rescue.Role) ([]crypto.Address, error) {
	members, err := rawMembers(get, role)
	if err != nil {
		return nil, err
	}
	out := make([]crypto.Address, 0, len(members))
	for _, member := range members {
		addr, err := decodeAddress(member, crypto.PrincipalPrefix)
		if err != nil {
			return nil, err
		}
		out = append(out, addr)
	}
	return out, nil
}

func collateralToken(get getter, ct rescue.CollateralType) (crypto.Address, bool, error) {
	data, ok, err := get(collateralKey(ct))
	if err != nil || !ok {
		return crypto.Address{}, false, err
	}
	token, err := decodeAddress(data, crypto.TokenPrefix)
	if err != nil {
		return crypto.Address{}, false, err
	}
	return token, true, nil
}

func vaultEligible(get getter, id rescue.VaultID) (bool, error) {
	data, ok, err := get(vaultKey(id))
	if err != nil || !ok {
		return false, err
	}
	var enabled bool
	if err := rlp.DecodeBytes(data, &enabled); err != nil {
		return false, fmt.Errorf("state: decode vault %d: %w", id, err)
	}
	return enabled, nil
}

func parameters(get getter) (rescue.Parameters, bool, error) {
	data, ok, err := get(paramsKey)
	if err != nil || !ok {
		return rescue.Parameters{LiquidatorReward: new(uint256.Int)}, false, err
	}
	var record paramsRecord
	if err := rlp.DecodeBytes(data, &record); err != nil {
		return rescue.Parameters{}, false, fmt.Errorf("state: decode params: %w", err)
	}
	params := rescue.Parameters{LiquidatorReward: new(uint256.Int)}
	if record.LiquidatorReward != nil {
		if overflow := params.LiquidatorReward.SetFromBig(record.LiquidatorReward); overflow {
			return rescue.Parameters{}, false, fmt.Errorf("state: liquidator reward overflows 256 bits")
		}
	}
	if len(record.Treasury) > 0 {
		if params.Treasury, err = decodeAddress(record.Treasury, crypto.PrincipalPrefix); err != nil {
			return rescue.Parameters{}, false, err
		}
	}
	if len(record.ProtocolCaller) > 0 {
		if params.ProtocolCaller, err = decodeAddress(record.ProtocolCaller, crypto.PrincipalPrefix); err != nil {
			return rescue.Parameters{}, false, err
		}
	}
	return params, true, nil
}

func decodeAddress(raw []byte, prefix crypto.AddressPrefix) (crypto.Address, error) {
	if len(raw) != crypto.AddressLength {
		return crypto.Address{}, fmt.Errorf("state: address has %d bytes", len(raw))
	}
	return crypto.NewAddress(prefix, raw), nil
}
