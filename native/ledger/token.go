package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
)

const bpsDenominator = 10_000

// Token is an in-memory reserve token with allowances. A non-zero fee burns
// that share of every transfer before it reaches the recipient.
type Token struct {
	handle crypto.Address
	feeBps uint64

	mu         sync.Mutex
	balances   map[string]*uint256.Int
	allowances map[string]*uint256.Int
}

var _ rescue.ReserveToken = (*Token)(nil)

func NewToken(handle crypto.Address, feeBps uint64) *Token {
	if feeBps > bpsDenominator {
		feeBps = bpsDenominator
	}
	return &Token{
		handle:     handle,
		feeBps:     feeBps,
		balances:   make(map[string]*uint256.Int),
		allowances: make(map[string]*uint256.Int),
	}
}

// Handle returns the address the token is registered under.
func (t *Token) Handle() crypto.Address { return t.handle }

// Mint credits amount to account.
func (t *Token) Mint(account crypto.Address, amount *uint256.Int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	balance := t.balance(account)
	sum, overflow := new(uint256.Int).AddOverflow(balance, amount)
	if overflow {
		return rescue.ErrMathOverflow
	}
	balance.Set(sum)
	return nil
}

// Allowance returns what spender may still move out of owner's balance.
func (t *Token) Allowance(owner, spender crypto.Address) *uint256.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if a, ok := t.allowances[allowanceKey(owner, spender)]; ok {
		return new(uint256.Int).Set(a)
	}
	return new(uint256.Int)
}

func (t *Token) BalanceOf(_ context.Context, account crypto.Address) (*uint256.Int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(uint256.Int).Set(t.balance(account)), nil
}

func (t *Token) Approve(_ context.Context, owner, spender crypto.Address, amount *uint256.Int) error {
	if owner.IsZero() || spender.IsZero() {
		return fmt.Errorf("ledger: approve requires owner and spender")
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.allowances[allowanceKey(owner, spender)] = clone(amount)
	return nil
}

func (t *Token) Transfer(_ context.Context, from, to crypto.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.move(from, to, amount); err != nil {
		return false, err
	}
	return true, nil
}

func (t *Token) TransferFrom(_ context.Context, spender, from, to crypto.Address, amount *uint256.Int) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	key := allowanceKey(from, spender)
	allowance, ok := t.allowances[key]
	if !ok || allowance.Lt(amount) {
		return false, fmt.Errorf("%w: %s may not move %s from %s", ErrAllowance, spender, rescue.FormatWad(amount), from)
	}
	if err := t.move(from, to, amount); err != nil {
		return false, err
	}
	t.allowances[key] = new(uint256.Int).Sub(allowance, amount)
	return true, nil
}

func (t *Token) move(from, to crypto.Address, amount *uint256.Int) error {
	if to.IsZero() {
		return fmt.Errorf("ledger: transfer to empty address")
	}
	source := t.balance(from)
	if source.Lt(amount) {
		return fmt.Errorf("%w: %s holds %s", ErrInsufficient, from, rescue.FormatWad(source))
	}
	credited := new(uint256.Int).Set(amount)
	if t.feeBps > 0 {
		fee, _ := new(uint256.Int).MulDivOverflow(amount, uint256.NewInt(t.feeBps), uint256.NewInt(bpsDenominator))
		credited.Sub(credited, fee)
	}
	target := t.balance(to)
	if _, overflow := new(uint256.Int).AddOverflow(target, credited); overflow {
		return rescue.ErrMathOverflow
	}
	source.Sub(source, amount)
	target.Add(target, credited)
	return nil
}

func (t *Token) balance(account crypto.Address) *uint256.Int {
	key := string(account.Bytes())
	b, ok := t.balances[key]
	if !ok {
		b = new(uint256.Int)
		t.balances[key] = b
	}
	return b
}

func allowanceKey(owner, spender crypto.Address) string {
	return string(owner.Bytes()) + "|" + string(spender.Bytes())
}

// Directory resolves token handles.
type Directory struct {
	mu     sync.RWMutex
	tokens map[string]*Token
}

var _ rescue.TokenDirectory = (*Directory)(nil)

func NewDirectory(tokens ...*Token) *Directory {
	d := &Directory{tokens: make(map[string]*Token)}
	for _, token := range tokens {
		d.Add(token)
	}
	return d
}

func (d *Directory) Add(token *Token) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tokens[string(token.handle.Bytes())] = token
}

// Lookup returns the concrete token behind handle.
func (d *Directory) Lookup(handle crypto.Address) (*Token, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	token, ok := d.tokens[string(handle.Bytes())]
	return token, ok
}

func (d *Directory) Token(handle crypto.Address) (rescue.ReserveToken, error) {
	token, ok := d.Lookup(handle)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownToken, handle)
	}
	return token, nil
}
