package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/holiman/uint256"

	"safesaviour/crypto"
	"safesaviour/native/rescue"
)

// TokenResolver returns the reserve token bound to a collateral type.
type TokenResolver func(ct rescue.CollateralType) (crypto.Address, error)

// Sink is the backing reserve of the book. Deposits pull approved tokens out
// of the depositor and are tracked per collateral type.
type Sink struct {
	address   crypto.Address
	directory *Directory
	resolve   TokenResolver

	mu       sync.Mutex
	reserves map[rescue.CollateralType]*uint256.Int
}

var _ rescue.DepositSink = (*Sink)(nil)

func NewSink(address crypto.Address, directory *Directory, resolve TokenResolver) *Sink {
	return &Sink{
		address:   address,
		directory: directory,
		resolve:   resolve,
		reserves:  make(map[rescue.CollateralType]*uint256.Int),
	}
}

func (s *Sink) Address() crypto.Address { return s.address }

// Reserve returns the amount held for ct.
func (s *Sink) Reserve(ct rescue.CollateralType) *uint256.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return clone(s.reserves[ct])
}

func (s *Sink) Deposit(ctx context.Context, ct rescue.CollateralType, _ crypto.Address, from crypto.Address, amount *uint256.Int) error {
	token, err := s.token(ct)
	if err != nil {
		return err
	}
	ok, err := token.TransferFrom(ctx, s.address, from, s.address, amount)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("ledger: deposit transfer rejected")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	reserve := clone(s.reserves[ct])
	s.reserves[ct] = reserve.Add(reserve, amount)
	return nil
}

func (s *Sink) Withdraw(ctx context.Context, ct rescue.CollateralType, _ crypto.Address, to crypto.Address, amount *uint256.Int) error {
	token, err := s.token(ct)
	if err != nil {
		return err
	}
	// The reserve is debited before the transfer so concurrent withdrawals
	// cannot both pass the balance check.
	s.mu.Lock()
	reserve := clone(s.reserves[ct])
	if reserve.Lt(amount) {
		s.mu.Unlock()
		return fmt.Errorf("%w: reserve for %s holds %s", ErrInsufficient, ct, rescue.FormatWad(reserve))
	}
	s.reserves[ct] = reserve.Sub(reserve, amount)
	s.mu.Unlock()

	ok, err := token.Transfer(ctx, s.address, to, amount)
	if err == nil && !ok {
		err = fmt.Errorf("ledger: withdraw transfer rejected")
	}
	if err != nil {
		s.mu.Lock()
		restored := clone(s.reserves[ct])
		s.reserves[ct] = restored.Add(restored, amount)
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *Sink) token(ct rescue.CollateralType) (rescue.ReserveToken, error) {
	handle, err := s.resolve(ct)
	if err != nil {
		return nil, err
	}
	if handle.IsZero() {
		return nil, fmt.Errorf("%w: %s has no reserve token", ErrUnknownToken, ct)
	}
	return s.directory.Token(handle)
}
