package rescue_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"safesaviour/core/events"
	"safesaviour/core/state"
	"safesaviour/crypto"
	nativecommon "safesaviour/native/common"
	"safesaviour/native/ledger"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

const treasuryFunds = "1000"

type fixture struct {
	t        *testing.T
	ctx      context.Context
	engine   *rescue.Engine
	state    *state.Manager
	registry *ledger.Registry
	book     *ledger.Book
	oracle   *ledger.Oracle
	token    *ledger.Token
	tokens   *ledger.Directory
	sink     *ledger.Sink
	pauses   *nativecommon.Pauses
	recorder *events.Recorder
	observer *recordingObserver

	governance crypto.Address
	treasury   crypto.Address
	protocol   crypto.Address
	custody    crypto.Address
	handler    crypto.Address
	ct         rescue.CollateralType
	vault      rescue.VaultID
}

type fixtureOption func(*fixture)

func withTokenFee(bps uint64) fixtureOption {
	return func(f *fixture) {
		f.token = ledger.NewToken(f.token.Handle(), bps)
	}
}

func wad(t *testing.T, v string) *uint256.Int {
	t.Helper()
	out, err := rescue.ParseWad(v)
	require.NoError(t, err)
	return out
}

// newFixture opens vault 1 of type TKN holding 100 collateral against debt,
// with rate 1.0, liquidation price 1.0, safety price 0.9 and oracle price 1.0.
func newFixture(t *testing.T, debt string, opts ...fixtureOption) *fixture {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)

	f := &fixture{
		t:          t,
		ctx:        context.Background(),
		state:      state.NewManager(db),
		registry:   ledger.NewRegistry(),
		oracle:     ledger.NewOracle(),
		token:      ledger.NewToken(crypto.MustAddress(crypto.TokenPrefix, "tkn"), 0),
		pauses:     nativecommon.NewPauses(nil),
		recorder:   events.NewRecorder(0),
		observer:   &recordingObserver{},
		governance: crypto.MustAddress(crypto.PrincipalPrefix, "governance"),
		treasury:   crypto.MustAddress(crypto.PrincipalPrefix, "treasury"),
		protocol:   crypto.MustAddress(crypto.PrincipalPrefix, "protocol"),
		custody:    crypto.MustAddress(crypto.PrincipalPrefix, "rescue-engine"),
		handler:    crypto.MustAddress(crypto.HandlerPrefix, "vault-1"),
		ct:         rescue.MustCollateralType("TKN"),
		vault:      1,
	}
	for _, opt := range opts {
		opt(f)
	}
	f.book = ledger.NewBook(f.registry)
	f.tokens = ledger.NewDirectory(f.token)
	f.sink = ledger.NewSink(crypto.MustAddress(crypto.PrincipalPrefix, "collateral-join"), f.tokens, func(ct rescue.CollateralType) (crypto.Address, error) {
		token, _, err := f.state.CollateralToken(ct)
		return token, err
	})
	f.engine = f.newEngine(f.collaborators())

	require.NoError(t, f.engine.Bootstrap(rescue.Genesis{
		Governance:       f.governance,
		ProtocolCaller:   f.protocol,
		Treasury:         f.treasury,
		LiquidatorReward: wad(t, "5"),
	}))
	require.NoError(t, f.registry.Open(f.vault, f.handler, f.ct))
	require.NoError(t, f.book.SetPosition(f.vault, wad(t, "100"), wad(t, debt)))
	f.book.SetRates(f.ct, ledger.Rates{
		AccumulatedRate:  rescue.Ray(),
		LiquidationPrice: wad(t, "1"),
		SafetyPrice:      wad(t, "0.9"),
	})
	f.oracle.SetPrice(f.ct, wad(t, "1"))
	require.NoError(t, f.token.Mint(f.treasury, wad(t, treasuryFunds)))
	require.NoError(t, f.token.Approve(f.ctx, f.treasury, f.custody, wad(t, treasuryFunds)))

	require.NoError(t, f.engine.RegisterCollateralType(f.governance, f.ct, f.token.Handle()))
	require.NoError(t, f.engine.SetEligible(f.ctx, f.governance, f.vault, true))
	return f
}

func (f *fixture) collaborators() rescue.Collaborators {
	return rescue.Collaborators{
		Vaults: f.registry,
		Ledger: f.book,
		Oracle: f.oracle,
		Tokens: f.tokens,
		Sink:   f.sink,
	}
}

func (f *fixture) newEngine(deps rescue.Collaborators) *rescue.Engine {
	engine := rescue.NewEngine(f.custody, deps)
	engine.SetState(f.state)
	engine.SetPauses(f.pauses)
	engine.SetEmitter(f.recorder)
	engine.SetObserver(f.observer)
	return engine
}

// rewire swaps the collaborators while keeping state, balances and ledger.
func (f *fixture) rewire(mutate func(*rescue.Collaborators)) {
	deps := f.collaborators()
	mutate(&deps)
	f.engine = f.newEngine(deps)
}

// openVault opens another eligible TKN vault holding 100 collateral.
func (f *fixture) openVault(id rescue.VaultID, debt string) crypto.Address {
	f.t.Helper()
	handler := crypto.MustAddress(crypto.HandlerPrefix, fmt.Sprintf("vault-%d", id))
	require.NoError(f.t, f.registry.Open(id, handler, f.ct))
	require.NoError(f.t, f.book.SetPosition(id, wad(f.t, "100"), wad(f.t, debt)))
	require.NoError(f.t, f.engine.SetEligible(f.ctx, f.governance, id, true))
	return handler
}

func (f *fixture) lockedIn(id rescue.VaultID) string {
	f.t.Helper()
	p, ok := f.book.Position(id)
	require.True(f.t, ok)
	return rescue.FormatWad(p.LockedCollateral)
}

func (f *fixture) rescue() (rescue.Result, error) {
	return f.engine.Rescue(f.ctx, f.protocol, f.ct, f.handler)
}

func (f *fixture) balance(addr crypto.Address) string {
	f.t.Helper()
	b, err := f.token.BalanceOf(f.ctx, addr)
	require.NoError(f.t, err)
	return rescue.FormatWad(b)
}

func (f *fixture) locked() string {
	f.t.Helper()
	return f.lockedIn(f.vault)
}

// requireUntouched asserts that no funds moved and the vault kept its
// collateral.
func (f *fixture) requireUntouched() {
	f.t.Helper()
	require.Equal(f.t, treasuryFunds, f.balance(f.treasury))
	require.Equal(f.t, "0", f.balance(f.custody))
	require.Equal(f.t, "0", f.balance(f.sink.Address()))
	require.Equal(f.t, "100", f.locked())
}

func (f *fixture) eventsOfType(kind string) []events.Event {
	var out []events.Event
	for _, evt := range f.recorder.Events() {
		if evt.EventType() == kind {
			out = append(out, evt)
		}
	}
	return out
}

type recordingObserver struct {
	mu       sync.Mutex
	outcomes []string
}

func (o *recordingObserver) ObserveRescue(outcome string, _ *uint256.Int, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.outcomes = append(o.outcomes, outcome)
}

func (o *recordingObserver) last() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.outcomes) == 0 {
		return ""
	}
	return o.outcomes[len(o.outcomes)-1]
}

type failingSink struct {
	*ledger.Sink
	depositErr  error
	withdrawErr error
}

func (s failingSink) Deposit(ctx context.Context, ct rescue.CollateralType, handler, from crypto.Address, amount *uint256.Int) error {
	if s.depositErr != nil {
		return s.depositErr
	}
	return s.Sink.Deposit(ctx, ct, handler, from, amount)
}

func (s failingSink) Withdraw(ctx context.Context, ct rescue.CollateralType, handler, to crypto.Address, amount *uint256.Int) error {
	if s.withdrawErr != nil {
		return s.withdrawErr
	}
	return s.Sink.Withdraw(ctx, ct, handler, to, amount)
}

type failingBook struct {
	*ledger.Book
	err error
}

func (b failingBook) IncreaseLockedCollateral(context.Context, rescue.VaultID, *uint256.Int) error {
	return b.err
}

// pacedTokens wraps every reserve token so that each call sleeps first, which
// makes concurrent rescues interleave between balance reads and transfers.
type pacedTokens struct {
	dir      rescue.TokenDirectory
	delay    time.Duration
	resetErr error
}

func (p pacedTokens) Token(handle crypto.Address) (rescue.ReserveToken, error) {
	token, err := p.dir.Token(handle)
	if err != nil {
		return nil, err
	}
	return pacedToken{ReserveToken: token, delay: p.delay, resetErr: p.resetErr}, nil
}

type pacedToken struct {
	rescue.ReserveToken
	delay    time.Duration
	resetErr error
}

func (t pacedToken) wait() {
	if t.delay > 0 {
		time.Sleep(t.delay)
	}
}

func (t pacedToken) TransferFrom(ctx context.Context, spender, from, to crypto.Address, amount *uint256.Int) (bool, error) {
	t.wait()
	return t.ReserveToken.TransferFrom(ctx, spender, from, to, amount)
}

func (t pacedToken) Transfer(ctx context.Context, from, to crypto.Address, amount *uint256.Int) (bool, error) {
	t.wait()
	return t.ReserveToken.Transfer(ctx, from, to, amount)
}

func (t pacedToken) BalanceOf(ctx context.Context, account crypto.Address) (*uint256.Int, error) {
	t.wait()
	return t.ReserveToken.BalanceOf(ctx, account)
}

// Approve fails with resetErr when clearing an allowance.
func (t pacedToken) Approve(ctx context.Context, owner, spender crypto.Address, amount *uint256.Int) error {
	if t.resetErr != nil && (amount == nil || amount.IsZero()) {
		return t.resetErr
	}
	t.wait()
	return t.ReserveToken.Approve(ctx, owner, spender, amount)
}
