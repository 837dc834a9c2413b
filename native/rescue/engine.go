package rescue

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/holiman/uint256"
	"lukechampine.com/blake3"

	"safesaviour/core/events"
	"safesaviour/crypto"
	nativecommon "safesaviour/native/common"
)

const moduleName = "rescue"

// Observer receives the outcome of every rescue attempt.
type Observer interface {
	ObserveRescue(outcome string, collateralAdded *uint256.Int, duration time.Duration)
}

// Engine computes and applies collateral top-ups for vaults that fell below
// their safety ratio, funded by the treasury.
type Engine struct {
	self     crypto.Address
	deps     Collaborators
	state    State
	pauses   nativecommon.PauseView
	emitter  events.Emitter
	observer Observer
	logger   *slog.Logger
	vaults   *keyedLocks[VaultID]
	custody  *keyedLocks[string]
	nonce    atomic.Uint64
	now      func() time.Time
}

// NewEngine constructs an engine whose custody account is self.
func NewEngine(self crypto.Address, deps Collaborators) *Engine {
	return &Engine{
		self:    self,
		deps:    deps,
		emitter: events.NoopEmitter{},
		logger:  slog.Default(),
		vaults:  newKeyedLocks[VaultID](),
		custody: newKeyedLocks[string](),
		now:     time.Now,
	}
}

// SetState wires the engine to the persistence layer.
func (e *Engine) SetState(state State) { e.state = state }

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets it to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

func (e *Engine) SetObserver(o Observer) {
	if e == nil {
		return
	}
	e.observer = o
}

func (e *Engine) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	if logger == nil {
		logger = slog.Default()
	}
	e.logger = logger.With(slog.String("component", moduleName))
}

// Address returns the custody account of the engine.
func (e *Engine) Address() crypto.Address {
	if e == nil {
		return crypto.Address{}
	}
	return e.self
}

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil || evt == nil {
		return
	}
	e.emitter.Emit(evt)
}

// Rescue tops up the vault behind handler so that it clears its safety ratio
// again. Handlers that map to no vault succeed with OutcomeNotManaged. Every
// other failure is returned as an error and leaves balances and the ledger as
// they were.
func (e *Engine) Rescue(ctx context.Context, caller crypto.Address, ct CollateralType, handler crypto.Address) (Result, error) {
	start := time.Now()
	result, err := e.rescue(ctx, caller, ct, handler)
	if e != nil && e.observer != nil {
		outcome := result.Outcome.String()
		if err != nil {
			outcome = Reason(err)
		}
		e.observer.ObserveRescue(outcome, result.CollateralAdded, time.Since(start))
	}
	return result, err
}

func (e *Engine) rescue(ctx context.Context, caller crypto.Address, ct CollateralType, handler crypto.Address) (Result, error) {
	if e == nil || e.state == nil {
		return Result{}, ErrNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return Result{}, err
	}
	authorized, err := e.state.HasRole(RoleProtocol, caller)
	if err != nil {
		return Result{}, err
	}
	if !authorized || caller.IsZero() {
		return Result{}, ErrUnauthorized
	}
	if !e.deps.complete() {
		return Result{}, ErrCollaboratorMissing
	}

	id, managed, err := e.deps.Vaults.Resolve(ctx, handler)
	if err != nil {
		return Result{}, fmt.Errorf("resolve handler: %w", err)
	}
	if !managed {
		return Result{Outcome: OutcomeNotManaged}, nil
	}

	unlock := e.vaults.lock(id)
	defer unlock()

	eligible, err := e.state.VaultEligible(id)
	if err != nil {
		return Result{}, err
	}
	token, bound, err := e.state.CollateralToken(ct)
	if err != nil {
		return Result{}, err
	}
	if !eligible || !bound {
		return Result{}, &VaultNotEligibleError{VaultID: id}
	}
	vaultType, err := e.deps.Vaults.CollateralTypeOf(ctx, id)
	if err != nil {
		return Result{}, fmt.Errorf("resolve collateral type of vault %d: %w", id, err)
	}
	if vaultType != ct {
		return Result{}, fmt.Errorf("%w: vault %d is %s", ErrCollateralTypeMismatch, id, vaultType)
	}

	position, err := e.deps.Ledger.PositionOf(ctx, ct, handler)
	if err != nil {
		return Result{}, fmt.Errorf("read position: %w", err)
	}
	market, err := e.deps.Ledger.RatesFor(ctx, ct)
	if err != nil {
		return Result{}, fmt.Errorf("read rates: %w", err)
	}
	price, err := e.deps.Oracle.Read(ctx, ct)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
	}
	if price == nil || price.IsZero() {
		return Result{}, ErrOracleUnavailable
	}
	market.OraclePrice = price

	required, err := RequiredCollateral(position, market)
	if err != nil {
		return Result{}, err
	}
	value, err := WadMul(required, price)
	if err != nil {
		return Result{}, err
	}
	params, _, err := e.state.Parameters()
	if err != nil {
		return Result{}, err
	}
	params = params.Clone()
	if params.Treasury.IsZero() {
		return Result{}, fmt.Errorf("%w: treasury not configured", ErrCollateralTransferFailed)
	}

	reserve, err := e.deps.Tokens.Token(token)
	if err != nil {
		return Result{}, fmt.Errorf("resolve reserve token %s: %w", token, err)
	}
	if err := e.settle(ctx, reserve, token, params.Treasury, ct, handler, id, required); err != nil {
		return Result{}, err
	}

	receipt := e.receiptID(id, ct, handler, required)
	e.emit(events.RescueExecuted{
		ReceiptID:       hex.EncodeToString(receipt[:]),
		VaultID:         uint64(id),
		CollateralType:  ct.String(),
		Handler:         handler.String(),
		CollateralAdded: required.ToBig(),
		Reward:          params.LiquidatorReward.ToBig(),
	})
	e.logger.Info("vault rescued",
		slog.Uint64("vault", uint64(id)),
		slog.String("collateralType", ct.String()),
		slog.String("collateralAdded", FormatWad(required)),
		slog.String("collateralValue", FormatWad(value)))

	return Result{
		Outcome:         OutcomeRescued,
		VaultID:         id,
		CollateralAdded: required,
		Reward:          params.LiquidatorReward,
		CollateralValue: value,
		ReceiptID:       receipt,
	}, nil
}

// RequiredCollateral returns the collateral that closes the gap between the
// debt and the collateral value at the liquidation price, converted to
// collateral units at the safety price. The result must lift the position
// strictly above its debt at the liquidation price.
func RequiredCollateral(position PositionSnapshot, market MarketSnapshot) (*uint256.Int, error) {
	if position.LockedCollateral == nil || position.GeneratedDebt == nil {
		return nil, ErrNoShortfall
	}
	debtValue, err := RayMul(position.GeneratedDebt, market.AccumulatedRate)
	if err != nil {
		return nil, err
	}
	collateralValue, err := WadMul(position.LockedCollateral, market.LiquidationPrice)
	if err != nil {
		return nil, err
	}
	if debtValue.Cmp(collateralValue) <= 0 {
		return nil, ErrNoShortfall
	}
	deficit, err := sub(debtValue, collateralValue)
	if err != nil {
		return nil, err
	}
	required, err := WadDiv(deficit, market.SafetyPrice)
	if err != nil {
		if errors.Is(err, ErrDivisionByZero) {
			return nil, fmt.Errorf("%w: zero safety price", ErrSafetyRatioNotMet)
		}
		return nil, err
	}
	restored, err := add(required, position.LockedCollateral)
	if err != nil {
		return nil, err
	}
	restoredValue, err := WadMul(restored, market.LiquidationPrice)
	if err != nil {
		return nil, err
	}
	if restoredValue.Cmp(debtValue) <= 0 {
		return nil, ErrSafetyRatioNotMet
	}
	return required, nil
}

// settle funds and deposits amount under the custody lock of the reserve
// token. Custody balances are shared by every vault of a token and fund and
// unwind read them as deltas.
func (e *Engine) settle(ctx context.Context, reserve ReserveToken, token, treasury crypto.Address, ct CollateralType, handler crypto.Address, id VaultID, amount *uint256.Int) error {
	release := e.custody.lock(token.String())
	defer release()
	if err := e.fund(ctx, reserve, treasury, amount); err != nil {
		return err
	}
	return e.deposit(ctx, reserve, treasury, ct, handler, id, amount)
}

// fund pulls amount from the treasury into custody. Anything received short
// of amount is returned before failing.
func (e *Engine) fund(ctx context.Context, token ReserveToken, treasury crypto.Address, amount *uint256.Int) error {
	before, err := token.BalanceOf(ctx, e.self)
	if err != nil {
		return fmt.Errorf("%w: read custody balance: %v", ErrCollateralTransferFailed, err)
	}
	ok, transferErr := token.TransferFrom(ctx, e.self, treasury, e.self, amount)
	after, err := token.BalanceOf(ctx, e.self)
	if err != nil {
		return fmt.Errorf("%w: read custody balance: %v", ErrCollateralTransferFailed, err)
	}
	received := new(uint256.Int)
	if after.Gt(before) {
		received.Sub(after, before)
	}
	if transferErr == nil && ok && !received.Lt(amount) {
		return nil
	}
	cause := transferErr
	if cause == nil {
		cause = fmt.Errorf("received %s of %s", FormatWad(received), FormatWad(amount))
	}
	if !received.IsZero() {
		if refundErr := e.refund(ctx, token, treasury, received); refundErr != nil {
			return errors.Join(fmt.Errorf("%w: %v", ErrCollateralTransferFailed, cause), refundErr)
		}
	}
	return fmt.Errorf("%w: %v", ErrCollateralTransferFailed, cause)
}

// deposit hands the funded tokens to the sink and records them on the vault.
// Failures unwind whatever already happened, including the funding.
func (e *Engine) deposit(ctx context.Context, token ReserveToken, treasury crypto.Address, ct CollateralType, handler crypto.Address, id VaultID, amount *uint256.Int) error {
	sink := e.deps.Sink.Address()
	if err := token.Approve(ctx, e.self, sink, amount); err != nil {
		return e.unwind(ctx, token, treasury, amount, fmt.Errorf("approve deposit sink: %w", err))
	}
	if err := e.deps.Sink.Deposit(ctx, ct, handler, e.self, amount); err != nil {
		cause := fmt.Errorf("deposit collateral: %w", err)
		if resetErr := token.Approve(ctx, e.self, sink, new(uint256.Int)); resetErr != nil {
			cause = errors.Join(cause, fmt.Errorf("reset sink allowance: %w", resetErr))
		}
		return e.unwind(ctx, token, treasury, amount, cause)
	}
	if err := e.deps.Ledger.IncreaseLockedCollateral(ctx, id, amount); err != nil {
		cause := fmt.Errorf("increase locked collateral: %w", err)
		if withdrawErr := e.deps.Sink.Withdraw(ctx, ct, handler, e.self, amount); withdrawErr != nil {
			e.logger.Error("rescue unwind failed; collateral left in deposit sink",
				slog.Uint64("vault", uint64(id)),
				slog.String("amount", FormatWad(amount)),
				slog.Any("error", withdrawErr))
			return errors.Join(cause, fmt.Errorf("withdraw deposit: %w", withdrawErr))
		}
		return e.unwind(ctx, token, treasury, amount, cause)
	}
	return nil
}

// unwind returns up to amount from custody to the treasury.
func (e *Engine) unwind(ctx context.Context, token ReserveToken, treasury crypto.Address, amount *uint256.Int, cause error) error {
	custody, err := token.BalanceOf(ctx, e.self)
	if err != nil {
		return errors.Join(cause, err)
	}
	if custody.Gt(amount) {
		custody = amount
	}
	if custody.IsZero() {
		return cause
	}
	if err := e.refund(ctx, token, treasury, custody); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}

func (e *Engine) refund(ctx context.Context, token ReserveToken, treasury crypto.Address, amount *uint256.Int) error {
	ok, err := token.Transfer(ctx, e.self, treasury, amount)
	if err == nil && !ok {
		err = errors.New("transfer rejected")
	}
	if err != nil {
		e.logger.Error("treasury refund failed",
			slog.String("amount", FormatWad(amount)),
			slog.Any("error", err))
		return fmt.Errorf("refund treasury: %w", err)
	}
	return nil
}

func (e *Engine) receiptID(id VaultID, ct CollateralType, handler crypto.Address, amount *uint256.Int) [32]byte {
	var buf [8]byte
	h := blake3.New(32, nil)
	binary.BigEndian.PutUint64(buf[:], uint64(id))
	h.Write(buf[:])
	h.Write(ct[:])
	h.Write(handler.Bytes())
	amountBytes := amount.Bytes32()
	h.Write(amountBytes[:])
	binary.BigEndian.PutUint64(buf[:], e.nonce.Add(1))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(e.now().UnixNano()))
	h.Write(buf[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Reason classifies a rescue error into a stable label for metrics and API
// responses.
func Reason(err error) string {
	var notEligible *VaultNotEligibleError
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, nativecommon.ErrModulePaused):
		return "paused"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.As(err, &notEligible), errors.Is(err, ErrVaultNotEligible):
		return "not_eligible"
	case errors.Is(err, ErrNoShortfall):
		return "no_shortfall"
	case errors.Is(err, ErrSafetyRatioNotMet):
		return "safety_ratio_not_met"
	case errors.Is(err, ErrCollateralTransferFailed):
		return "transfer_failed"
	case errors.Is(err, ErrOracleUnavailable):
		return "oracle_unavailable"
	case errors.Is(err, ErrCollateralTypeMismatch):
		return "collateral_type_mismatch"
	case errors.Is(err, ErrMathOverflow), errors.Is(err, ErrMathUnderflow):
		return "math_overflow"
	default:
		return "error"
	}
}
