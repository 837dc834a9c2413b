package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/holiman/uint256"

	"safesaviour/config"
	"safesaviour/core/events"
	"safesaviour/core/state"
	"safesaviour/crypto"
	nativecommon "safesaviour/native/common"
	"safesaviour/native/ledger"
	"safesaviour/native/rescue"
	"safesaviour/storage"
)

// ErrNoLedger is returned when the bootstrap file does not enable a ledger.
var ErrNoLedger = errors.New("node: no ledger attached; enable the [devnet] section")

// Options carries the optional sinks wired into the engine.
type Options struct {
	Logger   *slog.Logger
	Recorder *events.Recorder
	Observer rescue.Observer
}

// Node is a fully wired rescue engine with its state and collaborators.
type Node struct {
	Engine   *rescue.Engine
	State    *state.Manager
	Pauses   *nativecommon.Pauses
	Recorder *events.Recorder
	Ledger   *Ledger
}

// Ledger groups the in-memory collaborators seeded from the devnet section.
type Ledger struct {
	Registry *ledger.Registry
	Book     *ledger.Book
	Oracle   *ledger.Oracle
	Tokens   *ledger.Directory
	Sink     *ledger.Sink
}

func (l *Ledger) collaborators() rescue.Collaborators {
	return rescue.Collaborators{
		Vaults: l.Registry,
		Ledger: l.Book,
		Oracle: l.Oracle,
		Tokens: l.Tokens,
		Sink:   l.Sink,
	}
}

// Build wires an engine over db from the bootstrap configuration. Genesis
// roles and vault flags are written on first start; later starts keep
// whatever governance changed since.
func Build(ctx context.Context, cfg *config.Config, db storage.Database, opts Options) (*Node, error) {
	if cfg == nil || db == nil {
		return nil, fmt.Errorf("node: config and database are required")
	}
	if !cfg.Devnet.Enabled {
		return nil, ErrNoLedger
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	recorder := opts.Recorder
	if recorder == nil {
		recorder = events.NewRecorder(0)
	}
	genesis, err := cfg.RescueGenesis()
	if err != nil {
		return nil, err
	}
	custody, err := cfg.EngineAddress()
	if err != nil {
		return nil, fmt.Errorf("node: engine address: %w", err)
	}

	manager := state.NewManager(db)
	book, err := seedLedger(ctx, cfg, custody, genesis.Treasury, manager)
	if err != nil {
		return nil, err
	}

	pauses := nativecommon.NewPauses(cfg.Pauses)
	stored, err := manager.PausedModules()
	if err != nil {
		return nil, fmt.Errorf("node: load pauses: %w", err)
	}
	// Switches set through governance override the configured ones.
	for module, paused := range stored {
		pauses.Set(module, paused)
	}
	engine := rescue.NewEngine(custody, book.collaborators())
	engine.SetState(manager)
	engine.SetPauses(pauses)
	engine.SetEmitter(events.MultiEmitter{events.LogEmitter{Logger: logger}, recorder})
	if opts.Observer != nil {
		engine.SetObserver(opts.Observer)
	}
	engine.SetLogger(logger)

	fresh := true
	if err := engine.Bootstrap(genesis); err != nil {
		if !errors.Is(err, rescue.ErrAlreadyBootstrapped) {
			return nil, fmt.Errorf("node: bootstrap: %w", err)
		}
		fresh = false
	}
	if err := applyBindings(ctx, engine, cfg, genesis.Governance, fresh, logger); err != nil {
		return nil, err
	}
	return &Node{
		Engine:   engine,
		State:    manager,
		Pauses:   pauses,
		Recorder: recorder,
		Ledger:   book,
	}, nil
}

func seedLedger(ctx context.Context, cfg *config.Config, custody, treasury crypto.Address, manager *state.Manager) (*Ledger, error) {
	funds, err := rescue.ParseWad(orZero(cfg.Devnet.TreasuryFunds))
	if err != nil {
		return nil, fmt.Errorf("node: treasury funds: %w", err)
	}
	join, err := crypto.DecodeAddress(cfg.Devnet.CollateralJoin)
	if err != nil {
		return nil, fmt.Errorf("node: collateral join: %w", err)
	}

	l := &Ledger{
		Registry: ledger.NewRegistry(),
		Oracle:   ledger.NewOracle(),
		Tokens:   ledger.NewDirectory(),
	}
	l.Book = ledger.NewBook(l.Registry)
	l.Sink = ledger.NewSink(join, l.Tokens, func(ct rescue.CollateralType) (crypto.Address, error) {
		token, ok, err := manager.CollateralToken(ct)
		if err != nil {
			return crypto.Address{}, err
		}
		if !ok {
			return crypto.Address{}, rescue.ErrCollateralTypeUninitialized
		}
		return token, nil
	})

	for _, raw := range cfg.CollateralTypes {
		ct, err := raw.Parse()
		if err != nil {
			return nil, err
		}
		if _, seen := l.Tokens.Lookup(ct.Token); !seen {
			token := ledger.NewToken(ct.Token, ct.TokenFeeBps)
			if err := fund(ctx, token, treasury, custody, funds); err != nil {
				return nil, fmt.Errorf("node: fund %s: %w", ct.Type, err)
			}
			l.Tokens.Add(token)
		}
		l.Book.SetRates(ct.Type, ledger.Rates{
			AccumulatedRate:  ct.AccumulatedRate,
			LiquidationPrice: ct.LiquidationPrice,
			SafetyPrice:      ct.SafetyPrice,
		})
		if !ct.OraclePrice.IsZero() {
			l.Oracle.SetPrice(ct.Type, ct.OraclePrice)
		}
	}

	for _, raw := range cfg.Vaults {
		v, err := raw.Parse()
		if err != nil {
			return nil, err
		}
		if err := l.Registry.Open(v.ID, v.Handler, v.CollateralType); err != nil {
			return nil, err
		}
		if err := l.Book.SetPosition(v.ID, v.LockedCollateral, v.GeneratedDebt); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// fund mints the treasury balance and approves the engine's custody account
// to pull it.
func fund(ctx context.Context, token *ledger.Token, treasury, custody crypto.Address, amount *uint256.Int) error {
	if amount.IsZero() {
		return nil
	}
	if err := token.Mint(treasury, amount); err != nil {
		return err
	}
	return token.Approve(ctx, treasury, custody, amount)
}

// applyBindings registers configured collateral types that are not bound yet.
// Vault flags are only applied on a fresh state.
func applyBindings(ctx context.Context, engine *rescue.Engine, cfg *config.Config, governance crypto.Address, fresh bool, logger *slog.Logger) error {
	for _, raw := range cfg.CollateralTypes {
		ct, err := raw.Parse()
		if err != nil {
			return err
		}
		err = engine.RegisterCollateralType(governance, ct.Type, ct.Token)
		switch {
		case err == nil:
		case errors.Is(err, rescue.ErrAlreadyInitialized):
			current, lookupErr := engine.TokenFor(ct.Type)
			if lookupErr != nil {
				return lookupErr
			}
			if !current.Equal(ct.Token) {
				logger.Warn("collateral token differs from bootstrap file; keeping stored binding",
					slog.String("collateralType", ct.Type.String()),
					slog.String("stored", current.String()),
					slog.String("configured", ct.Token.String()))
			}
		case errors.Is(err, rescue.ErrUnauthorized):
			logger.Warn("genesis governance no longer holds its role; skipping binding",
				slog.String("collateralType", ct.Type.String()))
		default:
			return fmt.Errorf("node: register %s: %w", ct.Type, err)
		}
	}

	if !fresh {
		return nil
	}
	for _, raw := range cfg.Vaults {
		v, err := raw.Parse()
		if err != nil {
			return err
		}
		current, err := engine.IsEligible(v.ID)
		if err != nil {
			return err
		}
		if current == v.Eligible {
			continue
		}
		if err := engine.SetEligible(ctx, governance, v.ID, v.Eligible); err != nil {
			if errors.Is(err, rescue.ErrUnauthorized) {
				logger.Warn("genesis governance no longer holds its role; skipping eligibility",
					slog.Uint64("vault", uint64(v.ID)))
				continue
			}
			return fmt.Errorf("node: eligibility of vault %d: %w", v.ID, err)
		}
	}
	return nil
}

func orZero(value string) string {
	if value == "" {
		return "0"
	}
	return value
}
