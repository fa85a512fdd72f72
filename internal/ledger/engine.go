package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/rickgao/reits-ledger/internal/escrow"
	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
	"github.com/rickgao/reits-ledger/internal/pda"
	"github.com/rickgao/reits-ledger/internal/store"
	"github.com/rickgao/reits-ledger/internal/token"
)

// Record kinds.
const (
	KindConfigs  store.Kind = "configs"
	KindScheme   store.Kind = "scheme"
	KindInvestor store.Kind = "investor"
	KindDeposit  store.Kind = "deposit_base"
	KindPosition store.Kind = "position"
)

// Address seeds.
const (
	SeedConfigs  = "investment-trusts-configs"
	SeedScheme   = "investment-trust-scheme"
	SeedInvestor = "investor"
	SeedDeposit  = "deposit-base"
	SeedPosition = "position"
)

// DefaultProgramID is the program every record address is derived under
// unless configured otherwise.
var DefaultProgramID = model.Address(sha256.Sum256([]byte("real-estate-investment-trusts")))

// Config holds engine configuration.
type Config struct {
	ProgramID        model.Address // Default: DefaultProgramID
	IssuerCapacity   int           // Max issuers in the registry (default: 5)
	InvestorCapacity int           // Max investors per scheme (default: 5)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		ProgramID:        DefaultProgramID,
		IssuerCapacity:   5,
		InvestorCapacity: 5,
	}
}

// Recorder observes completed operations.
type Recorder interface {
	ObserveOperation(op string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error, time.Duration) {}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// WithAuthority replaces the derived vault authority.
func WithAuthority(a escrow.Authority) Option {
	return func(e *Engine) {
		e.authority = a
	}
}

// WithPublisher sets where committed events are published.
func WithPublisher(p events.Publisher) Option {
	return func(e *Engine) {
		e.publisher = p
	}
}

// WithRecorder sets the operation recorder.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.recorder = r
	}
}

// WithClock sets the time source for record and event timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// Engine applies ledger operations. Each mutating operation runs as a
// single store transaction: counters, registry entries and token balances
// commit together or not at all.
type Engine struct {
	cfg       Config
	store     store.Store
	program   *token.Program
	authority escrow.Authority
	publisher events.Publisher
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time

	configsAddr model.Address
}

// New creates an Engine over st.
func New(cfg Config, st store.Store, opts ...Option) (*Engine, error) {
	if cfg.ProgramID.IsZero() {
		cfg.ProgramID = DefaultProgramID
	}
	if cfg.IssuerCapacity <= 0 {
		return nil, fmt.Errorf("issuer capacity must be positive, got %d", cfg.IssuerCapacity)
	}
	if cfg.InvestorCapacity <= 0 {
		return nil, fmt.Errorf("investor capacity must be positive, got %d", cfg.InvestorCapacity)
	}

	e := &Engine{
		cfg:       cfg,
		store:     st,
		program:   token.NewProgram(cfg.ProgramID),
		publisher: events.Discard,
		recorder:  nopRecorder{},
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.authority == nil {
		e.authority = escrow.NewDerived(cfg.ProgramID)
	}

	addr, err := e.derive(SeedConfigs)
	if err != nil {
		return nil, err
	}
	e.configsAddr = addr
	return e, nil
}

// ProgramID returns the program record addresses are derived under.
func (e *Engine) ProgramID() model.Address {
	return e.cfg.ProgramID
}

// Program returns the token program the engine moves value with.
func (e *Engine) Program() *token.Program {
	return e.program
}

// ConfigsAddress returns the address of the singleton configs record.
func (e *Engine) ConfigsAddress() model.Address {
	return e.configsAddr
}

// SchemeAddress returns the address of the scheme registered by owner.
func (e *Engine) SchemeAddress(owner model.Address) (model.Address, error) {
	return e.derive(SeedScheme, owner[:])
}

// InvestorAddress returns the address of the investor record for owner.
func (e *Engine) InvestorAddress(owner model.Address) (model.Address, error) {
	return e.derive(SeedInvestor, owner[:])
}

// PositionAddress returns the address of owner's position in a scheme.
func (e *Engine) PositionAddress(scheme, owner model.Address) (model.Address, error) {
	return e.derive(SeedPosition, scheme[:], owner[:])
}

// DepositAddress returns the address of a scheme's deposit record.
func (e *Engine) DepositAddress(scheme model.Address) (model.Address, error) {
	return e.derive(SeedDeposit, scheme[:])
}

func (e *Engine) derive(prefix string, seeds ...[]byte) (model.Address, error) {
	all := append([][]byte{[]byte(prefix)}, seeds...)
	addr, _, err := pda.FindProgramAddress(all, e.cfg.ProgramID)
	if err != nil {
		return model.Address{}, fmt.Errorf("derive %s address: %w", prefix, err)
	}
	return addr, nil
}

// update runs fn as one unit of work, records the outcome and publishes ev
// once committed.
func (e *Engine) update(ctx context.Context, op string, keys []model.Address, fn func(tx store.Tx) (*events.Event, error)) error {
	start := time.Now()

	var ev *events.Event
	err := e.store.Update(ctx, keys, func(tx store.Tx) error {
		var err error
		ev, err = fn(tx)
		return err
	})
	err = classify(err)
	e.recorder.ObserveOperation(op, err, time.Since(start))

	if err != nil {
		e.logger.Debug("ledger operation rejected", "op", op, "error", err)
		return fmt.Errorf("%s: %w", op, err)
	}

	if ev != nil {
		e.publisher.Publish(*ev)
	}
	return nil
}

func (e *Engine) event(t events.Type, caller model.Address) *events.Event {
	ev := events.New(t, caller, e.now())
	return &ev
}

// -----------------------------------------------------------------------------
// Init
// -----------------------------------------------------------------------------

// InitParams are the parameters of Init.
type InitParams struct {
	IsInitialized bool `json:"is_initialized"`
}

// Init creates the singleton configs record. The caller becomes its owner.
// A second call fails with ErrAccountAlreadyInitialized and changes nothing.
func (e *Engine) Init(ctx context.Context, caller model.Address, _ InitParams) (*model.Configs, error) {
	cfg := &model.Configs{
		Address:       e.configsAddr,
		Owner:         caller,
		Issuers:       []model.MarketIssuer{},
		Capacity:      e.cfg.IssuerCapacity,
		IsInitialized: true,
	}

	err := e.update(ctx, "init", []model.Address{e.configsAddr}, func(tx store.Tx) (*events.Event, error) {
		if err := tx.Create(KindConfigs, e.configsAddr, cfg); err != nil {
			return nil, created(err)
		}
		return e.event(events.TypeInit, caller), nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.Info("ledger initialized",
		"configs", e.configsAddr,
		"owner", caller,
		"issuer_capacity", cfg.Capacity,
	)
	return cfg, nil
}

// created maps a create-if-absent conflict to ErrAccountAlreadyInitialized.
func created(err error) error {
	if errors.Is(err, store.ErrExists) {
		return fmt.Errorf("%w: %w", ErrAccountAlreadyInitialized, err)
	}
	return err
}

// loaded maps a missing record to ErrAccountNotInitialized.
func loaded[T any](tx store.Tx, kind store.Kind, key model.Address) (*T, error) {
	v, err := store.Load[T](tx, kind, key)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %w", ErrAccountNotInitialized, err)
	}
	return v, err
}

// -----------------------------------------------------------------------------
// Queries
// -----------------------------------------------------------------------------

// Configs returns the configs record.
func (e *Engine) Configs(ctx context.Context) (*model.Configs, error) {
	return view(ctx, e, func(tx store.Tx) (*model.Configs, error) {
		return loaded[model.Configs](tx, KindConfigs, e.configsAddr)
	})
}

// Scheme returns a scheme by address.
func (e *Engine) Scheme(ctx context.Context, addr model.Address) (*model.TrustScheme, error) {
	return view(ctx, e, func(tx store.Tx) (*model.TrustScheme, error) {
		return loaded[model.TrustScheme](tx, KindScheme, addr)
	})
}

// Investor returns an investor by address.
func (e *Engine) Investor(ctx context.Context, addr model.Address) (*model.Investor, error) {
	return view(ctx, e, func(tx store.Tx) (*model.Investor, error) {
		return loaded[model.Investor](tx, KindInvestor, addr)
	})
}

// Position returns owner's position in a scheme.
func (e *Engine) Position(ctx context.Context, scheme, owner model.Address) (*model.Position, error) {
	addr, err := e.PositionAddress(scheme, owner)
	if err != nil {
		return nil, err
	}
	return view(ctx, e, func(tx store.Tx) (*model.Position, error) {
		return loaded[model.Position](tx, KindPosition, addr)
	})
}

// DepositBase returns the deposit record of a scheme.
func (e *Engine) DepositBase(ctx context.Context, scheme model.Address) (*model.DepositBase, error) {
	addr, err := e.DepositAddress(scheme)
	if err != nil {
		return nil, err
	}
	return view(ctx, e, func(tx store.Tx) (*model.DepositBase, error) {
		return loaded[model.DepositBase](tx, KindDeposit, addr)
	})
}

// Account returns a token account.
func (e *Engine) Account(ctx context.Context, addr model.Address) (*token.Account, error) {
	return view(ctx, e, func(tx store.Tx) (*token.Account, error) {
		return e.program.Account(tx, addr)
	})
}

// Mint returns a mint.
func (e *Engine) Mint(ctx context.Context, addr model.Address) (*token.Mint, error) {
	return view(ctx, e, func(tx store.Tx) (*token.Mint, error) {
		return e.program.Mint(tx, addr)
	})
}

// SchemeHoldings pairs a scheme with its vault balance.
type SchemeHoldings struct {
	Scheme       model.TrustScheme
	VaultAccount model.Address
	VaultBalance uint64 // Smallest units
}

// Holdings returns every scheme with its vault balance, read in one snapshot.
func (e *Engine) Holdings(ctx context.Context) ([]SchemeHoldings, error) {
	return view(ctx, e, func(tx store.Tx) ([]SchemeHoldings, error) {
		var out []SchemeHoldings
		err := tx.Scan(KindScheme, func(key model.Address, data []byte) error {
			var s model.TrustScheme
			if err := json.Unmarshal(data, &s); err != nil {
				return fmt.Errorf("decode scheme %s: %w", key, err)
			}
			depositAddr, err := e.DepositAddress(key)
			if err != nil {
				return err
			}
			dep, err := loaded[model.DepositBase](tx, KindDeposit, depositAddr)
			if err != nil {
				return err
			}
			balance, err := e.program.Balance(tx, dep.VaultTokenAccount)
			if err != nil {
				return err
			}
			out = append(out, SchemeHoldings{
				Scheme:       s,
				VaultAccount: dep.VaultTokenAccount,
				VaultBalance: balance,
			})
			return nil
		})
		return out, err
	})
}

func view[T any](ctx context.Context, e *Engine, fn func(tx store.Tx) (T, error)) (T, error) {
	var out T
	err := e.store.View(ctx, func(tx store.Tx) error {
		var err error
		out, err = fn(tx)
		return err
	})
	if err != nil {
		var zero T
		return zero, classify(err)
	}
	return out, nil
}
