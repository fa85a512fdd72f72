package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/reits-ledger/internal/fixedpoint"
	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
)

// HoldingsSource lists every scheme with its vault balance.
type HoldingsSource interface {
	Holdings(ctx context.Context) ([]ledger.SchemeHoldings, error)
}

// Reporter receives reconciliation outcomes.
type Reporter interface {
	VaultDeficit(scheme string, deficit uint64)
	AuditCompleted()
	AuditFailed()
}

type nopReporter struct{}

func (nopReporter) VaultDeficit(string, uint64) {}
func (nopReporter) AuditCompleted()             {}
func (nopReporter) AuditFailed()                {}

// Config holds reconciler configuration.
type Config struct {
	Interval    time.Duration // Time between passes (default: 1m)
	Concurrency int           // Max schemes checked at once (default: 8)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 8,
	}
}

// Result is the reconciliation of one scheme.
type Result struct {
	Scheme   model.Address `json:"scheme"`
	Vault    model.Address `json:"vault"`
	Expected uint64        `json:"expected"` // Smallest units
	Balance  uint64        `json:"balance"`  // Smallest units
	Deficit  uint64        `json:"deficit"`
	Surplus  uint64        `json:"surplus"`
}

// Balanced reports whether the vault covers the funds raised.
func (r Result) Balanced() bool {
	return r.Deficit == 0
}

// Reconcile compares one scheme's vault against its funds raised.
func Reconcile(h ledger.SchemeHoldings) (Result, error) {
	r := Result{
		Scheme:  h.Scheme.Address,
		Vault:   h.VaultAccount,
		Balance: h.VaultBalance,
	}
	expected, err := fixedpoint.ToSmallestUnit(h.Scheme.InvestorFundsRaised, h.Scheme.Decimals)
	if err != nil {
		return r, fmt.Errorf("scheme %s: %w", h.Scheme.Address, err)
	}
	r.Expected = expected
	if h.VaultBalance < expected {
		r.Deficit = expected - h.VaultBalance
	} else {
		r.Surplus = h.VaultBalance - expected
	}
	return r, nil
}

// Auditor periodically reconciles scheme vaults.
type Auditor struct {
	cfg      Config
	source   HoldingsSource
	reporter Reporter
	logger   *slog.Logger

	mu   sync.Mutex
	last []Result

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an Auditor. reporter may be nil.
func New(cfg Config, source HoldingsSource, reporter Reporter, logger *slog.Logger) *Auditor {
	if logger == nil {
		logger = slog.Default()
	}
	if reporter == nil {
		reporter = nopReporter{}
	}
	return &Auditor{
		cfg:      cfg,
		source:   source,
		reporter: reporter,
		logger:   logger,
	}
}

// Start begins the reconciliation loop.
func (a *Auditor) Start(ctx context.Context) error {
	a.ctx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(1)
	go a.run()

	a.logger.Info("vault auditor started",
		"interval", a.cfg.Interval,
		"concurrency", a.cfg.Concurrency,
	)
	return nil
}

// Stop gracefully shuts down the auditor.
func (a *Auditor) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("vault auditor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Last returns the results of the most recent completed pass.
func (a *Auditor) Last() []Result {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Result(nil), a.last...)
}

func (a *Auditor) run() {
	defer a.wg.Done()

	ticker := time.NewTicker(a.cfg.Interval)
	defer ticker.Stop()

	// Reconcile immediately on start.
	a.pass()

	for {
		select {
		case <-a.ctx.Done():
			return
		case <-ticker.C:
			a.pass()
		}
	}
}

func (a *Auditor) pass() {
	if _, err := a.RunOnce(a.ctx); err != nil && a.ctx.Err() == nil {
		a.logger.Warn("vault audit failed", "err", err)
	}
}

// RunOnce performs a single reconciliation pass over every scheme.
func (a *Auditor) RunOnce(ctx context.Context) ([]Result, error) {
	start := time.Now()

	holdings, err := a.source.Holdings(ctx)
	if err != nil {
		a.reporter.AuditFailed()
		return nil, fmt.Errorf("read holdings: %w", err)
	}

	results := make([]Result, len(holdings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(a.cfg.Concurrency, 1))

	for i, h := range holdings {
		i, h := i, h
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			r, err := Reconcile(h)
			if err != nil {
				return err
			}
			results[i] = r
			a.reporter.VaultDeficit(r.Scheme.String(), r.Deficit)
			if !r.Balanced() {
				a.logger.Error("vault deficit",
					"scheme", r.Scheme,
					"vault", r.Vault,
					"expected", r.Expected,
					"balance", r.Balance,
					"deficit", r.Deficit,
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		a.reporter.AuditFailed()
		return nil, err
	}

	a.mu.Lock()
	a.last = results
	a.mu.Unlock()
	a.reporter.AuditCompleted()

	a.logger.Debug("vault audit complete",
		"schemes", len(results),
		"duration", time.Since(start),
	)
	return results, nil
}
