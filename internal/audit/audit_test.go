package audit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/reits-ledger/internal/ledger"
	"github.com/rickgao/reits-ledger/internal/model"
)

type fakeSource struct {
	holdings []ledger.SchemeHoldings
	err      error
}

func (s *fakeSource) Holdings(context.Context) ([]ledger.SchemeHoldings, error) {
	return s.holdings, s.err
}

type fakeReporter struct {
	mu        sync.Mutex
	deficits  map[string]uint64
	completed int
	failed    int
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{deficits: make(map[string]uint64)}
}

func (r *fakeReporter) VaultDeficit(scheme string, deficit uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deficits[scheme] = deficit
}

func (r *fakeReporter) AuditCompleted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed++
}

func (r *fakeReporter) AuditFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *fakeReporter) counts() (int, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.completed, r.failed
}

func holding(id byte, raised uint64, decimals uint8, balance uint64) ledger.SchemeHoldings {
	return ledger.SchemeHoldings{
		Scheme: model.TrustScheme{
			Address:             model.Address{id},
			InvestorFundsRaised: raised,
			Decimals:            decimals,
		},
		VaultAccount: model.Address{id, 0xff},
		VaultBalance: balance,
	}
}

func TestReconcile(t *testing.T) {
	tests := []struct {
		name        string
		h           ledger.SchemeHoldings
		wantDeficit uint64
		wantSurplus uint64
	}{
		{"balanced", holding(1, 50, 2, 5000), 0, 0},
		{"deficit", holding(1, 50, 2, 4900), 100, 0},
		{"surplus", holding(1, 50, 2, 5001), 0, 1},
		{"empty", holding(1, 0, 6, 0), 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Reconcile(tt.h)
			if err != nil {
				t.Fatalf("Reconcile() error = %v", err)
			}
			if r.Deficit != tt.wantDeficit {
				t.Errorf("Deficit = %d, want %d", r.Deficit, tt.wantDeficit)
			}
			if r.Surplus != tt.wantSurplus {
				t.Errorf("Surplus = %d, want %d", r.Surplus, tt.wantSurplus)
			}
			if r.Balanced() != (tt.wantDeficit == 0) {
				t.Errorf("Balanced = %v, want %v", r.Balanced(), tt.wantDeficit == 0)
			}
		})
	}
}

func TestReconcile_Overflow(t *testing.T) {
	if _, err := Reconcile(holding(1, 1<<62, 18, 0)); err == nil {
		t.Error("Reconcile() error = nil, want overflow")
	}
}

func TestRunOnce(t *testing.T) {
	src := &fakeSource{holdings: []ledger.SchemeHoldings{
		holding(1, 50, 2, 5000),
		holding(2, 10, 2, 900),
		holding(3, 7, 0, 7),
	}}
	rep := newFakeReporter()
	a := New(Config{Interval: time.Hour, Concurrency: 2}, src, rep, nil)

	results, err := a.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce() error = %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %d, want 3", len(results))
	}
	if results[1].Deficit != 100 {
		t.Errorf("scheme 2 deficit = %d, want 100", results[1].Deficit)
	}

	if got := rep.deficits[model.Address{2}.String()]; got != 100 {
		t.Errorf("reported deficit = %d, want 100", got)
	}
	if got := rep.deficits[model.Address{1}.String()]; got != 0 {
		t.Errorf("reported deficit = %d, want 0", got)
	}
	if completed, failed := rep.counts(); completed != 1 || failed != 0 {
		t.Errorf("completed, failed = %d, %d, want 1, 0", completed, failed)
	}
	if len(a.Last()) != 3 {
		t.Errorf("Last() = %d results, want 3", len(a.Last()))
	}
}

func TestRunOnce_SourceError(t *testing.T) {
	src := &fakeSource{err: errors.New("store closed")}
	rep := newFakeReporter()
	a := New(DefaultConfig(), src, rep, nil)

	if _, err := a.RunOnce(context.Background()); err == nil {
		t.Fatal("RunOnce() error = nil, want error")
	}
	if _, failed := rep.counts(); failed != 1 {
		t.Errorf("failed = %d, want 1", failed)
	}
	if a.Last() != nil {
		t.Errorf("Last() = %v, want nil", a.Last())
	}
}

func TestAuditor_StartStop(t *testing.T) {
	src := &fakeSource{holdings: []ledger.SchemeHoldings{holding(1, 1, 2, 100)}}
	rep := newFakeReporter()
	a := New(Config{Interval: 10 * time.Millisecond, Concurrency: 1}, src, rep, nil)

	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if completed, _ := rep.counts(); completed >= 2 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("auditor did not complete two passes")
		}
		time.Sleep(5 * time.Millisecond)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := a.Stop(ctx); err != nil {
		t.Errorf("Stop() error = %v", err)
	}
}
