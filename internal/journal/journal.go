// Package journal appends committed ledger events to the ledger_events table.
//
// The journal is an audit trail, not the source of truth: ledger records live
// in the store. Rows are inserted in batches and never updated.
package journal

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/reits-ledger/internal/events"
)

// Schema creates the ledger_events table.
const Schema = `
CREATE TABLE IF NOT EXISTS ledger_events (
	id          UUID        PRIMARY KEY,
	type        TEXT        NOT NULL,
	caller      TEXT        NOT NULL,
	scheme      TEXT        NOT NULL,
	investor    TEXT        NOT NULL,
	amount      NUMERIC(20) NOT NULL,
	scaled      NUMERIC(20) NOT NULL,
	payload     JSONB       NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ledger_events_scheme_idx ON ledger_events (scheme, occurred_at)`

// DB sends query batches. *pgxpool.Pool satisfies it.
type DB interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Recorder observes journal activity.
type Recorder interface {
	JournalFlushed(n int)
	JournalFailed()
	JournalBacklog(n int)
}

type nopRecorder struct{}

func (nopRecorder) JournalFlushed(int) {}
func (nopRecorder) JournalFailed()     {}
func (nopRecorder) JournalBacklog(int) {}

// Config holds journal writer configuration.
type Config struct {
	BatchSize     int           // Rows per insert batch (default: 500)
	FlushInterval time.Duration // Max time a row waits (default: 1s)
	MaxPending    int           // Rows kept for retry after failed flushes (default: 50000)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		BatchSize:     500,
		FlushInterval: time.Second,
		MaxPending:    50000,
	}
}

// Stats contains writer counters.
type Stats struct {
	Inserts   int64 `json:"inserts"`
	Conflicts int64 `json:"conflicts"`
	Flushes   int64 `json:"flushes"`
	Errors    int64 `json:"errors"`
	Dropped   int64 `json:"dropped"`
}

// Writer consumes events from a hub subscription and writes them in batches.
type Writer struct {
	cfg      Config
	db       DB
	hub      *events.Hub
	recorder Recorder
	logger   *slog.Logger

	sub      *events.Subscription
	consumed chan struct{}

	mu      sync.Mutex
	pending []row
	stats   Stats

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a Writer. recorder may be nil.
func New(cfg Config, db DB, hub *events.Hub, recorder Recorder, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &Writer{
		cfg:      cfg,
		db:       db,
		hub:      hub,
		recorder: recorder,
		logger:   logger,
	}
}

// Start subscribes to the hub and begins writing.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.sub = w.hub.Subscribe(nil)
	w.consumed = make(chan struct{})

	go w.consumeLoop()

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop unsubscribes, waits for queued events and flushes what remains.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.sub != nil {
		w.sub.Close()
		select {
		case <-w.consumed:
		case <-ctx.Done():
			w.logger.Warn("journal writer stop timed out")
		}
	}
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()

	// Final flush gets its own deadline since w.ctx is now cancelled.
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	w.flush(flushCtx)

	w.logger.Info("journal writer stopped", "pending", w.Pending())
	return nil
}

// Stats returns writer counters.
func (w *Writer) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Pending returns the number of rows not yet written.
func (w *Writer) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// consumeLoop moves events from the subscription into the pending batch. It
// exits once the subscription is closed and drained.
func (w *Writer) consumeLoop() {
	defer close(w.consumed)

	for {
		ev, ok := w.sub.Receive()
		if !ok {
			return
		}
		if w.add(ev) {
			w.flush(w.ctx)
		}
	}
}

// flushLoop periodically flushes the pending batch.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends an event and reports whether a full batch is ready.
func (w *Writer) add(ev events.Event) bool {
	r, err := toRow(ev)
	if err != nil {
		w.logger.Error("failed to encode event", "id", ev.ID, "error", err)
		return false
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending = append(w.pending, r)
	w.recorder.JournalBacklog(len(w.pending))
	return len(w.pending) >= w.cfg.BatchSize
}

// flush writes pending rows in batches. A failed batch is put back for the
// next flush unless MaxPending is exceeded.
func (w *Writer) flush(ctx context.Context) {
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.mu.Unlock()
			return
		}
		n := min(len(w.pending), max(w.cfg.BatchSize, 1))
		batch := w.pending[:n:n]
		w.pending = w.pending[n:]
		w.mu.Unlock()

		start := time.Now()
		conflicts, err := w.insert(ctx, batch)
		if err != nil {
			w.requeue(batch, err)
			return
		}

		w.mu.Lock()
		w.stats.Inserts += int64(len(batch) - conflicts)
		w.stats.Conflicts += int64(conflicts)
		w.stats.Flushes++
		w.recorder.JournalBacklog(len(w.pending))
		w.mu.Unlock()
		w.recorder.JournalFlushed(len(batch) - conflicts)

		w.logger.Debug("flushed ledger events",
			"count", len(batch),
			"conflicts", conflicts,
			"duration", time.Since(start),
		)
	}
}

func (w *Writer) requeue(batch []row, err error) {
	w.recorder.JournalFailed()

	w.mu.Lock()
	defer w.mu.Unlock()
	w.stats.Errors++

	if len(batch)+len(w.pending) > w.cfg.MaxPending {
		w.stats.Dropped += int64(len(batch))
		w.logger.Error("journal batch dropped", "error", err, "count", len(batch))
		return
	}
	w.pending = append(batch, w.pending...)
	w.logger.Warn("journal batch insert failed, will retry", "error", err, "count", len(batch))
}

// insert writes rows with ON CONFLICT DO NOTHING so replays are harmless.
func (w *Writer) insert(ctx context.Context, rows []row) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO ledger_events (id, type, caller, scheme, investor, amount, scaled, payload, occurred_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			ON CONFLICT (id) DO NOTHING
		`, r.ID, r.Type, r.Caller, r.Scheme, r.Investor, r.Amount, r.Scaled, r.Payload, r.OccurredAt)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}

// row is one ledger_events row. Numeric columns travel as decimal strings
// since they may exceed int64.
type row struct {
	ID         string
	Type       string
	Caller     string
	Scheme     string
	Investor   string
	Amount     string
	Scaled     string
	Payload    string
	OccurredAt time.Time
}

func toRow(ev events.Event) (row, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return row{}, err
	}
	return row{
		ID:         ev.ID.String(),
		Type:       string(ev.Type),
		Caller:     ev.Caller.String(),
		Scheme:     ev.Scheme.String(),
		Investor:   ev.Investor.String(),
		Amount:     strconv.FormatUint(ev.Amount, 10),
		Scaled:     strconv.FormatUint(ev.Scaled, 10),
		Payload:    string(payload),
		OccurredAt: ev.Time,
	}, nil
}
