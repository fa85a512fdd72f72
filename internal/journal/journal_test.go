package journal

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/reits-ledger/internal/events"
	"github.com/rickgao/reits-ledger/internal/model"
)

// fakeDB records queued inserts. Rows whose ID was already written report
// zero rows affected, like ON CONFLICT DO NOTHING.
type fakeDB struct {
	mu      sync.Mutex
	fail    error
	batches int
	ids     map[string]bool
}

func newFakeDB() *fakeDB {
	return &fakeDB{ids: make(map[string]bool)}
}

func (db *fakeDB) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.batches++
	res := &fakeResults{err: db.fail}
	if db.fail != nil {
		return res
	}
	for _, q := range b.QueuedQueries {
		id := q.Arguments[0].(string)
		if db.ids[id] {
			res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 0"))
			continue
		}
		db.ids[id] = true
		res.tags = append(res.tags, pgconn.NewCommandTag("INSERT 0 1"))
	}
	return res
}

func (db *fakeDB) written() int {
	db.mu.Lock()
	defer db.mu.Unlock()
	return len(db.ids)
}

func (db *fakeDB) setFail(err error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.fail = err
}

type fakeResults struct {
	tags []pgconn.CommandTag
	err  error
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	if len(r.tags) == 0 {
		return pgconn.CommandTag{}, errors.New("no more results")
	}
	tag := r.tags[0]
	r.tags = r.tags[1:]
	return tag, nil
}

func (r *fakeResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (r *fakeResults) QueryRow() pgx.Row        { return nil }
func (r *fakeResults) Close() error             { return nil }

func testEvent(amount uint64) events.Event {
	ev := events.New(events.TypeBuy, model.Address{1}, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	ev.Scheme = model.Address{2}
	ev.Investor = model.Address{3}
	ev.Amount = amount
	ev.Scaled = amount * 100
	return ev
}

func TestToRow(t *testing.T) {
	ev := testEvent(18446744073709551615 / 100)
	r, err := toRow(ev)
	if err != nil {
		t.Fatalf("toRow() error = %v", err)
	}

	if r.ID != ev.ID.String() {
		t.Errorf("ID = %s, want %s", r.ID, ev.ID)
	}
	if r.Type != "buy" {
		t.Errorf("Type = %s, want buy", r.Type)
	}
	if r.Scheme != ev.Scheme.String() {
		t.Errorf("Scheme = %s, want %s", r.Scheme, ev.Scheme)
	}
	if r.Amount != "184467440737095516" {
		t.Errorf("Amount = %s, want 184467440737095516", r.Amount)
	}
	if !r.OccurredAt.Equal(ev.Time) {
		t.Errorf("OccurredAt = %v, want %v", r.OccurredAt, ev.Time)
	}

	var decoded events.Event
	if err := json.Unmarshal([]byte(r.Payload), &decoded); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if decoded.ID != ev.ID {
		t.Errorf("payload ID = %s, want %s", decoded.ID, ev.ID)
	}
}

func TestWriter_FlushBatches(t *testing.T) {
	db := newFakeDB()
	w := New(Config{BatchSize: 2, FlushInterval: time.Hour, MaxPending: 100}, db, nil, nil, nil)

	for i := 0; i < 5; i++ {
		w.add(testEvent(uint64(i + 1)))
	}
	w.flush(context.Background())

	if got := db.written(); got != 5 {
		t.Errorf("written = %d, want 5", got)
	}
	if db.batches != 3 {
		t.Errorf("batches = %d, want 3", db.batches)
	}
	stats := w.Stats()
	if stats.Inserts != 5 || stats.Flushes != 3 {
		t.Errorf("Stats = %+v, want 5 inserts in 3 flushes", stats)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", w.Pending())
	}
}

func TestWriter_Conflicts(t *testing.T) {
	db := newFakeDB()
	w := New(DefaultConfig(), db, nil, nil, nil)

	ev := testEvent(1)
	w.add(ev)
	w.add(ev)
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Inserts != 1 || stats.Conflicts != 1 {
		t.Errorf("Stats = %+v, want 1 insert and 1 conflict", stats)
	}
}

func TestWriter_RetryAfterFailure(t *testing.T) {
	db := newFakeDB()
	db.setFail(errors.New("connection refused"))
	w := New(Config{BatchSize: 10, FlushInterval: time.Hour, MaxPending: 100}, db, nil, nil, nil)

	w.add(testEvent(1))
	w.add(testEvent(2))
	w.flush(context.Background())

	if w.Pending() != 2 {
		t.Fatalf("Pending after failure = %d, want 2", w.Pending())
	}
	if w.Stats().Errors != 1 {
		t.Errorf("Errors = %d, want 1", w.Stats().Errors)
	}

	db.setFail(nil)
	w.flush(context.Background())

	if got := db.written(); got != 2 {
		t.Errorf("written = %d, want 2", got)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", w.Pending())
	}
}

func TestWriter_DropsPastMaxPending(t *testing.T) {
	db := newFakeDB()
	db.setFail(errors.New("connection refused"))
	w := New(Config{BatchSize: 10, FlushInterval: time.Hour, MaxPending: 2}, db, nil, nil, nil)

	for i := 0; i < 3; i++ {
		w.add(testEvent(uint64(i + 1)))
	}
	w.flush(context.Background())

	stats := w.Stats()
	if stats.Dropped != 3 {
		t.Errorf("Dropped = %d, want 3", stats.Dropped)
	}
	if w.Pending() != 0 {
		t.Errorf("Pending = %d, want 0", w.Pending())
	}
}

type countingRecorder struct {
	mu      sync.Mutex
	flushed int
	failed  int
}

func (r *countingRecorder) JournalFlushed(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushed += n
}

func (r *countingRecorder) JournalFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed++
}

func (r *countingRecorder) JournalBacklog(int) {}

func TestWriter_StartStop(t *testing.T) {
	hub := events.NewHub(events.DefaultHubConfig(), nil)
	defer hub.Stop()

	db := newFakeDB()
	rec := &countingRecorder{}
	w := New(Config{BatchSize: 100, FlushInterval: time.Hour, MaxPending: 1000}, db, hub, rec, nil)

	if err := w.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		hub.Publish(testEvent(uint64(i + 1)))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if got := db.written(); got != 10 {
		t.Errorf("written = %d, want 10", got)
	}
	if rec.flushed != 10 {
		t.Errorf("recorder flushed = %d, want 10", rec.flushed)
	}
	if hub.Stats().Subscribers != 0 {
		t.Errorf("Subscribers = %d, want 0 after Stop", hub.Stats().Subscribers)
	}
}
