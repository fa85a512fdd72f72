package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"github.com/rickgao/reits-ledger/internal/model"
)

// BadgerConfig configures the embedded store.
type BadgerConfig struct {
	// Dir is the data directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory (tests, ephemeral nodes).
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool
}

// Badger is a Store backed by an embedded badger database.
type Badger struct {
	db     *badger.DB
	locks  *KeyLock
	logger *slog.Logger
	closed atomic.Bool
}

// OpenBadger opens (or creates) a badger store.
func OpenBadger(cfg BadgerConfig, logger *slog.Logger) (*Badger, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("badger dir is required")
		}
		opts = badger.DefaultOptions(cfg.Dir).WithSyncWrites(cfg.SyncWrites)
	}
	opts = opts.WithLogger(nil)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	logger.Info("badger store opened",
		"dir", cfg.Dir,
		"in_memory", cfg.InMemory,
	)

	return &Badger{
		db:     db,
		locks:  NewKeyLock(),
		logger: logger,
	}, nil
}

// Update implements Store.
func (s *Badger) Update(ctx context.Context, keys []model.Address, fn func(Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}

	unlock := s.locks.Lock(keys)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn})
	})
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrConflict, err)
	}
	return err
}

// View implements Store.
func (s *Badger) View(ctx context.Context, fn func(Tx) error) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&badgerTx{txn: txn, readOnly: true})
	})
}

// Close implements Store.
func (s *Badger) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close badger: %w", err)
	}
	s.logger.Info("badger store closed")
	return nil
}

// badgerTx adapts a badger transaction to Tx.
type badgerTx struct {
	txn      *badger.Txn
	readOnly bool
}

func recordKey(kind Kind, key model.Address) []byte {
	k := make([]byte, 0, len(kind)+1+model.AddressSize)
	k = append(k, kind...)
	k = append(k, '/')
	return append(k, key[:]...)
}

func kindPrefix(kind Kind) []byte {
	return append([]byte(kind), '/')
}

func (t *badgerTx) Get(kind Kind, key model.Address, v any) error {
	item, err := t.txn.Get(recordKey(kind, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(kind, key)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	data, err := item.ValueCopy(nil)
	if err != nil {
		return fmt.Errorf("read %s %s: %w", kind, key, err)
	}
	return decode(kind, key, data, v)
}

func (t *badgerTx) Create(kind Kind, key model.Address, v any) error {
	_, err := t.txn.Get(recordKey(kind, key))
	if err == nil {
		return exists(kind, key)
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	return t.set(kind, key, v)
}

func (t *badgerTx) Put(kind Kind, key model.Address, v any) error {
	_, err := t.txn.Get(recordKey(kind, key))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return notFound(kind, key)
	}
	if err != nil {
		return fmt.Errorf("get %s %s: %w", kind, key, err)
	}
	return t.set(kind, key, v)
}

func (t *badgerTx) set(kind Kind, key model.Address, v any) error {
	if t.readOnly {
		return fmt.Errorf("write %s %s: %w", kind, key, badger.ErrReadOnlyTxn)
	}
	data, err := encode(kind, key, v)
	if err != nil {
		return err
	}
	if err := t.txn.Set(recordKey(kind, key), data); err != nil {
		return fmt.Errorf("set %s %s: %w", kind, key, err)
	}
	return nil
}

func (t *badgerTx) Scan(kind Kind, fn func(key model.Address, data []byte) error) error {
	prefix := kindPrefix(kind)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix

	it := t.txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var key model.Address
		copy(key[:], item.Key()[len(prefix):])

		data, err := item.ValueCopy(nil)
		if err != nil {
			return fmt.Errorf("read %s %s: %w", kind, key, err)
		}
		if err := fn(key, data); err != nil {
			return err
		}
	}
	return nil
}
