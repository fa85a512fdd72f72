package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rickgao/reits-ledger/internal/model"
)

// Errors
var (
	ErrNotFound = errors.New("record not found")
	ErrExists   = errors.New("record already exists")
	ErrConflict = errors.New("concurrent update conflict")
	ErrClosed   = errors.New("store closed")
)

// Kind namespaces record keys (e.g. "scheme", "investor").
type Kind string

// Tx is a unit of work against the store.
type Tx interface {
	// Get decodes the record into v. Returns ErrNotFound if absent.
	Get(kind Kind, key model.Address, v any) error

	// Create stores a new record. Returns ErrExists if present.
	Create(kind Kind, key model.Address, v any) error

	// Put replaces an existing record. Returns ErrNotFound if absent.
	Put(kind Kind, key model.Address, v any) error

	// Scan calls fn for every record of kind in key order.
	Scan(kind Kind, fn func(key model.Address, data []byte) error) error
}

// Store is a transactional keyed-record store.
type Store interface {
	// Update runs fn in a read-write transaction. keys names every record fn
	// may write; they are held exclusively until the transaction ends. If fn
	// returns an error nothing is committed.
	Update(ctx context.Context, keys []model.Address, fn func(Tx) error) error

	// View runs fn in a read-only transaction.
	View(ctx context.Context, fn func(Tx) error) error

	// Close releases the store.
	Close() error
}

// Load reads a record of type T.
func Load[T any](tx Tx, kind Kind, key model.Address) (*T, error) {
	var v T
	if err := tx.Get(kind, key, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Exists reports whether a record is present.
func Exists(tx Tx, kind Kind, key model.Address) (bool, error) {
	var raw json.RawMessage
	err := tx.Get(kind, key, &raw)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func encode(kind Kind, key model.Address, v any) ([]byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s %s: %w", kind, key, err)
	}
	return data, nil
}

func decode(kind Kind, key model.Address, data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s %s: %w", kind, key, err)
	}
	return nil
}

func notFound(kind Kind, key model.Address) error {
	return fmt.Errorf("%s %s: %w", kind, key, ErrNotFound)
}

func exists(kind Kind, key model.Address) error {
	return fmt.Errorf("%s %s: %w", kind, key, ErrExists)
}
