package store

import (
	"bytes"
	"slices"
	"sync"

	"github.com/rickgao/reits-ledger/internal/model"
)

// KeyLock hands out exclusive per-key locks. Entries are reference counted
// and dropped once no holder or waiter remains.
type KeyLock struct {
	mu    sync.Mutex
	locks map[model.Address]*keyEntry
}

type keyEntry struct {
	mu   sync.Mutex
	refs int
}

// NewKeyLock creates an empty KeyLock.
func NewKeyLock() *KeyLock {
	return &KeyLock{locks: make(map[model.Address]*keyEntry)}
}

// Lock acquires every key and returns the function releasing them. Keys are
// acquired in sorted order so overlapping callers cannot deadlock.
func (l *KeyLock) Lock(keys []model.Address) (unlock func()) {
	sorted := slices.Clone(keys)
	slices.SortFunc(sorted, func(a, b model.Address) int {
		return bytes.Compare(a[:], b[:])
	})
	sorted = slices.Compact(sorted)

	entries := make([]*keyEntry, len(sorted))
	l.mu.Lock()
	for i, k := range sorted {
		e, ok := l.locks[k]
		if !ok {
			e = &keyEntry{}
			l.locks[k] = e
		}
		e.refs++
		entries[i] = e
	}
	l.mu.Unlock()

	for _, e := range entries {
		e.mu.Lock()
	}

	return func() {
		for i := len(entries) - 1; i >= 0; i-- {
			entries[i].mu.Unlock()
		}
		l.mu.Lock()
		for i, k := range sorted {
			entries[i].refs--
			if entries[i].refs == 0 {
				delete(l.locks, k)
			}
		}
		l.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (l *KeyLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
