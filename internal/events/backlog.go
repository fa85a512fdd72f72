package events

import (
	"errors"
	"sync"
)

// ErrBacklogFull is returned by Send once a backlog has reached its limit.
var ErrBacklogFull = errors.New("backlog full")

// ErrBacklogClosed is returned by Send after Close.
var ErrBacklogClosed = errors.New("backlog closed")

// Backlog is a thread-safe FIFO ring that doubles its capacity when it
// reaches 70% full, up to a hard limit.
type Backlog[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	tail   int
	count  int
	limit  int
	closed bool

	sent     int64
	received int64
	grows    int
}

// NewBacklog creates a backlog with the given initial capacity. limit <= 0
// means unbounded.
func NewBacklog[T any](initial, limit int) *Backlog[T] {
	if initial < 1 {
		initial = 1
	}
	if limit > 0 && initial > limit {
		initial = limit
	}
	b := &Backlog[T]{
		ring:  make([]T, initial),
		limit: limit,
	}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends an item.
func (b *Backlog[T]) Send(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBacklogClosed
	}
	if b.limit > 0 && b.count >= b.limit {
		return ErrBacklogFull
	}

	threshold := max(len(b.ring)*70/100, 1)
	if b.count+1 >= threshold {
		b.grow()
	}

	b.ring[b.tail] = item
	b.tail = (b.tail + 1) % len(b.ring)
	b.count++
	b.sent++

	b.cond.Signal()
	return nil
}

// Receive blocks until an item is available. It returns false once the
// backlog is closed and drained.
func (b *Backlog[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.pop(), true
}

// Drain removes up to n items without blocking (all items when n <= 0).
func (b *Backlog[T]) Drain(n int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil
	}
	if n <= 0 || n > b.count {
		n = b.count
	}
	out := make([]T, n)
	for i := range out {
		out[i] = b.pop()
	}
	return out
}

// Close stops accepting items and wakes blocked receivers. Items already
// queued can still be received.
func (b *Backlog[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	b.cond.Broadcast()
}

// Len returns the number of queued items.
func (b *Backlog[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns backlog counters.
func (b *Backlog[T]) Stats() BacklogStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BacklogStats{
		Queued:   b.count,
		Capacity: len(b.ring),
		Sent:     b.sent,
		Received: b.received,
		Grows:    b.grows,
	}
}

// BacklogStats contains backlog counters.
type BacklogStats struct {
	Queued   int   `json:"queued"`
	Capacity int   `json:"capacity"`
	Sent     int64 `json:"sent"`
	Received int64 `json:"received"`
	Grows    int   `json:"grows"`
}

// pop removes the head item. Must be called with the lock held and count > 0.
func (b *Backlog[T]) pop() T {
	item := b.ring[b.head]
	var zero T
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.received++
	return item
}

// grow doubles the ring, capped at the limit. Must be called with the lock held.
func (b *Backlog[T]) grow() {
	size := len(b.ring) * 2
	if b.limit > 0 && size > b.limit {
		size = b.limit
	}
	if size <= len(b.ring) {
		return
	}

	ring := make([]T, size)
	if b.count > 0 {
		if b.head < b.tail {
			copy(ring, b.ring[b.head:b.tail])
		} else {
			n := copy(ring, b.ring[b.head:])
			copy(ring[n:], b.ring[:b.tail])
		}
	}

	b.ring = ring
	b.head = 0
	b.tail = b.count
	b.grows++
}
