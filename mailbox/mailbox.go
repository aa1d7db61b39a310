// Package mailbox provides a single-slot, latest-value-wins hand-off between one
// producer goroutine and one consumer goroutine.
package mailbox

import (
	"sync"
	"sync/atomic"
)

// Mailbox holds at most one unread value.
//
// Push never blocks: it fills the empty slot or overwrites the unread value
// (drop-oldest, keep-newest). PopLatest takes and clears the slot. A slow
// consumer therefore never stalls the producer, and staleness is bounded by the
// producer's cadence instead of a growing queue.
//
// The zero value is an empty mailbox ready for use.
type Mailbox[T any] struct {
	mu    sync.Mutex // guards value and full
	value T
	full  bool

	drops atomic.Uint64 // unread values overwritten by Push
}

// New returns an empty mailbox.
func New[T any]() *Mailbox[T] {
	return &Mailbox[T]{}
}

// Push stores v, discarding any previously stored value that was not read.
func (m *Mailbox[T]) Push(v T) {
	m.mu.Lock()
	if m.full {
		m.drops.Add(1)
	}
	m.value = v
	m.full = true
	m.mu.Unlock()
}

// PopLatest takes the stored value and clears the slot. The boolean is false
// when nothing was pushed since the last successful PopLatest.
func (m *Mailbox[T]) PopLatest() (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var zero T
	if !m.full {
		return zero, false
	}
	v := m.value
	m.value = zero
	m.full = false
	return v, true
}

// Drops returns how many unread values have been overwritten so far.
func (m *Mailbox[T]) Drops() uint64 {
	return m.drops.Load()
}
