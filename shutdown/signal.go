// Package shutdown coordinates the cooperative termination of the producer loop
// and the viewer event loop.
package shutdown

import "sync/atomic"

// Signal is a one-way cancellation flag. It starts unset, can be set by any
// goroutine, and never resets.
type Signal struct {
	set  atomic.Bool
	done chan struct{}
}

// NewSignal returns an unset signal.
func NewSignal() *Signal {
	return &Signal{done: make(chan struct{})}
}

// Set transitions the signal to set. It reports whether this call performed the
// transition; later calls are no-ops.
func (s *Signal) Set() bool {
	if !s.set.CompareAndSwap(false, true) {
		return false
	}
	close(s.done)
	return true
}

// IsSet reports whether the signal has been set.
func (s *Signal) IsSet() bool {
	return s.set.Load()
}

// Done returns a channel that is closed once the signal is set.
func (s *Signal) Done() <-chan struct{} {
	return s.done
}
