package delay

import (
	"runtime"
	"time"
)

// A Sender is a producer handle for a channel. Multiple Senders may share a
// channel; each is an independent, equally privileged producer. The methods
// of a Sender are safe for concurrent use.
//
// A Sender holds a reference to its channel until it is released, either
// explicitly with [Sender.Release] or when it becomes unreachable. When the
// last Sender of a channel is released, the channel closes.
type Sender[T any] struct {
	r *ref[T]
}

func newSender[T any](s *state[T]) *Sender[T] {
	r := newRef(s, &s.senders)
	return attach(&Sender[T]{r: r}, r)
}

// Send schedules v for delivery once the settle delay elapses, replacing any
// value that is pending but not yet delivered. If the channel is closed, Send
// reports [ErrClosed] and v is discarded.
func (s *Sender[T]) Send(v T) error {
	defer runtime.KeepAlive(s)
	st := s.r.s
	st.pμ.Lock()
	defer st.pμ.Unlock()

	if !st.active.Load() {
		return st.closedErr()
	}
	if st.pending != nil {
		st.stats.superseded.Add(1)
	}
	st.pending = &event[T]{value: v, due: time.Now().Add(st.delay)}
	st.stats.sent.Add(1)
	st.wake.Signal() // the scheduler recomputes its wait against v
	return nil
}

// SendImmediate makes v ready for delivery at once, bypassing the settle
// delay. Any value pending but not yet delivered is discarded. If the channel
// is closed, SendImmediate reports [ErrClosed] and v is discarded.
func (s *Sender[T]) SendImmediate(v T) error {
	defer runtime.KeepAlive(s)
	st := s.r.s
	st.pμ.Lock()
	defer st.pμ.Unlock()

	if !st.active.Load() {
		return st.closedErr()
	}
	if st.pending != nil {
		st.pending = nil
		st.stats.superseded.Add(1)
	}

	st.qμ.Lock()
	defer st.qμ.Unlock()
	st.ready.Add(event[T]{value: v, due: time.Now()})
	st.stats.immediate.Add(1)
	st.wake.Signal()
	return nil
}

// Clone returns a new Sender for the same channel. The clone holds its own
// reference and must be released independently of s.
func (s *Sender[T]) Clone() *Sender[T] { return newSender(s.r.s) }

// Release drops the reference held by s. If s was the last Sender of its
// channel, the channel is closed. Release is idempotent; after s is released
// the channel may still be open for other handles, but s must not be used.
func (s *Sender[T]) Release() { s.r.release(true) }

// Close closes the channel s sends to, for all handles. It waits for the
// scheduler goroutine to exit. The first call reports nil; subsequent calls
// report [ErrClosed] and have no other effect.
func (s *Sender[T]) Close() error { return s.r.s.close() }

// Done returns a channel that is closed when the channel shuts down.
func (s *Sender[T]) Done() <-chan struct{} { return s.r.s.done }

// Delay reports the settle delay of the channel.
func (s *Sender[T]) Delay() time.Duration { return s.r.s.delay }

// Stats returns a snapshot of the channel counters.
func (s *Sender[T]) Stats() Stats { return s.r.s.stats.snapshot() }
