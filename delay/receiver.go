package delay

import (
	"context"
	"runtime"
)

// A Receiver is a consumer handle for a channel. Values are delivered to
// receivers in the order they became ready; each value is delivered to
// exactly one receiver. The methods of a Receiver are safe for concurrent
// use.
//
// A Receiver holds a reference to its channel until it is released, either
// explicitly with [Receiver.Release] or when it becomes unreachable. When the
// last Receiver of a channel is released, the channel closes.
type Receiver[T any] struct {
	r *ref[T]
}

func newReceiver[T any](s *state[T]) *Receiver[T] {
	r := newRef(s, &s.receivers)
	return attach(&Receiver[T]{r: r}, r)
}

// Recv blocks until a value is ready, the channel is closed and drained, or
// ctx ends. It returns the oldest ready value. Once the channel is closed and
// no values remain, Recv reports [ErrClosed]. If ctx ends first, Recv reports
// the context error.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	defer runtime.KeepAlive(r) // r must not be released while blocked
	st := r.r.s
	for {
		// N.B. Load active before looking at the queue: every enqueue happens
		// while the channel is active, so an empty queue observed after an
		// inactive load is empty for good.
		closed := !st.active.Load()
		v, ok, wake := st.pop()
		if ok {
			return v, nil
		}
		if closed {
			var zero T
			return zero, st.closedErr()
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-wake:
		}
	}
}

// TryRecv returns the oldest ready value without blocking. If no value is
// ready it reports [ErrEmpty] while the channel is open, or [ErrClosed] once
// it has closed.
func (r *Receiver[T]) TryRecv() (T, error) {
	defer runtime.KeepAlive(r)
	st := r.r.s
	closed := !st.active.Load()
	if v, ok, _ := st.pop(); ok {
		return v, nil
	}
	var zero T
	if closed {
		return zero, st.closedErr()
	}
	return zero, ErrEmpty
}

// pop removes and returns the head of the ready queue, if any. It also
// returns the wake channel as it was before the queue was examined, so that
// an enqueue racing with an empty result is not missed.
func (s *state[T]) pop() (T, bool, <-chan struct{}) {
	s.qμ.Lock()
	defer s.qμ.Unlock()

	wake := s.wake.Ready()
	e, ok := s.ready.Pop()
	if ok {
		s.stats.delivered.Add(1)
	}
	return e.value, ok, wake
}

// Clone returns a new Receiver for the same channel. The clone holds its own
// reference and must be released independently of r.
func (r *Receiver[T]) Clone() *Receiver[T] { return newReceiver(r.r.s) }

// Release drops the reference held by r. If r was the last Receiver of its
// channel, the channel is closed. Release is idempotent.
func (r *Receiver[T]) Release() { r.r.release(true) }

// Close closes the channel r receives from, for all handles. It waits for
// the scheduler goroutine to exit. The first call reports nil; subsequent
// calls report [ErrClosed] and have no other effect. Values already ready
// remain receivable.
func (r *Receiver[T]) Close() error { return r.r.s.close() }

// Done returns a channel that is closed when the channel shuts down. Values
// may remain ready after Done is closed.
func (r *Receiver[T]) Done() <-chan struct{} { return r.r.s.done }

// Stats returns a snapshot of the channel counters.
func (r *Receiver[T]) Stats() Stats { return r.r.s.stats.snapshot() }
