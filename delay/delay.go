// Package delay implements a coalescing channel that delivers a value only
// after it has gone unchallenged for a fixed settle delay.
//
// Producers write to a single pending slot with [Sender.Send]; each write
// replaces whatever was pending. A background scheduler goroutine promotes
// the pending value into a FIFO ready queue once its settle delay has elapsed
// without being overwritten, and consumers drain the queue with
// [Receiver.Recv] or [Receiver.TryRecv]. A burst of sends issued closer
// together than the delay is therefore delivered as a single value: the last
// one written.
//
// The channel closes when [Sender.Close] or [Receiver.Close] is called, when
// the last Sender is released, or when the last Receiver is released.
// Values already promoted to the ready queue remain receivable after the
// channel closes, until the queue is drained.
package delay

import (
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/creachadair/mds/queue"
	"github.com/thlstsul/ime-cursor/trigger"
)

var (
	// ErrClosed is reported by operations on a channel that has closed.
	ErrClosed = errors.New("delay: channel is closed")

	// ErrEmpty is reported by TryRecv when no value is ready and the channel
	// is still open.
	ErrEmpty = errors.New("delay: channel is empty")

	// ErrBroken is wrapped by the error reported after the scheduler failed
	// while holding the channel state. It is not retried.
	ErrBroken = errors.New("delay: channel state is broken")
)

// PanicError records a panic recovered from the scheduler goroutine. Once a
// channel has failed this way, every operation that would otherwise report
// [ErrClosed] reports the PanicError instead.
type PanicError struct {
	Value any    // the value passed to panic
	Stack []byte // the stack of the scheduler at the time of the panic
}

func (p *PanicError) Error() string {
	return fmt.Sprintf("delay: panic in scheduler: %v\n%s", p.Value, p.Stack)
}

// Unwrap returns [ErrBroken].
func (p *PanicError) Unwrap() error { return ErrBroken }

type event[T any] struct {
	value T
	due   time.Time // when the event becomes eligible for delivery
}

// state is the shared state of a channel. Lock order is pμ then qμ; no code
// path acquires pμ while holding qμ.
type state[T any] struct {
	delay time.Duration // read-only after initialization
	wake  *trigger.Cond // shared by the scheduler, senders, and receivers

	// pμ protects pending, and serializes writes of active.
	pμ      sync.Mutex
	pending *event[T]
	active  atomic.Bool // readers may load without holding pμ

	// qμ protects ready.
	qμ    sync.Mutex
	ready *queue.Queue[event[T]]

	senders   atomic.Int64 // live Sender handles
	receivers atomic.Int64 // live Receiver handles

	cause   error         // set before done is closed; nil for a normal close
	done    chan struct{} // closed when the channel shuts down
	stopped chan struct{} // closed when the scheduler goroutine exits

	onPromote func(T) // called with pμ and qμ held; test hook

	stats counters
}

// New constructs a channel with the given settle delay, starts its scheduler
// goroutine, and returns the first Sender and Receiver handles for it.
// New panics if d < 0.
func New[T any](d time.Duration) (*Sender[T], *Receiver[T]) {
	return newChannel[T](d, nil)
}

func newChannel[T any](d time.Duration, onPromote func(T)) (*Sender[T], *Receiver[T]) {
	if d < 0 {
		panic(fmt.Sprintf("delay: negative settle delay %v", d))
	}
	s := newState(d, onPromote)
	go s.run()
	return newSender(s), newReceiver(s)
}

// newState returns an active state whose scheduler has not been started.
func newState[T any](d time.Duration, onPromote func(T)) *state[T] {
	s := &state[T]{
		delay:     d,
		wake:      trigger.New(),
		ready:     queue.New[event[T]](),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		onPromote: onPromote,
	}
	s.active.Store(true)
	return s
}

// shutdown marks s inactive, discards any pending event, and wakes every
// waiter. It reports whether this call performed the shutdown. It does not
// wait for the scheduler to exit.
func (s *state[T]) shutdown(cause error) bool {
	s.pμ.Lock()
	defer s.pμ.Unlock()
	if !s.active.Load() {
		return false
	}
	if s.pending != nil {
		s.pending = nil
		s.stats.dropped.Add(1)
	}
	s.cause = cause
	s.active.Store(false)
	close(s.done)
	s.wake.Close()
	return true
}

// close shuts down s and waits for its scheduler to exit.
func (s *state[T]) close() error {
	ok := s.shutdown(nil)
	<-s.stopped
	if !ok {
		return s.closedErr()
	}
	return nil
}

// closedErr reports the error for an operation on a closed channel.
// The caller must have observed s inactive.
func (s *state[T]) closedErr() error {
	<-s.done // synchronizes with the write of cause
	if s.cause != nil {
		return s.cause
	}
	return ErrClosed
}

// ref is one counted reference to a state, held by exactly one handle. It is
// separate from the handle so that a runtime cleanup attached to the handle
// can release it.
type ref[T any] struct {
	s    *state[T]
	side *atomic.Int64
	once sync.Once
}

func newRef[T any](s *state[T], side *atomic.Int64) *ref[T] {
	side.Add(1)
	return &ref[T]{s: s, side: side}
}

// release drops r. If r was the last reference on its side, the channel is
// closed, and if wait is true release also waits for the scheduler to exit.
func (r *ref[T]) release(wait bool) {
	r.once.Do(func() {
		if r.side.Add(-1) != 0 {
			return
		} else if wait {
			r.s.close()
		} else {
			r.s.shutdown(nil)
		}
	})
}

// releaseRef is the cleanup for an unreachable handle. It must not block.
func releaseRef[T any](r *ref[T]) { r.release(false) }

// attach arranges for r to be released when h becomes unreachable.
func attach[H, T any](h *H, r *ref[T]) *H {
	runtime.AddCleanup(h, releaseRef[T], r)
	return h
}
