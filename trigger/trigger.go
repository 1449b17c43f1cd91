// Package trigger implements a broadcast wake-up condition that can be
// latched permanently, and a helper for waiting on it with or without a
// timeout.
package trigger

import (
	"context"
	"sync"
	"time"
)

// Cond is an edge-triggered condition shared by multiple goroutines.
//
// A waiter calls Ready to obtain a channel, checks whatever state it is
// interested in, and then blocks on the channel. Signal closes the current
// channel, waking every goroutine that obtained it, and arms a fresh one for
// later arrivals. Because the channel is obtained before the state is
// checked, a Signal that races with the check is never lost.
//
// Close latches the condition: the current channel is closed and every
// subsequent call to Ready returns a closed channel. A closed Cond cannot be
// re-armed.
//
// A zero Cond is ready for use, but must not be copied after any of its
// methods have been called.
type Cond struct {
	μ      sync.Mutex
	ch     chan struct{} // lazily allocated by the first waiter
	closed bool
}

// New constructs a new open Cond.
func New() *Cond { return new(Cond) }

// Signal wakes all goroutines currently waiting on c and re-arms it. After c
// is closed, Signal has no effect.
func (c *Cond) Signal() {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed {
		return
	}
	if c.ch != nil {
		close(c.ch)
		c.ch = nil // the next waiter allocates
	}
}

// Close latches c, waking all current and future waiters. It reports whether
// this call closed c (true) or c was already closed (false).
func (c *Cond) Close() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.closed {
		return false
	}
	if c.ch == nil {
		c.ch = make(chan struct{})
	}
	close(c.ch)
	c.closed = true
	return true
}

// Closed reports whether c has been closed.
func (c *Cond) Closed() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.closed
}

// Ready returns a channel that is closed by the next call to Signal or Close.
// If c is already closed, the channel returned is already closed.
func (c *Cond) Ready() <-chan struct{} {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.ch == nil {
		c.ch = make(chan struct{})
	}
	return c.ch
}

// Reason reports why a call to Wait returned.
type Reason int

const (
	Woken     Reason = iota // the ready channel was closed
	TimedOut                // the timeout elapsed first
	Cancelled               // the context ended first
)

func (r Reason) String() string {
	switch r {
	case Woken:
		return "woken"
	case TimedOut:
		return "timed out"
	case Cancelled:
		return "cancelled"
	}
	return "unknown"
}

// Wait blocks until ready is closed, ctx ends, or timeout elapses, and
// reports which occurred first. If timeout <= 0, Wait does not time out.
// A nil ctx is treated as context.Background.
func Wait(ctx context.Context, ready <-chan struct{}, timeout time.Duration) Reason {
	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	if timeout <= 0 {
		select {
		case <-ready:
			return Woken
		case <-done:
			return Cancelled
		}
	}

	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-ready:
		return Woken
	case <-t.C:
		return TimedOut
	case <-done:
		return Cancelled
	}
}
