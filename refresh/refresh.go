// Package refresh runs an expensive refresh action on behalf of many
// concurrent callers, so that callers arriving while a refresh is already
// underway share its outcome instead of starting another.
package refresh

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
)

// Func is the refresh action managed by a [Refresher].
type Func[R any] func(context.Context) (R, error)

// A Refresher coalesces concurrent calls to a refresh action.
//
// The first caller of [Refresher.Refresh] on an idle refresher starts a new
// round and executes the action. Callers that arrive during the round wait
// for it to end, and receive the same result and error. If the executing
// caller's context ends before the action reports, the round is abandoned and
// one of the waiting callers (if any) executes the action in a new round.
// The action is never executed by more than one goroutine at a time.
type Refresher[R any] struct {
	run Func[R] // read-only after initialization

	μ   sync.Mutex
	cur *round[R] // the active round, or nil when idle
}

// round is one execution of the action, shared by its participants.
type round[R any] struct {
	done    chan struct{} // closed when the round ends
	settled bool          // whether value and err are the outcome
	value   R
	err     error
}

// New constructs an idle [Refresher] for run.
func New[R any](run Func[R]) *Refresher[R] { return &Refresher[R]{run: run} }

// Refresh executes the action, or joins a round already in progress, and
// returns its result. If ctx ends before a result is available, Refresh
// returns a zero value and the context error.
func (r *Refresher[R]) Refresh(ctx context.Context) (R, error) {
	var zero R
	for {
		if err := ctx.Err(); err != nil {
			return zero, err
		}

		r.μ.Lock()
		if rd := r.cur; rd != nil {
			r.μ.Unlock()
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-rd.done:
				if rd.settled {
					return rd.value, rd.err
				}
				continue // the round was abandoned, try to lead the next
			}
		}
		rd := &round[R]{done: make(chan struct{})}
		r.cur = rd
		r.μ.Unlock()

		return r.lead(ctx, rd)
	}
}

// lead executes the action for rd and publishes the outcome.
func (r *Refresher[R]) lead(ctx context.Context, rd *round[R]) (R, error) {
	v, err := r.call(ctx)

	r.μ.Lock()
	defer r.μ.Unlock()
	r.cur = nil

	// An error that coincides with the end of our own context says nothing
	// about the action; let a waiter try again with its own context.
	rd.settled = err == nil || ctx.Err() == nil
	if rd.settled {
		rd.value, rd.err = v, err
	}
	close(rd.done)
	return v, err
}

// call runs the action, converting a panic into an error.
func (r *Refresher[R]) call(ctx context.Context) (_ R, err error) {
	defer func() {
		if x := recover(); x != nil {
			err = fmt.Errorf("refresh: panic in action: %v\n%s", x, debug.Stack())
		}
	}()
	return r.run(ctx)
}
