package delay

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/thlstsul/ime-cursor/trigger"
)

// run is the scheduler loop. It is the only goroutine that moves a delayed
// event from the pending slot to the ready queue.
func (s *state[T]) run() {
	defer close(s.stopped)
	defer func() {
		if x := recover(); x != nil {
			s.shutdown(&PanicError{Value: x, Stack: debug.Stack()})
		}
	}()

	for {
		wake, wait, ok := s.step()
		if !ok {
			return
		}
		// Whatever woke us, the next step re-reads the pending slot, so an
		// event overwritten during the wait is never promoted.
		trigger.Wait(context.Background(), wake, wait)
	}
}

// step promotes the pending event if it is due, and reports the channel to
// wait on before the next step together with how long to wait (0 means
// until woken). It reports ok == false once the channel has closed.
func (s *state[T]) step() (wake <-chan struct{}, wait time.Duration, ok bool) {
	s.pμ.Lock()
	defer s.pμ.Unlock()

	if !s.active.Load() {
		return nil, 0, false
	}
	if p := s.pending; p != nil {
		if wait = time.Until(p.due); wait > 0 {
			return s.wake.Ready(), wait, true
		}
		s.promoteLocked(p)
	}
	return s.wake.Ready(), 0, true
}

// promoteLocked moves p from the pending slot to the tail of the ready queue
// and wakes any blocked receivers. The caller must hold s.pμ.
func (s *state[T]) promoteLocked(p *event[T]) {
	s.qμ.Lock()
	defer s.qμ.Unlock()

	if s.onPromote != nil {
		s.onPromote(p.value)
	}
	s.pending = nil
	s.ready.Add(*p)
	s.stats.promoted.Add(1)
	s.wake.Signal()
}
