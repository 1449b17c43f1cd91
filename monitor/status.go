package monitor

import (
	"context"
	"sync"
	"time"

	"github.com/thlstsul/ime-cursor/ime"
)

// Status describes the outcome of the most recent refresh.
type Status struct {
	Mode      ime.Mode  // the input method mode observed
	Native    bool      // whether the native cursor scheme is installed
	Refreshes uint64    // completed refreshes, including failed ones
	Err       error     // the error of the most recent refresh, if any
	At        time.Time // when the most recent refresh completed
}

// status is a Status shared by the consumer loop and its observers.
type status struct {
	mu    sync.Mutex
	cur   Status
	ready chan struct{} // closed by the next update; allocated by Wait
}

func (s *status) update(f func(*Status)) Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(&s.cur)
	s.cur.Refreshes++
	s.cur.At = time.Now()
	if s.ready != nil {
		close(s.ready)
		s.ready = nil
	}
	return s.cur
}

func (s *status) get() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// wait blocks until the next update or until ctx ends. It reports the status
// current when it returns, and whether an update occurred.
func (s *status) wait(ctx context.Context) (Status, bool) {
	s.mu.Lock()
	if s.ready == nil {
		s.ready = make(chan struct{})
	}
	old, ready := s.cur, s.ready
	s.mu.Unlock()

	select {
	case <-ctx.Done():
		return old, false
	case <-ready:
		return s.get(), true
	}
}
