package delay

import (
	"errors"
	"testing"
	"time"
)

func TestCleanupRelease(t *testing.T) {
	// No scheduler runs for s, so a release that waited for it would never
	// return.
	s := newState[string](time.Hour, nil)
	tx := &Sender[string]{r: newRef(s, &s.senders)}
	if err := tx.Send("pending"); err != nil {
		t.Fatalf("Send: unexpected error: %v", err)
	}

	released := make(chan struct{})
	go func() {
		defer close(released)
		releaseRef(tx.r)
	}()
	select {
	case <-released:
	case <-time.After(5 * time.Second):
		t.Fatal("Cleanup release blocked")
	}

	select {
	case <-s.done:
	default:
		t.Error("Channel is still open after its last sender was released")
	}
	if got := s.stats.snapshot().Dropped; got != 1 {
		t.Errorf("Dropped: got %d, want 1", got)
	}
	if err := tx.Send("late"); !errors.Is(err, ErrClosed) {
		t.Errorf("Send after release: got %v, want %v", err, ErrClosed)
	}
}
