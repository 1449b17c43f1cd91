package delay_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/creachadair/mds/mtest"
	"github.com/fortytw2/leaktest"
	"github.com/thlstsul/ime-cursor/delay"
)

// slack bounds how late a delivery may be relative to its settle delay.
const slack = 75 * time.Millisecond

func mustSend[T any](t *testing.T, tx *delay.Sender[T], v T) {
	t.Helper()
	if err := tx.Send(v); err != nil {
		t.Fatalf("Send(%v): unexpected error: %v", v, err)
	}
}

func mustRecv[T comparable](t *testing.T, rx *delay.Receiver[T], want T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	got, err := rx.Recv(ctx)
	if err != nil {
		t.Fatalf("Recv: unexpected error: %v", err)
	}
	if got != want {
		t.Errorf("Recv: got %v, want %v", got, want)
	}
}

func checkEmpty[T any](t *testing.T, rx *delay.Receiver[T]) {
	t.Helper()
	if v, err := rx.TryRecv(); !errors.Is(err, delay.ErrEmpty) {
		t.Errorf("TryRecv: got (%v, %v), want %v", v, err, delay.ErrEmpty)
	}
}

func TestCoalesce(t *testing.T) {
	defer leaktest.Check(t)()

	const d = 50 * time.Millisecond
	tx, rx := delay.New[int](d)
	defer tx.Close()

	// A burst of sends closer together than the delay delivers only the last.
	for i := range 5 {
		mustSend(t, tx, i+1)
		time.Sleep(d / 5)
	}
	mustRecv(t, rx, 5)

	// Nothing else was promoted.
	time.Sleep(2 * d)
	checkEmpty(t, rx)

	st := rx.Stats()
	if st.Sent != 5 || st.Superseded != 4 || st.Promoted != 1 || st.Delivered != 1 {
		t.Errorf("Stats: got %+v, want 5 sent, 4 superseded, 1 promoted, 1 delivered", st)
	}
}

func TestOverwriteDuringWait(t *testing.T) {
	defer leaktest.Check(t)()

	const d = 100 * time.Millisecond
	tx, rx := delay.New[string](d)
	defer tx.Close()

	start := time.Now()
	mustSend(t, tx, "event1")
	time.Sleep(d / 2)
	mustSend(t, tx, "event2")
	time.Sleep(d / 2)

	mustRecv(t, rx, "event2")

	// The overwrite restarts the settle delay from the second send.
	elapsed := time.Since(start)
	if lo := d + d/2; elapsed < lo || elapsed >= lo+slack {
		t.Errorf("Recv after %v, want in [%v, %v)", elapsed, lo, lo+slack)
	}

	time.Sleep(d + d/2)
	checkEmpty(t, rx)
}

func TestSequence(t *testing.T) {
	defer leaktest.Check(t)()

	const d = 50 * time.Millisecond
	tx, rx := delay.New[string](d)
	defer rx.Release()

	type result struct {
		got []string
		err error
	}
	done := make(chan result, 1)
	go func() {
		var r result
		for {
			v, err := rx.Recv(context.Background())
			if err != nil {
				r.err = err
				break
			}
			r.got = append(r.got, v)
		}
		done <- r
	}()

	mustSend(t, tx, "event1")
	time.Sleep(10 * time.Millisecond)
	mustSend(t, tx, "event2")
	time.Sleep(10 * time.Millisecond)
	mustSend(t, tx, "event3")

	time.Sleep(200 * time.Millisecond)

	mustSend(t, tx, "event4")
	time.Sleep(60 * time.Millisecond)
	mustSend(t, tx, "event5")
	time.Sleep(60 * time.Millisecond)

	// Releasing the only sender closes the channel; the receiver drains what
	// was already ready and then observes the closure.
	tx.Release()

	select {
	case r := <-done:
		want := []string{"event3", "event4", "event5"}
		if fmt.Sprint(r.got) != fmt.Sprint(want) {
			t.Errorf("Received %q, want %q", r.got, want)
		}
		if !errors.Is(r.err, delay.ErrClosed) {
			t.Errorf("Final Recv: got %v, want %v", r.err, delay.ErrClosed)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for the receiver")
	}
}

func TestSendImmediate(t *testing.T) {
	defer leaktest.Check(t)()

	const d = 100 * time.Millisecond
	tx, rx := delay.New[string](d)
	defer tx.Close()

	mustSend(t, tx, "pending")

	start := time.Now()
	if err := tx.SendImmediate("now"); err != nil {
		t.Fatalf("SendImmediate: unexpected error: %v", err)
	}
	mustRecv(t, rx, "now")
	if elapsed := time.Since(start); elapsed >= d/2 {
		t.Errorf("Immediate value took %v, want < %v", elapsed, d/2)
	}

	// The value that was pending when SendImmediate was called is never
	// delivered.
	time.Sleep(2 * d)
	checkEmpty(t, rx)

	st := tx.Stats()
	if st.Immediate != 1 || st.Superseded != 1 || st.Promoted != 0 {
		t.Errorf("Stats: got %+v, want 1 immediate, 1 superseded, 0 promoted", st)
	}
}

func TestLatency(t *testing.T) {
	defer leaktest.Check(t)()

	for _, d := range []time.Duration{0, 20 * time.Millisecond, 80 * time.Millisecond} {
		t.Run(d.String(), func(t *testing.T) {
			tx, rx := delay.New[int](d)
			defer tx.Close()

			if got := tx.Delay(); got != d {
				t.Errorf("Delay: got %v, want %v", got, d)
			}

			start := time.Now()
			mustSend(t, tx, 1)
			mustRecv(t, rx, 1)
			if elapsed := time.Since(start); elapsed < d || elapsed >= d+slack {
				t.Errorf("Recv after %v, want in [%v, %v)", elapsed, d, d+slack)
			}
		})
	}
}

func TestClose(t *testing.T) {
	defer leaktest.Check(t)()

	t.Run("Terminal", func(t *testing.T) {
		tx, rx := delay.New[int](time.Hour)
		mustSend(t, tx, 1) // pending, discarded by the close

		if err := tx.Close(); err != nil {
			t.Fatalf("Close: unexpected error: %v", err)
		}
		for i := range 3 {
			if err := rx.Close(); !errors.Is(err, delay.ErrClosed) {
				t.Errorf("Close %d: got %v, want %v", i+2, err, delay.ErrClosed)
			}
		}

		select {
		case <-rx.Done():
		default:
			t.Error("Done is not closed after Close")
		}

		if err := tx.Send(2); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("Send: got %v, want %v", err, delay.ErrClosed)
		}
		if err := tx.SendImmediate(3); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("SendImmediate: got %v, want %v", err, delay.ErrClosed)
		}
		if v, err := rx.Recv(t.Context()); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("Recv: got (%v, %v), want %v", v, err, delay.ErrClosed)
		}
		if v, err := rx.TryRecv(); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("TryRecv: got (%v, %v), want %v", v, err, delay.ErrClosed)
		}

		if st := rx.Stats(); st.Dropped != 1 || st.Delivered != 0 {
			t.Errorf("Stats: got %+v, want 1 dropped, 0 delivered", st)
		}
	})

	t.Run("Drain", func(t *testing.T) {
		tx, rx := delay.New[string](time.Hour)
		for _, v := range []string{"a", "b", "c"} {
			if err := tx.SendImmediate(v); err != nil {
				t.Fatalf("SendImmediate(%q): unexpected error: %v", v, err)
			}
		}
		if err := rx.Close(); err != nil {
			t.Fatalf("Close: unexpected error: %v", err)
		}

		// Values that were ready before the close are still delivered in order.
		mustRecv(t, rx, "a")
		if v, err := rx.TryRecv(); err != nil || v != "b" {
			t.Errorf("TryRecv: got (%q, %v), want (b, nil)", v, err)
		}
		mustRecv(t, rx, "c")
		if _, err := rx.Recv(t.Context()); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("Recv: got %v, want %v", err, delay.ErrClosed)
		}
	})

	t.Run("WakeBlocked", func(t *testing.T) {
		tx, rx := delay.New[int](time.Hour)

		var wg sync.WaitGroup
		for range 3 {
			wg.Go(func() {
				if v, err := rx.Recv(context.Background()); !errors.Is(err, delay.ErrClosed) {
					t.Errorf("Recv: got (%v, %v), want %v", v, err, delay.ErrClosed)
				}
			})
		}
		time.Sleep(10 * time.Millisecond)
		tx.Close()
		wg.Wait()
	})
}

func TestTryRecv(t *testing.T) {
	defer leaktest.Check(t)()

	tx, rx := delay.New[int](time.Hour)

	start := time.Now()
	checkEmpty(t, rx)
	mustSend(t, tx, 1) // not due for an hour
	checkEmpty(t, rx)
	if elapsed := time.Since(start); elapsed > slack {
		t.Errorf("TryRecv blocked for %v", elapsed)
	}

	tx.Close()
	start = time.Now()
	if _, err := rx.TryRecv(); !errors.Is(err, delay.ErrClosed) {
		t.Errorf("TryRecv: got %v, want %v", err, delay.ErrClosed)
	}
	if elapsed := time.Since(start); elapsed > slack {
		t.Errorf("TryRecv blocked for %v", elapsed)
	}
}

func TestRecvContext(t *testing.T) {
	defer leaktest.Check(t)()

	tx, rx := delay.New[int](time.Hour)
	defer tx.Close()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()
	if v, err := rx.Recv(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Recv: got (%v, %v), want %v", v, err, context.DeadlineExceeded)
	}

	// The channel is still usable after an abandoned Recv.
	if err := tx.SendImmediate(7); err != nil {
		t.Fatalf("SendImmediate: unexpected error: %v", err)
	}
	mustRecv(t, rx, 7)
}

func TestRelease(t *testing.T) {
	defer leaktest.Check(t)()

	isDone := func(ch <-chan struct{}) bool {
		select {
		case <-ch:
			return true
		case <-time.After(time.Second):
			return false
		}
	}

	t.Run("SenderClones", func(t *testing.T) {
		tx, rx := delay.New[int](0)
		defer rx.Release()

		tx2 := tx.Clone()
		tx.Release()
		tx.Release() // idempotent, must not drop the clone's reference

		// Releasing one sender leaves the channel open for the other.
		mustSend(t, tx2, 2)
		mustRecv(t, rx, 2)

		tx2.Release()
		if !isDone(rx.Done()) {
			t.Fatal("Channel did not close after the last sender was released")
		}
		if _, err := rx.Recv(t.Context()); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("Recv: got %v, want %v", err, delay.ErrClosed)
		}
	})

	t.Run("ReceiverClones", func(t *testing.T) {
		tx, rx := delay.New[int](0)
		defer tx.Release()

		rx2 := rx.Clone()
		rx.Release()

		mustSend(t, tx, 3)
		mustRecv(t, rx2, 3)

		rx2.Release()
		if !isDone(tx.Done()) {
			t.Fatal("Channel did not close after the last receiver was released")
		}
		if err := tx.Send(4); !errors.Is(err, delay.ErrClosed) {
			t.Errorf("Send: got %v, want %v", err, delay.ErrClosed)
		}
	})

	t.Run("Unreachable", func(t *testing.T) {
		rx := func() *delay.Receiver[int] {
			_, rx := delay.New[int](0)
			return rx // the sender becomes unreachable here
		}()
		defer rx.Release()

		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			runtime.GC()
			select {
			case <-rx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
		}
		t.Error("Channel did not close after its sender became unreachable")
	})
}

func TestUnreachableDuringCall(t *testing.T) {
	defer leaktest.Check(t)()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Go(func() {
		for {
			select {
			case <-stop:
				return
			default:
				runtime.GC()
			}
		}
	})

	// Each handle is used for the last time by the call under test, so it
	// may become unreachable while that call is still running.
	const rounds = 200
	var done []<-chan struct{}
	for i := range rounds {
		tx, rx := delay.New[int](0)
		done = append(done, rx.Done())
		if err := tx.SendImmediate(i); err != nil {
			t.Fatalf("SendImmediate(%d): unexpected error: %v", i, err)
		}
		if got, err := rx.TryRecv(); err != nil || got != i {
			t.Fatalf("TryRecv: got (%v, %v), want (%v, nil)", got, err, i)
		}

		tx2, rx2 := delay.New[int](time.Hour)
		done = append(done, rx2.Done())
		if err := tx2.Send(i); err != nil {
			t.Fatalf("Send(%d): unexpected error: %v", i, err)
		}
	}
	close(stop)
	wg.Wait()

	// Every channel closes once its handles are collected.
	deadline := time.Now().Add(5 * time.Second)
	for _, ch := range done {
		for {
			runtime.GC()
			select {
			case <-ch:
			case <-time.After(10 * time.Millisecond):
				if time.Now().Before(deadline) {
					continue
				}
				t.Fatal("Channel did not close after its handles became unreachable")
			}
			break
		}
	}
}

func TestConcurrent(t *testing.T) {
	defer leaktest.Check(t)()

	const numSenders = 8
	const numSends = 200

	tx, rx := delay.New[int](time.Millisecond)
	defer rx.Release()

	received := make(map[int]bool)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			v, err := rx.Recv(context.Background())
			if err != nil {
				return
			}
			if received[v] {
				t.Errorf("Value %d delivered more than once", v)
			}
			received[v] = true
		}
	}()

	var wg sync.WaitGroup
	for i := range numSenders {
		s := tx.Clone()
		wg.Go(func() {
			defer s.Release()
			for j := range numSends {
				v := i*numSends + j
				var err error
				if j%17 == 0 {
					err = s.SendImmediate(v)
				} else {
					err = s.Send(v)
				}
				if err != nil {
					t.Errorf("Send %d: unexpected error: %v", v, err)
				}
				if j%10 == 0 {
					time.Sleep(time.Millisecond)
				}
			}
		})
	}
	wg.Wait()

	// Let the last pending value settle, then close by releasing the sender.
	time.Sleep(20 * time.Millisecond)
	tx.Release()
	<-done

	st := rx.Stats()
	if got := st.Sent + st.Immediate; got != numSenders*numSends {
		t.Errorf("Accepted %d values, want %d", got, numSenders*numSends)
	}
	if got, want := uint64(len(received)), st.Promoted+st.Immediate; got != want {
		t.Errorf("Received %d values, want %d (promoted + immediate)", got, want)
	}
	if st.Promoted+st.Superseded+st.Dropped != st.Sent {
		t.Errorf("Stats do not account for every send: %+v", st)
	}
}

func TestNegativeDelay(t *testing.T) {
	mtest.MustPanicf(t, func() { delay.New[int](-time.Second) },
		"expected New to panic for a negative delay")
}
