// Package monitor keeps the system cursor scheme in step with the input
// method mode.
//
// Hook sources report that the input method may have changed. Their reports
// pass through a delay channel, which coalesces bursts into one signal per
// quiet period, and each delivered signal triggers a refresh: the input
// method mode is queried and the matching cursor scheme is installed.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/thlstsul/ime-cursor/delay"
	"github.com/thlstsul/ime-cursor/hook"
	"github.com/thlstsul/ime-cursor/ime"
	"github.com/thlstsul/ime-cursor/refresh"
	"golang.org/x/sync/errgroup"
)

// Cursor is the cursor scheme switch driven by a Monitor. It is satisfied by
// [*cursor.Cursor].
type Cursor interface {
	Apply(native bool) (changed bool, err error)
	Native() bool
	Restore() error
}

// Options configure a [Monitor].
type Options struct {
	// Delay is the settle delay for change notifications.
	Delay time.Duration

	// Detector reports the input method mode. It must not be nil.
	Detector ime.Detector

	// Cursor installs cursor schemes. It must not be nil.
	Cursor Cursor

	// Sources report candidate input method changes.
	Sources []hook.Source

	// KeepCursor, if true, leaves the last scheme installed when Run returns
	// instead of restoring the system defaults.
	KeepCursor bool

	// Log receives diagnostics. The zero value discards them.
	Log zerolog.Logger
}

// A Monitor runs the signal sources and the refresh loop.
type Monitor struct {
	delay      time.Duration
	det        ime.Detector
	cur        Cursor
	sources    []hook.Source
	keepCursor bool
	log        zerolog.Logger

	refresher *refresh.Refresher[Status]
	st        status
}

// New constructs a Monitor from opts.
func New(opts Options) (*Monitor, error) {
	if opts.Detector == nil {
		return nil, errors.New("monitor: no input method detector")
	}
	if opts.Cursor == nil {
		return nil, errors.New("monitor: no cursor")
	}
	if opts.Delay < 0 {
		return nil, fmt.Errorf("monitor: negative delay %v", opts.Delay)
	}
	m := &Monitor{
		delay:      opts.Delay,
		det:        opts.Detector,
		cur:        opts.Cursor,
		sources:    opts.Sources,
		keepCursor: opts.KeepCursor,
		log:        opts.Log,
	}
	m.refresher = refresh.New(m.refresh)
	return m, nil
}

// Run starts every source and refreshes the cursor scheme once at startup
// and once per settled burst of signals, until ctx ends or every source has
// stopped. A source that is unsupported on this platform is skipped. If the
// channel is closed, the remaining sources are stopped. Run reports an error
// if a source fails.
func (m *Monitor) Run(ctx context.Context) error {
	tx, rx := delay.New[hook.Signal](m.delay)
	defer func() {
		rx.Close()
		st := rx.Stats()
		m.log.Info().
			Uint64("signals", st.Sent).
			Uint64("coalesced", st.Superseded).
			Uint64("delivered", st.Delivered).
			Uint64("dropped", st.Dropped).
			Msg("monitor stopped")
		if !m.keepCursor {
			if err := m.cur.Restore(); err != nil {
				m.log.Error().Err(err).Msg("restore cursor")
			}
		}
	}()

	// The startup signal is queued before any source can close the channel,
	// so a failure here leaves nothing running.
	if err := tx.SendImmediate(hook.Signal{Origin: "startup"}); err != nil {
		tx.Release()
		return fmt.Errorf("monitor: startup signal: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, ctx := errgroup.WithContext(ctx)
	for _, src := range m.sources {
		stx := tx.Clone()
		g.Go(func() error {
			defer stx.Release()
			log := m.log.With().Str("source", src.Name()).Logger()
			log.Debug().Msg("source started")
			err := src.Run(ctx, stx)
			if errors.Is(err, hook.ErrUnsupported) {
				log.Warn().Msg("source is not supported on this platform")
				return nil
			} else if err != nil {
				return fmt.Errorf("monitor: source %s: %w", src.Name(), err)
			}
			log.Debug().Msg("source stopped")
			return nil
		})
	}
	// From here on the channel stays open only as long as some source does.
	tx.Release()

	// Once the consumer stops, so do the sources.
	g.Go(func() error {
		defer cancel()
		return m.consume(ctx, rx)
	})
	return g.Wait()
}

// consume refreshes once for each signal delivered by rx.
func (m *Monitor) consume(ctx context.Context, rx *delay.Receiver[hook.Signal]) error {
	for {
		sig, err := rx.Recv(ctx)
		if errors.Is(err, delay.ErrClosed) || ctx.Err() != nil {
			return nil
		} else if err != nil {
			return fmt.Errorf("monitor: receive: %w", err)
		}
		m.log.Debug().Str("origin", sig.Origin).Str("detail", sig.Detail).Msg("input method may have changed")

		// Refresh errors are recorded in the status; they never stop the loop.
		if _, err := m.refresher.Refresh(ctx); err != nil && ctx.Err() == nil {
			m.log.Warn().Err(err).Msg("refresh failed")
		}
	}
}

// RefreshNow queries the input method and installs the matching cursor
// scheme without waiting for a signal. If a refresh is already in progress,
// RefreshNow shares its outcome.
func (m *Monitor) RefreshNow(ctx context.Context) (Status, error) {
	return m.refresher.Refresh(ctx)
}

func (m *Monitor) refresh(ctx context.Context) (Status, error) {
	mode, err := m.det.InputMode(ctx)
	if err != nil {
		// Leave the cursor as it is; the next signal tries again.
		st := m.st.update(func(s *Status) { s.Err = err })
		return st, fmt.Errorf("input mode: %w", err)
	}

	changed, err := m.cur.Apply(mode.Composing())
	st := m.st.update(func(s *Status) {
		s.Mode = mode
		s.Native = m.cur.Native()
		s.Err = err
	})
	if err != nil {
		return st, fmt.Errorf("apply cursor: %w", err)
	}
	if changed {
		m.log.Info().Stringer("mode", mode).Bool("native", st.Native).Msg("cursor scheme changed")
	}
	return st, nil
}

// Status returns the outcome of the most recent refresh.
func (m *Monitor) Status() Status { return m.st.get() }

// WaitStatus blocks until the next refresh completes or ctx ends. It reports
// the current status and whether a refresh completed.
func (m *Monitor) WaitStatus(ctx context.Context) (Status, bool) { return m.st.wait(ctx) }
