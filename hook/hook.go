// Package hook connects operating-system notifications that may coincide
// with an input method change to a delay channel.
//
// A hook never decides whether the input method actually changed; it only
// reports that it might have. The delay channel coalesces bursts of such
// reports, and the consumer queries the input method once per burst.
package hook

import (
	"context"
	"errors"
	"time"

	"github.com/thlstsul/ime-cursor/delay"
)

// ErrUnsupported is reported by a source that cannot run on this platform.
var ErrUnsupported = errors.New("hook: not supported on this platform")

// Signal is the payload a source sends. Only the last signal of a burst is
// delivered, so it carries nothing a consumer depends on beyond diagnostics.
type Signal struct {
	Origin string // the name of the source
	Detail string // source-specific, for example the key released
}

// A Source reports candidate input method changes to a sender until its
// context ends.
type Source interface {
	// Name identifies the source in signals and logs.
	Name() string

	// Run sends to tx until ctx ends or the channel closes. It reports nil
	// when stopped by either of those, and an error if the source failed.
	Run(ctx context.Context, tx *delay.Sender[Signal]) error
}

type funcSource struct {
	name string
	run  func(context.Context, *delay.Sender[Signal]) error
}

// Func returns a [Source] with the given name that calls run.
func Func(name string, run func(context.Context, *delay.Sender[Signal]) error) Source {
	return funcSource{name: name, run: run}
}

func (f funcSource) Name() string { return f.name }

func (f funcSource) Run(ctx context.Context, tx *delay.Sender[Signal]) error { return f.run(ctx, tx) }

// Interval returns a [Source] that sends a signal every d. It stands in for
// event hooks on platforms that have none.
func Interval(d time.Duration) Source {
	return Func("interval", func(ctx context.Context, tx *delay.Sender[Signal]) error {
		t := time.NewTicker(d)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-tx.Done():
				return nil
			case <-t.C:
				if err := tx.Send(Signal{Origin: "interval"}); errors.Is(err, delay.ErrClosed) {
					return nil
				} else if err != nil {
					return err
				}
			}
		}
	})
}

// Virtual-key codes of the modifier keys whose release may switch the input
// method.
const (
	vkLWin     = 0x5B
	vkRWin     = 0x5C
	vkLShift   = 0xA0
	vkRShift   = 0xA1
	vkLControl = 0xA2
	vkRControl = 0xA3
)

var modifierNames = map[uint32]string{
	vkLWin:     "MetaLeft",
	vkRWin:     "MetaRight",
	vkLShift:   "ShiftLeft",
	vkRShift:   "ShiftRight",
	vkLControl: "ControlLeft",
	vkRControl: "ControlRight",
}

// Modifier reports whether vk is the virtual-key code of a left or right
// Control, Shift, or Windows key, and if so its name.
func Modifier(vk uint32) (string, bool) {
	name, ok := modifierNames[vk]
	return name, ok
}

// Defaults returns the sources available on this platform. The interval is
// used only where no event hooks exist.
func Defaults(interval time.Duration) []Source { return defaults(interval) }
