//go:build !windows

package hook

import (
	"context"
	"time"

	"github.com/thlstsul/ime-cursor/delay"
)

func unsupported(name string) Source {
	return Func(name, func(context.Context, *delay.Sender[Signal]) error { return ErrUnsupported })
}

// Keyboard returns a source reporting the release of modifier keys. It is
// not supported on this platform.
func Keyboard() Source { return unsupported("keyboard") }

// Focus returns a source reporting foreground window changes. It is not
// supported on this platform.
func Focus() Source { return unsupported("focus") }

func defaults(interval time.Duration) []Source {
	return []Source{Interval(interval)}
}
