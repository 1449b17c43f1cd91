// Package ime reports the conversion mode of the active input method.
package ime

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// ErrUnavailable is reported when no input method can be queried, for
// example because no window has the focus.
var ErrUnavailable = errors.New("ime: input method unavailable")

// Mode describes the state of the input method for the focused window.
type Mode struct {
	Open   bool // the input method is enabled
	Native bool // the input method converts to its native script
}

// Composing reports whether keystrokes are being converted to the native
// script, which is what the cursor scheme reflects.
func (m Mode) Composing() bool { return m.Open && m.Native }

func (m Mode) String() string {
	switch {
	case m.Composing():
		return "native"
	case m.Open:
		return "alphanumeric"
	default:
		return "closed"
	}
}

// A Detector reports the current input method mode.
type Detector interface {
	InputMode(ctx context.Context) (Mode, error)
}

// Func adapts a function to a [Detector].
type Func func(context.Context) (Mode, error)

// InputMode implements the [Detector] interface.
func (f Func) InputMode(ctx context.Context) (Mode, error) { return f(ctx) }

// Command is a [Detector] that runs a status command, such as
// "fcitx5-remote", and compares its trimmed output to NativeOutput.
type Command struct {
	// Args is the command and its arguments. It must not be empty.
	Args []string

	// NativeOutput is the output reported while the native mode is active.
	NativeOutput string

	// Timeout bounds each execution of the command. If zero, the command is
	// bounded only by the context.
	Timeout time.Duration

	// run executes the command; nil means exec.CommandContext.
	run func(ctx context.Context, name string, args ...string) ([]byte, error)
}

// InputMode implements the [Detector] interface.
func (c *Command) InputMode(ctx context.Context) (Mode, error) {
	if len(c.Args) == 0 {
		return Mode{}, fmt.Errorf("%w: no status command configured", ErrUnavailable)
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	run := c.run
	if run == nil {
		run = runCommand
	}
	out, err := run(ctx, c.Args[0], c.Args[1:]...)
	if err != nil {
		return Mode{}, fmt.Errorf("ime: run %q: %w", c.Args[0], err)
	}
	native := string(bytes.TrimSpace(out)) == c.NativeOutput
	return Mode{Open: true, Native: native}, nil
}

func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// NewSystem returns the detector for the host platform. The timeout bounds
// each query of the input method. On platforms without a native interface,
// args and nativeOutput configure a [Command] detector.
func NewSystem(timeout time.Duration, args []string, nativeOutput string) Detector {
	return newSystem(timeout, args, nativeOutput)
}
