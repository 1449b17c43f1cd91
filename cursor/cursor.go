// Package cursor switches the system pointer between a default scheme and a
// scheme that signals native-script input.
package cursor

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// Shape identifies one of the system pointers that a scheme replaces.
type Shape int

const (
	Arrow Shape = iota // the normal select pointer
	IBeam              // the text select pointer
	Hand               // the link select pointer
)

// Shapes lists every shape, in installation order.
var Shapes = []Shape{Arrow, IBeam, Hand}

func (s Shape) String() string {
	switch s {
	case Arrow:
		return "arrow"
	case IBeam:
		return "ibeam"
	case Hand:
		return "hand"
	}
	return fmt.Sprintf("Shape(%d)", int(s))
}

// A Scheme maps each shape to the path of a cursor file.
type Scheme map[Shape]string

// Validate reports an error if s lacks a shape, or names a file that does not
// exist in fsys.
func (s Scheme) Validate(fsys afero.Fs) error {
	var errs []error
	for _, shape := range Shapes {
		path, ok := s[shape]
		if !ok || path == "" {
			errs = append(errs, fmt.Errorf("no cursor file for %v", shape))
			continue
		}
		if ok, err := afero.Exists(fsys, path); err != nil {
			errs = append(errs, fmt.Errorf("%v: %w", shape, err))
		} else if !ok {
			errs = append(errs, fmt.Errorf("%v: cursor file %q not found", shape, path))
		}
	}
	return errors.Join(errs...)
}

// An Installer replaces system pointers.
type Installer interface {
	// Install replaces the system pointer for shape with the cursor file at
	// path.
	Install(shape Shape, path string) error

	// Restore returns every system pointer to the platform default.
	Restore() error
}

// Cursor tracks which scheme is installed, so that repeated requests for the
// same scheme do not reach the installer.
type Cursor struct {
	inst   Installer
	def    Scheme
	native Scheme

	μ        sync.Mutex
	isNative bool
}

// Check validates both schemes against fsys, unless inst never loads the
// files it is given. It reports whether the files were checked.
func Check(inst Installer, fsys afero.Fs, def, native Scheme) (bool, error) {
	if _, ok := inst.(LogInstaller); ok {
		return false, nil
	}
	if err := def.Validate(fsys); err != nil {
		return true, fmt.Errorf("cursor: default scheme: %w", err)
	}
	if err := native.Validate(fsys); err != nil {
		return true, fmt.Errorf("cursor: native scheme: %w", err)
	}
	return true, nil
}

// New checks both schemes with [Check], installs the default scheme, and
// returns a Cursor in the default state.
func New(inst Installer, fsys afero.Fs, def, native Scheme) (*Cursor, error) {
	if _, err := Check(inst, fsys, def, native); err != nil {
		return nil, err
	}
	c := &Cursor{inst: inst, def: def, native: native}
	if err := c.install(def); err != nil {
		return nil, err
	}
	return c, nil
}

// Apply installs the native scheme if native is true and the default scheme
// otherwise. It reports whether the installed scheme changed. If the
// requested scheme is already installed, Apply does nothing.
func (c *Cursor) Apply(native bool) (bool, error) {
	c.μ.Lock()
	defer c.μ.Unlock()
	if c.isNative == native {
		return false, nil
	}
	s := c.def
	if native {
		s = c.native
	}
	if err := c.install(s); err != nil {
		return false, err
	}
	c.isNative = native
	return true, nil
}

// Native reports whether the native scheme is installed.
func (c *Cursor) Native() bool {
	c.μ.Lock()
	defer c.μ.Unlock()
	return c.isNative
}

// Restore returns the system pointers to the platform defaults.
func (c *Cursor) Restore() error {
	c.μ.Lock()
	defer c.μ.Unlock()
	if err := c.inst.Restore(); err != nil {
		return fmt.Errorf("cursor: restore: %w", err)
	}
	c.isNative = false
	return nil
}

func (c *Cursor) install(s Scheme) error {
	for _, shape := range Shapes {
		if err := c.inst.Install(shape, s[shape]); err != nil {
			return fmt.Errorf("cursor: install %v: %w", shape, err)
		}
	}
	return nil
}

// System returns the installer for the host platform. On platforms without a
// system cursor interface, the installer only logs what it would install.
func System(log zerolog.Logger) Installer { return systemInstaller(log) }

// LogInstaller is an [Installer] that records requests in a log instead of
// changing any pointer. It never opens the cursor files.
type LogInstaller struct {
	Log zerolog.Logger
}

// Install implements the [Installer] interface.
func (l LogInstaller) Install(shape Shape, path string) error {
	l.Log.Info().Stringer("shape", shape).Str("path", path).Msg("install cursor")
	return nil
}

// Restore implements the [Installer] interface.
func (l LogInstaller) Restore() error {
	l.Log.Info().Msg("restore default cursors")
	return nil
}
