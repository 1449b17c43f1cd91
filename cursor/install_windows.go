//go:build windows

package cursor

import (
	"fmt"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procLoadCursorFromFileW   = user32.NewProc("LoadCursorFromFileW")
	procSetSystemCursor       = user32.NewProc("SetSystemCursor")
	procSystemParametersInfoW = user32.NewProc("SystemParametersInfoW")
)

const spiSetCursors = 0x0057

// System cursor identifiers (OCR_*).
var ocr = map[Shape]uintptr{
	Arrow: 32512,
	IBeam: 32513,
	Hand:  32649,
}

type winInstaller struct {
	log zerolog.Logger
}

func systemInstaller(log zerolog.Logger) Installer { return winInstaller{log: log} }

func (w winInstaller) Install(shape Shape, path string) error {
	id, ok := ocr[shape]
	if !ok {
		return fmt.Errorf("unknown shape %v", shape)
	}
	p, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return err
	}
	h, _, err := procLoadCursorFromFileW.Call(uintptr(unsafe.Pointer(p)))
	if h == 0 {
		return fmt.Errorf("load %q: %w", path, err)
	}
	// SetSystemCursor takes ownership of h.
	if ok, _, err := procSetSystemCursor.Call(h, id); ok == 0 {
		return fmt.Errorf("set %v: %w", shape, err)
	}
	w.log.Debug().Stringer("shape", shape).Str("path", path).Msg("installed system cursor")
	return nil
}

func (w winInstaller) Restore() error {
	if ok, _, err := procSystemParametersInfoW.Call(spiSetCursors, 0, 0, 0); ok == 0 {
		return err
	}
	return nil
}
