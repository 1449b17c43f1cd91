//go:build windows

package ime

import (
	"context"
	"fmt"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")
	imm32  = windows.NewLazySystemDLL("imm32.dll")

	procGetForegroundWindow = user32.NewProc("GetForegroundWindow")
	procSendMessageTimeoutW = user32.NewProc("SendMessageTimeoutW")
	procImmGetDefaultIMEWnd = imm32.NewProc("ImmGetDefaultIMEWnd")
)

const (
	wmIMEControl          = 0x0283
	imcGetConversionMode  = 0x0001
	imcGetOpenStatus      = 0x0005
	imeCModeNative        = 0x0001
	smtoAbortIfHung       = 0x0002
	defaultMessageTimeout = 500 * time.Millisecond
)

// imm queries the default IME window of the foreground window.
type imm struct {
	timeout time.Duration
}

func newSystem(timeout time.Duration, _ []string, _ string) Detector {
	if timeout <= 0 {
		timeout = defaultMessageTimeout
	}
	return imm{timeout: timeout}
}

// InputMode implements the [Detector] interface.
func (m imm) InputMode(ctx context.Context) (Mode, error) {
	if err := ctx.Err(); err != nil {
		return Mode{}, err
	}
	fg, _, _ := procGetForegroundWindow.Call()
	if fg == 0 {
		return Mode{}, fmt.Errorf("%w: no foreground window", ErrUnavailable)
	}
	hwnd, _, _ := procImmGetDefaultIMEWnd.Call(fg)
	if hwnd == 0 {
		return Mode{}, fmt.Errorf("%w: no IME window", ErrUnavailable)
	}

	open, err := m.control(hwnd, imcGetOpenStatus)
	if err != nil {
		return Mode{}, err
	}
	if open == 0 {
		return Mode{}, nil
	}
	conv, err := m.control(hwnd, imcGetConversionMode)
	if err != nil {
		return Mode{}, err
	}
	return Mode{Open: true, Native: conv&imeCModeNative != 0}, nil
}

// control sends a WM_IME_CONTROL request, bounded by the timeout.
func (m imm) control(hwnd, request uintptr) (uintptr, error) {
	var result uintptr
	ok, _, err := procSendMessageTimeoutW.Call(
		hwnd, wmIMEControl, request, 0,
		smtoAbortIfHung, uintptr(m.timeout.Milliseconds()),
		uintptr(unsafe.Pointer(&result)),
	)
	if ok == 0 {
		return 0, fmt.Errorf("ime: WM_IME_CONTROL %#x: %w", request, err)
	}
	return result, nil
}
