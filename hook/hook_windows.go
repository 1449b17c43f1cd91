//go:build windows

package hook

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/thlstsul/ime-cursor/delay"
	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32.NewProc("CallNextHookEx")
	procSetWinEventHook     = user32.NewProc("SetWinEventHook")
	procUnhookWinEvent      = user32.NewProc("UnhookWinEvent")
	procGetMessageW         = user32.NewProc("GetMessageW")
	procPeekMessageW        = user32.NewProc("PeekMessageW")
	procTranslateMessage    = user32.NewProc("TranslateMessage")
	procDispatchMessageW    = user32.NewProc("DispatchMessageW")
	procPostThreadMessageW  = user32.NewProc("PostThreadMessageW")
)

const (
	whKeyboardLL          = 13
	wmQuit                = 0x0012
	wmKeyUp               = 0x0101
	wmSysKeyUp            = 0x0105
	eventSystemForeground = 0x0003
	wineventOutOfContext  = 0x0000
	wineventSkipOwnProc   = 0x0002
	pmNoRemove            = 0x0000
)

type point struct{ x, y int32 }

type msg struct {
	hwnd    uintptr
	message uint32
	wParam  uintptr
	lParam  uintptr
	time    uint32
	pt      point
	private uint32
}

type kbdllhookstruct struct {
	vkCode      uint32
	scanCode    uint32
	flags       uint32
	time        uint32
	dwExtraInfo uintptr
}

// Windows delivers hook callbacks to the thread that installed the hook, and
// callbacks cannot be freed, so each kind of hook has one process-wide
// callback and at most one active sender.
var (
	kbdSender   atomic.Pointer[delay.Sender[Signal]]
	focusSender atomic.Pointer[delay.Sender[Signal]]

	kbdProc = windows.NewCallback(func(code, wParam, lParam uintptr) uintptr {
		if int32(code) >= 0 && (wParam == wmKeyUp || wParam == wmSysKeyUp) {
			k := (*kbdllhookstruct)(unsafe.Pointer(lParam))
			if name, ok := Modifier(k.vkCode); ok {
				if tx := kbdSender.Load(); tx != nil {
					tx.Send(Signal{Origin: "keyboard", Detail: name})
				}
			}
		}
		r, _, _ := procCallNextHookEx.Call(0, code, wParam, lParam)
		return r
	})

	focusProc = windows.NewCallback(func(hook, event, hwnd, idObject, idChild, thread, ms uintptr) uintptr {
		if event == eventSystemForeground {
			if tx := focusSender.Load(); tx != nil {
				tx.Send(Signal{Origin: "focus", Detail: fmt.Sprintf("%#x", hwnd)})
			}
		}
		return 0
	})
)

var errBusy = errors.New("hook: already running")

// Keyboard returns a source that reports the release of a left or right
// Control, Shift, or Windows key, using a low-level keyboard hook. Only one
// keyboard source may run at a time.
func Keyboard() Source {
	return Func("keyboard", func(ctx context.Context, tx *delay.Sender[Signal]) error {
		if !kbdSender.CompareAndSwap(nil, tx) {
			return fmt.Errorf("keyboard: %w", errBusy)
		}
		defer kbdSender.Store(nil)
		return messageLoop(ctx, tx, func() (func(), error) {
			h, _, err := procSetWindowsHookExW.Call(whKeyboardLL, kbdProc, 0, 0)
			if h == 0 {
				return nil, fmt.Errorf("keyboard: SetWindowsHookEx: %w", err)
			}
			return func() { procUnhookWindowsHookEx.Call(h) }, nil
		})
	})
}

// Focus returns a source that reports a change of the foreground window,
// using an out-of-context window event hook. Only one focus source may run
// at a time.
func Focus() Source {
	return Func("focus", func(ctx context.Context, tx *delay.Sender[Signal]) error {
		if !focusSender.CompareAndSwap(nil, tx) {
			return fmt.Errorf("focus: %w", errBusy)
		}
		defer focusSender.Store(nil)
		return messageLoop(ctx, tx, func() (func(), error) {
			h, _, err := procSetWinEventHook.Call(
				eventSystemForeground, eventSystemForeground, 0, focusProc, 0, 0,
				wineventOutOfContext|wineventSkipOwnProc,
			)
			if h == 0 {
				return nil, fmt.Errorf("focus: SetWinEventHook: %w", err)
			}
			return func() { procUnhookWinEvent.Call(h) }, nil
		})
	})
}

// messageLoop installs a hook on a locked OS thread and pumps its messages
// until ctx ends or the channel closes.
func messageLoop(ctx context.Context, tx *delay.Sender[Signal], install func() (func(), error)) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	// Ensure the thread has a message queue before anyone posts to it.
	var m msg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0, pmNoRemove)

	uninstall, err := install()
	if err != nil {
		return err
	}
	defer uninstall()

	tid := windows.GetCurrentThreadId()
	quit := func() { procPostThreadMessageW.Call(uintptr(tid), wmQuit, 0, 0) }
	stop := context.AfterFunc(ctx, quit)
	defer stop()
	exit := make(chan struct{})
	defer close(exit)
	go func() {
		select {
		case <-tx.Done():
			quit()
		case <-exit:
		}
	}()

	for {
		r, _, err := procGetMessageW.Call(uintptr(unsafe.Pointer(&m)), 0, 0, 0)
		switch int32(r) {
		case -1:
			return fmt.Errorf("hook: GetMessage: %w", err)
		case 0:
			return nil // WM_QUIT
		}
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&m)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&m)))
	}
}

func defaults(time.Duration) []Source {
	return []Source{Keyboard(), Focus()}
}
