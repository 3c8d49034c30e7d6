// Package win32 wraps the handful of Windows process and window primitives
// used to drive the player: process enumeration, window lookup by class,
// window messages and process launch/idle/exit/kill.
//
// On other platforms Client compiles but every call reports ErrUnsupported or
// a zero handle, so callers degrade to "player not running".
package win32

import (
	"errors"
)

// HWND is a window handle. Zero means "no window".
type HWND uintptr

// HMENU is a menu handle. Zero means "no menu".
type HMENU uintptr

// Process describes one running process matched by executable name
type Process struct {
	PID        uint32
	Name       string // Executable name, e.g. "Spotify.exe"
	MainWindow HWND   // First visible unowned top-level window, zero if none
}

var (
	// ErrUnsupported is returned by every Client call on non-Windows builds.
	ErrUnsupported = errors.New("win32: not supported on this platform")

	// ErrWaitTimeout is returned when a bounded wait on a process elapses.
	ErrWaitTimeout = errors.New("win32: wait timed out")
)

// Window messages.
const (
	WM_CLOSE           = 0x0010
	WM_KEYDOWN         = 0x0100
	WM_KEYUP           = 0x0101
	WM_COMMAND         = 0x0111
	WM_INITMENU        = 0x0116
	WM_INITMENUPOPUP   = 0x0117
	WM_UNINITMENUPOPUP = 0x0125
	WM_APPCOMMAND      = 0x0319
)

// ShowWindow commands.
const (
	SW_HIDE          = 0
	SW_SHOWNORMAL    = 1
	SW_SHOWMINIMIZED = 2
	SW_SHOWMAXIMIZED = 3
	SW_SHOW          = 5
	SW_MINIMIZE      = 6
	SW_RESTORE       = 9
)

// Virtual-key codes.
const (
	VK_LEFT     = 0x25
	VK_UP       = 0x26
	VK_RIGHT    = 0x27
	VK_DOWN     = 0x28
	VK_LSHIFT   = 0xA0
	VK_LCONTROL = 0xA2
)

// KeyLParam builds the lParam of a WM_KEYDOWN/WM_KEYUP message: repeat
// count 1, the scan code in bits 16-23, bit 24 for extended keys and, on
// key up, the previous-state and transition bits (30, 31).
func KeyLParam(scanCode uint32, extended, up bool) uintptr {
	lp := uint32(0x00000001) | (scanCode&0xFF)<<16
	if extended {
		lp |= 0x01000000
	}
	if up {
		lp |= 0xC0000000
	}
	return uintptr(lp)
}
