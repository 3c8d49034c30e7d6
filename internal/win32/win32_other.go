//go:build !windows

package win32

import (
	"time"

	"github.com/rs/zerolog"
)

// Client is the non-Windows stand-in: it finds nothing and does nothing
type Client struct {
	logger zerolog.Logger
}

// New creates a new Win32 client
func New(logger zerolog.Logger) *Client {
	return &Client{
		logger: logger.With().Str("component", "win32").Logger(),
	}
}

func (c *Client) Processes(string) ([]Process, error)  { return nil, ErrUnsupported }
func (c *Client) Threads(uint32) ([]uint32, error)     { return nil, ErrUnsupported }
func (c *Client) FindWindow(string) HWND               { return 0 }
func (c *Client) FindWindowEx(HWND, string) HWND       { return 0 }
func (c *Client) FindThreadWindow(uint32, string) HWND { return 0 }
func (c *Client) IsWindow(HWND) bool                   { return false }
func (c *Client) WindowProcessID(HWND) uint32          { return 0 }
func (c *Client) IsMinimized(HWND) bool                { return false }
func (c *Client) ShowCmd(HWND) (int, error)            { return 0, ErrUnsupported }
func (c *Client) ShowWindow(HWND, int) bool            { return false }
func (c *Client) SetForegroundWindow(HWND) bool        { return false }
func (c *Client) SetFocus(HWND)                        {}
func (c *Client) GetMenu(HWND) HMENU                   { return 0 }
func (c *Client) GetSubMenu(HMENU, int) HMENU          { return 0 }
func (c *Client) ScanCode(uint16) uint32               { return 0 }
func (c *Client) StartProcess(string) (uint32, error)  { return 0, ErrUnsupported }

func (c *Client) SendMessage(HWND, uint32, uintptr, uintptr) uintptr {
	return 0
}

func (c *Client) PostMessage(HWND, uint32, uintptr, uintptr) error {
	return ErrUnsupported
}

func (c *Client) WaitForInputIdle(uint32, time.Duration) error {
	return ErrUnsupported
}

func (c *Client) WatchExit(uint32) (<-chan struct{}, error) {
	return nil, ErrUnsupported
}

func (c *Client) KillByName(string) (int, error) {
	return 0, ErrUnsupported
}
