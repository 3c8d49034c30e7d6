// Package shortcut replays the player's keyboard accelerators by posting
// window messages, for actions the status API does not offer.
package shortcut

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/player"
	"github.com/jfmyers9/spotctl/internal/win32"
)

// Messenger is the subset of OS primitives the simulator needs
type Messenger interface {
	PostMessage(h win32.HWND, msg uint32, wParam, lParam uintptr) error
	SendMessage(h win32.HWND, msg uint32, wParam, lParam uintptr) uintptr
	GetMenu(h win32.HWND) win32.HMENU
	GetSubMenu(m win32.HMENU, pos int) win32.HMENU
	ScanCode(vk uint16) uint32
}

// Protocol holds the constants of the player's menu/accelerator layout
type Protocol struct {
	PlaybackMenu    int           // Zero-based index of the Playback submenu
	BaseAccelerator uint32        // Command id of Playback menu item zero
	KeyDelay        time.Duration // Pause between key down, menu and key up
}

// DefaultProtocol matches the Spotify desktop client
var DefaultProtocol = Protocol{
	PlaybackMenu:    3,
	BaseAccelerator: 0x72,
	KeyDelay:        30 * time.Millisecond,
}

// Binding maps a command to its accelerator chord and menu item
type Binding struct {
	Modifier uint16 // Virtual key held during the chord
	Key      uint16 // Virtual key pressed
	MenuItem uint32 // Offset into the Playback menu
}

// Bindings is the accelerator table
var Bindings = map[player.Command]Binding{
	player.FastForward: {Modifier: win32.VK_LSHIFT, Key: win32.VK_RIGHT, MenuItem: 3},
	player.Rewind:      {Modifier: win32.VK_LSHIFT, Key: win32.VK_LEFT, MenuItem: 4},
	player.VolumeUp:    {Modifier: win32.VK_LCONTROL, Key: win32.VK_UP, MenuItem: 7},
	player.VolumeDown:  {Modifier: win32.VK_LCONTROL, Key: win32.VK_DOWN, MenuItem: 8},
}

// Result reports whether Simulate sent anything
type Result int

const (
	Skipped Result = iota
	Sent
)

// String returns the result name
func (r Result) String() string {
	if r == Sent {
		return "sent"
	}
	return "skipped"
}

// Simulator posts accelerator sequences to the player windows
type Simulator struct {
	msg      Messenger
	protocol Protocol
	bindings map[player.Command]Binding
	logger   zerolog.Logger

	// sleep is replaced in tests
	sleep func(time.Duration)
}

// New creates a simulator using DefaultProtocol and Bindings
func New(msg Messenger, logger zerolog.Logger) *Simulator {
	return NewWithProtocol(msg, DefaultProtocol, logger)
}

// NewWithProtocol creates a simulator with tuned protocol constants.
// Zero fields fall back to DefaultProtocol.
func NewWithProtocol(msg Messenger, p Protocol, logger zerolog.Logger) *Simulator {
	if p.PlaybackMenu == 0 {
		p.PlaybackMenu = DefaultProtocol.PlaybackMenu
	}
	if p.BaseAccelerator == 0 {
		p.BaseAccelerator = DefaultProtocol.BaseAccelerator
	}
	if p.KeyDelay == 0 {
		p.KeyDelay = DefaultProtocol.KeyDelay
	}

	return &Simulator{
		msg:      msg,
		protocol: p,
		bindings: Bindings,
		logger:   logger.With().Str("component", "shortcut").Logger(),
		sleep:    time.Sleep,
	}
}

// Simulate performs cmd's accelerator against the main window and the
// child window that owns keyboard input. The sequence is: key downs to the
// child, pause, menu open/command/close on the main window, key ups, pause,
// modifier up. Missing windows or an unbound command send nothing.
func (s *Simulator) Simulate(cmd player.Command, main, child win32.HWND) Result {
	b, ok := s.bindings[cmd]
	if !ok {
		s.logger.Debug().Stringer("command", cmd).Msg("No shortcut bound")
		return Skipped
	}
	if main == 0 || child == 0 {
		s.logger.Debug().
			Stringer("command", cmd).
			Uint64("main", uint64(main)).
			Uint64("child", uint64(child)).
			Msg("Skipping shortcut, window missing")
		return Skipped
	}

	modScan := s.msg.ScanCode(b.Modifier)
	keyScan := s.msg.ScanCode(b.Key)

	s.post(child, win32.WM_KEYDOWN, uintptr(b.Modifier), win32.KeyLParam(modScan, false, false))
	s.post(child, win32.WM_KEYDOWN, uintptr(b.Key), win32.KeyLParam(keyScan, true, false))

	s.sleep(s.protocol.KeyDelay)

	menu := s.msg.GetMenu(main)
	s.msg.SendMessage(main, win32.WM_INITMENU, uintptr(menu), 0)
	sub := s.msg.GetSubMenu(menu, s.protocol.PlaybackMenu)
	s.msg.SendMessage(main, win32.WM_INITMENUPOPUP, uintptr(sub), uintptr(s.protocol.PlaybackMenu))
	s.msg.SendMessage(main, win32.WM_COMMAND, uintptr(0x10000|(s.protocol.BaseAccelerator+b.MenuItem)), 0)
	s.msg.SendMessage(main, win32.WM_UNINITMENUPOPUP, uintptr(sub), 0)

	s.post(child, win32.WM_KEYUP, uintptr(b.Key), win32.KeyLParam(keyScan, true, true))

	s.sleep(s.protocol.KeyDelay)

	s.post(child, win32.WM_KEYUP, uintptr(b.Modifier), win32.KeyLParam(modScan, false, true))

	s.logger.Debug().Stringer("command", cmd).Msg("Shortcut sent")
	return Sent
}

func (s *Simulator) post(h win32.HWND, msg uint32, wParam, lParam uintptr) {
	if err := s.msg.PostMessage(h, msg, wParam, lParam); err != nil {
		s.logger.Debug().Err(err).Uint32("msg", msg).Msg("Failed to post key message")
	}
}
