// Package locator finds the player's process and its top-level and child
// windows. Lookups never fail loudly: absence is reported as a zero handle.
package locator

import (
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/win32"
)

// Default identifiers of the Spotify desktop client
const (
	DefaultProcessName = "Spotify"
	DefaultWindowClass = "SpotifyMainWindow"
)

// DefaultChildClasses is the class chain from the main window down to the
// window that receives keyboard input.
var DefaultChildClasses = []string{"CefBrowserWindow", "Chrome_WidgetWin_0"}

// Windows is the subset of OS primitives the locator needs
type Windows interface {
	Processes(name string) ([]win32.Process, error)
	Threads(pid uint32) ([]uint32, error)
	FindWindow(class string) win32.HWND
	FindWindowEx(parent win32.HWND, class string) win32.HWND
	FindThreadWindow(tid uint32, class string) win32.HWND
	IsWindow(h win32.HWND) bool
	WindowProcessID(h win32.HWND) uint32
}

// Target identifies a running player instance. It goes stale when the
// process exits and is revalidated on every lookup.
type Target struct {
	PID    uint32
	Window win32.HWND
}

// Strategy is one way of finding the main window
type Strategy int

const (
	// CachedHandle reuses a known window if it still exists and is still
	// owned by the known process.
	CachedHandle Strategy = iota
	// ProcessEnumeration takes the main window of the first process
	// matching the executable name.
	ProcessEnumeration
	// ThreadProbe walks each matching process's threads looking for a
	// window of the player's class. Needed when the window is hidden or
	// minimized to the tray and so has no main-window association.
	ThreadProbe
	// ClassWindow asks the window manager for any top-level window of the
	// player's class.
	ClassWindow
)

// String returns the strategy name
func (s Strategy) String() string {
	switch s {
	case CachedHandle:
		return "cached_handle"
	case ProcessEnumeration:
		return "process_enumeration"
	case ThreadProbe:
		return "thread_probe"
	case ClassWindow:
		return "class_window"
	default:
		return "unknown"
	}
}

// DefaultStrategies is the lookup order used when none is configured
var DefaultStrategies = []Strategy{CachedHandle, ProcessEnumeration, ThreadProbe, ClassWindow}

// Config holds locator settings
type Config struct {
	ProcessName  string
	WindowClass  string
	ChildClasses []string
	Strategies   []Strategy
}

// Locator finds player windows
type Locator struct {
	win    Windows
	cfg    Config
	logger zerolog.Logger
}

// New creates a new locator, filling unset config fields with defaults
func New(win Windows, cfg Config, logger zerolog.Logger) *Locator {
	if cfg.ProcessName == "" {
		cfg.ProcessName = DefaultProcessName
	}
	if cfg.WindowClass == "" {
		cfg.WindowClass = DefaultWindowClass
	}
	if cfg.ChildClasses == nil {
		cfg.ChildClasses = DefaultChildClasses
	}
	if len(cfg.Strategies) == 0 {
		cfg.Strategies = DefaultStrategies
	}

	return &Locator{
		win:    win,
		cfg:    cfg,
		logger: logger.With().Str("component", "locator").Logger(),
	}
}

// ProcessName returns the executable name the locator matches on
func (l *Locator) ProcessName() string {
	return l.cfg.ProcessName
}

// FindMainWindow returns the player's main window, or zero if none exists
func (l *Locator) FindMainWindow(known *Target) win32.HWND {
	return l.Locate(known).Window
}

// Locate runs the configured strategies in order and returns the first
// target with a window. The result is zero if every strategy misses.
func (l *Locator) Locate(known *Target) Target {
	for _, s := range l.cfg.Strategies {
		t := l.try(s, known)
		if t.Window != 0 {
			l.logger.Debug().
				Stringer("strategy", s).
				Uint32("pid", t.PID).
				Uint64("hwnd", uint64(t.Window)).
				Msg("Found main window")
			return t
		}
	}

	l.logger.Debug().Msg("Main window not found")
	return Target{}
}

// FindProcess looks for a running player process without using any cached
// handle. It reports found when a process exists even if it has no window
// yet, as is the case early in a launch.
func (l *Locator) FindProcess() (Target, bool) {
	procs := l.processes()

	for _, s := range l.cfg.Strategies {
		if s == CachedHandle {
			continue
		}
		if t := l.try(s, nil); t.Window != 0 {
			return t, true
		}
	}

	if len(procs) > 0 {
		l.logger.Debug().Uint32("pid", procs[0].PID).Msg("Process has no window yet")
		return Target{PID: procs[0].PID}, true
	}
	return Target{}, false
}

// FindChildControlWindow follows the child class chain below main and
// returns the innermost window, or zero if any link is missing
func (l *Locator) FindChildControlWindow(main win32.HWND) win32.HWND {
	h := main
	for _, class := range l.cfg.ChildClasses {
		if h == 0 {
			break
		}
		h = l.win.FindWindowEx(h, class)
	}

	if h == 0 {
		l.logger.Debug().Uint64("main", uint64(main)).Msg("Child control window not found")
	}
	return h
}

func (l *Locator) try(s Strategy, known *Target) Target {
	switch s {
	case CachedHandle:
		if known == nil || known.Window == 0 {
			return Target{}
		}
		if !l.win.IsWindow(known.Window) {
			return Target{}
		}
		if known.PID != 0 && l.win.WindowProcessID(known.Window) != known.PID {
			return Target{}
		}
		return *known

	case ProcessEnumeration:
		for _, p := range l.processes() {
			if p.MainWindow != 0 {
				return Target{PID: p.PID, Window: p.MainWindow}
			}
		}

	case ThreadProbe:
		for _, p := range l.processes() {
			tids, err := l.win.Threads(p.PID)
			if err != nil {
				l.logger.Debug().Err(err).Uint32("pid", p.PID).Msg("Failed to list threads")
				continue
			}
			for _, tid := range tids {
				if h := l.win.FindThreadWindow(tid, l.cfg.WindowClass); h != 0 {
					return Target{PID: p.PID, Window: h}
				}
			}
		}

	case ClassWindow:
		if h := l.win.FindWindow(l.cfg.WindowClass); h != 0 {
			return Target{PID: l.win.WindowProcessID(h), Window: h}
		}
	}

	return Target{}
}

func (l *Locator) processes() []win32.Process {
	procs, err := l.win.Processes(l.cfg.ProcessName)
	if err != nil {
		l.logger.Debug().Err(err).Str("process", l.cfg.ProcessName).Msg("Failed to list processes")
		return nil
	}
	return procs
}
