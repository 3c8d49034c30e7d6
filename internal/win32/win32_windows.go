//go:build windows

package win32

import (
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unsafe"

	"github.com/rs/zerolog"
	"golang.org/x/sys/windows"
)

var (
	user32 = windows.NewLazySystemDLL("user32.dll")

	procEnumThreadWindows        = user32.NewProc("EnumThreadWindows")
	procEnumWindows              = user32.NewProc("EnumWindows")
	procFindWindowExW            = user32.NewProc("FindWindowExW")
	procFindWindowW              = user32.NewProc("FindWindowW")
	procGetClassNameW            = user32.NewProc("GetClassNameW")
	procGetMenu                  = user32.NewProc("GetMenu")
	procGetSubMenu               = user32.NewProc("GetSubMenu")
	procGetWindow                = user32.NewProc("GetWindow")
	procGetWindowPlacement       = user32.NewProc("GetWindowPlacement")
	procGetWindowThreadProcessId = user32.NewProc("GetWindowThreadProcessId")
	procIsIconic                 = user32.NewProc("IsIconic")
	procIsWindow                 = user32.NewProc("IsWindow")
	procIsWindowVisible          = user32.NewProc("IsWindowVisible")
	procMapVirtualKeyW           = user32.NewProc("MapVirtualKeyW")
	procPostMessageW             = user32.NewProc("PostMessageW")
	procSendMessageW             = user32.NewProc("SendMessageW")
	procSetFocus                 = user32.NewProc("SetFocus")
	procSetForegroundWindow      = user32.NewProc("SetForegroundWindow")
	procShowWindow               = user32.NewProc("ShowWindow")
	procWaitForInputIdle         = user32.NewProc("WaitForInputIdle")
)

const (
	gwOwner         = 4
	mapvkVKToVSC    = 0
	waitTimeout     = 0x00000102
	waitFailed      = 0xFFFFFFFF
	classNameBuffer = 256
)

type point struct{ X, Y int32 }

type rect struct{ Left, Top, Right, Bottom int32 }

type windowPlacement struct {
	Length         uint32
	Flags          uint32
	ShowCmd        uint32
	MinPosition    point
	MaxPosition    point
	NormalPosition rect
}

// Enumeration callbacks are created once; syscall callbacks are a finite
// resource. The shared state they write to is guarded by enumMu.
var (
	enumMu sync.Mutex

	enumMainWindows map[uint32]HWND
	enumClass       string
	enumMatch       HWND

	topLevelCallback = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		h := HWND(hwnd)
		if !isVisible(h) || owner(h) != 0 {
			return 1
		}
		pid := windowPID(h)
		if _, seen := enumMainWindows[pid]; !seen {
			enumMainWindows[pid] = h
		}
		return 1
	})

	threadWindowCallback = windows.NewCallback(func(hwnd, _ uintptr) uintptr {
		if className(HWND(hwnd)) == enumClass {
			enumMatch = HWND(hwnd)
			return 0
		}
		return 1
	})
)

// Client issues Win32 calls against the local desktop session
type Client struct {
	logger zerolog.Logger
}

// New creates a new Win32 client
func New(logger zerolog.Logger) *Client {
	return &Client{
		logger: logger.With().Str("component", "win32").Logger(),
	}
}

// Processes returns running processes whose executable matches name
// (case-insensitive, ".exe" optional), with their main windows resolved.
func (c *Client) Processes(name string) ([]Process, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPPROCESS, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot processes: %w", err)
	}
	defer windows.CloseHandle(snap)

	want := strings.TrimSuffix(strings.ToLower(name), ".exe")

	var entry windows.ProcessEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var procs []Process
	for err = windows.Process32First(snap, &entry); err == nil; err = windows.Process32Next(snap, &entry) {
		exe := windows.UTF16ToString(entry.ExeFile[:])
		if strings.TrimSuffix(strings.ToLower(exe), ".exe") != want {
			continue
		}
		procs = append(procs, Process{PID: entry.ProcessID, Name: exe})
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("failed to walk processes: %w", err)
	}

	if len(procs) > 0 {
		mains := topLevelWindows()
		for i := range procs {
			procs[i].MainWindow = mains[procs[i].PID]
		}
	}

	return procs, nil
}

// Threads returns the thread ids owned by pid
func (c *Client) Threads(pid uint32) ([]uint32, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot threads: %w", err)
	}
	defer windows.CloseHandle(snap)

	var entry windows.ThreadEntry32
	entry.Size = uint32(unsafe.Sizeof(entry))

	var tids []uint32
	for err = windows.Thread32First(snap, &entry); err == nil; err = windows.Thread32Next(snap, &entry) {
		if entry.OwnerProcessID == pid {
			tids = append(tids, entry.ThreadID)
		}
	}
	if !errors.Is(err, windows.ERROR_NO_MORE_FILES) {
		return nil, fmt.Errorf("failed to walk threads: %w", err)
	}
	return tids, nil
}

// FindWindow returns the first top-level window of the given class
func (c *Client) FindWindow(class string) HWND {
	cls, err := windows.UTF16PtrFromString(class)
	if err != nil {
		return 0
	}
	r, _, _ := procFindWindowW.Call(uintptr(unsafe.Pointer(cls)), 0)
	return HWND(r)
}

// FindWindowEx returns the first child of parent with the given class
func (c *Client) FindWindowEx(parent HWND, class string) HWND {
	if parent == 0 {
		return 0
	}
	cls, err := windows.UTF16PtrFromString(class)
	if err != nil {
		return 0
	}
	r, _, _ := procFindWindowExW.Call(uintptr(parent), 0, uintptr(unsafe.Pointer(cls)), 0)
	return HWND(r)
}

// FindThreadWindow returns the first window of thread tid with the given class
func (c *Client) FindThreadWindow(tid uint32, class string) HWND {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumClass = class
	enumMatch = 0
	_, _, _ = procEnumThreadWindows.Call(uintptr(tid), threadWindowCallback, 0)
	return enumMatch
}

// IsWindow reports whether h still identifies an existing window
func (c *Client) IsWindow(h HWND) bool {
	if h == 0 {
		return false
	}
	r, _, _ := procIsWindow.Call(uintptr(h))
	return r != 0
}

// WindowProcessID returns the pid owning window h
func (c *Client) WindowProcessID(h HWND) uint32 {
	return windowPID(h)
}

// IsMinimized reports whether h is iconic
func (c *Client) IsMinimized(h HWND) bool {
	r, _, _ := procIsIconic.Call(uintptr(h))
	return r != 0
}

// ShowCmd returns the show state stored in the window placement of h
func (c *Client) ShowCmd(h HWND) (int, error) {
	var wp windowPlacement
	wp.Length = uint32(unsafe.Sizeof(wp))
	r, _, err := procGetWindowPlacement.Call(uintptr(h), uintptr(unsafe.Pointer(&wp)))
	if r == 0 {
		return 0, fmt.Errorf("failed to get window placement: %w", err)
	}
	return int(wp.ShowCmd), nil
}

// ShowWindow sets the show state of h
func (c *Client) ShowWindow(h HWND, cmd int) bool {
	r, _, _ := procShowWindow.Call(uintptr(h), uintptr(cmd))
	return r != 0
}

// SetForegroundWindow brings h to the foreground
func (c *Client) SetForegroundWindow(h HWND) bool {
	r, _, _ := procSetForegroundWindow.Call(uintptr(h))
	return r != 0
}

// SetFocus gives h keyboard focus
func (c *Client) SetFocus(h HWND) {
	_, _, _ = procSetFocus.Call(uintptr(h))
}

// GetMenu returns the menu bar of h
func (c *Client) GetMenu(h HWND) HMENU {
	r, _, _ := procGetMenu.Call(uintptr(h))
	return HMENU(r)
}

// GetSubMenu returns the drop-down menu at zero-based position pos
func (c *Client) GetSubMenu(m HMENU, pos int) HMENU {
	r, _, _ := procGetSubMenu.Call(uintptr(m), uintptr(pos))
	return HMENU(r)
}

// SendMessage sends msg to h and waits for it to be processed
func (c *Client) SendMessage(h HWND, msg uint32, wParam, lParam uintptr) uintptr {
	r, _, _ := procSendMessageW.Call(uintptr(h), uintptr(msg), wParam, lParam)
	return r
}

// PostMessage queues msg on the thread owning h
func (c *Client) PostMessage(h HWND, msg uint32, wParam, lParam uintptr) error {
	r, _, err := procPostMessageW.Call(uintptr(h), uintptr(msg), wParam, lParam)
	if r == 0 {
		return fmt.Errorf("failed to post message 0x%04x: %w", msg, err)
	}
	return nil
}

// ScanCode maps a virtual-key code to its hardware scan code
func (c *Client) ScanCode(vk uint16) uint32 {
	r, _, _ := procMapVirtualKeyW.Call(uintptr(vk), mapvkVKToVSC)
	return uint32(r)
}

// StartProcess launches path and returns its pid. Store-app targets
// ("shell:AppsFolder\...") are launched through explorer and return pid 0;
// callers must look the process up by name.
func (c *Client) StartProcess(path string) (uint32, error) {
	if strings.HasPrefix(strings.ToLower(path), "shell:") {
		if err := exec.Command("explorer.exe", path).Start(); err != nil {
			return 0, fmt.Errorf("failed to launch %s: %w", path, err)
		}
		return 0, nil
	}

	cmd := exec.Command(path)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to launch %s: %w", path, err)
	}
	pid := uint32(cmd.Process.Pid)
	_ = cmd.Process.Release()
	return pid, nil
}

// WaitForInputIdle blocks until pid is waiting for user input or timeout
// elapses, in which case ErrWaitTimeout is returned.
func (c *Client) WaitForInputIdle(pid uint32, timeout time.Duration) error {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_INFORMATION|windows.SYNCHRONIZE, false, pid)
	if err != nil {
		return fmt.Errorf("failed to open process %d: %w", pid, err)
	}
	defer windows.CloseHandle(h)

	r, _, callErr := procWaitForInputIdle.Call(uintptr(h), uintptr(timeout.Milliseconds()))
	switch r {
	case 0:
		return nil
	case waitTimeout:
		return ErrWaitTimeout
	case waitFailed:
		return fmt.Errorf("failed to wait for input idle: %w", callErr)
	default:
		return fmt.Errorf("unexpected wait result 0x%x", r)
	}
}

// WatchExit returns a channel that is closed when pid exits
func (c *Client) WatchExit(pid uint32) (<-chan struct{}, error) {
	h, err := windows.OpenProcess(windows.SYNCHRONIZE, false, pid)
	if err != nil {
		return nil, fmt.Errorf("failed to open process %d: %w", pid, err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer windows.CloseHandle(h)
		if _, err := windows.WaitForSingleObject(h, windows.INFINITE); err != nil {
			c.logger.Debug().Err(err).Uint32("pid", pid).Msg("Wait on process failed")
		}
	}()
	return done, nil
}

// KillByName terminates every process matching name and returns how many
// were terminated
func (c *Client) KillByName(name string) (int, error) {
	procs, err := c.Processes(name)
	if err != nil {
		return 0, err
	}

	var (
		killed int
		errs   []error
	)
	for _, p := range procs {
		h, err := windows.OpenProcess(windows.PROCESS_TERMINATE, false, p.PID)
		if err != nil {
			errs = append(errs, fmt.Errorf("open %d: %w", p.PID, err))
			continue
		}
		if err := windows.TerminateProcess(h, 1); err != nil {
			errs = append(errs, fmt.Errorf("terminate %d: %w", p.PID, err))
		} else {
			killed++
		}
		windows.CloseHandle(h)
	}
	return killed, errors.Join(errs...)
}

// topLevelWindows maps each pid to its first visible unowned top-level window
func topLevelWindows() map[uint32]HWND {
	enumMu.Lock()
	defer enumMu.Unlock()

	enumMainWindows = make(map[uint32]HWND)
	_, _, _ = procEnumWindows.Call(topLevelCallback, 0)
	result := enumMainWindows
	enumMainWindows = nil
	return result
}

func isVisible(h HWND) bool {
	r, _, _ := procIsWindowVisible.Call(uintptr(h))
	return r != 0
}

func owner(h HWND) HWND {
	r, _, _ := procGetWindow.Call(uintptr(h), gwOwner)
	return HWND(r)
}

func windowPID(h HWND) uint32 {
	var pid uint32
	_, _, _ = procGetWindowThreadProcessId.Call(uintptr(h), uintptr(unsafe.Pointer(&pid)))
	return pid
}

func className(h HWND) string {
	var buf [classNameBuffer]uint16
	n, _, _ := procGetClassNameW.Call(uintptr(h), uintptr(unsafe.Pointer(&buf[0])), classNameBuffer)
	if n == 0 {
		return ""
	}
	return windows.UTF16ToString(buf[:n])
}
