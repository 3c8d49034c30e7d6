//go:build !windows

package autostart

// Install is unsupported on this platform
func Install(Entry) error { return ErrUnsupported }

// Uninstall is unsupported on this platform
func Uninstall() error { return ErrUnsupported }

// Installed is unsupported on this platform
func Installed() (string, bool, error) { return "", false, ErrUnsupported }
