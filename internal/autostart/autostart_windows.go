//go:build windows

package autostart

import (
	"errors"
	"fmt"

	"golang.org/x/sys/windows/registry"
)

// Install writes the logon entry, replacing any previous one
func Install(e Entry) error {
	k, _, err := registry.CreateKey(registry.CURRENT_USER, RunKey, registry.SET_VALUE)
	if err != nil {
		return fmt.Errorf("failed to open run key: %w", err)
	}
	defer k.Close()

	if err := k.SetStringValue(ValueName, e.CommandLine()); err != nil {
		return fmt.Errorf("failed to write run entry: %w", err)
	}
	return nil
}

// Uninstall removes the logon entry. A missing entry is not an error.
func Uninstall() error {
	k, err := registry.OpenKey(registry.CURRENT_USER, RunKey, registry.SET_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to open run key: %w", err)
	}
	defer k.Close()

	if err := k.DeleteValue(ValueName); err != nil && !errors.Is(err, registry.ErrNotExist) {
		return fmt.Errorf("failed to remove run entry: %w", err)
	}
	return nil
}

// Installed returns the registered command line, if any
func Installed() (string, bool, error) {
	k, err := registry.OpenKey(registry.CURRENT_USER, RunKey, registry.QUERY_VALUE)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to open run key: %w", err)
	}
	defer k.Close()

	v, _, err := k.GetStringValue(ValueName)
	if err != nil {
		if errors.Is(err, registry.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read run entry: %w", err)
	}
	return v, true, nil
}
