// Package autostart registers the daemon to run at user logon.
package autostart

import (
	"errors"
	"strings"
)

// ValueName is the name of the logon entry
const ValueName = "spotctl"

// RunKey is the per-user registry key read at logon
const RunKey = `Software\Microsoft\Windows\CurrentVersion\Run`

// ErrUnsupported is returned on platforms without a logon registry
var ErrUnsupported = errors.New("autostart is only supported on Windows")

// Entry describes the command to run at logon
type Entry struct {
	BinaryPath string
	Args       []string
}

// CommandLine renders the entry as a single command line, quoting
// arguments that contain spaces or quotes
func (e Entry) CommandLine() string {
	parts := make([]string, 0, len(e.Args)+1)
	parts = append(parts, quote(e.BinaryPath))
	for _, a := range e.Args {
		parts = append(parts, quote(a))
	}
	return strings.Join(parts, " ")
}

func quote(s string) string {
	if s != "" && !strings.ContainsAny(s, " \t\"") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
}
