package player

import (
	"errors"
	"fmt"
)

// StartupErrorKind classifies why the startup sequence failed
type StartupErrorKind int

const (
	ProcessNotFound StartupErrorKind = iota + 1 // No player process after the launch budget
	IdleTimeout                                 // Process never reported an idle input state
	ConnectFailed                               // Status API handshake exhausted its attempts
	NullStatus                                  // Handshake succeeded but the first status was empty
)

// String returns a human-readable representation of the kind
func (k StartupErrorKind) String() string {
	switch k {
	case ProcessNotFound:
		return "process not found"
	case IdleTimeout:
		return "process did not become idle"
	case ConnectFailed:
		return "could not connect to the status API"
	case NullStatus:
		return "status API returned no status"
	default:
		return "unknown startup failure"
	}
}

// Sentinels for errors.Is matching against a StartupError's kind.
var (
	ErrProcessNotFound = &StartupError{Kind: ProcessNotFound}
	ErrIdleTimeout     = &StartupError{Kind: IdleTimeout}
	ErrConnectFailed   = &StartupError{Kind: ConnectFailed}
	ErrNullStatus      = &StartupError{Kind: NullStatus}
)

// StartupError is fatal to the startup sequence and is never retried
// beyond the bounded loops that produced it.
type StartupError struct {
	Kind StartupErrorKind
	Err  error // Underlying cause, may be nil
}

// Error returns the error message.
func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("startup: %s: %v", e.Kind, e.Err)
	}
	return "startup: " + e.Kind.String()
}

// Unwrap returns the underlying cause.
func (e *StartupError) Unwrap() error {
	return e.Err
}

// Is matches any *StartupError of the same kind.
func (e *StartupError) Is(target error) bool {
	t, ok := target.(*StartupError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// IsStartupKind reports whether err is a StartupError of kind k
func IsStartupKind(err error, k StartupErrorKind) bool {
	var se *StartupError
	if !errors.As(err, &se) {
		return false
	}
	return se.Kind == k
}

// CommandError reports a command the status API failed to carry out.
// These are user visible and always returned to the caller.
type CommandError struct {
	Command Command
	Err     error
}

// Error returns the error message.
func (e *CommandError) Error() string {
	return fmt.Sprintf("command %s failed: %v", e.Command, e.Err)
}

// Unwrap returns the underlying cause.
func (e *CommandError) Unwrap() error {
	return e.Err
}
