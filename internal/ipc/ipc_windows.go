//go:build windows

package ipc

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// DefaultAddress is the control pipe name
func DefaultAddress() string {
	return `\\.\pipe\spotctl`
}

// Listen opens the control pipe. The default security descriptor limits it
// to the current user.
func Listen(address string) (net.Listener, error) {
	return winio.ListenPipe(address, &winio.PipeConfig{
		MessageMode:      false,
		InputBufferSize:  4096,
		OutputBufferSize: 4096,
	})
}

func dial(ctx context.Context, address string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, address)
}
