// Package ipc is the daemon's control socket: newline-delimited JSON
// requests and responses over a named pipe (Windows) or unix socket.
package ipc

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/player"
)

// Operations understood by the daemon
const (
	OpPing     = "ping"
	OpDispatch = "dispatch"
	OpStatus   = "status"
	OpStart    = "start"
	OpStop     = "stop"
)

const (
	callTimeout    = 30 * time.Second
	maxRequestSize = 64 * 1024
)

// Request is one control message
type Request struct {
	Op      string `json:"op"`
	Command string `json:"command,omitempty"` // For OpDispatch: name or numeric code
}

// Response answers a Request
type Response struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error,omitempty"`
	Status *Status `json:"status,omitempty"`
}

// Status is the wire form of the daemon's view of the player
type Status struct {
	State         string  `json:"state"`
	Running       bool    `json:"running"`
	VolumeControl string  `json:"volume_control,omitempty"`
	TrackID       string  `json:"track_id,omitempty"`
	Track         string  `json:"track,omitempty"`
	Artist        string  `json:"artist,omitempty"`
	Album         string  `json:"album,omitempty"`
	LengthMs      int64   `json:"length_ms,omitempty"`
	PositionMs    int64   `json:"position_ms,omitempty"`
	Playing       bool    `json:"playing"`
	Volume        float64 `json:"volume"`
}

// StatusFrom fills the playback fields of a wire status from s
func StatusFrom(state string, running bool, s *player.Status) *Status {
	out := &Status{State: state, Running: running}
	if s == nil {
		return out
	}
	out.TrackID = s.Track.ID
	out.Track = s.Track.Title
	out.Artist = s.Track.Artist
	out.Album = s.Track.Album
	out.LengthMs = s.Track.Length.Milliseconds()
	out.PositionMs = s.Position.Milliseconds()
	out.Playing = s.Playing
	out.Volume = s.Volume
	return out
}

// Player converts the wire status back into a player.Status
func (s *Status) Player() player.Status {
	return player.Status{
		Track: player.Track{
			ID:     s.TrackID,
			Title:  s.Track,
			Artist: s.Artist,
			Album:  s.Album,
			Length: time.Duration(s.LengthMs) * time.Millisecond,
		},
		Playing:  s.Playing,
		Position: time.Duration(s.PositionMs) * time.Millisecond,
		Volume:   s.Volume,
		Running:  s.Running,
	}
}

// Handler serves control requests
type Handler interface {
	Handle(ctx context.Context, req Request) Response
}

// HandlerFunc adapts a function to Handler
type HandlerFunc func(ctx context.Context, req Request) Response

// Handle calls f(ctx, req)
func (f HandlerFunc) Handle(ctx context.Context, req Request) Response {
	return f(ctx, req)
}

// ErrorResponse builds a failed response from err
func ErrorResponse(err error) Response {
	return Response{OK: false, Error: err.Error()}
}

// Server accepts control connections and answers each request line
type Server struct {
	handler Handler
	logger  zerolog.Logger

	wg sync.WaitGroup
}

// NewServer creates a new control server
func NewServer(h Handler, logger zerolog.Logger) *Server {
	return &Server{
		handler: h,
		logger:  logger.With().Str("component", "ipc").Logger(),
	}
}

// Serve accepts connections on ln until ctx is cancelled. It closes ln and
// waits for open connections to finish before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("address", ln.Addr().String()).Msg("Control socket listening")

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	defer s.wg.Wait()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("failed to accept control connection: %w", err)
		}

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.serveConn(ctx, conn)
		}()
	}
}

func (s *Server) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	// Unblock the reader on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxRequestSize)
	enc := json.NewEncoder(conn)

	for scanner.Scan() {
		var (
			req  Request
			resp Response
		)
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			resp = ErrorResponse(fmt.Errorf("invalid request: %w", err))
		} else {
			s.logger.Debug().Str("op", req.Op).Str("command", req.Command).Msg("Control request")
			resp = s.handler.Handle(ctx, req)
		}

		if err := enc.Encode(resp); err != nil {
			s.logger.Debug().Err(err).Msg("Failed to write control response")
			return
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		s.logger.Debug().Err(err).Msg("Control connection closed")
	}
}

// Call sends one request to the daemon at address and returns its response.
// A failed response is returned as an error.
func Call(ctx context.Context, address string, req Request) (*Response, error) {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, callTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon at %s: %w", address, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if !resp.OK {
		if resp.Error == "" {
			return &resp, errors.New("daemon rejected request")
		}
		return &resp, errors.New(resp.Error)
	}
	return &resp, nil
}
