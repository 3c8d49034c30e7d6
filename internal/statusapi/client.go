// Package statusapi talks to the player's local status API: a CSRF-token
// handshake and status/volume calls over HTTP, plus a websocket push
// stream that is translated into player events.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/jfmyers9/spotctl/internal/player"
)

const (
	// DefaultURL is the address of the local status API
	DefaultURL = "http://127.0.0.1:4381"

	// DefaultOrigin is sent on every request; the API rejects requests
	// without a recognised origin.
	DefaultOrigin = "https://open.spotify.com"

	// DefaultPreDelay gives a freshly started player time to bring the
	// API up before the first handshake.
	DefaultPreDelay = 500 * time.Millisecond

	defaultTimeout   = 5 * time.Second
	subscribeTimeout = 5 * time.Second
	maxResponseSize  = 1 << 20
)

// ErrClosed is returned by calls made after Close
var ErrClosed = errors.New("status client closed")

// Config holds status client settings
type Config struct {
	URL        string
	Origin     string
	PreDelay   time.Duration
	HTTPClient *http.Client
}

// Client is a status API session.
//
// The cached status is written only by the listener goroutine (and by the
// initial fetch before the listener starts). Readers get copies.
type Client struct {
	base     *url.URL
	origin   string
	preDelay time.Duration
	http     *http.Client
	dialer   *websocket.Dialer
	logger   zerolog.Logger

	// sleep waits for d or until ctx is done; replaced in tests
	sleep func(ctx context.Context, d time.Duration) error

	mu      sync.RWMutex
	token   string
	status  *player.Status
	conn    *websocket.Conn
	done    chan struct{}
	handler player.Handler
	closing bool
}

// New creates a new status client. It does not connect.
func New(cfg Config, logger zerolog.Logger) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.Origin == "" {
		cfg.Origin = DefaultOrigin
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: defaultTimeout}
	}

	base, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid status API URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid status API URL %q: scheme must be http or https", cfg.URL)
	}

	return &Client{
		base:     base,
		origin:   cfg.Origin,
		preDelay: cfg.PreDelay,
		http:     cfg.HTTPClient,
		dialer:   &websocket.Dialer{HandshakeTimeout: defaultTimeout},
		logger:   logger.With().Str("component", "statusapi").Logger(),
		sleep:    sleepContext,
	}, nil
}

// OnEvent sets the function receiving translated push notifications.
// Events are delivered one at a time in receipt order.
func (c *Client) OnEvent(h player.Handler) {
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

// Connect performs the startup handshake: an initial delay, up to
// maxAttempts token requests spaced by retryDelay, a first status fetch and
// finally the push subscription. On success the handler receives
// player.Connected before any pushed event. Failures are
// *player.StartupError values.
func (c *Client) Connect(ctx context.Context, maxAttempts int, retryDelay time.Duration) (*player.Status, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	// Tear down any previous session
	_ = c.Close()

	if err := c.sleep(ctx, c.preDelay); err != nil {
		return nil, &player.StartupError{Kind: player.ConnectFailed, Err: err}
	}

	var (
		token   string
		lastErr error
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		token, lastErr = c.handshake(ctx)
		if lastErr == nil {
			c.logger.Debug().Int("attempt", attempt).Msg("Status API handshake succeeded")
			break
		}

		c.logger.Warn().
			Err(lastErr).
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Msg("Status API handshake failed")

		if attempt < maxAttempts {
			if err := c.sleep(ctx, retryDelay); err != nil {
				lastErr = err
				break
			}
		}
	}
	if lastErr != nil {
		return nil, &player.StartupError{
			Kind: player.ConnectFailed,
			Err:  fmt.Errorf("gave up after %d attempts: %w", maxAttempts, lastErr),
		}
	}

	status, err := c.fetchStatus(ctx, token)
	if err != nil {
		return nil, &player.StartupError{Kind: player.NullStatus, Err: err}
	}
	if status == nil {
		return nil, &player.StartupError{Kind: player.NullStatus}
	}

	conn, err := c.subscribe(ctx, token)
	if err != nil {
		return nil, &player.StartupError{Kind: player.ConnectFailed, Err: err}
	}

	done := make(chan struct{})

	c.mu.Lock()
	c.token = token
	c.status = status
	c.conn = conn
	c.done = done
	c.closing = false
	snapshot := *status
	h := c.handler
	c.mu.Unlock()

	// Connected goes out before the listener can deliver any push
	if h != nil {
		h(player.Connected{Status: snapshot})
	}
	go c.listen(conn, done)

	c.logger.Info().
		Str("track", snapshot.Track.Title).
		Str("artist", snapshot.Track.Artist).
		Bool("playing", snapshot.Playing).
		Msg("Connected to status API")

	return &snapshot, nil
}

// Status returns the cached status. When nothing is cached it fetches once
// from the API and caches the result. A closed client returns ErrClosed
// until the next Connect.
func (c *Client) Status(ctx context.Context) (*player.Status, error) {
	c.mu.RLock()
	if c.status != nil {
		snapshot := *c.status
		c.mu.RUnlock()
		return &snapshot, nil
	}
	token, closing := c.token, c.closing
	c.mu.RUnlock()

	if closing {
		return nil, ErrClosed
	}

	if token == "" {
		var err error
		if token, err = c.handshake(ctx); err != nil {
			return nil, err
		}
	}

	status, err := c.fetchStatus(ctx, token)
	if err != nil {
		return nil, err
	}
	if status == nil {
		return nil, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closing {
		return nil, ErrClosed
	}
	if c.status == nil {
		c.token = token
		c.status = status
	}
	snapshot := *c.status
	return &snapshot, nil
}

// IncrementVolume raises the player volume by one step
func (c *Client) IncrementVolume(ctx context.Context) error {
	return c.volume(ctx, actionIncrement)
}

// DecrementVolume lowers the player volume by one step
func (c *Client) DecrementVolume(ctx context.Context) error {
	return c.volume(ctx, actionDecrement)
}

// ToggleMute mutes or unmutes the player
func (c *Client) ToggleMute(ctx context.Context) error {
	return c.volume(ctx, actionMute)
}

// Close closes the push stream, waits for the listener to exit and drops
// the session token. Safe to call more than once.
func (c *Client) Close() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn, c.done = nil, nil
	c.token = ""
	c.closing = true
	if conn == nil {
		c.status = nil
	}
	c.mu.Unlock()

	if conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := conn.Close()
	<-done

	c.mu.Lock()
	c.status = nil
	c.mu.Unlock()

	c.logger.Debug().Msg("Status API session closed")
	return err
}

func (c *Client) volume(ctx context.Context, action string) error {
	c.mu.RLock()
	token, closing := c.token, c.closing
	c.mu.RUnlock()
	if token == "" {
		if closing {
			return ErrClosed
		}
		return errors.New("status API not connected")
	}

	var resp volumeResponse
	if err := c.do(ctx, http.MethodPost, "/remote/volume.json", url.Values{
		"csrf":   {token},
		"action": {action},
	}, &resp); err != nil {
		return err
	}
	if resp.Error != nil {
		return resp.Error
	}

	c.logger.Debug().Str("action", action).Float64("volume", resp.Volume).Msg("Volume changed")
	return nil
}

func (c *Client) handshake(ctx context.Context) (string, error) {
	var resp tokenResponse
	if err := c.do(ctx, http.MethodGet, "/simplecsrf/token.json", nil, &resp); err != nil {
		return "", err
	}
	if resp.Error != nil {
		return "", resp.Error
	}
	if resp.Token == "" {
		return "", errors.New("empty CSRF token")
	}
	return resp.Token, nil
}

// fetchStatus returns nil, nil when the API answers with a null status
func (c *Client) fetchStatus(ctx context.Context, token string) (*player.Status, error) {
	var payload *statusPayload
	if err := c.do(ctx, http.MethodGet, "/remote/status.json", url.Values{"csrf": {token}}, &payload); err != nil {
		return nil, err
	}
	if payload == nil {
		return nil, nil
	}
	if payload.Error != nil {
		return nil, payload.Error
	}
	status := payload.toStatus()
	return &status, nil
}

func (c *Client) subscribe(ctx context.Context, token string) (*websocket.Conn, error) {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = "/remote/events"
	u.RawQuery = url.Values{"csrf": {token}}.Encode()

	header := http.Header{}
	header.Set("Origin", c.origin)

	conn, _, err := c.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}

	fail := func(err error) (*websocket.Conn, error) {
		conn.Close()
		return nil, err
	}

	if err := conn.WriteJSON(subscribeRequest{Subscribe: Notifications}); err != nil {
		return fail(fmt.Errorf("failed to send subscription: %w", err))
	}

	_ = conn.SetReadDeadline(time.Now().Add(subscribeTimeout))
	var ack frame
	if err := conn.ReadJSON(&ack); err != nil {
		return fail(fmt.Errorf("failed to read subscription ack: %w", err))
	}
	if ack.Error != nil {
		return fail(fmt.Errorf("subscription rejected: %w", ack.Error))
	}
	if ack.Type != frameSubscribed {
		return fail(fmt.Errorf("unexpected subscription reply %q", ack.Type))
	}
	_ = conn.SetReadDeadline(time.Time{})

	return conn, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, out any) error {
	u := *c.base
	u.Path = path
	u.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Origin", c.origin)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", path, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error *APIError `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != nil {
			return apiErr.Error
		}
		return fmt.Errorf("%s returned HTTP %d", path, resp.StatusCode)
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to decode response from %s: %w", path, err)
	}
	return nil
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
