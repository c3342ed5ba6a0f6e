package realtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/oriys/pulsar/internal/logging"
	"github.com/oriys/pulsar/internal/metrics"
)

// DefaultMaxReconnectAttempts bounds automatic reconnection after
// transient failures.
const DefaultMaxReconnectAttempts = 5

// TokenSource supplies the freshest stored session credential. It is
// consulted on every (re)connect so a token refreshed externally between
// attempts is picked up; an empty result falls back to the token the
// caller passed to Connect.
type TokenSource interface {
	Token() string
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func() string

func (f TokenSourceFunc) Token() string { return f() }

// Config holds the settings and dependencies for a Client.
type Config struct {
	Endpoint             string // ws(s):// URL of the notification backend
	Origin               string // HTTP origin for the handshake
	TokenSource          TokenSource
	MaxReconnectAttempts int           // default DefaultMaxReconnectAttempts
	BackoffBase          time.Duration // reconnect delay unit, default 1s
	Dialer               Dialer        // default WebsocketDialer
	Logger               *slog.Logger
	Metrics              *metrics.Metrics
}

// Client owns a single live connection to the notification backend. It
// is intended as a process-wide singleton, constructed explicitly and
// passed around; the caller owns its lifecycle.
type Client struct {
	id          string
	endpoint    string
	tokenSource TokenSource
	maxAttempts int
	backoffBase time.Duration
	dialer      Dialer
	log         *slog.Logger
	metrics     *metrics.Metrics

	listeners *emitter

	mu        sync.Mutex
	state     State
	transport Transport
	lastToken string
	attempts  int
	timer     *time.Timer
	// gen counts teardowns; readers and pending reconnect timers carry
	// the generation they were created under and become no-ops once it
	// moves on.
	gen int
}

// NewClient creates a delivery client. It does not connect.
func NewClient(cfg Config) *Client {
	maxAttempts := cfg.MaxReconnectAttempts
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxReconnectAttempts
	}
	backoff := cfg.BackoffBase
	if backoff <= 0 {
		backoff = time.Second
	}
	dialer := cfg.Dialer
	if dialer == nil {
		dialer = &WebsocketDialer{Origin: cfg.Origin}
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Op()
	}

	return &Client{
		id:          uuid.NewString(),
		endpoint:    cfg.Endpoint,
		tokenSource: cfg.TokenSource,
		maxAttempts: maxAttempts,
		backoffBase: backoff,
		dialer:      dialer,
		log:         log,
		metrics:     cfg.Metrics,
		listeners:   newEmitter(log, cfg.Metrics),
		state:       StateDisconnected,
	}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// On registers a callback for a channel. Registering the identical
// callback twice is deduplicated.
func (c *Client) On(ch Channel, fn Handler) {
	c.listeners.on(ch, fn)
}

// Off removes a callback from a channel. Removing an unregistered
// callback is a no-op.
func (c *Client) Off(ch Channel, fn Handler) {
	c.listeners.off(ch, fn)
}

// Connect establishes the connection using the freshest available
// token, tearing down any existing transport first. An explicit Connect
// resets the reconnection budget.
func (c *Client) Connect(ctx context.Context, token string) error {
	c.mu.Lock()
	prev := c.transport
	c.transport = nil
	c.stopTimerLocked()
	c.gen++
	gen := c.gen
	c.lastToken = token
	c.attempts = 0
	c.state = StateConnecting
	tok := c.freshestTokenLocked()
	c.mu.Unlock()

	if prev != nil {
		_ = prev.WriteFrame(Frame{Type: frameLeave})
		_ = prev.Close()
	}

	return c.dial(ctx, gen, tok)
}

// Disconnect leaves the feed stream, closes the transport, and cancels
// any pending reconnection. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	t := c.transport
	c.transport = nil
	c.stopTimerLocked()
	c.gen++
	c.state = StateDisconnected
	c.mu.Unlock()

	if t == nil {
		return
	}
	_ = t.WriteFrame(Frame{Type: frameLeave})
	_ = t.Close()
	c.metrics.SetConnected(false)
	c.listeners.emit(ChannelDisconnect, nil)
}

func (c *Client) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

// freshestTokenLocked prefers the stored credential over the one the
// caller passed in, guarding against callers holding a stale token.
func (c *Client) freshestTokenLocked() string {
	if c.tokenSource != nil {
		if tok := c.tokenSource.Token(); tok != "" {
			return tok
		}
	}
	return c.lastToken
}

func (c *Client) dial(ctx context.Context, gen int, token string) error {
	if tokenExpired(token) {
		err := &Error{Code: CodeAuthFailure, Err: errors.New("session token expired")}
		c.failAuth(gen, err)
		return err
	}

	t, err := c.dialer.Dial(ctx, c.endpoint, token)
	if err != nil {
		if Classify(err) == CodeAuthFailure {
			c.failAuth(gen, err)
			return err
		}
		c.mu.Lock()
		if gen == c.gen {
			c.state = StateDisconnected
		}
		c.mu.Unlock()
		c.scheduleReconnect(gen)
		return err
	}

	c.mu.Lock()
	if gen != c.gen {
		// Superseded by a newer Connect or Disconnect while dialing.
		c.mu.Unlock()
		_ = t.Close()
		return nil
	}
	c.transport = t
	c.state = StateConnected
	c.attempts = 0
	c.mu.Unlock()

	if err := t.WriteFrame(Frame{Type: frameJoin}); err != nil {
		c.onClosed(gen, err)
		return err
	}

	c.metrics.SetConnected(true)
	c.log.Info("realtime connected", "client", c.id)
	c.listeners.emit(ChannelConnect, nil)

	go c.readLoop(gen, t)
	return nil
}

// readLoop translates inbound frames into channel events until the
// transport closes.
func (c *Client) readLoop(gen int, t Transport) {
	for {
		f, err := t.ReadFrame()
		if err != nil {
			c.onClosed(gen, err)
			return
		}
		ch, payload, err := decodeFrame(f)
		if err != nil {
			c.log.Debug("dropping frame", "error", err)
			continue
		}
		c.listeners.emit(ch, payload)
	}
}

// onClosed handles a transport teardown observed by the reader or a
// failed join. A clean server-side close is treated as a likely session
// expiry: the application gets an authError and no automatic
// reconnection happens. Every other close reason is transient and
// schedules a reconnect.
func (c *Client) onClosed(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.transport = nil
	c.state = StateDisconnected
	c.gen++
	next := c.gen
	c.mu.Unlock()

	c.metrics.SetConnected(false)
	c.listeners.emit(ChannelDisconnect, nil)

	if errors.Is(err, io.EOF) || Classify(err) == CodeAuthFailure {
		c.log.Info("realtime connection closed by server, treating as session expiry")
		c.metrics.AuthError()
		c.listeners.emit(ChannelAuthError, err)
		return
	}

	c.log.Warn("realtime connection lost", "error", err)
	c.scheduleReconnect(next)
}

// failAuth stops the client on a credential failure: no retry until the
// application reconnects explicitly with a fresh token.
func (c *Client) failAuth(gen int, err error) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateDisconnected
	c.stopTimerLocked()
	c.mu.Unlock()

	c.log.Warn("realtime authentication failed", "error", err)
	c.metrics.AuthError()
	c.listeners.emit(ChannelAuthError, err)
}

// scheduleReconnect arms the backoff timer for the next attempt, waiting
// 2^attempt units. Once the attempt cap is reached the client stays
// disconnected until an explicit Connect.
func (c *Client) scheduleReconnect(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.maxAttempts {
		c.mu.Unlock()
		c.log.Warn("reconnect attempts exhausted", "attempts", c.maxAttempts)
		return
	}
	c.attempts++
	delay := c.backoffBase << uint(c.attempts)
	c.timer = time.AfterFunc(delay, func() {
		c.reconnect(gen)
	})
	c.mu.Unlock()

	c.metrics.ReconnectScheduled()
	c.log.Info("reconnect scheduled", "delay", delay)
}

func (c *Client) reconnect(gen int) {
	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		return
	}
	c.state = StateConnecting
	tok := c.freshestTokenLocked()
	c.mu.Unlock()

	if err := c.dial(context.Background(), gen, tok); err != nil {
		c.log.Debug("reconnect attempt failed", "error", err)
	}
}
