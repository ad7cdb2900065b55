// Package livewire owns the live channels to the support backend: one
// per open conversation, plus one per dashboard session for escalation
// broadcasts. A channel survives unsolicited closes by retrying on a
// fixed interval until its owner explicitly closes it.
package livewire

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/metrics"
)

const (
	// channelPath is the backend's admin live-channel endpoint. The
	// session id query parameter selects between a conversation feed
	// and the dashboard broadcast feed.
	channelPath = "/ws/admin"

	defaultReconnectDelay = 5 * time.Second

	// minReconnectDelay guards against sub-millisecond retry loops.
	minReconnectDelay = 100 * time.Millisecond

	frameBuffer = 64
	stateBuffer = 8
)

// DialerOption configures the Dialer.
type DialerOption func(*Dialer)

// WithReconnectDelay sets the fixed interval between retry attempts.
// The delay is read through a function so config hot-reload takes
// effect on the next retry.
func WithReconnectDelay(delay func() time.Duration) DialerOption {
	return func(d *Dialer) {
		d.delay = delay
	}
}

// WithLogger sets the logger for connection diagnostics.
func WithLogger(logger *slog.Logger) DialerOption {
	return func(d *Dialer) {
		d.logger = logger
	}
}

// Dialer opens live channels keyed by session id and enforces at most
// one live channel per key: opening a key that is already open closes
// the previous channel first, so navigation can never leak one.
type Dialer struct {
	wsBase string
	delay  func() time.Duration
	logger *slog.Logger

	mu     sync.Mutex
	active map[string]*Channel
}

// NewDialer creates a dialer rooted at wsBase (e.g. ws://localhost:8000).
func NewDialer(wsBase string, opts ...DialerOption) *Dialer {
	d := &Dialer{
		wsBase: wsBase,
		delay:  func() time.Duration { return defaultReconnectDelay },
		logger: slog.Default(),
		active: make(map[string]*Channel),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Open establishes the live channel for sessionID. The handle is
// returned immediately; connecting and all reconnecting happens in the
// background, mirroring how a browser socket surfaces its lifecycle
// through events rather than a blocking constructor.
func (d *Dialer) Open(ctx context.Context, sessionID string) (ports.LiveChannel, error) {
	if sessionID == "" {
		return nil, domain.NewValidationError("livewire.open", "session id required")
	}

	ch := newChannel(d, sessionID, d.wsBase+channelPath+"?session_id="+sessionID)

	d.mu.Lock()
	prev := d.active[sessionID]
	d.active[sessionID] = ch
	d.mu.Unlock()

	// Close-then-reopen: never two channels for one key. The previous
	// channel is closed outside the lock because Close ends up back in
	// forget, which takes it again.
	if prev != nil {
		prev.Close()
	}

	go ch.run(ctx)
	return ch, nil
}

// CloseAll tears down every open channel. Used on console shutdown.
func (d *Dialer) CloseAll() {
	d.mu.Lock()
	channels := make([]*Channel, 0, len(d.active))
	for _, ch := range d.active {
		channels = append(channels, ch)
	}
	d.mu.Unlock()

	for _, ch := range channels {
		ch.Close()
	}
}

func (d *Dialer) forget(ch *Channel) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.active[ch.sessionID] == ch {
		delete(d.active, ch.sessionID)
	}
}

// Channel is one live connection, including its retry loop. Decoded
// frames are delivered on Frames in backend emission order; keep-alive
// sentinels and malformed payloads never reach the consumer.
type Channel struct {
	dialer    *Dialer
	sessionID string
	url       string

	frames chan domain.Frame
	states chan domain.ConnectionState

	done      chan struct{}
	closeOnce sync.Once

	mu   sync.Mutex
	conn *websocket.Conn
}

func newChannel(d *Dialer, sessionID, url string) *Channel {
	return &Channel{
		dialer:    d,
		sessionID: sessionID,
		url:       url,
		frames:    make(chan domain.Frame, frameBuffer),
		states:    make(chan domain.ConnectionState, stateBuffer),
		done:      make(chan struct{}),
	}
}

// Frames implements ports.LiveChannel.
func (c *Channel) Frames() <-chan domain.Frame {
	return c.frames
}

// States implements ports.LiveChannel.
func (c *Channel) States() <-chan domain.ConnectionState {
	return c.states
}

// Close tears the channel down. Any scheduled reconnect is cancelled;
// a close initiated here never triggers a retry. Safe to call more
// than once.
func (c *Channel) Close() {
	c.closeOnce.Do(func() {
		close(c.done)

		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()

		c.dialer.forget(c)
	})
}

func (c *Channel) run(ctx context.Context) {
	defer func() {
		c.setState(domain.ConnStateClosed)
		close(c.frames)
		close(c.states)
	}()

	logger := c.dialer.logger.With(slog.String("session_id", c.sessionID))

	for attempt := 0; ; attempt++ {
		if c.closed(ctx) {
			return
		}

		c.setState(domain.ConnStateConnecting)
		if attempt > 0 {
			metrics.Reconnects.Inc()
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, nil)
		if err != nil {
			logger.Warn("live channel dial failed", slog.String("error", err.Error()))
			if !c.waitRetry(ctx) {
				return
			}
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		// Close may have raced the dial; re-check before reading so a
		// just-established connection cannot outlive its owner.
		if c.closed(ctx) {
			conn.Close()
			return
		}

		c.setState(domain.ConnStateOpen)
		metrics.ActiveChannels.Inc()
		logger.Info("live channel open")

		c.readLoop(conn, logger)

		metrics.ActiveChannels.Dec()
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if c.closed(ctx) {
			return
		}

		// Unsolicited close: schedule exactly one retry after the
		// fixed delay, then loop.
		logger.Warn("live channel disconnected, scheduling reconnect")
		if !c.waitRetry(ctx) {
			return
		}
	}
}

// readLoop consumes frames until the connection drops or the channel
// is closed.
func (c *Channel) readLoop(conn *websocket.Conn, logger *slog.Logger) {
	defer conn.Close()

	for {
		_, payload, err := conn.ReadMessage()
		if err != nil {
			return
		}

		frame, err := domain.DecodeFrame(payload, time.Now())
		if err != nil {
			// Malformed payloads are diagnostics, not operator
			// concerns: log, count, drop.
			metrics.FramesDropped.Inc()
			logger.Error("dropping malformed frame", slog.String("error", err.Error()))
			continue
		}

		switch frame.Kind {
		case domain.FrameKeepAlive:
			metrics.FramesReceived.WithLabelValues("keepalive").Inc()
			continue
		case domain.FrameUnhandled:
			metrics.FramesReceived.WithLabelValues("unhandled").Inc()
			continue
		case domain.FrameChat:
			metrics.FramesReceived.WithLabelValues("chat").Inc()
		case domain.FrameEscalation:
			metrics.FramesReceived.WithLabelValues("escalation").Inc()
		}

		select {
		case c.frames <- frame:
		case <-c.done:
			return
		}
	}
}

// waitRetry blocks for the fixed reconnect delay. It returns false
// when the channel was closed while waiting, which cancels the retry.
func (c *Channel) waitRetry(ctx context.Context) bool {
	c.setState(domain.ConnStateReconnecting)

	delay := c.dialer.delay()
	if delay < minReconnectDelay {
		delay = minReconnectDelay
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-c.done:
		return false
	case <-ctx.Done():
		return false
	}
}

func (c *Channel) closed(ctx context.Context) bool {
	select {
	case <-c.done:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

// setState publishes a state transition without ever blocking the
// connection loop; a slow consumer just misses intermediate states.
func (c *Channel) setState(state domain.ConnectionState) {
	metrics.StateTransitions.WithLabelValues(string(state)).Inc()
	select {
	case c.states <- state:
	default:
	}
}
