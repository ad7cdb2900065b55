// Package conversation manages the operator's open conversation: one
// message timeline fed by a history fetch and a live channel, torn
// down and rebuilt whenever the operator switches tickets.
package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/timeline"
)

// Manager opens and closes conversation views. At most one view is
// active; opening a new one closes the previous first.
type Manager struct {
	loader ports.HistoryLoader
	dialer ports.ChannelDialer
	logger *slog.Logger

	mu     sync.Mutex
	active *View
}

// NewManager wires the history loader and channel dialer.
func NewManager(loader ports.HistoryLoader, dialer ports.ChannelDialer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{loader: loader, dialer: dialer, logger: logger}
}

// Open switches to the conversation. The returned view is live
// immediately; the history fetch runs concurrently and live messages
// that race it are buffered, never lost. The previous view, if any,
// is closed before the new one starts.
func (m *Manager) Open(ctx context.Context, conversationID string) (*View, error) {
	if conversationID == "" {
		return nil, domain.NewValidationError("conversation.open", "conversation id is required")
	}

	m.mu.Lock()
	prev := m.active
	m.active = nil
	m.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	channel, err := m.dialer.Open(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	viewCtx, cancel := context.WithCancel(ctx)
	v := &View{
		id:       conversationID,
		timeline: timeline.New(conversationID),
		channel:  channel,
		loader:   m.loader,
		logger:   m.logger,
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    domain.ConnStateConnecting,
	}

	v.wg.Add(2)
	go v.pump()
	go func() {
		defer v.wg.Done()
		v.fetchHistory(viewCtx)
	}()

	m.mu.Lock()
	m.active = v
	m.mu.Unlock()

	m.logger.Info("conversation opened", "conversation_id", conversationID)
	return v, nil
}

// Active returns the currently open view, or nil.
func (m *Manager) Active() *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// CloseActive tears down the open view, if any.
func (m *Manager) CloseActive() {
	m.mu.Lock()
	v := m.active
	m.active = nil
	m.mu.Unlock()
	if v != nil {
		v.Close()
	}
}

// View is one open conversation: its timeline, its live channel, and
// the connection state the operator sees.
type View struct {
	id       string
	timeline *timeline.Timeline
	channel  ports.LiveChannel
	loader   ports.HistoryLoader
	logger   *slog.Logger
	cancel   context.CancelFunc

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup

	stateMu sync.Mutex
	state   domain.ConnectionState
}

// ID returns the conversation id the view is bound to.
func (v *View) ID() string {
	return v.id
}

// Messages returns the current timeline, oldest first.
func (v *View) Messages() []domain.Message {
	return v.timeline.Messages()
}

// HistoryResolved reports whether the initial history fetch has
// landed.
func (v *View) HistoryResolved() bool {
	return v.timeline.Resolved()
}

// State returns the live channel's last reported state.
func (v *View) State() domain.ConnectionState {
	v.stateMu.Lock()
	defer v.stateMu.Unlock()
	return v.state
}

// Close tears the view down: the live channel stops reconnecting and
// any in-flight history fetch is discarded. Safe to call more than
// once.
func (v *View) Close() {
	v.closeOnce.Do(func() {
		close(v.done)
		v.cancel()
		v.channel.Close()
		v.logger.Info("conversation closed", "conversation_id", v.id)
	})
	v.wg.Wait()
}

// Refetch reloads the durable history and replaces the timeline with
// it. The dispatcher invokes this once after every accepted send. A
// refetch that completes after Close is discarded.
func (v *View) Refetch(ctx context.Context) {
	v.fetchHistory(ctx)
}

// fetchHistory loads the message log and applies it unless the view
// was closed while the fetch was in flight. Results for a conversation
// the operator has already left must never surface.
func (v *View) fetchHistory(ctx context.Context) {
	history, err := v.loader.History(ctx, v.id)
	if err != nil {
		v.logger.Warn("history fetch failed", "conversation_id", v.id, "error", err)
		return
	}

	select {
	case <-v.done:
		v.logger.Debug("discarding history for closed conversation", "conversation_id", v.id)
		return
	default:
	}

	v.timeline.ApplyHistory(history)
}

// pump drains the live channel into the timeline until the channel is
// torn down.
func (v *View) pump() {
	defer v.wg.Done()

	frames := v.channel.Frames()
	states := v.channel.States()
	for frames != nil || states != nil {
		select {
		case frame, ok := <-frames:
			if !ok {
				frames = nil
				continue
			}
			if frame.Kind == domain.FrameChat {
				v.timeline.Append(frame.Message)
			}
		case state, ok := <-states:
			if !ok {
				states = nil
				continue
			}
			v.stateMu.Lock()
			v.state = state
			v.stateMu.Unlock()
		}
	}
}
