// Package dispatch sends operator-authored replies. Delivery is a
// synchronous request to the backend; the live channel does not echo
// the sender's own message back reliably, so an accepted send is
// followed by a history refresh instead.
package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
	"github.com/gamedesk/helpdesk-console/internal/core/ports"
	"github.com/gamedesk/helpdesk-console/internal/metrics"
)

// ErrSendInFlight is returned when a conversation already has a send
// in progress. Re-submission stays disabled until the first send
// settles.
var ErrSendInFlight = errors.New("send already in flight for conversation")

// Dispatcher owns the per-conversation draft and the single-in-flight
// send rule. The draft is only cleared on an accepted send; every
// failure preserves it so the operator can retry without retyping.
type Dispatcher struct {
	sender   ports.ReplySender
	notifier ports.Notifier
	logger   *slog.Logger

	// onSent runs after each accepted send, once per send. The owner
	// wires the history re-fetch (and queue refresh) here.
	onSent func(conversationID string)

	mu       sync.Mutex
	drafts   map[string]string
	inFlight map[string]bool
}

// New creates a dispatcher. onSent may be nil.
func New(sender ports.ReplySender, notifier ports.Notifier, onSent func(conversationID string), logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		sender:   sender,
		notifier: notifier,
		logger:   logger,
		onSent:   onSent,
		drafts:   make(map[string]string),
		inFlight: make(map[string]bool),
	}
}

// SetDraft stores the operator's in-progress input for a conversation.
func (d *Dispatcher) SetDraft(conversationID, text string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.drafts[conversationID] = text
}

// Draft returns the preserved input for a conversation.
func (d *Dispatcher) Draft(conversationID string) string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.drafts[conversationID]
}

// Send submits the conversation's current draft. Blank drafts and
// missing conversation ids are rejected as a no-op surfaced to the
// caller. On acceptance the draft is cleared and onSent fires exactly
// once; on rejection or transport failure the draft stays put and the
// failure is surfaced as a notification.
func (d *Dispatcher) Send(ctx context.Context, conversationID string) error {
	if conversationID == "" {
		return domain.NewValidationError("dispatch.send", "conversation id required")
	}

	d.mu.Lock()
	if d.inFlight[conversationID] {
		d.mu.Unlock()
		return ErrSendInFlight
	}
	text := d.drafts[conversationID]
	if strings.TrimSpace(text) == "" {
		d.mu.Unlock()
		return domain.NewValidationError("dispatch.send", "message text required")
	}
	d.inFlight[conversationID] = true
	d.mu.Unlock()

	err := d.sender.Reply(ctx, conversationID, text)

	d.mu.Lock()
	d.inFlight[conversationID] = false
	if err == nil {
		delete(d.drafts, conversationID)
	}
	d.mu.Unlock()

	if err != nil {
		metrics.RepliesSent.WithLabelValues("failed").Inc()
		d.logger.Warn("reply send failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		if d.notifier != nil {
			d.notifier.Failure("Failed to send message")
		}
		return err
	}

	metrics.RepliesSent.WithLabelValues("accepted").Inc()
	if d.onSent != nil {
		d.onSent(conversationID)
	}
	return nil
}
