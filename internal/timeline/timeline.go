// Package timeline owns the in-memory message log rendered for one
// open conversation. It reconciles the one-shot history fetch with the
// live channel into a single append-only sequence.
package timeline

import (
	"sync"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
)

// Timeline is a monotonic append-log for one conversation. The history
// loader and the live channel are producers; the timeline is the
// single source of truth for rendering.
//
// Live events that arrive before the history resolves are buffered and
// appended after it, in arrival order. After that, every live event
// appends to the end: the backend is trusted to deliver in order and
// no reordering by timestamp is attempted here.
//
// The timeline does not de-duplicate by content. When the post-send
// history refresh and a live echo of the same message both arrive,
// both are kept; collapsing them safely needs a stable per-message id
// the backend does not supply yet.
type Timeline struct {
	conversationID string

	mu       sync.Mutex
	resolved bool
	buffered []domain.Message
	entries  []domain.Message
}

// New creates an empty timeline for the conversation. Swapping the
// viewed conversation means abandoning the old Timeline and creating a
// fresh one; nothing carries over.
func New(conversationID string) *Timeline {
	return &Timeline{conversationID: conversationID}
}

// ConversationID returns the conversation this timeline belongs to.
func (t *Timeline) ConversationID() string {
	return t.conversationID
}

// ApplyHistory installs a freshly fetched history as the base of the
// timeline. On first resolution any buffered live events are appended
// behind it in arrival order. Later calls (the post-send refresh)
// replace the log wholesale, since the refreshed history subsumes
// everything delivered so far.
func (t *Timeline) ApplyHistory(history []domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.entries = make([]domain.Message, 0, len(history)+len(t.buffered))
	t.entries = append(t.entries, history...)
	t.entries = append(t.entries, t.buffered...)
	t.buffered = nil
	t.resolved = true
}

// Append records one live event. Before the history resolves the event
// is buffered; afterwards it goes straight onto the end of the log.
func (t *Timeline) Append(msg domain.Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.resolved {
		t.buffered = append(t.buffered, msg)
		return
	}
	t.entries = append(t.entries, msg)
}

// Resolved reports whether the history has been applied at least once.
func (t *Timeline) Resolved() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.resolved
}

// Messages returns a copy of the current log, oldest first.
func (t *Timeline) Messages() []domain.Message {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.Message, len(t.entries))
	copy(out, t.entries)
	return out
}

// Len returns the number of rendered entries.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
