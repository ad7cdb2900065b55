// Package ports defines the interfaces between the console core and
// its collaborators: the support backend, the live channel layer, the
// operator notifier, and the local settings store.
package ports

import (
	"context"
	"io"

	"github.com/gamedesk/helpdesk-console/internal/core/domain"
)

// HistoryLoader fetches the durable message log for a conversation.
// Implementations must be idempotent and safely re-invocable; the
// outbound dispatcher re-invokes it after every accepted send.
type HistoryLoader interface {
	// History returns the stored messages for the conversation, oldest
	// first. A missing conversation id is a validation error; transport
	// and parse failures are returned as-is and the caller decides how
	// to degrade.
	History(ctx context.Context, conversationID string) ([]domain.Message, error)
}

// ReplySender delivers an operator-authored message to the backend's
// reply endpoint.
type ReplySender interface {
	// Reply posts the message for the conversation. A non-success
	// status in a well-formed response is a backend rejection.
	Reply(ctx context.Context, conversationID, text string) error
}

// TicketLister fetches the escalated-ticket summaries that seed the
// operator queue.
type TicketLister interface {
	// EscalatedTickets returns the backend's current escalated ticket
	// records, unfiltered. Callers drop untracked entries.
	EscalatedTickets(ctx context.Context) ([]domain.TicketRecord, error)
}

// Uploader ships knowledge-base material to the backend's ingestion
// endpoints. Indexing itself is the backend's business; the returned
// url (file uploads only) is where the backend stored the document.
type Uploader interface {
	IndexFile(ctx context.Context, collection, agentID, filename string, contents io.Reader) (url string, err error)
	IndexURL(ctx context.Context, collection, agentID, link string) error
}

// LiveChannel is one open live connection. Frames arrive on Frames
// until Close; state transitions arrive on States. Both channels are
// closed when the channel is torn down.
type LiveChannel interface {
	// Frames yields decoded non-keepalive frames in backend emission
	// order.
	Frames() <-chan domain.Frame

	// States yields connection-state transitions.
	States() <-chan domain.ConnectionState

	// Close tears the channel down and suppresses any scheduled
	// reconnect. Safe to call more than once.
	Close()
}

// ChannelDialer opens live channels keyed by session id. At most one
// live channel exists per key at a time.
type ChannelDialer interface {
	Open(ctx context.Context, sessionID string) (LiveChannel, error)
}

// Notifier surfaces non-blocking, toast-style notices to the operator.
// Implementations must never block the caller.
type Notifier interface {
	Success(message string)
	Failure(message string)
}

// SettingsStore is the injected key-value collaborator for operator
// configuration that the original kept in browser-local storage
// (agent roster, uploaded-document records).
type SettingsStore interface {
	// Get reads the raw value for key. A missing key returns ok=false
	// with no error.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set writes the raw value for key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases the underlying storage.
	Close() error
}
