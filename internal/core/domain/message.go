package domain

import "time"

// Message is a single entry in a conversation timeline. Sender is a
// free-form role tag from the backend ("User", "AI", "system"); no
// closed enum is enforced.
type Message struct {
	Sender    string    `json:"agent_name"`
	Content   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// FromOperatorSide reports whether the message was authored by the
// AI agent or a human operator rather than the player. Everything
// outside the known agent tags counts as the counterparty.
func (m Message) FromOperatorSide() bool {
	switch m.Sender {
	case "AI", "system", "System":
		return true
	}
	return false
}

// WithDefaultTimestamp returns the message stamped with now when the
// source omitted a timestamp.
func (m Message) WithDefaultTimestamp(now time.Time) Message {
	if m.Timestamp.IsZero() {
		m.Timestamp = now
	}
	return m
}
