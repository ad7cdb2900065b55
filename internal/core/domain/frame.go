package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// KeepAliveSentinel is the bare frame the backend emits to keep the
// live channel open. It is not JSON and never reaches listeners.
const KeepAliveSentinel = "ping"

// FrameKind discriminates the payload shapes that share one live
// channel.
type FrameKind int

const (
	// FrameKeepAlive is the bare keep-alive sentinel.
	FrameKeepAlive FrameKind = iota

	// FrameChat is a direct conversation message.
	FrameChat

	// FrameEscalation is a ticket_escalated broadcast.
	FrameEscalation

	// FrameUnhandled is a well-formed frame of a kind this console does
	// not consume. Dropped without error.
	FrameUnhandled
)

// Frame is a decoded live-channel payload. Exactly one of Message and
// Ticket is meaningful, depending on Kind.
type Frame struct {
	Kind    FrameKind
	Message Message
	Ticket  TicketRecord
}

// escalationFrameType is the discriminator value for broadcast frames.
const escalationFrameType = "ticket_escalated"

// wireFrame covers both shapes on the channel. Chat messages carry
// agent_name/message; broadcasts carry type/ticket. Consumers
// discriminate by presence of the type field.
type wireFrame struct {
	Type      string          `json:"type"`
	Ticket    *TicketRecord   `json:"ticket"`
	AgentName string          `json:"agent_name"`
	Text      string          `json:"message"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// DecodeFrame parses one inbound live-channel payload. Keep-alive
// sentinels decode to FrameKeepAlive. Malformed payloads return a
// ProtocolError; the channel layer logs and drops those without
// surfacing them further.
func DecodeFrame(payload []byte, now time.Time) (Frame, error) {
	if string(bytes.TrimSpace(payload)) == KeepAliveSentinel {
		return Frame{Kind: FrameKeepAlive}, nil
	}

	var wire wireFrame
	if err := json.Unmarshal(payload, &wire); err != nil {
		return Frame{}, NewProtocolError("frame.decode", err)
	}

	if wire.Type != "" {
		if wire.Type != escalationFrameType || wire.Ticket == nil {
			return Frame{Kind: FrameUnhandled}, nil
		}
		return Frame{Kind: FrameEscalation, Ticket: *wire.Ticket}, nil
	}

	msg := Message{
		Sender:    wire.AgentName,
		Content:   wire.Text,
		Timestamp: parseWireTimestamp(wire.Timestamp),
	}
	return Frame{Kind: FrameChat, Message: msg.WithDefaultTimestamp(now)}, nil
}

// parseWireTimestamp accepts the RFC3339 string the backend usually
// sends. Anything else falls back to receipt time upstream.
func parseWireTimestamp(raw json.RawMessage) time.Time {
	if len(raw) == 0 {
		return time.Time{}
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return ts
}
