package domain

// ConnectionState is the lifecycle of one live channel.
//
// A channel is created Connecting, moves to Open on a successful
// handshake, to Reconnecting after an unsolicited close, back to
// Connecting when the retry fires, and to Closed only on a
// caller-initiated close. Closed is terminal: no further retries.
type ConnectionState string

const (
	ConnStateConnecting   ConnectionState = "connecting"
	ConnStateOpen         ConnectionState = "open"
	ConnStateClosed       ConnectionState = "closed"
	ConnStateReconnecting ConnectionState = "reconnecting"
)
