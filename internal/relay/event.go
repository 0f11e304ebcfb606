package relay

import (
	"time"

	"github.com/google/uuid"
)

// Kind identifies what an Event carries.
type Kind int

const (
	KindMessage Kind = iota
	KindOpen
	KindClose
	KindError
	KindReconnect
)

var kindNames = map[Kind]string{
	KindMessage:   "message",
	KindOpen:      "open",
	KindClose:     "close",
	KindError:     "error",
	KindReconnect: "reconnect",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsControl reports whether the kind is a connection lifecycle transition
// rather than inbound data.
func (k Kind) IsControl() bool {
	return k != KindMessage
}

// Event is a single emission on the relay.
type Event struct {
	ID        uuid.UUID
	Kind      Kind
	SessionID string    // Connection the event belongs to (empty for reconnect)
	At        time.Time // Receive time for messages, transition time otherwise

	// Message only. The payload exactly as read from the socket.
	Data []byte

	// Close only.
	Code   int
	Reason string
	Local  bool // Closed by this side

	// Error only.
	Err error

	// Reconnect only.
	Attempt int
	Wait    time.Duration
}

// IsControl reports whether the event is a lifecycle transition.
func (e Event) IsControl() bool {
	return e.Kind.IsControl()
}
