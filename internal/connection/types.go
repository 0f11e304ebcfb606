package connection

import (
	"errors"
	"fmt"
	"time"

	"github.com/gorilla/websocket"
)

// Errors
var (
	ErrNotConnected         = errors.New("not connected")
	ErrStaleConnection      = errors.New("connection stale (no ping)")
	ErrAlreadyClosed        = errors.New("already closed")
	ErrAlreadyStarted       = errors.New("manager already started")
	ErrReconnectsExhausted  = errors.New("reconnect attempts exhausted")
	ErrConnectionSuperseded = errors.New("connection superseded")
)

// Close codes used by this package and its callers.
const (
	CloseNormalClosure    = websocket.CloseNormalClosure
	CloseGoingAway        = websocket.CloseGoingAway
	ClosePolicyViolation  = websocket.ClosePolicyViolation
	CloseNoStatusReceived = websocket.CloseNoStatusReceived
	CloseAbnormalClosure  = websocket.CloseAbnormalClosure
)

// CloseError reports that the peer closed the connection with a close frame.
type CloseError struct {
	Code   int
	Reason string
}

func (e *CloseError) Error() string {
	return fmt.Sprintf("websocket closed by peer: %d %s", e.Code, e.Reason)
}

// IsClean reports whether the close ended the session on purpose, in which
// case no reconnect should follow.
func (e *CloseError) IsClean() bool {
	switch e.Code {
	case CloseNormalClosure, CloseGoingAway, CloseNoStatusReceived:
		return true
	}
	return false
}

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// ConnInfo describes a connection that just opened.
type ConnInfo struct {
	Conn     Conn
	URL      string
	OpenedAt time.Time
}

// CloseInfo describes a connection that just closed.
type CloseInfo struct {
	Conn     Conn
	Code     int
	Reason   string
	Local    bool  // Closed by this side (Stop or Conn.Close)
	Err      error // Transport error that ended the connection, if any
	ClosedAt time.Time
}

// ErrorInfo describes a connection error. SessionID is empty when the
// error happened before a connection was established.
type ErrorInfo struct {
	SessionID string
	Err       error
	At        time.Time
}

// ReconnectInfo describes a scheduled reconnect attempt.
type ReconnectInfo struct {
	Attempt int           // 1-based attempt number since the last open
	Wait    time.Duration // Backoff before the attempt
	At      time.Time
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., ws://localhost:3333)
	HandshakeTimeout time.Duration // Dial handshake timeout
	PingInterval     time.Duration // How often to send keepalive pings
	PingTimeout      time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		PingInterval:     30 * time.Second,
		PingTimeout:      90 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	Client      ClientConfig
	Backoff     Backoff
	MaxAttempts int // Reconnect attempts after a failure before giving up (0 = unlimited)
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		Client:  DefaultClientConfig(),
		Backoff: DefaultBackoff(),
	}
}
