package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single WebSocket connection.
type Client interface {
	// Connect establishes the WebSocket connection.
	Connect(ctx context.Context) error

	// Close gracefully closes the connection with a normal close frame.
	Close() error

	// CloseWithReason closes the connection with the given close frame.
	CloseWithReason(code int, reason string) error

	// Send writes a text frame.
	Send(data []byte) error

	// SendJSON encodes v and writes it as a text frame.
	SendJSON(v any) error

	// Messages returns the channel of inbound frames. It is closed once the
	// connection ends; any terminating error is on Errors() by then.
	Messages() <-chan TimestampedMessage

	// Errors returns a channel carrying at most one terminating error.
	Errors() <-chan error

	// IsConnected returns current connection state.
	IsConnected() bool
}

// client implements the Client interface.
type client struct {
	cfg    ClientConfig
	header http.Header
	logger *slog.Logger

	conn *websocket.Conn

	// Output channels
	messages chan TimestampedMessage
	errors   chan error
	done     chan struct{}

	// Write serialization
	writeMu sync.Mutex

	// State
	mu         sync.RWMutex
	connected  bool
	lastPingAt time.Time
	closed     bool
}

// NewClient creates a new WebSocket client. header is sent with the
// upgrade request and may be nil.
func NewClient(cfg ClientConfig, header http.Header, logger *slog.Logger) Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BufferSize < 0 {
		cfg.BufferSize = 0
	}

	return &client{
		cfg:      cfg,
		header:   header,
		logger:   logger,
		messages: make(chan TimestampedMessage, cfg.BufferSize),
		errors:   make(chan error, 1),
		done:     make(chan struct{}),
	}
}

// Connect establishes the WebSocket connection.
func (c *client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrAlreadyClosed
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{
		HandshakeTimeout: c.cfg.HandshakeTimeout,
		Proxy:            http.ProxyFromEnvironment,
	}

	conn, resp, err := dialer.DialContext(ctx, c.cfg.URL, c.header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", c.cfg.URL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", c.cfg.URL, err)
	}

	c.mu.Lock()
	if c.closed {
		// Closed while dialing.
		c.mu.Unlock()
		conn.Close()
		return ErrAlreadyClosed
	}
	c.conn = conn
	c.connected = true
	c.lastPingAt = time.Now()
	c.mu.Unlock()

	// Server sends ping, we respond with pong
	conn.SetPingHandler(func(data string) error {
		c.touch()
		err := conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(time.Second))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	// Server responds to our ping
	conn.SetPongHandler(func(string) error {
		c.touch()
		return nil
	})

	go c.readLoop()
	if c.cfg.PingInterval > 0 {
		go c.heartbeatLoop()
	}

	c.logger.Debug("websocket connected", "url", c.cfg.URL)

	return nil
}

// Close gracefully closes the connection.
func (c *client) Close() error {
	return c.CloseWithReason(CloseNormalClosure, "")
}

// CloseWithReason sends a close frame with code and reason, then closes the
// underlying connection. Subsequent calls are no-ops.
func (c *client) CloseWithReason(code int, reason string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.connected = false
	conn := c.conn
	c.mu.Unlock()

	// Signal goroutines to stop
	close(c.done)

	if conn == nil {
		// Never connected; nothing will close the messages channel otherwise.
		close(c.messages)
		return nil
	}

	conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason),
		time.Now().Add(time.Second),
	)

	return conn.Close()
}

// Send writes raw bytes to the connection.
func (c *client) Send(data []byte) error {
	c.mu.RLock()
	if !c.connected {
		c.mu.RUnlock()
		return ErrNotConnected
	}
	conn := c.conn
	c.mu.RUnlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.cfg.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// SendJSON encodes v and writes it as a single text frame.
func (c *client) SendJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	return c.Send(data)
}

// Messages returns the messages channel.
func (c *client) Messages() <-chan TimestampedMessage {
	return c.messages
}

// Errors returns the errors channel.
func (c *client) Errors() <-chan error {
	return c.errors
}

// IsConnected returns the current connection state.
func (c *client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

func (c *client) touch() {
	c.mu.Lock()
	c.lastPingAt = time.Now()
	c.mu.Unlock()
}

// readLoop reads frames until the connection ends. Every frame read is
// delivered; the loop waits on a full buffer instead of dropping.
func (c *client) readLoop() {
	defer close(c.messages)
	defer func() {
		c.mu.Lock()
		c.connected = false
		c.mu.Unlock()
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		receivedAt := time.Now() // Capture timestamp immediately

		if err != nil {
			// Ignore errors after Close() is called
			select {
			case <-c.done:
				return
			default:
			}

			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				err = &CloseError{Code: closeErr.Code, Reason: closeErr.Text}
			}
			c.report(err)
			return
		}

		msg := TimestampedMessage{
			Data:       data,
			ReceivedAt: receivedAt,
		}

		select {
		case c.messages <- msg:
		case <-c.done:
			return
		}
	}
}

// report queues the terminating error unless one is already queued.
func (c *client) report(err error) {
	select {
	case c.errors <- err:
	default:
	}
}

// heartbeatLoop pings the server and tears down stale connections.
func (c *client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.cfg.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug("failed to send ping", "error", err)
			}

			c.mu.RLock()
			lastPing := c.lastPingAt
			c.mu.RUnlock()

			if c.cfg.PingTimeout > 0 && time.Since(lastPing) > c.cfg.PingTimeout {
				c.logger.Warn("no ping received, connection stale",
					"last_ping", lastPing,
					"timeout", c.cfg.PingTimeout,
				)
				// Queue the cause first; closing the socket unblocks readLoop,
				// whose own read error is then discarded.
				c.report(ErrStaleConnection)
				c.conn.Close()
				return
			}
		}
	}
}
