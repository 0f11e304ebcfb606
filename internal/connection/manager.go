package connection

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Manager owns one outbound WebSocket connection at a time, reconnecting
// with exponential backoff and reporting every transition to a Handler.
type Manager interface {
	// Start begins connecting in the background.
	Start(ctx context.Context) error

	// Stop closes the connection and waits for the manager to exit.
	Stop(ctx context.Context) error

	// Send writes a text frame on the current connection.
	Send(data []byte) error

	// SendJSON encodes v and writes it on the current connection.
	SendJSON(v any) error

	// Close closes the current connection with the given close frame and
	// disables reconnection.
	Close(code int, reason string) error

	// Done is closed once the manager has stopped for good.
	Done() <-chan struct{}

	// IsConnected returns current connection state.
	IsConnected() bool

	// Stats returns connection statistics.
	Stats() ManagerStats
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Connected  bool
	SessionID  string
	Connects   int64 // Successful opens
	Failures   int64 // Failed dials
	Reconnects int64 // Reconnect attempts scheduled
	Messages   int64
}

// manager implements the Manager interface.
type manager struct {
	cfg     ManagerConfig
	header  http.Header
	handler Handler
	logger  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	done   chan struct{}

	// Current connection
	mu       sync.RWMutex
	current  *managedConn
	started  bool
	terminal bool
	closing  closeRequest

	connects   atomic.Int64
	failures   atomic.Int64
	reconnects atomic.Int64
	messages   atomic.Int64
}

type closeRequest struct {
	code   int
	reason string
	set    bool
}

// managedConn binds a Client to the manager that owns it.
type managedConn struct {
	m         *manager
	client    Client
	sessionID string
}

func (c *managedConn) SessionID() string      { return c.sessionID }
func (c *managedConn) Send(data []byte) error { return c.client.Send(data) }
func (c *managedConn) SendJSON(v any) error   { return c.client.SendJSON(v) }

func (c *managedConn) Close(code int, reason string) error {
	c.m.markTerminal(code, reason)
	return c.client.CloseWithReason(code, reason)
}

// NewManager creates a new Connection Manager. header is sent with every
// upgrade request and may be nil.
func NewManager(cfg ManagerConfig, header http.Header, handler Handler, logger *slog.Logger) Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if handler == nil {
		handler = NopHandler{}
	}

	return &manager{
		cfg:     cfg,
		header:  header,
		handler: handler,
		logger:  logger,
		done:    make(chan struct{}),
	}
}

// Start begins the connection loop.
func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.started = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run()

	go func() {
		m.wg.Wait()
		close(m.done)
	}()

	m.logger.Info("connection manager started", "url", m.cfg.Client.URL)
	return nil
}

// Stop gracefully shuts down.
func (m *manager) Stop(ctx context.Context) error {
	m.logger.Info("stopping connection manager")

	m.markTerminal(CloseNormalClosure, "")

	m.mu.RLock()
	cancel := m.cancel
	current := m.current
	m.mu.RUnlock()

	if current != nil {
		current.client.Close()
	}
	if cancel == nil {
		return nil
	}
	cancel()

	select {
	case <-m.done:
		m.logger.Info("connection manager stopped")
		return nil
	case <-ctx.Done():
		m.logger.Warn("connection manager stop timed out")
		return ctx.Err()
	}
}

// Send writes to the current connection.
func (m *manager) Send(data []byte) error {
	conn := m.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.Send(data)
}

// SendJSON writes v to the current connection.
func (m *manager) SendJSON(v any) error {
	conn := m.currentConn()
	if conn == nil {
		return ErrNotConnected
	}
	return conn.SendJSON(v)
}

// Close closes the current connection for good.
func (m *manager) Close(code int, reason string) error {
	m.markTerminal(code, reason)

	conn := m.currentConn()
	if conn == nil {
		return nil
	}
	return conn.client.CloseWithReason(code, reason)
}

// Done is closed when the manager goroutine exits.
func (m *manager) Done() <-chan struct{} {
	return m.done
}

// IsConnected returns the current connection state.
func (m *manager) IsConnected() bool {
	conn := m.currentConn()
	return conn != nil && conn.client.IsConnected()
}

// Stats returns current statistics.
func (m *manager) Stats() ManagerStats {
	stats := ManagerStats{
		Connects:   m.connects.Load(),
		Failures:   m.failures.Load(),
		Reconnects: m.reconnects.Load(),
		Messages:   m.messages.Load(),
	}
	if conn := m.currentConn(); conn != nil {
		stats.Connected = conn.client.IsConnected()
		stats.SessionID = conn.sessionID
	}
	return stats
}

func (m *manager) currentConn() *managedConn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

func (m *manager) markTerminal(code int, reason string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.terminal {
		m.terminal = true
		m.closing = closeRequest{code: code, reason: reason, set: true}
	}
}

func (m *manager) isTerminal() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.terminal
}

// run is the connection loop. Only this goroutine creates clients, so at
// most one connection exists at any time.
func (m *manager) run() {
	defer m.wg.Done()

	attempt := 0
	for {
		if attempt > 0 {
			if m.cfg.MaxAttempts > 0 && attempt > m.cfg.MaxAttempts {
				m.logger.Error("giving up reconnecting", "attempts", attempt-1)
				m.handler.OnError(ErrorInfo{Err: ErrReconnectsExhausted, At: time.Now()})
				return
			}

			wait := m.cfg.Backoff.Duration(attempt)
			m.reconnects.Add(1)
			m.handler.OnReconnect(ReconnectInfo{Attempt: attempt, Wait: wait, At: time.Now()})

			m.logger.Info("reconnecting", "attempt", attempt, "wait", wait)

			timer := time.NewTimer(wait)
			select {
			case <-m.ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		if m.ctx.Err() != nil || m.isTerminal() {
			return
		}

		conn, err := m.dial()
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.failures.Add(1)
			m.logger.Warn("connection failed", "attempt", attempt, "error", err)
			m.handler.OnError(ErrorInfo{Err: err, At: time.Now()})
			attempt++
			continue
		}

		attempt = 0
		m.connects.Add(1)
		m.handler.OnOpen(ConnInfo{Conn: conn, URL: m.cfg.Client.URL, OpenedAt: time.Now()})

		info := m.pump(conn)

		m.mu.Lock()
		m.current = nil
		m.mu.Unlock()

		if info.Err != nil {
			m.handler.OnError(ErrorInfo{SessionID: conn.sessionID, Err: info.Err, At: info.ClosedAt})
		}
		m.handler.OnClose(info)

		m.logger.Info("connection closed",
			"session_id", conn.sessionID,
			"code", info.Code,
			"reason", info.Reason,
			"local", info.Local,
		)

		// Handlers may have closed the connection for good.
		if m.ctx.Err() != nil || m.isTerminal() {
			return
		}
		if info.Err == nil && !info.Local && isCleanCode(info.Code) {
			m.logger.Info("peer ended the session, not reconnecting", "code", info.Code)
			return
		}
		attempt = 1
	}
}

// dial connects a fresh client and installs it as current.
func (m *manager) dial() (*managedConn, error) {
	sessionID := uuid.NewString()
	logger := m.logger.With("session_id", sessionID)

	client := NewClient(m.cfg.Client, m.header, logger)
	if err := client.Connect(m.ctx); err != nil {
		client.Close()
		return nil, err
	}

	conn := &managedConn{m: m, client: client, sessionID: sessionID}

	m.mu.Lock()
	if m.terminal {
		m.mu.Unlock()
		client.Close()
		return nil, ErrConnectionSuperseded
	}
	m.current = conn
	m.mu.Unlock()

	return conn, nil
}

// pump forwards frames to the handler until the connection ends, then
// describes how it ended.
func (m *manager) pump(conn *managedConn) CloseInfo {
	msgs := conn.client.Messages()
	ctxDone := m.ctx.Done()

	for {
		select {
		case <-ctxDone:
			conn.client.Close()
			ctxDone = nil

		case msg, ok := <-msgs:
			if !ok {
				return m.closeInfo(conn)
			}
			m.messages.Add(1)
			m.handler.OnMessage(conn, msg)
		}
	}
}

func (m *manager) closeInfo(conn *managedConn) CloseInfo {
	info := CloseInfo{
		Conn:     conn,
		ClosedAt: time.Now(),
	}

	var err error
	select {
	case err = <-conn.client.Errors():
	default:
	}

	var closeErr *CloseError
	switch {
	case err == nil:
		// We closed it.
		info.Local = true
		info.Code = CloseNormalClosure
		m.mu.RLock()
		if m.closing.set {
			info.Code = m.closing.code
			info.Reason = m.closing.reason
		}
		m.mu.RUnlock()

	case errors.As(err, &closeErr) && closeErr.Code != CloseAbnormalClosure:
		info.Code = closeErr.Code
		info.Reason = closeErr.Reason

	default:
		info.Code = CloseAbnormalClosure
		info.Err = err
	}

	return info
}

func isCleanCode(code int) bool {
	return (&CloseError{Code: code}).IsClean()
}
