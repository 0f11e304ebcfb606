// Package session authenticates each freshly opened socket.
//
// On every open the Bootstrap logs in over HTTP, sends {"token": ...} as the
// first frame, and optionally follows up with a greeting packet. The server
// accepts a token silently and rejects a bad one by closing with policy
// violation (1008) and reason "token_invalid". A failed login or a rejected
// token is terminal: the connection is closed for good and nothing else is
// sent.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/socket-relay/internal/auth"
	"github.com/rickgao/socket-relay/internal/connection"
	"github.com/rickgao/socket-relay/internal/packets"
)

// ReasonTokenInvalid is the close reason a server gives for a rejected token.
const ReasonTokenInvalid = "token_invalid"

// Errors
var (
	ErrTokenRejected = errors.New("server rejected auth token")
)

// State is the bootstrap's progress on the current connection.
type State int

const (
	StateIdle State = iota
	StateLoggingIn
	StateAuthenticating
	StateAuthenticated
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoggingIn:
		return "logging_in"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateFailed
}

// Authenticator exchanges credentials for a socket token.
type Authenticator interface {
	Login(ctx context.Context, creds auth.Credentials) (string, error)
}

// Config configures a Bootstrap.
type Config struct {
	Credentials   auth.Credentials
	Greeting      packets.ClientPacket // Sent after authenticating; nil sends nothing
	GreetingDelay time.Duration
	// OnStateChange is called after every transition, outside the lock.
	OnStateChange func(from, to State)
}

// DefaultGreeting is the packet sent after authenticating by default.
var DefaultGreeting packets.ClientPacket = packets.Hi("what's up?")

// Bootstrap runs the login handshake on every opened connection. It
// implements connection.Handler.
type Bootstrap struct {
	cfg    Config
	login  Authenticator
	logger *slog.Logger

	mu     sync.Mutex
	state  State
	err    error
	conn   connection.Conn
	cancel context.CancelFunc
	wg     sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
}

// New creates a Bootstrap.
func New(cfg Config, login Authenticator, logger *slog.Logger) *Bootstrap {
	if logger == nil {
		logger = slog.Default()
	}

	return &Bootstrap{
		cfg:    cfg,
		login:  login,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// State returns the current state.
func (b *Bootstrap) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Err returns the terminal error, if any.
func (b *Bootstrap) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.err
}

// Done is closed when the bootstrap fails terminally.
func (b *Bootstrap) Done() <-chan struct{} {
	return b.done
}

// Wait blocks until in-flight handshakes have returned.
func (b *Bootstrap) Wait() {
	b.wg.Wait()
}

// OnOpen starts the handshake for a newly opened connection.
func (b *Bootstrap) OnOpen(info connection.ConnInfo) {
	b.mu.Lock()
	if b.state.Terminal() {
		b.mu.Unlock()
		info.Conn.Close(connection.CloseNormalClosure, "session failed")
		return
	}
	if b.cancel != nil {
		b.cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	b.cancel = cancel
	b.conn = info.Conn
	b.mu.Unlock()

	b.wg.Add(1)
	go func() {
		defer b.wg.Done()
		b.handshake(ctx, info.Conn)
	}()
}

// OnClose aborts any in-flight handshake and decides whether the close
// rejected our token.
func (b *Bootstrap) OnClose(info connection.CloseInfo) {
	b.mu.Lock()
	if b.conn != info.Conn {
		b.mu.Unlock()
		return
	}
	if b.cancel != nil {
		b.cancel()
		b.cancel = nil
	}
	b.conn = nil
	state := b.state
	b.mu.Unlock()

	if state.Terminal() {
		return
	}

	if !info.Local && info.Code == connection.ClosePolicyViolation && info.Reason == ReasonTokenInvalid {
		b.fail(info.Conn, ErrTokenRejected)
		return
	}

	// Tokens are single-use; the next connection logs in again.
	b.transition(info.Conn, StateIdle, nil)
}

func (b *Bootstrap) OnError(connection.ErrorInfo)                             {}
func (b *Bootstrap) OnReconnect(connection.ReconnectInfo)                     {}
func (b *Bootstrap) OnMessage(connection.Conn, connection.TimestampedMessage) {}

// handshake logs in, authenticates conn, then sends the greeting.
func (b *Bootstrap) handshake(ctx context.Context, conn connection.Conn) {
	logger := b.logger.With("session_id", conn.SessionID())

	if !b.transition(conn, StateLoggingIn, nil) {
		return
	}

	token, err := b.login.Login(ctx, b.cfg.Credentials)
	if ctx.Err() != nil {
		// Connection went away mid-login; OnClose already reset the state.
		logger.Debug("login abandoned, connection closed")
		return
	}
	if err != nil {
		b.fail(conn, fmt.Errorf("login: %w", err))
		return
	}

	if !b.transition(conn, StateAuthenticating, nil) {
		return
	}

	if err := conn.SendJSON(packets.AuthFrame{Token: token}); err != nil {
		// The connection is failing; its close callback takes over.
		logger.Warn("failed to send auth frame", "error", err)
		return
	}

	if !b.transition(conn, StateAuthenticated, nil) {
		return
	}
	logger.Info("socket authenticated")

	if b.cfg.Greeting == nil {
		return
	}

	if b.cfg.GreetingDelay > 0 {
		timer := time.NewTimer(b.cfg.GreetingDelay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}

	// Re-check: a rejected token closes the socket in the meantime.
	if b.current(conn) != StateAuthenticated {
		return
	}
	if err := conn.SendJSON(b.cfg.Greeting); err != nil {
		logger.Warn("failed to send greeting", "error", err)
	}
}

// current returns the state if conn is still the active connection.
func (b *Bootstrap) current(conn connection.Conn) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != conn {
		return StateIdle
	}
	return b.state
}

// transition moves to the given state if conn is still active (or, for a
// reset to idle, was just closed) and the bootstrap has not failed.
func (b *Bootstrap) transition(conn connection.Conn, to State, err error) bool {
	b.mu.Lock()
	if b.state.Terminal() || (to != StateIdle && b.conn != conn) {
		b.mu.Unlock()
		return false
	}
	from := b.state
	b.state = to
	if err != nil {
		b.err = err
	}
	b.mu.Unlock()

	if from != to {
		b.logger.Debug("session state changed", "from", from, "to", to)
		if b.cfg.OnStateChange != nil {
			b.cfg.OnStateChange(from, to)
		}
	}
	return true
}

// fail records a terminal error and closes conn for good.
func (b *Bootstrap) fail(conn connection.Conn, err error) {
	b.mu.Lock()
	if b.state.Terminal() {
		b.mu.Unlock()
		return
	}
	from := b.state
	b.state = StateFailed
	b.err = err
	b.mu.Unlock()

	b.logger.Error("session bootstrap failed", "error", err)
	if b.cfg.OnStateChange != nil {
		b.cfg.OnStateChange(from, StateFailed)
	}

	if err := conn.Close(connection.ClosePolicyViolation, "authentication failed"); err != nil {
		b.logger.Debug("close after failure", "error", err)
	}
	b.doneOnce.Do(func() { close(b.done) })
}
