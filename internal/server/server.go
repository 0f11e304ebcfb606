// Package server is a development server for the socket protocol.
//
// It runs two listeners: an HTTP login endpoint that issues single-use
// tokens, and a WebSocket endpoint that redeems a token from the first frame
// and then streams counter updates to every authenticated peer.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/socket-relay/internal/packets"
	"github.com/rickgao/socket-relay/internal/token"
)

// Config configures a Server.
type Config struct {
	AuthAddr   string
	SocketAddr string
	Counters   []string
	SendRate   int // Counter checks per second
	Socket     SocketConfig
	Token      token.Config
	Accounts   Accounts // nil accepts everyone
}

// DefaultConfig returns the development defaults.
func DefaultConfig() Config {
	return Config{
		AuthAddr:   "127.0.0.1:3000",
		SocketAddr: ":3333",
		Counters:   []string{"foo", "bar"},
		SendRate:   DefaultSendRate,
		Socket:     DefaultSocketConfig(),
		Token:      token.DefaultConfig(),
	}
}

// Server wires the login endpoint, socket endpoint and background loops.
type Server struct {
	cfg      Config
	logger   *slog.Logger
	tokens   *token.Store
	hub      *Hub
	counters *Counters

	authHandler   http.Handler
	socketHandler http.Handler
}

// New creates a Server.
func New(cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Accounts == nil {
		cfg.Accounts = AllowAll{}
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		tokens: token.NewStore(cfg.Token, logger.With("component", "tokens")),
		hub:    NewHub(logger.With("component", "hub")),
	}
	s.counters = NewCounters(cfg.Counters, cfg.SendRate, s.hub)

	authMux := http.NewServeMux()
	authMux.Handle("/login", LoginHandler(cfg.Accounts, s.tokens, logger.With("component", "login")))
	authMux.HandleFunc("/health", s.handleHealth)
	s.authHandler = authMux

	s.socketHandler = NewSocketHandler(cfg.Socket, s.hub, s.tokens, s.onPacket, logger.With("component", "socket"))

	return s
}

// Hub returns the server's peer hub.
func (s *Server) Hub() *Hub { return s.hub }

// Tokens returns the server's token store.
func (s *Server) Tokens() *token.Store { return s.tokens }

// AuthHandler serves /login and /health.
func (s *Server) AuthHandler() http.Handler { return s.authHandler }

// SocketHandler serves the WebSocket endpoint.
func (s *Server) SocketHandler() http.Handler { return s.socketHandler }

// Run serves both listeners until ctx is done or one of them fails.
func (s *Server) Run(ctx context.Context) error {
	authLn, err := net.Listen("tcp", s.cfg.AuthAddr)
	if err != nil {
		return err
	}
	socketLn, err := net.Listen("tcp", s.cfg.SocketAddr)
	if err != nil {
		authLn.Close()
		return err
	}

	return s.Serve(ctx, authLn, socketLn)
}

// Serve is Run on listeners the caller already opened.
func (s *Server) Serve(ctx context.Context, authLn, socketLn net.Listener) error {
	g, ctx := errgroup.WithContext(ctx)

	authSrv := &http.Server{Handler: s.authHandler, ReadHeaderTimeout: 10 * time.Second}
	socketSrv := &http.Server{Handler: s.socketHandler, ReadHeaderTimeout: 10 * time.Second}

	serve := func(name string, srv *http.Server, ln net.Listener) {
		g.Go(func() error {
			s.logger.Info("listening", "listener", name, "addr", ln.Addr().String())
			if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}
	serve("auth", authSrv, authLn)
	serve("socket", socketSrv, socketLn)

	g.Go(func() error { return s.tokens.Run(ctx) })
	g.Go(func() error { return s.counters.Run(ctx) })

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		authSrv.Shutdown(shutdownCtx)
		socketSrv.Shutdown(shutdownCtx)
		// Upgraded sockets are hijacked and outlive Shutdown.
		s.hub.Shutdown()
		return nil
	})

	return g.Wait()
}

func (s *Server) onPacket(peerID uuid.UUID, user string, p packets.ClientPacket) {
	switch p := p.(type) {
	case packets.Hi:
		s.logger.Info("peer says hi", "peer_id", peerID, "user", user, "message", string(p))
	default:
		s.logger.Debug("packet received", "peer_id", peerID, "type", p)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := struct {
		Status     string         `json:"status"`
		Components map[string]any `json:"components"`
	}{
		Status: "healthy",
		Components: map[string]any{
			"peers":  s.hub.Len(),
			"tokens": s.tokens.Len(),
		},
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
