package server

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/rickgao/socket-relay/internal/packets"
)

// ReasonTokenInvalid is the close reason sent when the first frame does not
// carry a redeemable token.
const ReasonTokenInvalid = "token_invalid"

var errNotText = errors.New("auth frame must be a text message")

// TokenRedeemer redeems socket tokens.
type TokenRedeemer interface {
	Validate(token string) (string, error)
}

// PacketFunc receives packets from authenticated peers.
type PacketFunc func(peerID uuid.UUID, user string, p packets.ClientPacket)

// SocketConfig configures the socket handler.
type SocketConfig struct {
	AuthTimeout  time.Duration // Time allowed for the first frame
	WriteTimeout time.Duration
	SendBuffer   int
}

// DefaultSocketConfig returns sensible defaults.
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		AuthTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		SendBuffer:   256,
	}
}

// SocketHandler upgrades requests and authenticates each socket with its
// first frame before admitting it to the hub.
type SocketHandler struct {
	cfg      SocketConfig
	hub      *Hub
	tokens   TokenRedeemer
	onPacket PacketFunc
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// NewSocketHandler creates a SocketHandler. onPacket may be nil.
func NewSocketHandler(cfg SocketConfig, hub *Hub, tokens TokenRedeemer, onPacket PacketFunc, logger *slog.Logger) *SocketHandler {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = DefaultSocketConfig().SendBuffer
	}

	return &SocketHandler{
		cfg:      cfg,
		hub:      hub,
		tokens:   tokens,
		onPacket: onPacket,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

func (h *SocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("upgrade failed", "error", err)
		return
	}
	defer ws.Close()

	if !h.hub.track(ws) {
		goingAway(ws)
		return
	}
	defer h.hub.untrack(ws)

	user, ok := h.authenticate(ws)
	if !ok {
		return
	}

	p := &peer{
		id:   uuid.New(),
		user: user,
		ws:   ws,
		send: make(chan []byte, h.cfg.SendBuffer),
	}
	logger := h.logger.With("peer_id", p.id, "user", user)

	if !h.hub.add(p) {
		goingAway(ws)
		return
	}
	logger.Info("peer connected")

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		h.writeLoop(ws, p.send, logger)
	}()

	h.readLoop(ws, p, logger)

	h.hub.remove(p.id)
	<-writerDone
	logger.Info("peer disconnected")
}

// authenticate reads the first frame and redeems its token. On failure the
// socket is closed with policy violation.
func (h *SocketHandler) authenticate(ws *websocket.Conn) (string, bool) {
	if h.cfg.AuthTimeout > 0 {
		ws.SetReadDeadline(time.Now().Add(h.cfg.AuthTimeout))
	}

	mt, data, err := ws.ReadMessage()
	if err != nil {
		h.logger.Debug("no auth frame", "error", err)
		return "", false
	}

	user, err := h.redeem(mt, data)
	if err != nil {
		h.logger.Info("socket auth rejected", "error", err)
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, ReasonTokenInvalid)
		ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		return "", false
	}

	ws.SetReadDeadline(time.Time{})
	return user, true
}

func (h *SocketHandler) redeem(messageType int, data []byte) (string, error) {
	if messageType != websocket.TextMessage {
		return "", errNotText
	}
	frame, err := packets.DecodeAuthFrame(data)
	if err != nil {
		return "", err
	}
	return h.tokens.Validate(frame.Token)
}

func (h *SocketHandler) readLoop(ws *websocket.Conn, p *peer, logger *slog.Logger) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("read error", "error", err)
			}
			return
		}

		pkt, err := packets.DecodeClientPacket(data)
		if err != nil {
			logger.Warn("dropping bad packet", "error", err)
			continue
		}
		if h.onPacket != nil {
			h.onPacket(p.id, p.user, pkt)
		}
	}
}

// writeLoop drains send until the hub closes it.
func (h *SocketHandler) writeLoop(ws *websocket.Conn, send <-chan []byte, logger *slog.Logger) {
	for data := range send {
		if h.cfg.WriteTimeout > 0 {
			ws.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout))
		}
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			logger.Warn("write error", "error", err)
			ws.Close()
			// Drain until the hub drops us.
			for range send {
			}
			return
		}
	}
}
