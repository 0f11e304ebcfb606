package server

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/rickgao/socket-relay/internal/packets"
)

// peer is one authenticated socket.
type peer struct {
	id   uuid.UUID
	user string
	ws   *websocket.Conn
	send chan []byte
}

// Hub tracks authenticated peers and fans packets out to them. It also
// tracks sockets still authenticating so Shutdown can reach them.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	peers   map[uuid.UUID]*peer
	pending map[*websocket.Conn]struct{}
	closed  bool
}

// NewHub creates an empty Hub.
func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		logger:  logger,
		peers:   make(map[uuid.UUID]*peer),
		pending: make(map[*websocket.Conn]struct{}),
	}
}

// track registers a socket that has not authenticated yet. It returns false
// once the hub is shut down.
func (h *Hub) track(ws *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.pending[ws] = struct{}{}
	return true
}

func (h *Hub) untrack(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.pending, ws)
	h.mu.Unlock()
}

// add admits an authenticated peer. It returns false once the hub is shut
// down.
func (h *Hub) add(p *peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p.ws != nil {
		delete(h.pending, p.ws)
	}
	if h.closed {
		return false
	}
	h.peers[p.id] = p
	return true
}

func (h *Hub) remove(id uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if p, ok := h.peers[id]; ok {
		delete(h.peers, id)
		close(p.send)
	}
}

// Shutdown sends going-away to every peer and every socket still
// authenticating, then closes them. Their handlers then remove them. Sockets
// arriving afterwards are refused.
func (h *Hub) Shutdown() {
	h.mu.Lock()
	h.closed = true
	conns := lo.Keys(h.pending)
	for _, p := range h.peers {
		if p.ws != nil {
			conns = append(conns, p.ws)
		}
	}
	h.mu.Unlock()

	for _, ws := range conns {
		goingAway(ws)
	}
}

// Pending returns the number of sockets still authenticating.
func (h *Hub) Pending() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.pending)
}

func goingAway(ws *websocket.Conn) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	ws.Close()
}

// Len returns the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Users returns the users of all connected peers.
func (h *Hub) Users() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return lo.Map(lo.Values(h.peers), func(p *peer, _ int) string { return p.user })
}

// Broadcast sends p to every peer and returns how many it was queued for.
// Peers whose send buffer is full miss the packet.
func (h *Hub) Broadcast(p packets.ServerPacket) int {
	data, err := packets.Marshal(p)
	if err != nil {
		h.logger.Error("failed to encode packet", "error", err)
		return 0
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent := 0
	for _, peer := range h.peers {
		select {
		case peer.send <- data:
			sent++
		default:
			h.logger.Warn("peer send buffer full, dropping packet", "peer_id", peer.id)
		}
	}
	return sent
}
