package relay

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/socket-relay/internal/connection"
)

// ErrClosed is returned by a subscription once its relay (or the
// subscription itself) is closed and every pending event has been read.
var ErrClosed = errors.New("relay closed")

// Config configures a Relay.
type Config struct {
	QueueSize int // Initial per-subscriber queue capacity (grows on demand)
}

// DefaultConfig returns default configuration.
func DefaultConfig() Config {
	return Config{
		QueueSize: 256,
	}
}

// Stats contains runtime statistics.
type Stats struct {
	Subscribers int
	Published   int64
	Delivered   int64
	Rejected    int64 // Publishes after Close
}

// Relay fans every published event out to all current subscribers.
//
// Publish never blocks on subscribers: each one owns an unbounded queue.
// An event reaches every subscriber registered when Publish was called,
// exactly once. Relay also implements connection.Handler, so it can be
// wired straight into a connection.Manager.
type Relay struct {
	cfg    Config
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	closed bool

	published atomic.Int64
	delivered atomic.Int64
	rejected  atomic.Int64
}

// New creates a Relay.
func New(cfg Config, logger *slog.Logger) *Relay {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize < 1 {
		cfg.QueueSize = DefaultConfig().QueueSize
	}

	return &Relay{
		cfg:    cfg,
		logger: logger,
		subs:   make(map[uint64]*Subscription),
	}
}

// Publish emits ev to every subscriber. A zero ID or timestamp is filled in.
// Returns false if the relay is closed.
func (r *Relay) Publish(ev Event) bool {
	if ev.ID == uuid.Nil {
		ev.ID = uuid.New()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.rejected.Add(1)
		return false
	}

	r.published.Add(1)
	for _, sub := range r.subs {
		if sub.q.push(ev) {
			r.delivered.Add(1)
		}
	}
	return true
}

// Subscribe registers a new subscriber. It only sees events published after
// this call returns. Subscribing to a closed relay yields a subscription that
// immediately reports ErrClosed.
func (r *Relay) Subscribe() *Subscription {
	sub := &Subscription{
		relay: r,
		q:     newQueue[Event](r.cfg.QueueSize),
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		sub.q.close()
		return sub
	}

	r.nextID++
	sub.id = r.nextID
	r.subs[sub.id] = sub

	r.logger.Debug("relay subscriber added", "subscriber", sub.id, "subscribers", len(r.subs))
	return sub
}

// Close stops the relay. Subscribers drain what is queued, then see ErrClosed.
func (r *Relay) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true

	for id, sub := range r.subs {
		sub.q.close()
		delete(r.subs, id)
	}

	r.logger.Debug("relay closed", "published", r.published.Load())
}

// Stats returns current statistics.
func (r *Relay) Stats() Stats {
	r.mu.RLock()
	subscribers := len(r.subs)
	r.mu.RUnlock()

	return Stats{
		Subscribers: subscribers,
		Published:   r.published.Load(),
		Delivered:   r.delivered.Load(),
		Rejected:    r.rejected.Load(),
	}
}

func (r *Relay) remove(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.subs, id)
}

// Subscription is one listener on a Relay.
type Subscription struct {
	id    uint64
	relay *Relay
	q     *queue[Event]
	once  sync.Once
}

// Next blocks until the next event, ctx is done, or the subscription is
// closed and drained (ErrClosed).
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	return s.q.pop(ctx)
}

// TryNext returns the next queued event without blocking.
func (s *Subscription) TryNext() (Event, bool) {
	return s.q.tryPop()
}

// Events adapts the subscription to a channel. The channel is closed when
// ctx is done or the subscription ends.
func (s *Subscription) Events(ctx context.Context) <-chan Event {
	out := make(chan Event)
	go func() {
		defer close(out)
		for {
			ev, err := s.q.pop(ctx)
			if err != nil {
				return
			}
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// Unsubscribe detaches from the relay. Events already queued stay readable.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		if s.id != 0 {
			s.relay.remove(s.id)
		}
		s.q.close()
	})
}

// Stats returns the subscription's queue statistics.
func (s *Subscription) Stats() QueueStats {
	return s.q.stats()
}

// Lifecycle callbacks. Each one publishes exactly one event.

// OnOpen implements connection.Handler.
func (r *Relay) OnOpen(info connection.ConnInfo) {
	r.Publish(Event{
		Kind:      KindOpen,
		SessionID: sessionOf(info.Conn),
		At:        info.OpenedAt,
	})
}

// OnClose implements connection.Handler.
func (r *Relay) OnClose(info connection.CloseInfo) {
	r.Publish(Event{
		Kind:      KindClose,
		SessionID: sessionOf(info.Conn),
		At:        info.ClosedAt,
		Code:      info.Code,
		Reason:    info.Reason,
		Local:     info.Local,
	})
}

// OnError implements connection.Handler.
func (r *Relay) OnError(info connection.ErrorInfo) {
	r.Publish(Event{
		Kind:      KindError,
		SessionID: info.SessionID,
		At:        info.At,
		Err:       info.Err,
	})
}

// OnReconnect implements connection.Handler.
func (r *Relay) OnReconnect(info connection.ReconnectInfo) {
	r.Publish(Event{
		Kind:    KindReconnect,
		At:      info.At,
		Attempt: info.Attempt,
		Wait:    info.Wait,
	})
}

// OnMessage implements connection.Handler.
func (r *Relay) OnMessage(conn connection.Conn, msg connection.TimestampedMessage) {
	r.Publish(Event{
		Kind:      KindMessage,
		SessionID: sessionOf(conn),
		At:        msg.ReceivedAt,
		Data:      msg.Data,
	})
}

func sessionOf(conn connection.Conn) string {
	if conn == nil {
		return ""
	}
	return conn.SessionID()
}
