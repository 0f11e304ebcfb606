package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/socket-relay/internal/packets"
)

func newTestPeer(user string, buffer int) *peer {
	return &peer{id: uuid.New(), user: user, send: make(chan []byte, buffer)}
}

func TestHub_Broadcast(t *testing.T) {
	hub := NewHub(nil)
	a := newTestPeer("a@example.com", 4)
	b := newTestPeer("b@example.com", 4)
	hub.add(a)
	hub.add(b)

	n := hub.Broadcast(packets.CounterChanged{Name: "foo", Value: 1})
	assert.Equal(t, 2, n)

	for _, p := range []*peer{a, b} {
		select {
		case data := <-p.send:
			assert.JSONEq(t, `{"CounterChanged":{"name":"foo","value":1}}`, string(data))
		default:
			t.Fatalf("peer %s got nothing", p.user)
		}
	}
	assert.ElementsMatch(t, []string{"a@example.com", "b@example.com"}, hub.Users())
}

func TestHub_BroadcastDropsWhenFull(t *testing.T) {
	hub := NewHub(nil)
	slow := newTestPeer("slow@example.com", 1)
	fast := newTestPeer("fast@example.com", 8)
	hub.add(slow)
	hub.add(fast)

	assert.Equal(t, 2, hub.Broadcast(packets.CounterChanged{Name: "foo", Value: 1}))
	assert.Equal(t, 1, hub.Broadcast(packets.CounterChanged{Name: "foo", Value: 2}))

	assert.Len(t, slow.send, 1)
	assert.Len(t, fast.send, 2)
}

func TestHub_Remove(t *testing.T) {
	hub := NewHub(nil)
	p := newTestPeer("dev@example.com", 1)
	hub.add(p)
	require.Equal(t, 1, hub.Len())

	hub.remove(p.id)
	hub.remove(p.id)

	assert.Equal(t, 0, hub.Len())
	_, ok := <-p.send
	assert.False(t, ok, "send channel closed on remove")
	assert.Equal(t, 0, hub.Broadcast(packets.CounterChanged{Name: "foo"}))
}

func TestHub_AddAfterShutdown(t *testing.T) {
	hub := NewHub(nil)
	hub.add(newTestPeer("early@example.com", 1))

	hub.Shutdown()

	assert.False(t, hub.add(newTestPeer("late@example.com", 1)))
	assert.Equal(t, []string{"early@example.com"}, hub.Users())
}

type recordingBroadcaster struct {
	mu   sync.Mutex
	sent []packets.CounterChanged
}

func (r *recordingBroadcaster) Broadcast(p packets.ServerPacket) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, p.(packets.CounterChanged))
	return 1
}

func (r *recordingBroadcaster) take() []packets.CounterChanged {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.sent
	r.sent = nil
	return out
}

func TestCounters_Tick(t *testing.T) {
	out := &recordingBroadcaster{}
	c := NewCounters([]string{"foo", "bar"}, 10, out)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }
	c.start = now

	assert.Equal(t, 2, c.Tick(), "first tick announces every counter")
	assert.Equal(t, []packets.CounterChanged{{Name: "foo", Value: 0}, {Name: "bar", Value: 0}}, out.take())

	now = now.Add(999 * time.Millisecond)
	assert.Equal(t, 0, c.Tick())
	assert.Empty(t, out.take())

	now = now.Add(time.Millisecond)
	assert.Equal(t, 2, c.Tick())
	assert.Equal(t, []packets.CounterChanged{{Name: "foo", Value: 1}, {Name: "bar", Value: 1}}, out.take())

	now = now.Add(2500 * time.Millisecond)
	c.Tick()
	assert.Equal(t, []packets.CounterChanged{{Name: "foo", Value: 3}, {Name: "bar", Value: 3}}, out.take())
}

func TestCounters_Run(t *testing.T) {
	out := &recordingBroadcaster{}
	c := NewCounters([]string{"foo"}, 100, out)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	assert.Eventually(t, func() bool {
		out.mu.Lock()
		defer out.mu.Unlock()
		return len(out.sent) > 0
	}, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestNewCounters_DefaultRate(t *testing.T) {
	c := NewCounters(nil, 0, &recordingBroadcaster{})
	assert.Equal(t, DefaultSendRate, c.rate)
	assert.Equal(t, 0, c.Tick())
}
