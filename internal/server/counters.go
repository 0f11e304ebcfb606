package server

import (
	"context"
	"math"
	"time"

	"github.com/rickgao/socket-relay/internal/packets"
)

// DefaultSendRate is how many times per second counters are checked.
const DefaultSendRate = 10

// Broadcaster fans a packet out to connected peers.
type Broadcaster interface {
	Broadcast(p packets.ServerPacket) int
}

// Counters holds named counters that track whole seconds since start and
// broadcasts each change.
type Counters struct {
	names []string
	rate  int
	out   Broadcaster
	now   func() time.Time
	start time.Time

	values map[string]float64
}

// NewCounters creates counters starting now. rate is checks per second.
func NewCounters(names []string, rate int, out Broadcaster) *Counters {
	if rate <= 0 {
		rate = DefaultSendRate
	}
	c := &Counters{
		names:  names,
		rate:   rate,
		out:    out,
		now:    time.Now,
		values: make(map[string]float64, len(names)),
	}
	c.start = c.now()
	return c
}

// Tick updates every counter and broadcasts the ones that changed. It
// returns the number of changes.
func (c *Counters) Tick() int {
	v := math.Floor(c.now().Sub(c.start).Seconds())

	changed := 0
	for _, name := range c.names {
		if old, ok := c.values[name]; ok && old == v {
			continue
		}
		c.values[name] = v
		c.out.Broadcast(packets.CounterChanged{Name: name, Value: v})
		changed++
	}
	return changed
}

// Run ticks at the configured rate until ctx is done.
func (c *Counters) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second / time.Duration(c.rate))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.Tick()
		}
	}
}
