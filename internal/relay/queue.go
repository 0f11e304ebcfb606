package relay

import (
	"context"
	"sync"
)

// queue is the unbounded FIFO behind a single subscription. It doubles its
// capacity once it is 70% full, so publishers never wait on a slow reader.
type queue[T any] struct {
	mu       sync.Mutex
	buf      []T
	head     int // read position
	tail     int // write position
	count    int
	capacity int
	closed   bool

	// ready holds at most one wakeup. It is closed when the queue closes.
	ready chan struct{}

	// Stats
	pushed  int64
	popped  int64
	resizes int
}

func newQueue[T any](initialCapacity int) *queue[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	return &queue[T]{
		buf:      make([]T, initialCapacity),
		capacity: initialCapacity,
		ready:    make(chan struct{}, 1),
	}
}

// push appends an item. Returns false if the queue is closed.
func (q *queue[T]) push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	threshold := (q.capacity * 70) / 100
	if threshold < 1 {
		threshold = 1
	}
	if q.count+1 >= threshold {
		q.grow()
	}

	q.buf[q.tail] = item
	q.tail = (q.tail + 1) % q.capacity
	q.count++
	q.pushed++

	q.signal()
	return true
}

// pop blocks until an item is available, the queue is closed and drained
// (ErrClosed), or ctx is done.
func (q *queue[T]) pop(ctx context.Context) (T, error) {
	for {
		q.mu.Lock()
		if q.count > 0 {
			item := q.take()
			if q.count > 0 && !q.closed {
				// Another reader may be parked on the single wakeup slot.
				q.signal()
			}
			q.mu.Unlock()
			return item, nil
		}
		if q.closed {
			q.mu.Unlock()
			var zero T
			return zero, ErrClosed
		}
		ready := q.ready
		q.mu.Unlock()

		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-ready:
		}
	}
}

// tryPop returns the oldest item without blocking.
func (q *queue[T]) tryPop() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.count == 0 {
		var zero T
		return zero, false
	}
	return q.take(), true
}

// close stops further pushes. Items already queued can still be popped.
func (q *queue[T]) close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.ready)
}

func (q *queue[T]) stats() QueueStats {
	q.mu.Lock()
	defer q.mu.Unlock()
	return QueueStats{
		Pending:  q.count,
		Capacity: q.capacity,
		Pushed:   q.pushed,
		Popped:   q.popped,
		Resizes:  q.resizes,
	}
}

// QueueStats describes a subscription's backlog.
type QueueStats struct {
	Pending  int
	Capacity int
	Pushed   int64
	Popped   int64
	Resizes  int
}

// take removes the head item. Must be called with lock held and count > 0.
func (q *queue[T]) take() T {
	item := q.buf[q.head]
	var zero T
	q.buf[q.head] = zero // release the reference for GC
	q.head = (q.head + 1) % q.capacity
	q.count--
	q.popped++
	return item
}

// signal must be called with lock held and the queue open.
func (q *queue[T]) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// grow doubles the capacity. Must be called with lock held.
func (q *queue[T]) grow() {
	newCapacity := q.capacity * 2
	newBuf := make([]T, newCapacity)

	if q.count > 0 {
		if q.head < q.tail {
			copy(newBuf, q.buf[q.head:q.tail])
		} else {
			// Wrapped: [head...end) + [0...tail)
			n := copy(newBuf, q.buf[q.head:])
			copy(newBuf[n:], q.buf[:q.tail])
		}
	}

	q.buf = newBuf
	q.head = 0
	q.tail = q.count
	q.capacity = newCapacity
	q.resizes++
}
