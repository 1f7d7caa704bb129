package coop

import (
	"sync"
	"time"
)

// chunkSize is the number of items per node in the fifo linked list. Fixed
// size arrays give cache locality and amortize allocations; exhausted chunks
// are recycled through a pool to avoid GC churn under sustained load.
const chunkSize = 128

// fifo is a chunked linked-list queue. It is not thread-safe: everything
// that touches it runs on the scheduler's single logical thread.
type fifo[E any] struct {
	head   *chunk[E]
	tail   *chunk[E]
	length int
	pool   sync.Pool
}

// chunk is a fixed-size node using readPos/pos cursors for O(1) push and pop
// without shifting.
type chunk[E any] struct {
	items   [chunkSize]E
	next    *chunk[E]
	readPos int
	pos     int
}

func (q *fifo[E]) newChunk() *chunk[E] {
	if c, ok := q.pool.Get().(*chunk[E]); ok {
		return c
	}
	return &chunk[E]{}
}

// putChunk clears item slots before pooling so retained closures and values
// do not leak.
func (q *fifo[E]) putChunk(c *chunk[E]) {
	var zero E
	for i := 0; i < c.pos; i++ {
		c.items[i] = zero
	}
	c.pos = 0
	c.readPos = 0
	c.next = nil
	q.pool.Put(c)
}

func (q *fifo[E]) push(v E) {
	if q.tail == nil {
		q.tail = q.newChunk()
		q.head = q.tail
	}
	if q.tail.pos == len(q.tail.items) {
		next := q.newChunk()
		q.tail.next = next
		q.tail = next
	}
	q.tail.items[q.tail.pos] = v
	q.tail.pos++
	q.length++
}

func (q *fifo[E]) pop() (v E, ok bool) {
	if q.head == nil {
		return v, false
	}

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
			return v, false
		}
		old := q.head
		q.head = q.head.next
		q.putChunk(old)
	}

	if q.head.readPos >= q.head.pos {
		return v, false
	}

	var zero E
	v = q.head.items[q.head.readPos]
	q.head.items[q.head.readPos] = zero
	q.head.readPos++
	q.length--

	if q.head.readPos >= q.head.pos {
		if q.head == q.tail {
			q.head.pos = 0
			q.head.readPos = 0
		} else {
			old := q.head
			q.head = q.head.next
			q.putChunk(old)
		}
	}

	return v, true
}

func (q *fifo[E]) len() int {
	return q.length
}

// timerEntry is one normal-queue item. fn is nilled out when the entry fires
// or is stopped; stopped entries stay in the heap and are discarded lazily
// when popped.
type timerEntry struct {
	when time.Time
	seq  uint64
	fn   func()
}

// timerQueue is a min-heap of *timerEntry ordered by (when, seq). The seq
// tie-break keeps entries with equal eligibility in insertion order.
type timerQueue []*timerEntry

func (h timerQueue) Len() int { return len(h) }

func (h timerQueue) Less(i, j int) bool {
	if h[i].when.Equal(h[j].when) {
		return h[i].seq < h[j].seq
	}
	return h[i].when.Before(h[j].when)
}

func (h timerQueue) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *timerQueue) Push(x any) {
	*h = append(*h, x.(*timerEntry))
}

func (h *timerQueue) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return x
}

// Timer is the handle for a pending normal-queue entry, returned by
// [Scheduler.EnqueueAt] and [Scheduler.EnqueueAfter].
type Timer struct {
	s *Scheduler
	e *timerEntry
}

// Stop cancels the entry, reporting whether it was still pending. Stopping
// an already-fired or already-stopped entry is a no-op returning false. The
// entry is discarded lazily; the heap is not reshuffled.
func (t *Timer) Stop() bool {
	if t == nil || t.e == nil || t.e.fn == nil {
		return false
	}
	t.e.fn = nil
	t.s.timedLive--
	return true
}
