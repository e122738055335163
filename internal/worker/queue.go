package worker

import (
	"sync"
	"sync/atomic"
)

// Queue is the bounded buffer between inbound image events and the
// extraction workers. Enqueue never blocks: when the buffer is full the item
// is dropped and counted, which is deliberate backpressure rather than an
// error. Dequeue blocks until an item exists or the queue is closed.
type Queue struct {
	items     chan Item
	done      chan struct{}
	closeOnce sync.Once

	accepted atomic.Int64
	dropped  atomic.Int64
}

func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		items: make(chan Item, capacity),
		done:  make(chan struct{}),
	}
}

// TryEnqueue offers an item to the queue. It returns false immediately when
// the queue is full or closed; the caller must not retry.
func (q *Queue) TryEnqueue(item Item) bool {
	select {
	case <-q.done:
		q.dropped.Add(1)
		return false
	default:
	}

	select {
	case q.items <- item:
		q.accepted.Add(1)
		return true
	default:
		q.dropped.Add(1)
		return false
	}
}

// Dequeue blocks until an item is available and transfers ownership of it to
// the caller. It returns ok=false once the queue is closed; no item is
// handed out after shutdown begins.
func (q *Queue) Dequeue() (Item, bool) {
	select {
	case <-q.done:
		return Item{}, false
	default:
	}

	select {
	case item := <-q.items:
		return item, true
	case <-q.done:
		return Item{}, false
	}
}

// Close stops the queue from accepting or handing out items. Safe to call
// more than once.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
	})
}

func (q *Queue) Depth() int {
	return len(q.items)
}

func (q *Queue) Capacity() int {
	return cap(q.items)
}

func (q *Queue) Accepted() int64 {
	return q.accepted.Load()
}

func (q *Queue) Dropped() int64 {
	return q.dropped.Load()
}
