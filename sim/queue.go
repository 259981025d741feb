// Implements the bounded Queue that holds customers waiting to be served.
// Customers are enqueued at the tail on arrival and leave from the head when
// served; reorganization may remove them from the tail instead.

package sim

import (
	"fmt"
	"strings"

	"github.com/gammazero/deque"
)

// Queue represents one bounded FIFO line of customers with an open/closed
// lifecycle. A Queue is created closed and must be opened before customers
// can join it; it can only be closed again once it has drained.
//
// Queue performs no locking of its own. The simulator serializes every
// access with its single engine lock, which keeps multi-queue operations
// (routing, reorganization) atomic without nested locks.
type Queue struct {
	customers deque.Deque[*Customer]
	capacity  int
	open      bool
}

// NewQueue creates a closed Queue with the given capacity.
func NewQueue(capacity int) (*Queue, error) {
	if capacity < 1 {
		return nil, fmt.Errorf("queue capacity must be at least 1, got %d", capacity)
	}
	return &Queue{capacity: capacity}, nil
}

// Open opens the queue. Opening an already open queue has no effect.
func (q *Queue) Open() {
	q.open = true
}

// Close closes the queue. It returns ErrQueueNotEmpty if customers are still
// waiting; closing an already closed queue has no effect.
func (q *Queue) Close() error {
	if q.customers.Len() > 0 {
		return ErrQueueNotEmpty
	}
	q.open = false
	return nil
}

// IsOpen reports whether the queue is open.
func (q *Queue) IsOpen() bool {
	return q.open
}

// Len returns the number of customers currently in the queue.
func (q *Queue) Len() int {
	return q.customers.Len()
}

// Cap returns the capacity of the queue.
func (q *Queue) Cap() int {
	return q.capacity
}

// PushBack appends a customer at the tail of the queue.
func (q *Queue) PushBack(c *Customer) error {
	if !q.open {
		return ErrQueueClosed
	}
	if q.customers.Len() == q.capacity {
		return ErrQueueFull
	}
	q.customers.PushBack(c)
	return nil
}

// PopFront removes and returns the customer at the head of the queue, the
// next one to be served.
func (q *Queue) PopFront() (*Customer, error) {
	if q.customers.Len() == 0 {
		return nil, ErrQueueEmpty
	}
	return q.customers.PopFront(), nil
}

// PopBack removes and returns the customer at the tail of the queue. Only
// reorganization removes from the tail; taking the most recently joined
// customer preserves the FIFO order of everyone ahead.
func (q *Queue) PopBack() (*Customer, error) {
	if q.customers.Len() == 0 {
		return nil, ErrQueueEmpty
	}
	return q.customers.PopBack(), nil
}

// Front returns the customer at the head of the queue without removing it.
// Returns nil if the queue is empty.
func (q *Queue) Front() *Customer {
	if q.customers.Len() == 0 {
		return nil
	}
	return q.customers.Front()
}

func (q *Queue) String() string {
	var sb strings.Builder
	sb.WriteString("[")
	for i := 0; i < q.customers.Len(); i++ {
		sb.WriteString(fmt.Sprint(q.customers.At(i).ID()))
		if i < q.customers.Len()-1 {
			sb.WriteString(" ")
		}
	}
	sb.WriteString("]")
	return sb.String()
}
