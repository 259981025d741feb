// Subscriber fan-out for simulator notifications.

package sim

import (
	"sync"

	"github.com/google/uuid"
)

// notifier delivers messages to registered subscribers. Delivery is
// synchronous and fire-and-forget: publish invokes each callback in
// registration order and does not wait for any acknowledgment. The simulator
// always publishes after releasing the engine lock, so callbacks may call
// back into simulator queries and commands freely, including commands that
// emit messages of their own.
type notifier struct {
	mu   sync.RWMutex
	subs []subscription

	// batchMu guards the pending batch queue and the draining flag. It is
	// never held while a callback runs: publish appends its batch and, if no
	// drain is in progress, becomes the drainer. A publish re-entered from a
	// callback just enqueues; the outer drain delivers that batch next, so
	// the messages of one event are never interleaved with another's.
	batchMu  sync.Mutex
	batches  [][]Message
	draining bool
}

type subscription struct {
	token uuid.UUID
	fn    func(Message)
}

// subscribe registers fn and returns a token that unsubscribes it.
func (n *notifier) subscribe(fn func(Message)) uuid.UUID {
	n.mu.Lock()
	defer n.mu.Unlock()

	token := uuid.New()
	n.subs = append(n.subs, subscription{token: token, fn: fn})
	return token
}

// unsubscribe removes the subscriber registered under token, if any.
func (n *notifier) unsubscribe(token uuid.UUID) {
	n.mu.Lock()
	defer n.mu.Unlock()

	for i, sub := range n.subs {
		if sub.token == token {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
}

// publish delivers msgs, in order, to every subscriber. The subscriber list
// is snapshotted per batch so callbacks may subscribe or unsubscribe while a
// publish is in progress.
func (n *notifier) publish(msgs ...Message) {
	if len(msgs) == 0 {
		return
	}

	n.batchMu.Lock()
	n.batches = append(n.batches, msgs)
	if n.draining {
		// Another publish on this or another goroutine is already
		// delivering; it will pick this batch up.
		n.batchMu.Unlock()
		return
	}
	n.draining = true

	for len(n.batches) > 0 {
		batch := n.batches[0]
		n.batches = n.batches[1:]
		n.batchMu.Unlock()

		n.mu.RLock()
		subs := make([]subscription, len(n.subs))
		copy(subs, n.subs)
		n.mu.RUnlock()

		for _, msg := range batch {
			for _, sub := range subs {
				sub.fn(msg)
			}
		}

		n.batchMu.Lock()
	}
	n.draining = false
	n.batchMu.Unlock()
}
