// Error taxonomy for the simulation engine.
//
// Configuration errors are produced by the Builder before a run starts and
// never during one. ErrOutOfRange is surfaced synchronously to the offending
// caller and does not affect run state. Everything else that escapes an event
// handler is fatal: it is stored in the simulator's error slot and forces the
// transition to the Errored terminal state.

package sim

import "errors"

var (
	// ErrQueueClosed is returned when pushing a customer onto a closed queue.
	ErrQueueClosed = errors.New("queue is closed")

	// ErrQueueFull is returned when pushing a customer onto a queue at capacity.
	ErrQueueFull = errors.New("queue is full")

	// ErrQueueEmpty is returned when popping from a queue with no customers.
	ErrQueueEmpty = errors.New("no customers in queue")

	// ErrQueueNotEmpty is returned when closing a queue that still holds customers.
	ErrQueueNotEmpty = errors.New("queue still holds customers")

	// ErrDuplicateArrival indicates a customer was recorded as arrived twice
	// without a departure in between. This is a scheduling bug.
	ErrDuplicateArrival = errors.New("customer already recorded as arrived")

	// ErrUnknownDeparture indicates a departure was recorded for a customer
	// whose arrival was never recorded. This is a scheduling bug.
	ErrUnknownDeparture = errors.New("customer arrival was not recorded")

	// ErrInvalidPrecision is returned for a decimal-places argument outside [0,3].
	ErrInvalidPrecision = errors.New("precision out of range [0,3]")

	// ErrOutOfRange is returned for a queue index outside the configured range.
	ErrOutOfRange = errors.New("queue index out of range")

	// ErrCapacityExhausted means a customer arrived while every queue was at
	// the fixed capacity bound. The simulation cannot continue.
	ErrCapacityExhausted = errors.New("a new customer arrived, no empty slot was found")

	// ErrNoOpenQueue means an arriving customer found no open queue to join.
	// The engine opens all queues at start, so this indicates an invariant
	// violation, not a recoverable condition.
	ErrNoOpenQueue = errors.New("no open queue")
)
