// The simulation engine. Owns the queues, the pending-close set, the
// statistics and the timers that drive arrivals, service completions and
// reorganizations. All three timer families fire on their own goroutines and
// may overlap with externally invoked commands; a single engine lock
// serializes every state mutation. Notifications are published after the
// lock is released.

package sim

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle state of a Simulator.
type State int

const (
	StateNotStarted State = iota
	StateRunning
	StateFinished
	StateStopped
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateRunning:
		return "running"
	case StateFinished:
		return "finished"
	case StateStopped:
		return "stopped"
	case StateErrored:
		return "errored"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// Terminal reports whether s is one of the absorbing end states. Once a
// simulator is terminal, commands become no-ops; queries stay valid.
func (s State) Terminal() bool {
	return s == StateFinished || s == StateStopped || s == StateErrored
}

// Simulator is the core engine object. It holds the queue array, the
// pending-close set, the statistics and the event timers, and exposes the
// query/command surface that external callers (a display layer, a CLI) use.
// Build one through a Builder; a Simulator runs exactly once.
type Simulator struct {
	cfg  Config
	unit time.Duration // wall-clock duration of one simulated second

	// mu serializes every read-modify-write across queues, the pending-close
	// set and the run state. Held only for the duration of one event's
	// handling; never while publishing notifications.
	mu            sync.Mutex
	state         State
	queues        []*Queue
	closeRequests map[int]struct{}
	runErr        error
	startTime     time.Time

	rng *rand.Rand // guarded by mu; all draws happen inside handlers

	arrivalTimers []*time.Timer
	serviceTimers map[int]*time.Timer
	reorgTimer    *time.Timer

	stats    *Statistics
	notifier notifier
}

func newSimulator(cfg Config, unit time.Duration) *Simulator {
	s := &Simulator{
		cfg:           cfg,
		unit:          unit,
		state:         StateNotStarted,
		queues:        make([]*Queue, cfg.Queues),
		closeRequests: make(map[int]struct{}),
		rng:           rand.New(rand.NewSource(cfg.Seed)),
		serviceTimers: make(map[int]*time.Timer),
		stats:         newStatistics(cfg.Queues, unit),
	}
	for i := range s.queues {
		// capacity was validated by the Builder, NewQueue cannot fail here
		s.queues[i], _ = NewQueue(cfg.Capacity)
	}
	return s
}

// Config returns the immutable configuration of this run.
func (s *Simulator) Config() Config {
	return s.cfg
}

// Stats returns the statistics aggregator for this run. The aggregator does
// its own locking, so it may be queried live while the simulation runs.
func (s *Simulator) Stats() *Statistics {
	return s.stats
}

// Subscribe registers fn to receive every notification the simulator emits,
// and returns a token for Unsubscribe. Delivery is synchronous and
// fire-and-forget; fn must not block.
func (s *Simulator) Subscribe(fn func(Message)) uuid.UUID {
	return s.notifier.subscribe(fn)
}

// Unsubscribe removes the subscriber registered under token.
func (s *Simulator) Unsubscribe(token uuid.UUID) {
	s.notifier.unsubscribe(token)
}

// Simulate starts the run: resets the customer ID counter, opens all queues,
// seeds one arrival timer per configured customer and the recurring
// reorganization timer, and emits MsgStarted. It fails if the simulator has
// already been started.
func (s *Simulator) Simulate() error {
	s.mu.Lock()
	if s.state != StateNotStarted {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("cannot start simulation from state %q", state)
	}

	ResetCustomerIDs()
	s.state = StateRunning

	for i, q := range s.queues {
		q.Open()
		s.stats.SetQueueIdle(i, true)
	}

	// Seed the arrival schedule up front: each arrival lands a uniformly
	// random offset in [MinArrival, MaxArrival] after the previous one.
	offset := time.Duration(0)
	for i := 0; i < s.cfg.Customers; i++ {
		step := s.rng.Intn(s.cfg.MaxArrival-s.cfg.MinArrival+1) + s.cfg.MinArrival
		offset += time.Duration(step) * s.unit
		s.arrivalTimers = append(s.arrivalTimers, time.AfterFunc(offset, s.handleArrival))
	}

	if s.cfg.Reorganization > 0 {
		period := time.Duration(s.cfg.Reorganization) * s.unit
		s.reorgTimer = time.AfterFunc(period, s.handleReorganization)
	}

	s.startTime = time.Now()
	s.mu.Unlock()

	logrus.Infof("simulation started: %d queues, %d customers", s.cfg.Queues, s.cfg.Customers)
	s.notifier.publish(MsgStarted)
	return nil
}

// Stop halts a running simulation: emits MsgStopped, cancels every pending
// timer and finalizes the idle accounting of all queues. Stopping a
// simulator that is not running has no effect.
func (s *Simulator) Stop() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	s.state = StateStopped
	s.shutdownLocked()
	s.mu.Unlock()

	logrus.Info("simulation stopped")
	s.notifier.publish(MsgStopped)
}

// State returns the current lifecycle state.
func (s *Simulator) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error that forced the simulator into the Errored state,
// or nil.
func (s *Simulator) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runErr
}

// QueueCount returns the number of queues in this run.
func (s *Simulator) QueueCount() int {
	return s.cfg.Queues
}

// IsQueueOpen reports whether queue i is open.
func (s *Simulator) IsQueueOpen(i int) (bool, error) {
	if i < 0 || i >= s.cfg.Queues {
		return false, ErrOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[i].IsOpen(), nil
}

// QueueSize returns the number of customers currently waiting at queue i.
func (s *Simulator) QueueSize(i int) (int, error) {
	if i < 0 || i >= s.cfg.Queues {
		return 0, ErrOutOfRange
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queues[i].Len(), nil
}

// ElapsedSeconds returns the simulated seconds elapsed since Simulate.
func (s *Simulator) ElapsedSeconds() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.startTime.IsZero() {
		return 0
	}
	return int(time.Since(s.startTime) / s.unit)
}

// OpenQueue opens queue i and cancels any pending close request for it.
// Opening an already open queue has no effect. The command is a no-op unless
// the simulation is running.
func (s *Simulator) OpenQueue(i int) error {
	if i < 0 || i >= s.cfg.Queues {
		return ErrOutOfRange
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}

	delete(s.closeRequests, i)

	var msgs []Message
	if !s.queues[i].IsOpen() {
		s.queues[i].Open()
		s.stats.SetQueueIdle(i, true)
		msgs = append(msgs, MsgQueueOpened(i))
		logrus.Infof("queue %d opened", i)
	}
	s.mu.Unlock()

	s.notifier.publish(msgs...)
	return nil
}

// RequestClose asks queue i to close as soon as possible. An empty queue
// closes immediately; an occupied one is added to the pending-close set and
// closes automatically once it drains. Customers keep being routed to a
// queue with a pending close until it actually closes. Requesting a close
// that is already pending has no effect. The command is a no-op unless the
// simulation is running.
func (s *Simulator) RequestClose(i int) error {
	if i < 0 || i >= s.cfg.Queues {
		return ErrOutOfRange
	}

	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return nil
	}

	if _, pending := s.closeRequests[i]; pending {
		s.mu.Unlock()
		return nil
	}

	var msgs []Message
	if s.queues[i].Len() == 0 {
		if s.queues[i].IsOpen() {
			s.stats.SetQueueIdle(i, false)
			if err := s.queues[i].Close(); err == nil {
				msgs = append(msgs, MsgQueueClosed(i))
				logrus.Infof("queue %d closed", i)
			}
		}
	} else {
		s.closeRequests[i] = struct{}{}
		logrus.Infof("queue %d scheduled to close once drained", i)
	}
	s.mu.Unlock()

	s.notifier.publish(msgs...)
	return nil
}

// === event handlers ===

// handleArrival fires once per scheduled arrival.
func (s *Simulator) handleArrival() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	msgs, err := s.arriveLocked()
	if err != nil {
		msgs = append(msgs, s.failLocked(err))
	}
	s.mu.Unlock()

	s.notifier.publish(msgs...)
}

func (s *Simulator) arriveLocked() ([]Message, error) {
	if s.allQueuesFullLocked() {
		return nil, ErrCapacityExhausted
	}

	cust, err := NewCustomer(s.rng, s.cfg.MinService, s.cfg.MaxService)
	if err != nil {
		return nil, err
	}

	target := s.emptiestQueueLocked()
	if target < 0 {
		return nil, ErrNoOpenQueue
	}

	var msgs []Message

	if s.queues[target].Len() == 0 {
		s.stats.SetQueueIdle(target, false)
	}
	if err := s.queues[target].PushBack(cust); err != nil {
		return msgs, fmt.Errorf("routing %v to queue %d: %w", cust, target, err)
	}
	msgs = append(msgs, MsgArrived(cust.ID(), target))
	logrus.Infof("%v arrived at queue %d", cust, target)

	if err := s.stats.RecordArrival(cust); err != nil {
		return msgs, err
	}

	// A sole occupant is served immediately; everyone else is picked up when
	// the customer ahead of them completes.
	if s.queues[target].Len() == 1 {
		s.scheduleServiceLocked(target, cust)
	}

	if s.allQueuesFullLocked() {
		msgs = append(msgs, MsgAllQueuesFull)
		logrus.Warn("all queues are at the capacity bound")
	}
	return msgs, nil
}

// handleService fires when the customer at the head of queue i completes
// its service.
func (s *Simulator) handleService(i int) {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	msgs, err := s.serveLocked(i)
	if err != nil {
		msgs = append(msgs, s.failLocked(err))
	}
	s.mu.Unlock()

	s.notifier.publish(msgs...)
}

func (s *Simulator) serveLocked(i int) ([]Message, error) {
	cust, err := s.queues[i].PopFront()
	if err != nil {
		return nil, fmt.Errorf("service completion at queue %d: %w", i, err)
	}

	if err := s.stats.RecordDeparture(cust); err != nil {
		return nil, err
	}
	msgs := []Message{MsgServed(cust.ID(), i)}
	logrus.Infof("%v served at queue %d", cust, i)

	if next := s.queues[i].Front(); next != nil {
		s.scheduleServiceLocked(i, next)
	} else {
		// The timer that fired this completion is spent; keep the map
		// limited to armed timers.
		delete(s.serviceTimers, i)
	}

	if s.queues[i].Len() == 0 {
		if _, pending := s.closeRequests[i]; pending {
			if err := s.queues[i].Close(); err != nil {
				return msgs, err
			}
			delete(s.closeRequests, i)
			s.stats.SetQueueIdle(i, false)
			msgs = append(msgs, MsgQueueClosed(i))
			logrus.Infof("queue %d drained and closed", i)
		} else {
			s.stats.SetQueueIdle(i, true)
		}
	}

	if s.stats.Processed() == s.cfg.Customers {
		s.state = StateFinished
		s.shutdownLocked()
		msgs = append(msgs, MsgFinished)
		logrus.Infof("simulation finished: %d customers processed", s.cfg.Customers)
	}
	return msgs, nil
}

// handleReorganization fires periodically and rebalances customers from the
// largest open queue toward the smallest.
func (s *Simulator) handleReorganization() {
	s.mu.Lock()
	if s.state != StateRunning {
		s.mu.Unlock()
		return
	}
	msgs, err := s.reorganizeLocked()
	if err != nil {
		msgs = append(msgs, s.failLocked(err))
	} else if s.cfg.Reorganization > 0 {
		period := time.Duration(s.cfg.Reorganization) * s.unit
		s.reorgTimer = time.AfterFunc(period, s.handleReorganization)
	}
	s.mu.Unlock()

	s.notifier.publish(msgs...)
}

func (s *Simulator) reorganizeLocked() ([]Message, error) {
	if s.openQueuesLocked() < 2 {
		return nil, nil
	}

	moved := false
	minIdx, minSize := s.extremeQueueLocked(false)
	maxIdx, maxSize := s.extremeQueueLocked(true)

	for maxSize-minSize > 2 {
		cust, err := s.queues[maxIdx].PopBack()
		if err != nil {
			return nil, err
		}
		if err := s.queues[minIdx].PushBack(cust); err != nil {
			return nil, fmt.Errorf("moving %v from queue %d to %d: %w", cust, maxIdx, minIdx, err)
		}
		s.stats.SetQueueIdle(minIdx, false)

		// A customer moved onto an empty queue starts service from scratch:
		// its full service need is used, not a remainder. Accepted
		// simplification.
		if s.queues[minIdx].Len() == 1 {
			s.scheduleServiceLocked(minIdx, cust)
		}

		moved = true
		logrus.Debugf("%v moved from queue %d to queue %d", cust, maxIdx, minIdx)

		minIdx, minSize = s.extremeQueueLocked(false)
		maxIdx, maxSize = s.extremeQueueLocked(true)
	}

	if !moved {
		return nil, nil
	}
	logrus.Info("customers reorganized between queues")
	return []Message{MsgReorganized}, nil
}

// === helpers, engine lock held ===

// failLocked records err as the run's terminal error, cancels everything and
// transitions to Errored. The caller publishes the returned message.
func (s *Simulator) failLocked(err error) Message {
	logrus.Errorf("simulation error: %v", err)
	s.runErr = err
	s.state = StateErrored
	s.shutdownLocked()
	return MsgErrored
}

// shutdownLocked cancels all pending timers and finalizes idle accounting.
// Callbacks already in flight observe the terminal state and no-op.
func (s *Simulator) shutdownLocked() {
	for _, t := range s.arrivalTimers {
		t.Stop()
	}
	s.arrivalTimers = nil
	for i, t := range s.serviceTimers {
		t.Stop()
		delete(s.serviceTimers, i)
	}
	if s.reorgTimer != nil {
		s.reorgTimer.Stop()
		s.reorgTimer = nil
	}
	for i := range s.queues {
		s.stats.SetQueueIdle(i, false)
	}
}

// scheduleServiceLocked arms the service-completion timer of queue i for
// cust, which just became the head of the queue.
func (s *Simulator) scheduleServiceLocked(i int, cust *Customer) {
	d := time.Duration(cust.ServiceNeed()) * s.unit
	s.serviceTimers[i] = time.AfterFunc(d, func() { s.handleService(i) })
}

// allQueuesFullLocked reports whether every queue holds at least
// fullThreshold customers. The bound is fixed, independent of the configured
// per-queue capacity.
func (s *Simulator) allQueuesFullLocked() bool {
	for _, q := range s.queues {
		if q.Len() < fullThreshold {
			return false
		}
	}
	return true
}

// emptiestQueueLocked returns the index of the open queue with the fewest
// customers, lowest index winning ties, or -1 if no queue is open.
func (s *Simulator) emptiestQueueLocked() int {
	best := -1
	bestSize := 0
	for i, q := range s.queues {
		if !q.IsOpen() {
			continue
		}
		if best < 0 || q.Len() < bestSize {
			best = i
			bestSize = q.Len()
		}
	}
	return best
}

// openQueuesLocked counts the currently open queues.
func (s *Simulator) openQueuesLocked() int {
	n := 0
	for _, q := range s.queues {
		if q.IsOpen() {
			n++
		}
	}
	return n
}

// extremeQueueLocked returns the index and size of the open queue with the
// largest (max=true) or smallest (max=false) size. Ties go to the first
// index in scan order. Callers must ensure at least one queue is open.
func (s *Simulator) extremeQueueLocked(max bool) (int, int) {
	idx, size := -1, 0
	for i, q := range s.queues {
		if !q.IsOpen() {
			continue
		}
		if idx < 0 || (max && q.Len() > size) || (!max && q.Len() < size) {
			idx = i
			size = q.Len()
		}
	}
	return idx, size
}
