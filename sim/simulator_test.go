package sim

import (
	"errors"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

// recorder collects every published message in order and signals when a
// terminal message arrives.
type recorder struct {
	mu   sync.Mutex
	msgs []Message
	once sync.Once
	done chan struct{}
}

func newRecorder() *recorder {
	return &recorder{done: make(chan struct{})}
}

func (r *recorder) record(m Message) {
	r.mu.Lock()
	r.msgs = append(r.msgs, m)
	r.mu.Unlock()

	switch m {
	case MsgFinished, MsgStopped, MsgErrored:
		r.once.Do(func() { close(r.done) })
	}
}

func (r *recorder) messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *recorder) count(m Message) int {
	n := 0
	for _, got := range r.messages() {
		if got == m {
			n++
		}
	}
	return n
}

func (r *recorder) waitTerminal(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(timeout):
		t.Fatalf("no terminal message within %v; messages so far: %v", timeout, r.messages())
	}
}

// forceRunning puts a freshly built simulator into the running state with all
// queues open, without arming any timers. Tests drive the event handlers
// directly from here.
func forceRunning(s *Simulator) {
	s.mu.Lock()
	s.state = StateRunning
	s.startTime = time.Now()
	for _, q := range s.queues {
		q.Open()
	}
	s.mu.Unlock()
}

func TestSimulator_SingleCustomerLifecycle(t *testing.T) {
	// GIVEN 1 queue, 1 customer, arrival and service both exactly 1 second
	s, err := NewBuilder().
		Queues(1).
		Capacity(10).
		Customers(1).
		ArrivalInterval(1, 1).
		ServiceInterval(1, 1).
		Reorganization(0).
		clockUnit(20 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)

	// WHEN the simulation runs to completion
	if err := s.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	rec.waitTerminal(t, 5*time.Second)

	// THEN the messages arrive in exactly the canonical order
	want := []Message{MsgStarted, MsgArrived(1, 0), MsgServed(1, 0), MsgFinished}
	got := rec.messages()
	if len(got) != len(want) {
		t.Fatalf("messages: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("messages[%d]: got %v, want %v", i, got[i], want[i])
		}
	}

	// AND the run is finished with one processed customer
	if s.State() != StateFinished {
		t.Errorf("State: got %v, want finished", s.State())
	}
	if s.Stats().Processed() != 1 {
		t.Errorf("Processed: got %d, want 1", s.Stats().Processed())
	}

	// AND the queue accrued idle time before the arrival
	idle, err := s.Stats().QueueIdleTotal(0, 3)
	if err != nil {
		t.Fatalf("QueueIdleTotal: %v", err)
	}
	if idle <= 0 {
		t.Errorf("QueueIdleTotal: got %v, want > 0", idle)
	}
}

func TestSimulator_PendingCloseEmittedAfterDrain(t *testing.T) {
	// GIVEN 1 queue with two customers queued up behind each other
	s, err := NewBuilder().
		Queues(1).
		Customers(2).
		ArrivalInterval(1, 1).
		ServiceInterval(3, 3).
		Reorganization(0).
		clockUnit(30 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)

	if err := s.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	// WHEN a close is requested while both customers are still waiting
	time.Sleep(75 * time.Millisecond) // both arrivals have fired by now
	if err := s.RequestClose(0); err != nil {
		t.Fatalf("RequestClose: %v", err)
	}
	if rec.count(MsgQueueClosed(0)) != 0 {
		t.Fatal("queue closed while still occupied")
	}

	// THEN the close fires exactly once, right after the final departure
	rec.waitTerminal(t, 5*time.Second)
	got := rec.messages()

	if n := rec.count(MsgQueueClosed(0)); n != 1 {
		t.Fatalf("close messages: got %d, want 1 (messages: %v)", n, got)
	}
	closedAt := -1
	lastServed := -1
	for i, m := range got {
		if m == MsgQueueClosed(0) {
			closedAt = i
		}
		if strings.HasPrefix(string(m), "C|") && strings.Contains(string(m), "|L|") {
			lastServed = i
		}
	}
	if closedAt != lastServed+1 {
		t.Errorf("close at index %d, want immediately after last departure at %d (messages: %v)",
			closedAt, lastServed, got)
	}
	if got[len(got)-1] != MsgFinished {
		t.Errorf("final message: got %v, want %v", got[len(got)-1], MsgFinished)
	}
}

func TestSimulator_CapacityExhaustionIsFatal(t *testing.T) {
	// GIVEN 10 queues driven to the fixed capacity bound by forced arrivals
	s, err := NewBuilder().
		Queues(10).
		Capacity(10).
		Customers(200).
		Reorganization(0).
		clockUnit(time.Minute). // keeps service timers from firing mid-test
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	forceRunning(s)

	for i := 0; i < 100; i++ {
		s.handleArrival()
	}
	for i := 0; i < 10; i++ {
		size, _ := s.QueueSize(i)
		if size != 10 {
			t.Fatalf("queue %d size after fill: got %d, want 10", i, size)
		}
	}
	if rec.count(MsgAllQueuesFull) != 1 {
		t.Fatalf("all-full messages after fill: got %d, want 1", rec.count(MsgAllQueuesFull))
	}

	// WHEN one more customer arrives
	s.handleArrival()

	// THEN the simulation errors out and stops scheduling
	if s.State() != StateErrored {
		t.Fatalf("State: got %v, want errored", s.State())
	}
	if !errors.Is(s.Err(), ErrCapacityExhausted) {
		t.Errorf("Err: got %v, want ErrCapacityExhausted", s.Err())
	}
	got := rec.messages()
	if got[len(got)-1] != MsgErrored {
		t.Errorf("final message: got %v, want %v", got[len(got)-1], MsgErrored)
	}

	// AND further events are no-ops
	before := len(got)
	s.handleArrival()
	s.handleService(0)
	if len(rec.messages()) != before {
		t.Error("events after the errored state still produced messages")
	}

	// AND all pending timers were released
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.serviceTimers) != 0 || len(s.arrivalTimers) != 0 || s.reorgTimer != nil {
		t.Error("timers survived the errored transition")
	}
}

func TestSimulator_NoOpenQueueIsFatal(t *testing.T) {
	// GIVEN a running simulator whose queues are all still closed
	s, err := NewBuilder().Queues(3).Customers(5).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)

	s.mu.Lock()
	s.state = StateRunning
	s.startTime = time.Now()
	s.mu.Unlock()

	// WHEN a customer arrives
	s.handleArrival()

	// THEN the invariant violation is fatal
	if s.State() != StateErrored {
		t.Fatalf("State: got %v, want errored", s.State())
	}
	if !errors.Is(s.Err(), ErrNoOpenQueue) {
		t.Errorf("Err: got %v, want ErrNoOpenQueue", s.Err())
	}
	if rec.count(MsgErrored) != 1 {
		t.Errorf("error messages: got %d, want 1", rec.count(MsgErrored))
	}
}

func TestSimulator_ReorganizationBalancesQueues(t *testing.T) {
	// GIVEN two open queues sized 5 and 0
	s, err := NewBuilder().Queues(2).Capacity(10).Customers(50).
		Reorganization(1).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	forceRunning(s)

	s.mu.Lock()
	for id := 1; id <= 5; id++ {
		s.queues[0].PushBack(&Customer{id: id, serviceNeed: 30})
	}
	s.mu.Unlock()

	// WHEN one reorganization pass runs
	s.handleReorganization()

	// THEN customers moved, tail to tail, until the gap closed to at most 2
	size0, _ := s.QueueSize(0)
	size1, _ := s.QueueSize(1)
	if size0 != 3 || size1 != 2 {
		t.Errorf("sizes after reorganization: got %d/%d, want 3/2", size0, size1)
	}
	if n := rec.count(MsgReorganized); n != 1 {
		t.Errorf("reorganization messages: got %d, want 1", n)
	}
	// the head of the donor queue never moved
	s.mu.Lock()
	if s.queues[0].Front().ID() != 1 {
		t.Errorf("queue 0 head: got %d, want 1", s.queues[0].Front().ID())
	}
	s.mu.Unlock()

	s.Stop()
}

func TestSimulator_ReorganizationNoOpCases(t *testing.T) {
	// GIVEN two open queues with a gap of exactly 2
	s, err := NewBuilder().Queues(2).Capacity(10).Customers(50).
		Reorganization(1).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	forceRunning(s)

	s.mu.Lock()
	s.queues[0].PushBack(&Customer{id: 1, serviceNeed: 30})
	s.queues[0].PushBack(&Customer{id: 2, serviceNeed: 30})
	s.mu.Unlock()

	// WHEN a pass runs
	s.handleReorganization()

	// THEN nothing moves and no message is emitted
	size0, _ := s.QueueSize(0)
	size1, _ := s.QueueSize(1)
	if size0 != 2 || size1 != 0 {
		t.Errorf("sizes: got %d/%d, want 2/0", size0, size1)
	}
	if rec.count(MsgReorganized) != 0 {
		t.Error("reorganization message emitted for a gap of 2")
	}

	// AND a pass with fewer than two open queues is a no-op too
	s.mu.Lock()
	s.queues[1].Close()
	s.mu.Unlock()
	s.handleReorganization()
	if rec.count(MsgReorganized) != 0 {
		t.Error("reorganization message emitted with a single open queue")
	}

	s.Stop()
}

func TestSimulator_ReorganizationGapInvariant(t *testing.T) {
	// GIVEN four open queues with wildly uneven sizes
	s, err := NewBuilder().Queues(4).Capacity(10).Customers(50).
		Reorganization(1).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	forceRunning(s)

	id := 0
	fill := []int{9, 0, 5, 1}
	s.mu.Lock()
	for qi, n := range fill {
		for j := 0; j < n; j++ {
			id++
			s.queues[qi].PushBack(&Customer{id: id, serviceNeed: 30})
		}
	}
	s.mu.Unlock()

	// WHEN one pass runs
	s.handleReorganization()

	// THEN every pair of open queues differs by at most 2, and nobody was
	// lost or duplicated
	sizes := make([]int, 4)
	total := 0
	for i := range sizes {
		sizes[i], _ = s.QueueSize(i)
		total += sizes[i]
	}
	if total != 15 {
		t.Fatalf("total customers after reorganization: got %d, want 15", total)
	}
	for a := 0; a < 4; a++ {
		for b := a + 1; b < 4; b++ {
			if diff := sizes[a] - sizes[b]; diff > 2 || diff < -2 {
				t.Errorf("queues %d and %d differ by more than 2: sizes %v", a, b, sizes)
			}
		}
	}

	s.Stop()
}

func TestSimulator_RequestCloseOnEmptyQueue(t *testing.T) {
	// GIVEN a running simulator with two open, empty queues
	s, err := NewBuilder().Queues(2).Customers(5).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	forceRunning(s)

	// WHEN a close is requested on an empty queue
	if err := s.RequestClose(1); err != nil {
		t.Fatalf("RequestClose: %v", err)
	}

	// THEN it closes immediately
	open, _ := s.IsQueueOpen(1)
	if open {
		t.Error("queue 1 should be closed")
	}
	if rec.count(MsgQueueClosed(1)) != 1 {
		t.Errorf("close messages: got %d, want 1", rec.count(MsgQueueClosed(1)))
	}

	// AND a repeated request on the now-closed queue emits nothing more
	s.RequestClose(1)
	if rec.count(MsgQueueClosed(1)) != 1 {
		t.Error("repeated close request emitted another message")
	}

	// AND reopening emits exactly one open message
	if err := s.OpenQueue(1); err != nil {
		t.Fatalf("OpenQueue: %v", err)
	}
	open, _ = s.IsQueueOpen(1)
	if !open {
		t.Error("queue 1 should be open again")
	}
	if rec.count(MsgQueueOpened(1)) != 1 {
		t.Errorf("open messages: got %d, want 1", rec.count(MsgQueueOpened(1)))
	}

	s.Stop()
}

func TestSimulator_OpenQueueCancelsPendingClose(t *testing.T) {
	// GIVEN a running simulator with a pending close on an occupied queue
	s, err := NewBuilder().Queues(2).Customers(5).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	forceRunning(s)

	cust := &Customer{id: 1, serviceNeed: 30}
	s.mu.Lock()
	s.queues[1].PushBack(cust)
	s.stats.RecordArrival(cust)
	s.mu.Unlock()

	if err := s.RequestClose(1); err != nil {
		t.Fatalf("RequestClose: %v", err)
	}

	// WHEN the queue is re-opened before it drains
	if err := s.OpenQueue(1); err != nil {
		t.Fatalf("OpenQueue: %v", err)
	}

	// THEN draining the queue does not close it
	s.handleService(1)
	open, _ := s.IsQueueOpen(1)
	if !open {
		t.Error("queue 1 closed despite the cancelled close request")
	}
	if rec.count(MsgQueueClosed(1)) != 0 {
		t.Error("close message emitted despite the cancelled close request")
	}
	if rec.count(MsgServed(1, 1)) != 1 {
		t.Errorf("served messages: got %d, want 1", rec.count(MsgServed(1, 1)))
	}

	s.Stop()
}

func TestSimulator_SubscriberMayIssueCommands(t *testing.T) {
	// GIVEN a running simulator with a subscriber that reopens queue 0
	// whenever it sees it close
	s, err := NewBuilder().Queues(2).Customers(5).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)
	s.Subscribe(func(m Message) {
		if m == MsgQueueClosed(0) {
			s.OpenQueue(0)
		}
	})
	forceRunning(s)

	// WHEN a close request lands from another goroutine
	done := make(chan error, 1)
	go func() { done <- s.RequestClose(0) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("RequestClose: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("RequestClose did not return; a command issued from a subscriber blocked delivery")
	}

	// THEN the reaction ran and left the queue open again
	open, _ := s.IsQueueOpen(0)
	if !open {
		t.Error("queue 0 should have been reopened by the subscriber")
	}
	got := rec.messages()
	closedAt, openedAt := -1, -1
	for i, m := range got {
		switch m {
		case MsgQueueClosed(0):
			closedAt = i
		case MsgQueueOpened(0):
			openedAt = i
		}
	}
	if closedAt < 0 || openedAt < 0 || openedAt < closedAt {
		t.Errorf("expected close then open in order, got %v", got)
	}

	s.Stop()
}

func TestSimulator_DrainedQueueReleasesServiceTimer(t *testing.T) {
	// GIVEN a running simulator with one customer at queue 1 and its
	// service timer armed
	s, err := NewBuilder().Queues(2).Customers(5).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	forceRunning(s)

	cust := &Customer{id: 1, serviceNeed: 30}
	s.mu.Lock()
	s.queues[1].PushBack(cust)
	s.stats.RecordArrival(cust)
	s.scheduleServiceLocked(1, cust)
	_, armed := s.serviceTimers[1]
	s.mu.Unlock()
	if !armed {
		t.Fatal("service timer for queue 1 was not armed")
	}

	// WHEN the service completes and drains the queue
	s.handleService(1)

	// THEN the spent timer entry is gone
	s.mu.Lock()
	_, armed = s.serviceTimers[1]
	s.mu.Unlock()
	if armed {
		t.Error("service timer entry kept for a drained queue")
	}

	s.Stop()
}

func TestSimulator_StopCancelsFutureScheduling(t *testing.T) {
	// GIVEN a running simulation
	s, err := NewBuilder().
		Queues(2).
		Customers(5).
		ArrivalInterval(1, 1).
		ServiceInterval(5, 5).
		Reorganization(0).
		clockUnit(20 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)

	if err := s.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	// WHEN it is stopped
	s.Stop()

	// THEN the terminal message is the stop and no further events fire
	if s.State() != StateStopped {
		t.Fatalf("State: got %v, want stopped", s.State())
	}
	got := rec.messages()
	if got[len(got)-1] != MsgStopped {
		t.Errorf("final message: got %v, want %v", got[len(got)-1], MsgStopped)
	}

	before := len(got)
	time.Sleep(80 * time.Millisecond)
	if after := len(rec.messages()); after != before {
		t.Errorf("messages kept arriving after stop: %v", rec.messages()[before:])
	}

	// AND queries remain valid while commands are no-ops
	if _, err := s.QueueSize(0); err != nil {
		t.Errorf("QueueSize after stop: %v", err)
	}
	if err := s.OpenQueue(0); err != nil {
		t.Errorf("OpenQueue after stop: %v", err)
	}
	if err := s.RequestClose(1); err != nil {
		t.Errorf("RequestClose after stop: %v", err)
	}
	if len(rec.messages()) != before {
		t.Error("commands after stop emitted messages")
	}

	// AND a second stop is a no-op
	s.Stop()
	if rec.count(MsgStopped) != 1 {
		t.Errorf("stop messages: got %d, want 1", rec.count(MsgStopped))
	}
}

func TestSimulator_OutOfRangeArguments(t *testing.T) {
	s, err := NewBuilder().Queues(6).clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := s.OpenQueue(6); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("OpenQueue(6): got %v, want ErrOutOfRange", err)
	}
	if err := s.RequestClose(-1); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("RequestClose(-1): got %v, want ErrOutOfRange", err)
	}
	if _, err := s.IsQueueOpen(99); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("IsQueueOpen(99): got %v, want ErrOutOfRange", err)
	}
	if _, err := s.QueueSize(-2); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("QueueSize(-2): got %v, want ErrOutOfRange", err)
	}
}

func TestSimulator_SimulateTwiceFails(t *testing.T) {
	s, err := NewBuilder().Queues(1).Customers(1).
		ArrivalInterval(1, 1).ServiceInterval(1, 1).
		clockUnit(time.Minute).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	if err := s.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}
	if err := s.Simulate(); err == nil {
		t.Error("second Simulate: got nil error")
	}

	s.Stop()
	if err := s.Simulate(); err == nil {
		t.Error("Simulate after stop: got nil error")
	}
}

func TestSimulator_FullRunUnderConcurrentCommands(t *testing.T) {
	// GIVEN a healthy configuration where service keeps up with arrivals
	s, err := NewBuilder().
		Queues(3).
		Capacity(10).
		Customers(30).
		ArrivalInterval(2, 3).
		ServiceInterval(1, 1).
		Reorganization(1).
		clockUnit(5 * time.Millisecond).
		Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	rec := newRecorder()
	s.Subscribe(rec.record)

	if err := s.Simulate(); err != nil {
		t.Fatalf("Simulate: %v", err)
	}

	// WHEN queries and open/close commands hammer it from other goroutines
	// (queue 0 stays open so arrivals always have a target)
	var wg sync.WaitGroup
	stop := make(chan struct{})
	for _, qi := range []int{1, 2} {
		wg.Add(1)
		go func(qi int) {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s.RequestClose(qi)
				s.QueueSize(qi)
				time.Sleep(3 * time.Millisecond)
				s.OpenQueue(qi)
				s.IsQueueOpen(qi)
				s.Stats().AverageWaitingTime(2)
				time.Sleep(3 * time.Millisecond)
			}
		}(qi)
	}

	// THEN the run still finishes with every customer processed
	rec.waitTerminal(t, 10*time.Second)
	close(stop)
	wg.Wait()

	if s.State() != StateFinished {
		t.Fatalf("State: got %v, want finished (err: %v)", s.State(), s.Err())
	}
	if s.Stats().Processed() != 30 {
		t.Errorf("Processed: got %d, want 30", s.Stats().Processed())
	}

	// AND arrival IDs form the contiguous sequence 1..30
	var ids []int
	for _, m := range rec.messages() {
		parts := strings.Split(string(m), "|")
		if len(parts) == 4 && parts[0] == "C" && parts[2] == "A" {
			id, err := strconv.Atoi(parts[1])
			if err != nil {
				t.Fatalf("bad arrival message %q", m)
			}
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	if len(ids) != 30 {
		t.Fatalf("arrival messages: got %d, want 30", len(ids))
	}
	for i, id := range ids {
		if id != i+1 {
			t.Fatalf("arrival IDs not contiguous from 1: %v", ids)
		}
	}

	// AND elapsed time is reported in simulated seconds
	if s.ElapsedSeconds() < 1 {
		t.Errorf("ElapsedSeconds: got %d, want >= 1", s.ElapsedSeconds())
	}
}
