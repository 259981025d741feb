// Tracks simulation-wide statistics: per-customer waiting and service times,
// and per-queue idle (open-and-empty) time accumulation.

package sim

import (
	"math"
	"sync"
	"time"
)

// customerKey identifies a customer in the in-flight map. Identity follows
// Customer.Equal: both the ID and the service need participate.
type customerKey struct {
	id          int
	serviceNeed int
}

// waitRecord is one fully processed customer: how long it waited before
// being served and how long the service itself took.
type waitRecord struct {
	waiting time.Duration
	service int // seconds
}

// queueRecord accumulates how much time one queue stayed open and empty.
type queueRecord struct {
	idleSince time.Time
	total     time.Duration
	idle      bool
}

func (r *queueRecord) setIdle(now time.Time) {
	if r.idle {
		return
	}
	r.idle = true
	r.idleSince = now
}

func (r *queueRecord) setBusy(now time.Time) {
	if !r.idle {
		return
	}
	r.idle = false
	r.total += now.Sub(r.idleSince)
	r.idleSince = time.Time{}
}

// Statistics records waiting times, service times and per-queue idle times
// for one simulation run.
//
// Statistics is safe for concurrent use without external locking. It keeps
// its own locks, independent of the simulator's engine lock, so live queries
// (a display layer polling averages) never contend with event handling.
// Customer-side and queue-side state are guarded separately.
type Statistics struct {
	muCustomers sync.Mutex
	inflight    map[customerKey]time.Time // arrival timestamps, arrived but not yet left
	completed   []waitRecord

	muQueues sync.Mutex
	qrecords []queueRecord

	// unit is the wall-clock duration of one simulated second. The default
	// is time.Second; tests shrink it through the simulator.
	unit time.Duration
}

// NewStatistics creates a Statistics tracking nrQueues queues.
func NewStatistics(nrQueues int) *Statistics {
	return newStatistics(nrQueues, time.Second)
}

func newStatistics(nrQueues int, unit time.Duration) *Statistics {
	return &Statistics{
		inflight: make(map[customerKey]time.Time),
		qrecords: make([]queueRecord, nrQueues),
		unit:     unit,
	}
}

// Processed returns the number of customers recorded to both arrive and leave.
func (s *Statistics) Processed() int {
	s.muCustomers.Lock()
	defer s.muCustomers.Unlock()
	return len(s.completed)
}

// RecordArrival records that a customer arrived at a queue. It returns
// ErrDuplicateArrival if the customer is already in flight.
func (s *Statistics) RecordArrival(c *Customer) error {
	key := customerKey{id: c.ID(), serviceNeed: c.ServiceNeed()}

	s.muCustomers.Lock()
	defer s.muCustomers.Unlock()

	if _, ok := s.inflight[key]; ok {
		return ErrDuplicateArrival
	}
	s.inflight[key] = time.Now()
	return nil
}

// RecordDeparture records that a customer was served and left. The waiting
// time is the elapsed in-flight time minus the customer's service need, since
// the in-flight window spans both waiting and being served. Returns
// ErrUnknownDeparture if no matching arrival was recorded.
func (s *Statistics) RecordDeparture(c *Customer) error {
	key := customerKey{id: c.ID(), serviceNeed: c.ServiceNeed()}

	s.muCustomers.Lock()
	defer s.muCustomers.Unlock()

	arrived, ok := s.inflight[key]
	if !ok {
		return ErrUnknownDeparture
	}
	delete(s.inflight, key)

	s.completed = append(s.completed, waitRecord{
		waiting: time.Since(arrived) - time.Duration(c.ServiceNeed())*s.unit,
		service: c.ServiceNeed(),
	})
	return nil
}

// SetQueueIdle starts (idle=true) or stops (idle=false) accumulating idle
// time for queue i. Setting the same state twice in a row is a no-op; only a
// true→false transition commits the open interval to the accumulator.
func (s *Statistics) SetQueueIdle(i int, idle bool) error {
	s.muQueues.Lock()
	defer s.muQueues.Unlock()

	if i < 0 || i >= len(s.qrecords) {
		return ErrOutOfRange
	}
	if idle {
		s.qrecords[i].setIdle(time.Now())
	} else {
		s.qrecords[i].setBusy(time.Now())
	}
	return nil
}

// AverageServiceTime returns the mean service time in seconds over all
// processed customers, rounded to precision decimal places. It is 0 when no
// customer has been processed yet.
func (s *Statistics) AverageServiceTime(precision int) (float64, error) {
	if precision < 0 || precision > 3 {
		return 0, ErrInvalidPrecision
	}

	s.muCustomers.Lock()
	defer s.muCustomers.Unlock()

	if len(s.completed) == 0 {
		return 0, nil
	}
	var sum float64
	for _, rec := range s.completed {
		sum += float64(rec.service)
	}
	return roundTo(sum/float64(len(s.completed)), precision), nil
}

// AverageWaitingTime returns the mean waiting time in simulated seconds over
// all processed customers, rounded to precision decimal places. It is 0 when
// no customer has been processed yet.
func (s *Statistics) AverageWaitingTime(precision int) (float64, error) {
	if precision < 0 || precision > 3 {
		return 0, ErrInvalidPrecision
	}

	s.muCustomers.Lock()
	defer s.muCustomers.Unlock()

	if len(s.completed) == 0 {
		return 0, nil
	}
	var sum float64
	for _, rec := range s.completed {
		sum += rec.waiting.Seconds() / s.unit.Seconds()
	}
	return roundTo(sum/float64(len(s.completed)), precision), nil
}

// QueueIdleTotal returns the accumulated idle time of queue i in simulated
// seconds, rounded to precision decimal places. A currently running idle
// interval is NOT included; callers wanting an exact snapshot must commit it
// first with SetQueueIdle(i, false).
func (s *Statistics) QueueIdleTotal(i, precision int) (float64, error) {
	if precision < 0 || precision > 3 {
		return 0, ErrInvalidPrecision
	}

	s.muQueues.Lock()
	defer s.muQueues.Unlock()

	if i < 0 || i >= len(s.qrecords) {
		return 0, ErrOutOfRange
	}
	return roundTo(s.qrecords[i].total.Seconds()/s.unit.Seconds(), precision), nil
}

// roundTo rounds v to n decimal places.
func roundTo(v float64, n int) float64 {
	p := math.Pow(10, float64(n))
	return math.Round(v*p) / p
}
