package sim

import (
	"fmt"
	"time"
)

// Default simulation parameters, used for anything the caller does not set.
const (
	DefaultQueues         = 6
	DefaultCapacity       = 10
	DefaultCustomers      = 40
	DefaultMinArrival     = 4
	DefaultMaxArrival     = 8
	DefaultMinService     = 12
	DefaultMaxService     = 20
	DefaultReorganization = 4
	DefaultSeed           = 42
)

// fullThreshold is the queue size at which the arrival handler considers a
// queue full for the purpose of the capacity-exhaustion check. It is a fixed
// bound, deliberately independent of the configurable per-queue capacity.
const fullThreshold = 10

// Config holds the immutable parameters of one simulation run. Produce it
// through a Builder; a zero Config is not valid.
type Config struct {
	Queues         int   // number of queues, [1,10]
	Capacity       int   // per-queue capacity, [1,10]
	Customers      int   // total customers to simulate, >= 1
	MinArrival     int   // minimum seconds between arrivals, >= 1
	MaxArrival     int   // maximum seconds between arrivals, >= MinArrival
	MinService     int   // minimum service need in seconds, >= 1
	MaxService     int   // maximum service need in seconds, >= MinService
	Reorganization int   // reorganization period in seconds, <= 0 disables
	Seed           int64 // seed for arrival offsets and service needs
}

// Builder assembles and validates a simulation Config. Get one from
// NewBuilder, call whichever setters apply, then Build. Each setter rejects
// out-of-range values immediately, before a run can start. A Builder is
// single-use: setters and Build fail after Build has been called.
type Builder struct {
	cfg  Config
	unit time.Duration
	err  error
	done bool
}

// NewBuilder returns a Builder preloaded with the default parameters.
func NewBuilder() *Builder {
	return &Builder{
		cfg: Config{
			Queues:         DefaultQueues,
			Capacity:       DefaultCapacity,
			Customers:      DefaultCustomers,
			MinArrival:     DefaultMinArrival,
			MaxArrival:     DefaultMaxArrival,
			MinService:     DefaultMinService,
			MaxService:     DefaultMaxService,
			Reorganization: DefaultReorganization,
			Seed:           DefaultSeed,
		},
		unit: time.Second,
	}
}

// set records the first configuration error and skips every later mutation.
func (b *Builder) set(err error, apply func()) *Builder {
	if b.err != nil {
		return b
	}
	if b.done {
		b.err = fmt.Errorf("simulator already built")
		return b
	}
	if err != nil {
		b.err = err
		return b
	}
	apply()
	return b
}

// Queues sets the number of queues. Accepted values are between 1 and 10.
func (b *Builder) Queues(n int) *Builder {
	var err error
	if n < 1 || n > 10 {
		err = fmt.Errorf("number of queues must be in [1,10], got %d", n)
	}
	return b.set(err, func() { b.cfg.Queues = n })
}

// Capacity sets the maximum number of customers a queue can hold. Accepted
// values are between 1 and 10.
func (b *Builder) Capacity(n int) *Builder {
	var err error
	if n < 1 || n > 10 {
		err = fmt.Errorf("queue capacity must be in [1,10], got %d", n)
	}
	return b.set(err, func() { b.cfg.Capacity = n })
}

// Customers sets how many customers the simulation runs for. Any value
// greater than 0 is accepted.
func (b *Builder) Customers(n int) *Builder {
	var err error
	if n < 1 {
		err = fmt.Errorf("number of customers must be at least 1, got %d", n)
	}
	return b.set(err, func() { b.cfg.Customers = n })
}

// ArrivalInterval sets the interval bounds, in seconds, between consecutive
// customer arrivals.
func (b *Builder) ArrivalInterval(min, max int) *Builder {
	var err error
	if min < 1 || min > max {
		err = fmt.Errorf("invalid arrival interval [%d,%d]", min, max)
	}
	return b.set(err, func() {
		b.cfg.MinArrival = min
		b.cfg.MaxArrival = max
	})
}

// ServiceInterval sets the bounds, in seconds, of the service need drawn for
// each customer.
func (b *Builder) ServiceInterval(min, max int) *Builder {
	var err error
	if min < 1 || min > max {
		err = fmt.Errorf("invalid service interval [%d,%d]", min, max)
	}
	return b.set(err, func() {
		b.cfg.MinService = min
		b.cfg.MaxService = max
	})
}

// Reorganization sets the period, in seconds, at which customers reorganize
// themselves toward smaller queues. Zero or a negative value disables the
// feature.
func (b *Builder) Reorganization(n int) *Builder {
	return b.set(nil, func() { b.cfg.Reorganization = n })
}

// Seed sets the seed for the run's random number generator.
func (b *Builder) Seed(n int64) *Builder {
	return b.set(nil, func() { b.cfg.Seed = n })
}

// clockUnit overrides the wall-clock duration of one simulated second.
// Tests use it to run second-denominated scenarios in milliseconds.
func (b *Builder) clockUnit(d time.Duration) *Builder {
	var err error
	if d <= 0 {
		err = fmt.Errorf("clock unit must be positive, got %v", d)
	}
	return b.set(err, func() { b.unit = d })
}

// Build validates nothing further (each setter already did) and returns the
// Simulator. After Build the Builder is spent.
func (b *Builder) Build() (*Simulator, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.done {
		return nil, fmt.Errorf("simulator already built")
	}
	b.done = true
	return newSimulator(b.cfg, b.unit), nil
}
