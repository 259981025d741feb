package sim

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario holds simulation parameters loadable from a YAML file. A nil
// pointer field was absent from the YAML and leaves the Builder value alone.
//
// Example:
//
//	queues: 4
//	capacity: 8
//	customers: 60
//	arrival: {min: 2, max: 5}
//	service: {min: 10, max: 15}
//	reorganization: 3
type Scenario struct {
	Queues         *int           `yaml:"queues"`
	Capacity       *int           `yaml:"capacity"`
	Customers      *int           `yaml:"customers"`
	Arrival        *IntervalRange `yaml:"arrival"`
	Service        *IntervalRange `yaml:"service"`
	Reorganization *int           `yaml:"reorganization"`
	Seed           *int64         `yaml:"seed"`
}

// IntervalRange is an inclusive [min,max] range in seconds.
type IntervalRange struct {
	Min int `yaml:"min"`
	Max int `yaml:"max"`
}

// LoadScenario reads and parses a YAML scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var sc Scenario
	if err := yaml.Unmarshal(data, &sc); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &sc, nil
}

// Validate checks the parameter ranges of every field that is set. The
// Builder performs the same checks again; validating here lets a CLI reject
// a bad file with a file-level error before touching the Builder.
func (sc *Scenario) Validate() error {
	if sc.Queues != nil && (*sc.Queues < 1 || *sc.Queues > 10) {
		return fmt.Errorf("queues must be in [1,10], got %d", *sc.Queues)
	}
	if sc.Capacity != nil && (*sc.Capacity < 1 || *sc.Capacity > 10) {
		return fmt.Errorf("capacity must be in [1,10], got %d", *sc.Capacity)
	}
	if sc.Customers != nil && *sc.Customers < 1 {
		return fmt.Errorf("customers must be at least 1, got %d", *sc.Customers)
	}
	if sc.Arrival != nil && (sc.Arrival.Min < 1 || sc.Arrival.Min > sc.Arrival.Max) {
		return fmt.Errorf("invalid arrival interval [%d,%d]", sc.Arrival.Min, sc.Arrival.Max)
	}
	if sc.Service != nil && (sc.Service.Min < 1 || sc.Service.Min > sc.Service.Max) {
		return fmt.Errorf("invalid service interval [%d,%d]", sc.Service.Min, sc.Service.Max)
	}
	return nil
}

// Apply copies every set field onto the Builder.
func (sc *Scenario) Apply(b *Builder) *Builder {
	if sc.Queues != nil {
		b.Queues(*sc.Queues)
	}
	if sc.Capacity != nil {
		b.Capacity(*sc.Capacity)
	}
	if sc.Customers != nil {
		b.Customers(*sc.Customers)
	}
	if sc.Arrival != nil {
		b.ArrivalInterval(sc.Arrival.Min, sc.Arrival.Max)
	}
	if sc.Service != nil {
		b.ServiceInterval(sc.Service.Min, sc.Service.Max)
	}
	if sc.Reorganization != nil {
		b.Reorganization(*sc.Reorganization)
	}
	if sc.Seed != nil {
		b.Seed(*sc.Seed)
	}
	return b
}
