// Defines the Customer struct that models an individual customer in the
// simulation. Each customer carries a run-unique ID and the amount of service
// it needs, drawn at construction time.

package sim

import (
	"fmt"
	"math"
	"math/rand"
	"sync/atomic"
)

// idCounter assigns customer IDs in order of creation, starting from 1.
// It is process-wide so IDs never repeat within a run; ResetCustomerIDs
// rewinds it between runs.
var idCounter atomic.Int64

// Customer models one arriving customer. A Customer is immutable after
// construction.
type Customer struct {
	id          int
	serviceNeed int // seconds of service required
}

// NewCustomer creates a Customer whose service need is drawn uniformly from
// [minService, maxService] inclusive, using the provided rng. The new
// Customer receives the next ID from the process-wide counter.
func NewCustomer(rng *rand.Rand, minService, maxService int) (*Customer, error) {
	if minService > maxService {
		return nil, fmt.Errorf("invalid service range [%d,%d]", minService, maxService)
	}
	id := idCounter.Add(1)
	if id > math.MaxInt32 {
		return nil, fmt.Errorf("customer ID counter exhausted")
	}
	return &Customer{
		id:          int(id),
		serviceNeed: rng.Intn(maxService-minService+1) + minService,
	}, nil
}

// ResetCustomerIDs rewinds the ID counter. Customers created afterwards get
// IDs 1, 2, 3 and so on. Called by the simulator at the start of each run.
func ResetCustomerIDs() {
	idCounter.Store(0)
}

// ID returns the run-unique identifier of this customer.
func (c *Customer) ID() int {
	return c.id
}

// ServiceNeed returns the amount of service this customer requires, in seconds.
func (c *Customer) ServiceNeed() int {
	return c.serviceNeed
}

// Equal reports whether two customers are the same: both the ID and the
// service need must match.
func (c *Customer) Equal(o *Customer) bool {
	if o == nil {
		return false
	}
	return c.id == o.id && c.serviceNeed == o.serviceNeed
}

// Less orders customers by service need only. Note: this ordering is NOT
// consistent with Equal when two customers with different IDs happen to need
// the same amount of service. That partial ordering is intentional; routing
// and reorganization only ever compare service needs.
func (c *Customer) Less(o *Customer) bool {
	return c.serviceNeed < o.serviceNeed
}

func (c *Customer) String() string {
	return fmt.Sprintf("customer %d (service %ds)", c.id, c.serviceNeed)
}
