// Package sim provides a discrete-event simulation of a multi-queue service
// facility: customers arrive at random intervals, line up at the emptiest
// open queue, and leave once their randomly drawn service need has elapsed.
//
// # Reading Guide
//
// Start with these three files to understand the engine:
//   - customer.go: Customer identity, service need, and the global ID sequence
//   - queue.go: A single bounded FIFO line with an open/closed gate
//   - simulator.go: The timer-driven engine, its state machine, and the
//     arrival, service, and reorganization event handlers
//
// # Architecture
//
// A Simulator is configured through Builder (config.go), optionally overlaid
// with a YAML scenario file (scenario.go). Once Simulate is called, events
// fire on their own timer goroutines; a single engine mutex serializes every
// handler, command, and query. Handlers mutate state under the lock, collect
// wire messages (message.go), and publish them after unlocking through the
// subscription fan-out (notifier.go) so observer callbacks never run inside
// the engine.
//
// Statistics (stats.go) accumulates per-customer waiting times and per-queue
// idle time independently of the engine lock and can be read at any moment,
// including while the simulation is running.
//
// Failures inside an event handler are terminal: the engine cancels all
// pending timers, transitions to the errored state, and reports the cause
// through Err.
package sim
