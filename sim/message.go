// Defines the pipe-delimited notification protocol emitted by the simulator.
// The shapes form a closed set; consumers must treat unrecognized shapes as
// opaque so new ones can be added without breaking them.

package sim

import "fmt"

// Message is one notification emitted by the simulator, encoded as
// pipe-delimited tokens:
//
//   - "S|S"        simulation started
//   - "S|F"        simulation finished (all customers processed)
//   - "S|X"        simulation stopped from the outside
//   - "S|E"        simulation terminated due to an error (details in the log)
//   - "Q|<i>|O"    queue i opened
//   - "Q|<i>|C"    queue i closed
//   - "Q|F"        all queues at the fixed capacity bound
//   - "Q|R"        a reorganization pass moved at least one customer
//   - "C|<id>|A|<i>"  customer id arrived and joined queue i
//   - "C|<id>|L|<i>"  customer id was served at queue i and left
type Message string

const (
	MsgStarted       Message = "S|S"
	MsgFinished      Message = "S|F"
	MsgStopped       Message = "S|X"
	MsgErrored       Message = "S|E"
	MsgAllQueuesFull Message = "Q|F"
	MsgReorganized   Message = "Q|R"
)

// MsgQueueOpened reports that queue i was opened.
func MsgQueueOpened(i int) Message {
	return Message(fmt.Sprintf("Q|%d|O", i))
}

// MsgQueueClosed reports that queue i was closed.
func MsgQueueClosed(i int) Message {
	return Message(fmt.Sprintf("Q|%d|C", i))
}

// MsgArrived reports that customer id arrived and was routed to queue i.
func MsgArrived(id, i int) Message {
	return Message(fmt.Sprintf("C|%d|A|%d", id, i))
}

// MsgServed reports that customer id was served at queue i and left.
func MsgServed(id, i int) Message {
	return Message(fmt.Sprintf("C|%d|L|%d", id, i))
}
