package cmd

import (
	"fmt"
	"strings"

	"github.com/SoboLAN/queue-manager/sim"
)

// Render transforms a simulator notification into a human-readable line.
// Unrecognized shapes are returned verbatim so future message types pass
// through unharmed.
func Render(m sim.Message) string {
	switch m {
	case sim.MsgStarted:
		return "Simulation started"
	case sim.MsgFinished:
		return "Simulation finished successfully"
	case sim.MsgStopped:
		return "Simulation was stopped manually"
	case sim.MsgErrored:
		return "Simulation finished as the result of an error"
	case sim.MsgAllQueuesFull:
		return "All queues are full"
	case sim.MsgReorganized:
		return "The customers have reorganized themselves to other queues"
	}

	parts := strings.Split(string(m), "|")

	if len(parts) == 3 && parts[0] == "Q" {
		switch parts[2] {
		case "O":
			return fmt.Sprintf("Queue %s was opened", parts[1])
		case "C":
			return fmt.Sprintf("Queue %s was closed", parts[1])
		}
	}

	if len(parts) == 4 && parts[0] == "C" {
		switch parts[2] {
		case "A":
			return fmt.Sprintf("Customer %s has arrived at queue %s", parts[1], parts[3])
		case "L":
			return fmt.Sprintf("Customer %s was served at queue %s and left", parts[1], parts[3])
		}
	}

	return string(m)
}
