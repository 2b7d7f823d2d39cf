package supervisor

import "github.com/loykin/svcdeck/internal/registry"

// State is the liveness class of a service.
type State string

const (
	StateActive   State = "active"
	StateInactive State = "inactive"
	// StateUnknown is reported only when the probe itself could not complete.
	StateUnknown State = "unknown"
)

// Status is a fresh observation of one service. PID is set only for active
// services with a resolved pid, and MemoryMB only alongside PID.
type Status struct {
	State    State  `json:"status"`
	PID      int    `json:"pid,omitempty"`
	MemoryMB *int   `json:"memory_mb,omitempty"`
	Detail   string `json:"detail,omitempty"`
}

// Action is a control verb.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// ParseAction accepts exactly start, stop and restart.
func ParseAction(s string) (Action, bool) {
	switch a := Action(s); a {
	case ActionStart, ActionStop, ActionRestart:
		return a, true
	}
	return "", false
}

// Result is the outcome of a control request. Failures are values, never errors.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

// Fixed refusal messages. The HTTP layer maps them to status codes.
const (
	MsgNotFound       = "Service not found"
	MsgCannotStopSelf = "Cannot stop self"
	MsgInvalidAction  = "Invalid action"
	MsgNotRunning     = "Not running"
)

func fail(msg string) Result { return Result{Message: msg} }

// Entry pairs a descriptor with its current status.
type Entry struct {
	Descriptor registry.Descriptor
	Status     Status
}
