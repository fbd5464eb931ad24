package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// EventType defines the kind of lifecycle event.
type EventType string

const (
	EventLaunch     EventType = "launch"
	EventExit       EventType = "exit"
	EventAttach     EventType = "attach"
	EventDetach     EventType = "detach"
	EventBreakpoint EventType = "breakpoint"
)

// Record is the persisted view of one debuggee at event time. Detail carries
// event-specific text (breakpoint location, detach reason).
type Record struct {
	PID       int            `json:"pid"`
	Port      int            `json:"port"`
	Script    string         `json:"script"`
	Detail    string         `json:"detail,omitempty"`
	Running   bool           `json:"running"`
	StartedAt time.Time      `json:"started_at"`
	StoppedAt sql.NullTime   `json:"stopped_at"`
	ExitErr   sql.NullString `json:"exit_err"`
}

// Key identifies one debuggee run across events.
func (r Record) Key() string {
	return fmt.Sprintf("%d-%d", r.PID, r.StartedAt.UTC().UnixNano())
}

// Event represents a lifecycle or debug event exported to external systems.
type Event struct {
	Type       EventType `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Record     Record    `json:"record"`
}

// Sink is a destination for history events. Implementations must be safe for
// concurrent use; send failures are the sink's problem, not the caller's.
type Sink interface {
	Send(ctx context.Context, e Event) error
}
