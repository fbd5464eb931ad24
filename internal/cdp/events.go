package cdp

import (
	"github.com/tidwall/gjson"
)

// EventKind enumerates the inspector events the session cares about.
type EventKind int

const (
	EventPaused EventKind = iota
	EventResumed
	EventContextCreated
	EventContextDestroyed
)

func (k EventKind) String() string {
	switch k {
	case EventPaused:
		return "paused"
	case EventResumed:
		return "resumed"
	case EventContextCreated:
		return "context_created"
	case EventContextDestroyed:
		return "context_destroyed"
	default:
		return "unknown"
	}
}

// Scope is one entry of a frame's scope chain.
type Scope struct {
	Type string `json:"type"`
	Name string `json:"name,omitempty"`
}

// CallFrame is one entry of the paused call stack as reported by the
// protocol. Line and Column are zero-based on the wire and kept that way
// here; presentation layers translate.
type CallFrame struct {
	ID           string  `json:"callFrameId"`
	FunctionName string  `json:"functionName"`
	URL          string  `json:"url"`
	Line         int     `json:"lineNumber"`
	Column       int     `json:"columnNumber"`
	Scopes       []Scope `json:"scopeChain"`
}

// Event is a typed protocol event published on the client's event channel.
type Event struct {
	Kind      EventKind
	Frames    []CallFrame // EventPaused only
	ContextID int         // EventContextCreated/Destroyed only
}

// decodeEvent maps a raw inspector notification to a typed Event. Methods
// the session does not track return ok=false and are dropped.
func decodeEvent(method string, params gjson.Result) (Event, bool) {
	switch method {
	case "Debugger.paused":
		var frames []CallFrame
		params.Get("callFrames").ForEach(func(_, f gjson.Result) bool {
			cf := CallFrame{
				ID:           f.Get("callFrameId").String(),
				FunctionName: f.Get("functionName").String(),
				URL:          f.Get("url").String(),
				Line:         int(f.Get("location.lineNumber").Int()),
				Column:       int(f.Get("location.columnNumber").Int()),
			}
			f.Get("scopeChain").ForEach(func(_, s gjson.Result) bool {
				cf.Scopes = append(cf.Scopes, Scope{
					Type: s.Get("type").String(),
					Name: s.Get("name").String(),
				})
				return true
			})
			frames = append(frames, cf)
			return true
		})
		return Event{Kind: EventPaused, Frames: frames}, true
	case "Debugger.resumed":
		return Event{Kind: EventResumed}, true
	case "Runtime.executionContextCreated":
		return Event{Kind: EventContextCreated, ContextID: int(params.Get("context.id").Int())}, true
	case "Runtime.executionContextDestroyed":
		return Event{Kind: EventContextDestroyed, ContextID: int(params.Get("executionContextId").Int())}, true
	default:
		return Event{}, false
	}
}
