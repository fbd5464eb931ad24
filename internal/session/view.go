package session

import "sort"

// FrameView is one call-stack entry with a one-based line for display.
type FrameView struct {
	FunctionName string   `json:"function"`
	URL          string   `json:"url"`
	Line         int      `json:"line"`
	Column       int      `json:"column"`
	Scopes       []string `json:"scopes,omitempty"`
}

// BreakpointView is one breakpoint table entry with its assigned identifier.
type BreakpointView struct {
	URL       string `json:"url"`
	Line      int    `json:"line"`
	Condition string `json:"condition,omitempty"`
	ID        string `json:"id"`
}

// View is a point-in-time snapshot of the session.
type View struct {
	State       string           `json:"state"`
	Attached    bool             `json:"attached"`
	Port        int              `json:"port,omitempty"`
	Paused      bool             `json:"paused"`
	ContextID   int              `json:"context_id,omitempty"`
	Breakpoints []BreakpointView `json:"breakpoints,omitempty"`
	CallStack   []FrameView      `json:"call_stack,omitempty"`
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View snapshots the session. Call-frame lines come back one-based; the wire
// protocol reports them zero-based.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		State:     s.state.String(),
		Attached:  s.state.attached(),
		Port:      s.port,
		Paused:    s.state == StatePaused,
		ContextID: s.contextID,
	}
	for key, id := range s.breakpoints {
		v.Breakpoints = append(v.Breakpoints, BreakpointView{
			URL:       key.URL,
			Line:      key.Line,
			Condition: key.Condition,
			ID:        id,
		})
	}
	sort.Slice(v.Breakpoints, func(i, j int) bool {
		a, b := v.Breakpoints[i], v.Breakpoints[j]
		if a.URL != b.URL {
			return a.URL < b.URL
		}
		return a.Line < b.Line
	})
	for _, f := range s.frames {
		fv := FrameView{
			FunctionName: f.FunctionName,
			URL:          f.URL,
			Line:         f.Line + 1,
			Column:       f.Column,
		}
		for _, sc := range f.Scopes {
			name := sc.Type
			if sc.Name != "" {
				name += ":" + sc.Name
			}
			fv.Scopes = append(fv.Scopes, name)
		}
		v.CallStack = append(v.CallStack, fv)
	}
	return v
}
