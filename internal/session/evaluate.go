package session

import (
	"context"
	"encoding/json"
)

// EvalResult is the outcome of one expression evaluation. An exception thrown
// by the expression itself is data, not an error: Thrown is set and Exception
// carries the debuggee's description of what was thrown.
type EvalResult struct {
	Value     string
	Thrown    bool
	Exception string
}

type remoteObject struct {
	Type        string          `json:"type"`
	Value       json.RawMessage `json:"value"`
	Description string          `json:"description"`
}

// render prefers the JSON value, then the object's textual description, then
// its type name, so default-initialized values still print something useful.
func (o remoteObject) render() string {
	if len(o.Value) > 0 {
		return string(o.Value)
	}
	if o.Description != "" {
		return o.Description
	}
	return o.Type
}

type evalReply struct {
	Result           remoteObject `json:"result"`
	ExceptionDetails *struct {
		Text      string       `json:"text"`
		Exception remoteObject `json:"exception"`
	} `json:"exceptionDetails"`
}

func (r evalReply) toResult() EvalResult {
	if r.ExceptionDetails != nil {
		msg := r.ExceptionDetails.Exception.render()
		if msg == "" || msg == "object" {
			msg = r.ExceptionDetails.Text
		}
		return EvalResult{Thrown: true, Exception: msg}
	}
	return EvalResult{Value: r.Result.render()}
}

// Evaluate runs expr inside the debuggee. While paused with a call stack the
// innermost frame is the evaluation scope; otherwise the most recently
// observed execution context is used. Valid while attached.
func (s *Session) Evaluate(ctx context.Context, expr string) (EvalResult, error) {
	s.mu.Lock()
	if !s.state.attached() {
		s.mu.Unlock()
		return EvalResult{}, ErrNoActiveSession
	}
	client := s.client
	frameID := ""
	if s.state == StatePaused && len(s.frames) > 0 {
		frameID = s.frames[0].ID
	}
	contextID := s.contextID
	s.mu.Unlock()

	var reply evalReply
	if frameID != "" {
		params := struct {
			CallFrameID   string `json:"callFrameId"`
			Expression    string `json:"expression"`
			ReturnByValue bool   `json:"returnByValue"`
		}{CallFrameID: frameID, Expression: expr, ReturnByValue: true}
		if err := client.Call(ctx, "Debugger.evaluateOnCallFrame", params, &reply); err != nil {
			return EvalResult{}, err
		}
		return reply.toResult(), nil
	}

	params := struct {
		Expression    string `json:"expression"`
		ContextID     int    `json:"contextId,omitempty"`
		ReturnByValue bool   `json:"returnByValue"`
	}{Expression: expr, ContextID: contextID, ReturnByValue: true}
	if err := client.Call(ctx, "Runtime.evaluate", params, &reply); err != nil {
		return EvalResult{}, err
	}
	return reply.toResult(), nil
}
