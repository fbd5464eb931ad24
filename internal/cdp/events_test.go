package cdp

import (
	"testing"

	"github.com/tidwall/gjson"
)

func TestDecodePausedEvent(t *testing.T) {
	params := gjson.Parse(`{
		"callFrames": [
			{
				"callFrameId": "frame-0",
				"functionName": "main",
				"url": "file:///tmp/a.js",
				"location": {"lineNumber": 4, "columnNumber": 2},
				"scopeChain": [{"type": "local"}, {"type": "closure", "name": "outer"}]
			},
			{
				"callFrameId": "frame-1",
				"functionName": "",
				"url": "file:///tmp/a.js",
				"location": {"lineNumber": 10, "columnNumber": 0},
				"scopeChain": []
			}
		]
	}`)
	evt, ok := decodeEvent("Debugger.paused", params)
	if !ok {
		t.Fatal("paused event not decoded")
	}
	if evt.Kind != EventPaused {
		t.Fatalf("kind = %v", evt.Kind)
	}
	if len(evt.Frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(evt.Frames))
	}
	top := evt.Frames[0]
	if top.ID != "frame-0" || top.FunctionName != "main" || top.Line != 4 || top.Column != 2 {
		t.Fatalf("unexpected top frame %+v", top)
	}
	if len(top.Scopes) != 2 || top.Scopes[1].Name != "outer" {
		t.Fatalf("unexpected scopes %+v", top.Scopes)
	}
}

func TestDecodeResumedAndContextEvents(t *testing.T) {
	evt, ok := decodeEvent("Debugger.resumed", gjson.Parse(`{}`))
	if !ok || evt.Kind != EventResumed {
		t.Fatalf("resumed: ok=%v evt=%+v", ok, evt)
	}

	evt, ok = decodeEvent("Runtime.executionContextCreated", gjson.Parse(`{"context":{"id":7,"origin":""}}`))
	if !ok || evt.Kind != EventContextCreated || evt.ContextID != 7 {
		t.Fatalf("contextCreated: ok=%v evt=%+v", ok, evt)
	}

	evt, ok = decodeEvent("Runtime.executionContextDestroyed", gjson.Parse(`{"executionContextId":7}`))
	if !ok || evt.Kind != EventContextDestroyed || evt.ContextID != 7 {
		t.Fatalf("contextDestroyed: ok=%v evt=%+v", ok, evt)
	}
}

func TestDecodeIgnoresUnknownMethods(t *testing.T) {
	if _, ok := decodeEvent("Debugger.scriptParsed", gjson.Parse(`{}`)); ok {
		t.Fatal("untracked method must be dropped")
	}
}

func TestEventKindString(t *testing.T) {
	cases := map[EventKind]string{
		EventPaused:           "paused",
		EventResumed:          "resumed",
		EventContextCreated:   "context_created",
		EventContextDestroyed: "context_destroyed",
		EventKind(99):         "unknown",
	}
	for k, want := range cases {
		if got := k.String(); got != want {
			t.Fatalf("String(%d) = %q, want %q", int(k), got, want)
		}
	}
}
