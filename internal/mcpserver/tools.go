package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/loykin/inspectr/internal/session"
	"github.com/mark3labs/mcp-go/mcp"
)

type startProcessArgs struct {
	Script string   `json:"script"`
	Args   []string `json:"args,omitempty"`
	Cwd    string   `json:"cwd,omitempty"`
}

type killProcessArgs struct {
	PID int `json:"pid"`
}

type attachArgs struct {
	Port int `json:"port"`
}

type setBreakpointArgs struct {
	URL       string `json:"url"`
	Line      int    `json:"line"`
	Condition string `json:"condition,omitempty"`
}

type stepArgs struct {
	Action string `json:"action"`
}

type evaluateArgs struct {
	Expression string `json:"expression"`
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("start_process",
		mcp.WithDescription("Launch a Node.js script with the inspector enabled, halted before its first statement"),
		mcp.WithString("script", mcp.Required(), mcp.Description("Path to the script to run")),
		mcp.WithArray("args", mcp.Description("Arguments passed to the script"), stringItems()),
		mcp.WithString("cwd", mcp.Description("Working directory for the process and for script path resolution")),
	), s.handleStartProcess)

	s.mcp.AddTool(mcp.NewTool("kill_process",
		mcp.WithDescription("Terminate a managed process by pid"),
		mcp.WithNumber("pid", mcp.Required(), mcp.Description("Process id returned by start_process")),
	), s.handleKillProcess)

	s.mcp.AddTool(mcp.NewTool("list_processes",
		mcp.WithDescription("List all managed processes with their pids and debug ports"),
	), s.handleListProcesses)

	s.mcp.AddTool(mcp.NewTool("attach",
		mcp.WithDescription("Attach the debugger to the process listening on the given debug port"),
		mcp.WithNumber("port", mcp.Required(), mcp.Description("Debug port assigned at launch")),
	), s.handleAttach)

	s.mcp.AddTool(mcp.NewTool("set_breakpoint",
		mcp.WithDescription("Set a breakpoint by file URL or path and one-based line"),
		mcp.WithString("url", mcp.Required(), mcp.Description("Absolute file:// URL preferred; plain paths are converted")),
		mcp.WithNumber("line", mcp.Required(), mcp.Description("One-based line number")),
		mcp.WithString("condition", mcp.Description("Optional condition expression")),
	), s.handleSetBreakpoint)

	s.mcp.AddTool(mcp.NewTool("step",
		mcp.WithDescription("Issue a stepping request: next (over), step (into), continue (resume) or out"),
		mcp.WithString("action", mcp.Required(), mcp.Enum("next", "step", "continue", "out")),
	), s.handleStep)

	s.mcp.AddTool(mcp.NewTool("pause",
		mcp.WithDescription("Ask the debuggee to pause at the next opportunity"),
	), s.handlePause)

	s.mcp.AddTool(mcp.NewTool("evaluate",
		mcp.WithDescription("Evaluate an expression in the paused frame or the current execution context"),
		mcp.WithString("expression", mcp.Required()),
	), s.handleEvaluate)
}

func (s *Server) handleStartProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args startProcessArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Script == "" {
		return mcp.NewToolResultError("script is required"), nil
	}
	st, err := s.reg.Launch(args.Script, args.Args, args.Cwd)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"pid": st.PID, "port": st.Port, "script": st.Script})
}

func (s *Server) handleKillProcess(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args killProcessArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.PID <= 0 {
		return mcp.NewToolResultError("pid must be positive"), nil
	}
	if err := s.reg.Terminate(args.PID); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("termination signal sent to pid %d", args.PID)), nil
}

func (s *Server) handleListProcesses(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(s.reg.List())
}

func (s *Server) handleAttach(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args attachArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Port <= 0 {
		return mcp.NewToolResultError("port must be positive"), nil
	}
	if err := s.ses.Attach(ctx, args.Port); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(s.ses.View())
}

func (s *Server) handleSetBreakpoint(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args setBreakpointArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.URL == "" {
		return mcp.NewToolResultError("url is required"), nil
	}
	if args.Line < 1 {
		return mcp.NewToolResultError("line must be one-based and positive"), nil
	}
	key := session.BreakpointKey{
		URL:       normalizeFileURL(args.URL),
		Line:      args.Line,
		Condition: args.Condition,
	}
	id, err := s.ses.SetBreakpoint(ctx, key)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(map[string]any{"breakpoint_id": id, "url": key.URL, "line": key.Line})
}

func (s *Server) handleStep(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args stepArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if err := s.ses.Step(ctx, session.StepAction(args.Action)); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("step %q requested", args.Action)), nil
}

func (s *Server) handlePause(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if err := s.ses.Pause(ctx); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText("pause requested"), nil
}

func (s *Server) handleEvaluate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	var args evaluateArgs
	if err := req.BindArguments(&args); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if args.Expression == "" {
		return mcp.NewToolResultError("expression is required"), nil
	}
	res, err := s.ses.Evaluate(ctx, args.Expression)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res.Thrown {
		return jsonResult(map[string]any{"thrown": true, "exception": res.Exception})
	}
	return jsonResult(map[string]any{"value": json.RawMessage(renderValue(res.Value))})
}

// stringItems is the JSON schema option for an array of strings.
func stringItems() mcp.PropertyOption {
	return mcp.Items(map[string]any{"type": "string"})
}

// renderValue passes JSON through untouched and quotes anything else so the
// tool result is always valid JSON.
func renderValue(v string) string {
	if json.Valid([]byte(v)) && v != "" {
		return v
	}
	b, _ := json.Marshal(v)
	return string(b)
}

// normalizeFileURL turns absolute paths into file:// URLs, which the debugger
// matches reliably. Values that already carry a scheme pass through.
func normalizeFileURL(u string) string {
	if strings.Contains(u, "://") {
		return u
	}
	if filepath.IsAbs(u) {
		return "file://" + filepath.ToSlash(u)
	}
	return u
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
