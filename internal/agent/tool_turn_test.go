package agent

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/pkg/models"
)

type autoPrompter struct{ choice PromptChoice }

func (p autoPrompter) Prompt(ctx context.Context, sessionID, toolName string, args json.RawMessage) (PromptChoice, error) {
	return p.choice, nil
}

func newTurnDeps(t *testing.T, registry *ToolRegistry, gate *PermissionGate) ToolTurnDeps {
	t.Helper()
	if gate == nil {
		gate = NewPermissionGate()
	}
	return ToolTurnDeps{
		Executor: NewExecutor(registry, nil),
		Gate:     gate,
		Bus:      eventbus.New(nil),
		Prompter: autoPrompter{choice: PromptAccept},
		Log:      models.NewExecutionLog(),
	}
}

// Invalid JSON arguments never reach the tool handler and produce the
// exact literal error message spec requires.
func TestRunToolTurn_InvalidJSONArguments(t *testing.T) {
	registry := NewToolRegistry()
	called := false
	registry.Register(&mockTool{
		name: "echo",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			called = true
			return &ToolResult{Content: "ok"}, nil
		},
	})

	deps := newTurnDeps(t, registry, nil)
	calls := []models.ToolCall{{ID: "c1", Name: "echo", Input: json.RawMessage(`{not json`)}}

	results := RunToolTurn(context.Background(), deps, "s1", calls)

	if called {
		t.Fatal("handler must not be invoked for malformed arguments")
	}
	if len(results) != 1 {
		t.Fatalf("len(results) = %d, want 1", len(results))
	}
	content := results[0].ToolResults[0].Content
	if !strings.HasPrefix(content, "Error: Invalid JSON arguments:") {
		t.Errorf("content = %q, want prefix %q", content, "Error: Invalid JSON arguments:")
	}
	if !results[0].ToolResults[0].IsError {
		t.Error("expected IsError true for invalid arguments")
	}
}

// A call denied by static policy never executes and its result is ordered
// correctly relative to a sibling call that succeeds.
func TestRunToolTurn_DeniedByPolicy(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{name: "rm_rf"})
	registry.Register(&mockTool{
		name: "read_file",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "file contents"}, nil
		},
	})

	gate := NewPermissionGate()
	gate.Configure("rm_rf", ToolPermissionConfig{Permission: PermissionNever})

	deps := newTurnDeps(t, registry, gate)
	calls := []models.ToolCall{
		{ID: "c1", Name: "rm_rf", Input: json.RawMessage(`{}`)},
		{ID: "c2", Name: "read_file", Input: json.RawMessage(`{"path":"/tmp/x"}`)},
	}

	results := RunToolTurn(context.Background(), deps, "s1", calls)

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if !results[0].ToolResults[0].IsError {
		t.Error("expected first call (denied) to be an error result")
	}
	if results[0].ToolResults[0].Content != "Error: Tool execution denied by policy" {
		t.Errorf("content = %q", results[0].ToolResults[0].Content)
	}
	if results[1].ToolResults[0].Content != "file contents" {
		t.Errorf("second call result = %q, want %q", results[1].ToolResults[0].Content, "file contents")
	}
}

// needs_prompt calls run the Prompter and, on accept, execute normally.
func TestRunToolTurn_NeedsPromptAccept(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "bash",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "done"}, nil
		},
	})

	gate := NewPermissionGate()
	gate.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})

	deps := newTurnDeps(t, registry, gate)
	deps.Prompter = autoPrompter{choice: PromptAccept}

	calls := []models.ToolCall{{ID: "c1", Name: "bash", Input: json.RawMessage(`{"command":"echo hi"}`)}}
	results := RunToolTurn(context.Background(), deps, "s1", calls)

	if results[0].ToolResults[0].IsError {
		t.Fatalf("expected success, got error: %s", results[0].ToolResults[0].Content)
	}
	if results[0].ToolResults[0].Content != "done" {
		t.Errorf("content = %q, want %q", results[0].ToolResults[0].Content, "done")
	}
}

// needs_prompt calls that the user denies never execute the handler.
func TestRunToolTurn_NeedsPromptDeny(t *testing.T) {
	registry := NewToolRegistry()
	called := false
	registry.Register(&mockTool{
		name: "bash",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			called = true
			return &ToolResult{Content: "done"}, nil
		},
	})

	gate := NewPermissionGate()
	gate.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})

	deps := newTurnDeps(t, registry, gate)
	deps.Prompter = autoPrompter{choice: PromptDeny}

	calls := []models.ToolCall{{ID: "c1", Name: "bash", Input: json.RawMessage(`{"command":"rm -rf /"}`)}}
	results := RunToolTurn(context.Background(), deps, "s1", calls)

	if called {
		t.Fatal("handler must not run after a user deny")
	}
	if !results[0].ToolResults[0].IsError {
		t.Error("expected error result on deny")
	}
}

// Auto-resolved calls execute concurrently but preserve input order in the
// returned slice.
func TestRunToolTurn_AutoResolvedPreservesOrder(t *testing.T) {
	registry := NewToolRegistry()
	for _, name := range []string{"a", "b", "c"} {
		n := name
		registry.Register(&mockTool{
			name: n,
			execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
				return &ToolResult{Content: "result-" + n}, nil
			},
		})
	}

	deps := newTurnDeps(t, registry, nil)
	calls := []models.ToolCall{
		{ID: "1", Name: "a", Input: json.RawMessage(`{}`)},
		{ID: "2", Name: "b", Input: json.RawMessage(`{}`)},
		{ID: "3", Name: "c", Input: json.RawMessage(`{}`)},
	}

	results := RunToolTurn(context.Background(), deps, "s1", calls)

	want := []string{"result-a", "result-b", "result-c"}
	for i, w := range want {
		if results[i].ToolResults[0].Content != w {
			t.Errorf("results[%d] = %q, want %q", i, results[i].ToolResults[0].Content, w)
		}
	}
}

// A tool result whose content carries an "Error:" prefix is treated as a
// semantic failure even though the handler returned no Go error.
func TestRunToolTurn_ErrorPrefixContentIsSemanticFailure(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "flaky",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "Error: file not found"}, nil
		},
	})

	deps := newTurnDeps(t, registry, nil)
	calls := []models.ToolCall{{ID: "c1", Name: "flaky", Input: json.RawMessage(`{}`)}}
	results := RunToolTurn(context.Background(), deps, "s1", calls)

	if !results[0].ToolResults[0].IsError {
		t.Error("expected Error:-prefixed content to be classified as a failure")
	}
	if len(deps.Log.Errors) != 1 {
		t.Errorf("ExecutionLog.Errors length = %d, want 1", len(deps.Log.Errors))
	}
}

// An unexpected panic inside the tool handler is recovered by the Tool
// Registry into an "Error: panic: <value>" result, not propagated as a crash.
func TestRunToolTurn_PanicConvertedToErrorMessage(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "boom",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			panic("kaboom")
		},
	})

	deps := newTurnDeps(t, registry, nil)
	calls := []models.ToolCall{{ID: "c1", Name: "boom", Input: json.RawMessage(`{}`)}}
	results := RunToolTurn(context.Background(), deps, "s1", calls)

	content := results[0].ToolResults[0].Content
	if !strings.HasPrefix(content, "Error: panic:") {
		t.Errorf("content = %q, want prefix %q", content, "Error: panic:")
	}
	if !results[0].ToolResults[0].IsError {
		t.Error("expected IsError true after panic")
	}
}

// Successful executions are recorded in the ExecutionLog as one record
// carrying the tool name and a Success flag.
func TestRunToolTurn_RecordsExecutionLog(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "read_file",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "file body"}, nil
		},
	})

	deps := newTurnDeps(t, registry, nil)
	calls := []models.ToolCall{{ID: "c1", Name: "read_file", Input: json.RawMessage(`{"path":"/tmp/f.txt"}`)}}
	RunToolTurn(context.Background(), deps, "s1", calls)

	if len(deps.Log.Executions) != 1 {
		t.Fatalf("Executions length = %d, want 1", len(deps.Log.Executions))
	}
	rec := deps.Log.Executions[0]
	if !rec.Success {
		t.Error("expected Success true")
	}
	if rec.ToolName != "read_file" {
		t.Errorf("ToolName = %q, want %q", rec.ToolName, "read_file")
	}
}
