package agent

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"

	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/pkg/models"
)

// turnLoopTestProvider returns one canned slice of chunks per successive
// Complete call, in order.
type turnLoopTestProvider struct {
	responses   [][]CompletionChunk
	currentCall int32
}

func (p *turnLoopTestProvider) Complete(ctx context.Context, req *CompletionRequest) (<-chan *CompletionChunk, error) {
	call := int(atomic.AddInt32(&p.currentCall, 1)) - 1
	ch := make(chan *CompletionChunk, 10)
	go func() {
		defer close(ch)
		if call < len(p.responses) {
			for _, chunk := range p.responses[call] {
				c := chunk
				ch <- &c
			}
		}
	}()
	return ch, nil
}

func (p *turnLoopTestProvider) Name() string        { return "turn-loop-test" }
func (p *turnLoopTestProvider) Models() []Model     { return nil }
func (p *turnLoopTestProvider) SupportsTools() bool { return true }

func newTestMemory() *agentctx.ConversationMemory {
	mem := agentctx.NewConversationMemory(agentctx.DefaultWindowConfig(), agentctx.CharTokenCounter{})
	mem.SetSystemPrompt("you are a helpful assistant")
	return mem
}

func newTestDeps(provider *turnLoopTestProvider, registry *ToolRegistry) (TurnLoopDeps, *eventbus.Bus) {
	bus := eventbus.New(nil)
	return TurnLoopDeps{
		Provider: provider,
		Memory:   newTestMemory(),
		ToolTurn: ToolTurnDeps{
			Executor: NewExecutor(registry, nil),
			Gate:     NewPermissionGate(),
			Bus:      bus,
			Prompter: autoPrompter{choice: PromptAccept},
			Log:      models.NewExecutionLog(),
		},
		Bus:   bus,
		Model: "test-model",
	}, bus
}

// S1: the assistant responds with content and no tool calls; the loop
// completes in a single turn and memory holds exactly [system, user,
// assistant].
func TestRunAgentTurnLoop_CompletesWithoutTools(t *testing.T) {
	provider := &turnLoopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "hi"}, {Done: true}},
		},
	}
	deps, _ := newTestDeps(provider, NewToolRegistry())

	userMsg := &models.Message{Role: models.RoleUser, Content: "hello"}
	content, err := RunAgentTurnLoop(context.Background(), deps, TurnLoopConfig{}, "s1", userMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "hi" {
		t.Errorf("content = %q, want %q", content, "hi")
	}

	history := deps.Memory.GetMessages()
	if len(history) != 3 {
		t.Fatalf("len(history) = %d, want 3 (system, user, assistant)", len(history))
	}
	if history[0].Role != models.RoleSystem {
		t.Errorf("history[0].Role = %v, want system", history[0].Role)
	}
	if history[1].Role != models.RoleUser || history[1].Content != "hello" {
		t.Errorf("history[1] = %+v, want user %q", history[1], "hello")
	}
	if history[2].Role != models.RoleAssistant || history[2].Content != "hi" {
		t.Errorf("history[2] = %+v, want assistant %q", history[2], "hi")
	}
}

// S2: a single tool round-trip — the LLM requests read_file, the tool
// executes, and the next turn's response is a final assistant message.
func TestRunAgentTurnLoop_SingleToolRoundTrip(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "read_file",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "content-of-a"}, nil
		},
	})

	provider := &turnLoopTestProvider{
		responses: [][]CompletionChunk{
			{
				{ToolCall: &models.ToolCall{ID: "c1", Name: "read_file", Input: json.RawMessage(`{"path":"/a"}`)}},
				{Done: true},
			},
			{{Text: "done"}, {Done: true}},
		},
	}
	deps, _ := newTestDeps(provider, registry)

	userMsg := &models.Message{Role: models.RoleUser, Content: "read /a"}
	content, err := RunAgentTurnLoop(context.Background(), deps, TurnLoopConfig{}, "s1", userMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "done" {
		t.Errorf("content = %q, want %q", content, "done")
	}

	history := deps.Memory.GetMessages()
	// system, user, assistant(tool_calls), tool, assistant(done)
	if len(history) != 5 {
		t.Fatalf("len(history) = %d, want 5", len(history))
	}
	assistantCall := history[2]
	if len(assistantCall.ToolCalls) != 1 || assistantCall.ToolCalls[0].ID != "c1" {
		t.Errorf("assistant tool call message = %+v", assistantCall)
	}
	toolMsg := history[3]
	if toolMsg.Role != models.RoleTool || len(toolMsg.ToolResults) != 1 {
		t.Fatalf("tool message = %+v", toolMsg)
	}
	if toolMsg.ToolResults[0].ToolCallID != "c1" || toolMsg.ToolResults[0].Content != "content-of-a" {
		t.Errorf("tool result = %+v", toolMsg.ToolResults[0])
	}
}

// S3: malformed tool-call arguments never reach the handler; the loop
// proceeds to a following turn rather than aborting the run.
func TestRunAgentTurnLoop_MalformedToolArgumentsDoesNotAbort(t *testing.T) {
	registry := NewToolRegistry()
	called := false
	registry.Register(&mockTool{
		name: "read_file",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			called = true
			return &ToolResult{Content: "should not run"}, nil
		},
	})

	provider := &turnLoopTestProvider{
		responses: [][]CompletionChunk{
			{
				{ToolCall: &models.ToolCall{ID: "c1", Name: "read_file", Input: json.RawMessage(`{path:`)}},
				{Done: true},
			},
			{{Text: "recovered"}, {Done: true}},
		},
	}
	deps, _ := newTestDeps(provider, registry)

	userMsg := &models.Message{Role: models.RoleUser, Content: "read /a"}
	content, err := RunAgentTurnLoop(context.Background(), deps, TurnLoopConfig{}, "s1", userMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if called {
		t.Fatal("handler must not run for malformed arguments")
	}
	if content != "recovered" {
		t.Errorf("content = %q, want %q", content, "recovered")
	}
}

// Exceeding MaxTurns with the assistant always requesting a tool call
// returns the literal exhaustion message rather than an error.
func TestRunAgentTurnLoop_MaxTurnsExceeded(t *testing.T) {
	registry := NewToolRegistry()
	registry.Register(&mockTool{
		name: "loop_tool",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			return &ToolResult{Content: "again"}, nil
		},
	})

	responses := make([][]CompletionChunk, 3)
	for i := range responses {
		responses[i] = []CompletionChunk{
			{ToolCall: &models.ToolCall{ID: "c", Name: "loop_tool", Input: json.RawMessage(`{}`)}},
			{Done: true},
		}
	}
	provider := &turnLoopTestProvider{responses: responses}
	deps, _ := newTestDeps(provider, registry)

	userMsg := &models.Message{Role: models.RoleUser, Content: "go forever"}
	content, err := RunAgentTurnLoop(context.Background(), deps, TurnLoopConfig{MaxTurns: 3}, "s1", userMsg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if content != "Max turns exceeded" {
		t.Errorf("content = %q, want %q", content, "Max turns exceeded")
	}
}

// The event sequence for a tool-free completion matches spec's literal S1
// event list.
func TestRunAgentTurnLoop_PublishesEventSequence(t *testing.T) {
	provider := &turnLoopTestProvider{
		responses: [][]CompletionChunk{
			{{Text: "hi"}, {Done: true}},
		},
	}
	deps, bus := newTestDeps(provider, NewToolRegistry())

	var events []models.SessionEventType
	ch := bus.Subscribe("s1")
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range ch {
			events = append(events, ev.Type)
			if ev.Type == models.SessionEventAgentDone {
				return
			}
		}
	}()

	userMsg := &models.Message{Role: models.RoleUser, Content: "hello"}
	if _, err := RunAgentTurnLoop(context.Background(), deps, TurnLoopConfig{}, "s1", userMsg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	<-done

	want := []models.SessionEventType{
		models.SessionEventAgentStart,
		models.SessionEventAgentStateChange,
		models.SessionEventAgentStateChange,
		models.SessionEventAgentDone,
	}
	if len(events) != len(want) {
		t.Fatalf("events = %v, want %v", events, want)
	}
	for i := range want {
		if events[i] != want[i] {
			t.Errorf("events[%d] = %v, want %v", i, events[i], want[i])
		}
	}
}
