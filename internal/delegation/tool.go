package delegation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/pkg/models"
)

// toolArgs is the wire shape the parent LLM fills in for a sub_agent call.
type toolArgs struct {
	Task         string   `json:"task" jsonschema_description:"The task to delegate, written as a complete, self-contained instruction"`
	Label        string   `json:"label,omitempty" jsonschema_description:"Short human-readable name for this delegation, shown in progress output"`
	AllowedTools []string `json:"allowed_tools,omitempty" jsonschema_description:"If set, the child may only use these tools"`
	DeniedTools  []string `json:"denied_tools,omitempty" jsonschema_description:"Tools the child may never use, evaluated after allowed_tools"`
}

var toolSchema = (&jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}).Reflect(&toolArgs{})

// Tool exposes a Runner as the single agent.Tool named "sub_agent" the
// parent's turn loop calls to delegate a task to a child agent.
type Tool struct {
	runner          *Runner
	parentSessionID string
}

// NewTool binds a Runner to the parent session that will own every child it
// spawns; one Tool instance is built per parent turn loop run.
func NewTool(runner *Runner, parentSessionID string) *Tool {
	return &Tool{runner: runner, parentSessionID: parentSessionID}
}

func (t *Tool) Name() string { return "sub_agent" }

// AllowedModes restricts sub_agent to parent sessions: a delegated child is
// a leaf and must not itself delegate further.
func (t *Tool) AllowedModes() []models.AgentMode {
	return []models.AgentMode{models.ModeParent}
}

func (t *Tool) Description() string {
	return "Delegate a self-contained task to a child agent and get back its work report or failure reason. Use for parallelizable or narrowly-scoped work you want off the main thread."
}

func (t *Tool) Schema() json.RawMessage {
	payload, err := json.Marshal(toolSchema)
	if err != nil {
		return json.RawMessage(`{"type":"object"}`)
	}
	return payload
}

func (t *Tool) Execute(ctx context.Context, params json.RawMessage) (*agent.ToolResult, error) {
	var args toolArgs
	if err := json.Unmarshal(params, &args); err != nil {
		return &agent.ToolResult{Content: fmt.Sprintf("Invalid parameters: %v", err), IsError: true}, nil
	}
	if args.Task == "" {
		return &agent.ToolResult{Content: "task is required", IsError: true}, nil
	}

	content, err := t.runner.Delegate(ctx, Request{
		ParentSessionID: t.parentSessionID,
		Task:            args.Task,
		Label:           args.Label,
		AllowedTools:    args.AllowedTools,
		DeniedTools:     args.DeniedTools,
	})
	if err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}
	return &agent.ToolResult{Content: content}, nil
}
