package todo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"

	"github.com/haasonsaas/nexus/internal/agent"
)

// toolArgs is the wire shape the LLM fills in for the todo tool. It mirrors
// Write's all-or-nothing replace semantics: the model always submits the
// full intended list, never a single-item delta.
type toolArgs struct {
	Items []struct {
		ID       string `json:"id" jsonschema_description:"Stable identifier for this item, unique within the list"`
		Content  string `json:"content" jsonschema_description:"Short imperative description of the task"`
		Status   string `json:"status" jsonschema:"enum=pending,enum=in_progress,enum=completed,enum=cancelled"`
		Priority string `json:"priority" jsonschema:"enum=low,enum=medium,enum=high"`
	} `json:"items" jsonschema_description:"The complete todo list to replace the current one with"`
}

var toolSchema = (&jsonschema.Reflector{DoNotReference: true, ExpandedStruct: true}).Reflect(&toolArgs{})

// Tool exposes a Store as a single agent.Tool named "todo": the LLM submits
// its full intended list on every call, matching Store.Write's
// replace-the-whole-list contract.
type Tool struct {
	store *Store
}

// NewTool wraps store as an agent.Tool.
func NewTool(store *Store) *Tool {
	return &Tool{store: store}
}

func (t *Tool) Name() string { return "todo" }

func (t *Tool) Description() string {
	return "Replace the current todo list with a new one. Use this to plan multi-step work and track progress; at most one item may be in_progress at a time."
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

	items := make([]Item, 0, len(args.Items))
	for _, it := range args.Items {
		items = append(items, Item{
			ID:       it.ID,
			Content:  it.Content,
			Status:   Status(it.Status),
			Priority: Priority(it.Priority),
		})
	}

	if err := t.store.Write(items); err != nil {
		return &agent.ToolResult{Content: err.Error(), IsError: true}, nil
	}

	payload, err := json.Marshal(items)
	if err != nil {
		return &agent.ToolResult{Content: "todo list updated"}, nil
	}
	return &agent.ToolResult{Content: string(payload)}, nil
}
