package agent

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

// modeScopedMockTool extends mockTool with an explicit AllowedModes list for
// exercising ModeScopedTool.
type modeScopedMockTool struct {
	mockTool
	modes []models.AgentMode
}

func (m *modeScopedMockTool) AllowedModes() []models.AgentMode { return m.modes }

func TestToolRegistry_FilterByMode_UnrestrictedIncludedEverywhere(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&mockTool{name: "read_file"})
	r.Register(&modeScopedMockTool{
		mockTool: mockTool{name: "sub_agent"},
		modes:    []models.AgentMode{models.ModeParent},
	})

	parentOnly := r.FilterByMode(models.ModeParent)
	if _, ok := parentOnly.Get("sub_agent"); !ok {
		t.Error("expected sub_agent available to parent mode")
	}
	if _, ok := parentOnly.Get("read_file"); !ok {
		t.Error("expected unrestricted tool available to parent mode")
	}

	childOnly := r.FilterByMode(models.ModeChild)
	if _, ok := childOnly.Get("sub_agent"); ok {
		t.Error("sub_agent must not be available to child mode (children are leaves)")
	}
	if _, ok := childOnly.Get("read_file"); !ok {
		t.Error("expected unrestricted tool still available to child mode")
	}
}

func TestToolRegistry_IsToolAllowed(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&modeScopedMockTool{
		mockTool: mockTool{name: "sub_agent"},
		modes:    []models.AgentMode{models.ModeParent},
	})

	if !r.IsToolAllowed("sub_agent", models.ModeParent) {
		t.Error("expected sub_agent allowed for parent mode")
	}
	if r.IsToolAllowed("sub_agent", models.ModeChild) {
		t.Error("expected sub_agent disallowed for child mode")
	}
	if r.IsToolAllowed("missing_tool", models.ModeParent) {
		t.Error("expected unregistered tool to be disallowed")
	}
}

func TestToolRegistry_Merge_FirstWinsOnCollision(t *testing.T) {
	a := NewToolRegistry()
	a.Register(&mockTool{name: "shared", description: "from a"})
	a.Register(&mockTool{name: "only_a"})

	b := NewToolRegistry()
	b.Register(&mockTool{name: "shared", description: "from b"})
	b.Register(&mockTool{name: "only_b"})

	merged := a.Merge(b)

	shared, ok := merged.Get("shared")
	if !ok || shared.Description() != "from a" {
		t.Errorf("expected receiver's tool to win collision, got description %q", shared.Description())
	}
	if _, ok := merged.Get("only_a"); !ok {
		t.Error("expected only_a present in merge")
	}
	if _, ok := merged.Get("only_b"); !ok {
		t.Error("expected only_b present in merge")
	}
}

func TestToolRegistry_Execute_PanicConvertedToErrorResult(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&mockTool{
		name: "panicky",
		execFunc: func(ctx context.Context, params json.RawMessage) (*ToolResult, error) {
			panic("boom")
		},
	})

	result, err := r.Execute(context.Background(), "panicky", json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("Execute() should not propagate a panic as an error, got %v", err)
	}
	if result == nil || !result.IsError {
		t.Fatalf("expected an error ToolResult, got %+v", result)
	}
}

func TestToolRegistry_ListToolsAndSchemas(t *testing.T) {
	r := NewToolRegistry()
	r.Register(&mockTool{name: "a", schema: json.RawMessage(`{"type":"object"}`)})
	r.Register(&mockTool{name: "b", schema: json.RawMessage(`{"type":"object"}`)})

	names := r.ListTools()
	if len(names) != 2 {
		t.Fatalf("ListTools() length = %d, want 2", len(names))
	}

	schemas := r.Schemas()
	if len(schemas) != 2 {
		t.Fatalf("Schemas() length = %d, want 2", len(schemas))
	}
}
