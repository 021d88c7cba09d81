package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolRegistry manages available tools with thread-safe registration and lookup.
// Tools are registered by name and can be retrieved for execution during agent conversations.
type ToolRegistry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*jsonschema.Schema
}

// NewToolRegistry creates a new empty tool registry ready for tool registration.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*jsonschema.Schema),
	}
}

// Register adds a tool to the registry by its name and compiles its JSON
// Schema once so later calls are validated without recompiling on every
// dispatch. A tool whose Schema() fails to compile is still registered
// (Execute then skips validation for it) rather than rejected outright —
// a malformed schema is a bug in the tool, not a reason to make it
// unreachable.
func (r *ToolRegistry) Register(tool Tool) {
	compiled := compileToolSchema(tool)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name()] = tool
	if compiled != nil {
		r.schemas[tool.Name()] = compiled
	} else {
		delete(r.schemas, tool.Name())
	}
}

func compileToolSchema(tool Tool) *jsonschema.Schema {
	raw := tool.Schema()
	if len(raw) == 0 {
		return nil
	}
	c := jsonschema.NewCompiler()
	resourceName := tool.Name() + ".json"
	if err := c.AddResource(resourceName, bytes.NewReader(raw)); err != nil {
		return nil
	}
	schema, err := c.Compile(resourceName)
	if err != nil {
		return nil
	}
	return schema
}

// Unregister removes a tool from the registry by name.
func (r *ToolRegistry) Unregister(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.tools, name)
	delete(r.schemas, name)
}

// Get returns a tool by name and a boolean indicating if it was found.
func (r *ToolRegistry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// Tool parameter limits to prevent resource exhaustion
const (
	// MaxToolNameLength is the maximum length of a tool name.
	MaxToolNameLength = 256

	// MaxToolParamsSize is the maximum size of tool parameters JSON (10MB).
	MaxToolParamsSize = 10 << 20
)

// Execute runs a tool by name with the given JSON parameters.
// Returns an error result if the tool is not found or parameters are invalid.
func (r *ToolRegistry) Execute(ctx context.Context, name string, params json.RawMessage) (*ToolResult, error) {
	if len(name) > MaxToolNameLength {
		return &ToolResult{
			Content: fmt.Sprintf("tool name exceeds maximum length of %d characters", MaxToolNameLength),
			IsError: true,
		}, nil
	}

	if len(params) > MaxToolParamsSize {
		return &ToolResult{
			Content: fmt.Sprintf("tool parameters exceed maximum size of %d bytes", MaxToolParamsSize),
			IsError: true,
		}, nil
	}

	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()
	if !ok {
		return &ToolResult{
			Content: "tool not found: " + name,
			IsError: true,
		}, nil
	}

	if schema != nil {
		var v any
		if err := json.Unmarshal(params, &v); err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("tool %q arguments are not valid JSON: %v", name, err),
				IsError: true,
			}, nil
		}
		if err := schema.Validate(v); err != nil {
			return &ToolResult{
				Content: fmt.Sprintf("tool %q arguments failed schema validation: %v", name, err),
				IsError: true,
			}, nil
		}
	}

	return r.executeCatchingPanics(ctx, tool, params)
}

// executeCatchingPanics runs a tool's handler and converts a panic into a
// ToolResult with IsError set and content "Error: panic: <value>". An error
// returned by the handler is passed through unchanged as (nil, err).
func (r *ToolRegistry) executeCatchingPanics(ctx context.Context, tool Tool, params json.RawMessage) (result *ToolResult, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			result = &ToolResult{
				Content: fmt.Sprintf("Error: panic: %v", rec),
				IsError: true,
			}
			err = nil
		}
	}()
	return tool.Execute(ctx, params)
}

// AsLLMTools returns all registered tools as a slice for passing to LLM providers.
func (r *ToolRegistry) AsLLMTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.tools))
	for _, t := range r.tools {
		tools = append(tools, t)
	}
	return tools
}
