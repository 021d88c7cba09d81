package agent

import "github.com/haasonsaas/nexus/pkg/models"

// ModeScopedTool is implemented by tools that restrict which agent mode may
// invoke them (e.g. sub_agent is parent-only: a child session must not be
// able to delegate further, since children are leaves). A Tool that does
// not implement this interface is unrestricted and available to every mode.
type ModeScopedTool interface {
	Tool
	AllowedModes() []models.AgentMode
}

// allowedModes returns a tool's declared mode restrictions, or nil if the
// tool is unrestricted.
func allowedModes(t Tool) []models.AgentMode {
	scoped, ok := t.(ModeScopedTool)
	if !ok {
		return nil
	}
	return scoped.AllowedModes()
}

// IsToolAllowed reports whether the named tool may be invoked by an agent
// running in the given mode. Unregistered tools and unrestricted tools both
// report according to registration/no-restriction, matching the registry's
// tolerant Execute() contract.
func (r *ToolRegistry) IsToolAllowed(name string, mode models.AgentMode) bool {
	r.mu.RLock()
	tool, ok := r.tools[name]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	return modeAllowed(allowedModes(tool), mode)
}

func modeAllowed(modes []models.AgentMode, mode models.AgentMode) bool {
	if len(modes) == 0 {
		return true
	}
	for _, m := range modes {
		if m == mode {
			return true
		}
	}
	return false
}

// FilterByMode returns a new registry containing only the tools whose
// AllowedModes includes the target mode; unrestricted tools are always
// included. The receiver is left unmodified.
func (r *ToolRegistry) FilterByMode(mode models.AgentMode) *ToolRegistry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	filtered := NewToolRegistry()
	for name, tool := range r.tools {
		if modeAllowed(allowedModes(tool), mode) {
			filtered.tools[name] = tool
			if schema, ok := r.schemas[name]; ok {
				filtered.schemas[name] = schema
			}
		}
	}
	return filtered
}

// Merge returns a new registry that is the union of the receiver and other,
// keyed by tool name. On a name collision the receiver's tool wins.
func (r *ToolRegistry) Merge(other *ToolRegistry) *ToolRegistry {
	merged := NewToolRegistry()
	if other != nil {
		other.mu.RLock()
		for name, tool := range other.tools {
			merged.tools[name] = tool
		}
		other.mu.RUnlock()
	}
	r.mu.RLock()
	for name, tool := range r.tools {
		merged.tools[name] = tool
	}
	r.mu.RUnlock()
	return merged
}

// ListTools returns the names of every registered tool.
func (r *ToolRegistry) ListTools() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Schemas returns each registered tool keyed by tool name; a tool's JSON
// schema is available from its Schema method.
func (r *ToolRegistry) Schemas() map[string]Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Tool, len(r.tools))
	for name, tool := range r.tools {
		out[name] = tool
	}
	return out
}
