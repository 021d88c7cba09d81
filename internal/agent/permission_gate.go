package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
)

// ToolPermission is a per-tool static policy setting.
type ToolPermission string

const (
	PermissionAlways ToolPermission = "always"
	PermissionAsk    ToolPermission = "ask"
	PermissionNever  ToolPermission = "never"
)

// ToolPermissionConfig is the per-tool configuration the Permission Gate
// evaluates a call against. Allowlist/Denylist entries are regular
// expressions matched against the call's canonical argument string.
type ToolPermissionConfig struct {
	Permission ToolPermission
	Allowlist  []string
	Denylist   []string
}

// GateDecision is the outcome of evaluating a tool call.
type GateDecision string

const (
	GateAllow       GateDecision = "allow"
	GateDeny        GateDecision = "deny"
	GateNeedsPrompt GateDecision = "needs_prompt"
)

// PromptChoice is the user's response to an interactive approval prompt.
type PromptChoice string

const (
	PromptAccept     PromptChoice = "accept"
	PromptDeny       PromptChoice = "deny"
	PromptApproveAll PromptChoice = "approve_all"
	PromptViewArgs   PromptChoice = "view_full_args"
)

// Prompter asks a human whether a gated tool call may proceed. View-args
// loops back: PermissionGate.Resolve keeps calling Prompt with the same
// call until a terminal choice (accept/deny/approve_all) is returned.
type Prompter interface {
	Prompt(ctx context.Context, sessionID, toolName string, args json.RawMessage) (PromptChoice, error)
}

// PermissionGate evaluates tool calls against per-tool permission
// configuration: a static always/ask/never setting plus regex allow/deny
// lists consulted only in ask mode, and a session-scoped "approve all" flag
// that, once set, is never cleared automatically — only a new session
// starts with it unset.
type PermissionGate struct {
	mu         sync.RWMutex
	configs    map[string]ToolPermissionConfig
	approveAll map[string]bool
}

// NewPermissionGate returns a gate with no configured tools; unconfigured
// tools default to always-allow.
func NewPermissionGate() *PermissionGate {
	return &PermissionGate{
		configs:    make(map[string]ToolPermissionConfig),
		approveAll: make(map[string]bool),
	}
}

// Configure sets the permission config for a tool.
func (g *PermissionGate) Configure(toolName string, cfg ToolPermissionConfig) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configs[toolName] = cfg
}

// SetApproveAll sets or clears a session's sticky approve-all flag
// explicitly — e.g. from a "new session" command. Resolve never clears it
// on its own.
func (g *PermissionGate) SetApproveAll(sessionID string, approve bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if approve {
		g.approveAll[sessionID] = true
	} else {
		delete(g.approveAll, sessionID)
	}
}

// Classify evaluates a call ahead of dispatch without prompting, returning
// GateAllow/GateDeny when the decision is auto-resolved by policy, or
// GateNeedsPrompt when an interactive prompt (via Resolve) is required.
func (g *PermissionGate) Classify(sessionID, toolName string, args json.RawMessage) (GateDecision, string) {
	g.mu.RLock()
	cfg, hasCfg := g.configs[toolName]
	approveAll := g.approveAll[sessionID]
	g.mu.RUnlock()

	if !hasCfg {
		return GateAllow, "no config for tool: default allow"
	}

	switch cfg.Permission {
	case PermissionNever:
		return GateDeny, "permission=never"
	case PermissionAlways:
		return GateAllow, "permission=always"
	}

	canonical := canonicalArgs(args)
	if matchesAnyRegex(cfg.Allowlist, canonical) {
		return GateAllow, "matched allowlist pattern"
	}
	if matchesAnyRegex(cfg.Denylist, canonical) {
		return GateDeny, "matched denylist pattern"
	}
	if approveAll {
		return GateAllow, "session approve-all flag set"
	}
	return GateNeedsPrompt, "ask policy, no auto-resolution"
}

// Resolve prompts interactively for a call already classified as
// GateNeedsPrompt, looping on PromptViewArgs until a terminal choice is
// made. PromptApproveAll sets the session's sticky flag and allows this
// and all subsequent calls in the session.
func (g *PermissionGate) Resolve(ctx context.Context, sessionID, toolName string, args json.RawMessage, prompter Prompter) (bool, error) {
	for {
		choice, err := prompter.Prompt(ctx, sessionID, toolName, args)
		if err != nil {
			return false, fmt.Errorf("prompt tool %q: %w", toolName, err)
		}
		switch choice {
		case PromptAccept:
			return true, nil
		case PromptDeny:
			return false, nil
		case PromptApproveAll:
			g.SetApproveAll(sessionID, true)
			return true, nil
		case PromptViewArgs:
			continue
		default:
			return false, fmt.Errorf("unknown prompt choice %q", choice)
		}
	}
}

// canonicalArgs renders args as a stable string for pattern matching:
// re-marshaling through json.Marshal of the unmarshaled value normalizes
// key order and whitespace so regex patterns match regardless of how the
// LLM formatted its raw arguments_json_string.
func canonicalArgs(args json.RawMessage) string {
	var v any
	if err := json.Unmarshal(args, &v); err != nil {
		return string(args)
	}
	canon, err := json.Marshal(v)
	if err != nil {
		return string(args)
	}
	return string(canon)
}

func matchesAnyRegex(patterns []string, s string) bool {
	for _, p := range patterns {
		if p == "" {
			continue
		}
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
