package agent

import (
	"context"
	"encoding/json"
	"testing"
)

func TestPermissionGate_NoConfigDefaultsAllow(t *testing.T) {
	g := NewPermissionGate()
	decision, _ := g.Classify("s1", "read_file", json.RawMessage(`{}`))
	if decision != GateAllow {
		t.Errorf("Classify() = %v, want GateAllow for unconfigured tool", decision)
	}
}

func TestPermissionGate_NeverDenies(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("rm_rf", ToolPermissionConfig{Permission: PermissionNever})
	decision, _ := g.Classify("s1", "rm_rf", json.RawMessage(`{}`))
	if decision != GateDeny {
		t.Errorf("Classify() = %v, want GateDeny", decision)
	}
}

func TestPermissionGate_AlwaysAllows(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("read_file", ToolPermissionConfig{Permission: PermissionAlways})
	decision, _ := g.Classify("s1", "read_file", json.RawMessage(`{"path":"/etc/passwd"}`))
	if decision != GateAllow {
		t.Errorf("Classify() = %v, want GateAllow", decision)
	}
}

func TestPermissionGate_AskAllowlistMatch(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{
		Permission: PermissionAsk,
		Allowlist:  []string{`"command":"ls.*"`},
	})
	decision, reason := g.Classify("s1", "bash", json.RawMessage(`{"command":"ls -la"}`))
	if decision != GateAllow {
		t.Fatalf("Classify() = %v (%s), want GateAllow", decision, reason)
	}
}

func TestPermissionGate_AskDenylistMatch(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{
		Permission: PermissionAsk,
		Denylist:   []string{`"command":"rm -rf.*"`},
	})
	decision, _ := g.Classify("s1", "bash", json.RawMessage(`{"command":"rm -rf /"}`))
	if decision != GateDeny {
		t.Fatalf("Classify() = %v, want GateDeny", decision)
	}
}

func TestPermissionGate_AskNoMatchNeedsPrompt(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})
	decision, _ := g.Classify("s1", "bash", json.RawMessage(`{"command":"echo hi"}`))
	if decision != GateNeedsPrompt {
		t.Fatalf("Classify() = %v, want GateNeedsPrompt", decision)
	}
}

func TestPermissionGate_ApproveAllFlagStickyAcrossCalls(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})
	g.SetApproveAll("s1", true)

	decision, reason := g.Classify("s1", "bash", json.RawMessage(`{"command":"echo hi"}`))
	if decision != GateAllow {
		t.Fatalf("Classify() = %v (%s), want GateAllow once approve-all is set", decision, reason)
	}

	// A second, unrelated call in the same session must also be auto-allowed:
	// the flag never auto-resets.
	decision, _ = g.Classify("s1", "bash", json.RawMessage(`{"command":"cat /etc/hosts"}`))
	if decision != GateAllow {
		t.Fatalf("Classify() = %v, want GateAllow — approve-all must not auto-reset", decision)
	}
}

func TestPermissionGate_ApproveAllScopedPerSession(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})
	g.SetApproveAll("s1", true)

	decision, _ := g.Classify("s2", "bash", json.RawMessage(`{"command":"echo hi"}`))
	if decision != GateNeedsPrompt {
		t.Fatalf("Classify() = %v, want GateNeedsPrompt for a different, unflagged session", decision)
	}
}

// scriptedPrompter replays a fixed sequence of choices, simulating a user
// who views full args once before deciding.
type scriptedPrompter struct {
	choices []PromptChoice
	calls   int
}

func (p *scriptedPrompter) Prompt(ctx context.Context, sessionID, toolName string, args json.RawMessage) (PromptChoice, error) {
	choice := p.choices[p.calls]
	p.calls++
	return choice, nil
}

func TestPermissionGate_ResolveViewArgsLoopsBack(t *testing.T) {
	g := NewPermissionGate()
	prompter := &scriptedPrompter{choices: []PromptChoice{PromptViewArgs, PromptAccept}}

	allowed, err := g.Resolve(context.Background(), "s1", "bash", json.RawMessage(`{}`), prompter)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !allowed {
		t.Error("expected Resolve() to return true after eventual accept")
	}
	if prompter.calls != 2 {
		t.Errorf("expected prompter called twice (view then accept), got %d", prompter.calls)
	}
}

func TestPermissionGate_ResolveDeny(t *testing.T) {
	g := NewPermissionGate()
	prompter := &scriptedPrompter{choices: []PromptChoice{PromptDeny}}

	allowed, err := g.Resolve(context.Background(), "s1", "bash", json.RawMessage(`{}`), prompter)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if allowed {
		t.Error("expected Resolve() to return false on deny")
	}
}

func TestPermissionGate_ResolveApproveAllSetsFlag(t *testing.T) {
	g := NewPermissionGate()
	g.Configure("bash", ToolPermissionConfig{Permission: PermissionAsk})
	prompter := &scriptedPrompter{choices: []PromptChoice{PromptApproveAll}}

	allowed, err := g.Resolve(context.Background(), "s1", "bash", json.RawMessage(`{}`), prompter)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if !allowed {
		t.Error("expected Resolve() to return true for approve_all")
	}

	decision, _ := g.Classify("s1", "bash", json.RawMessage(`{"command":"anything"}`))
	if decision != GateAllow {
		t.Errorf("expected approve_all to flip the session flag, got %v", decision)
	}
}
