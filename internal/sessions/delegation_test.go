package sessions

import (
	"context"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func newParentSession(t *testing.T, store Store) *models.Session {
	t.Helper()
	parent := &models.Session{AgentID: "agent-1", Channel: models.ChannelType("web"), AgentMode: models.ModeParent}
	if err := store.Create(context.Background(), parent); err != nil {
		t.Fatalf("create parent: %v", err)
	}
	return parent
}

func TestManager_CreateChildSession(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	parent := newParentSession(t, store)

	child, err := mgr.CreateChildSession(context.Background(), parent.ID, "claude-sonnet-4-20250514", "sub-task")
	if err != nil {
		t.Fatalf("CreateChildSession() error = %v", err)
	}
	if !child.IsChild() {
		t.Errorf("expected child.IsChild() true, got %+v", child)
	}
	if child.AgentMode != models.ModeChild {
		t.Errorf("AgentMode = %v, want %v", child.AgentMode, models.ModeChild)
	}
	if child.ParentID == nil || *child.ParentID != parent.ID {
		t.Errorf("ParentID = %v, want %q", child.ParentID, parent.ID)
	}
}

func TestManager_CreateChildSession_RejectsGrandchild(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	parent := newParentSession(t, store)

	child, err := mgr.CreateChildSession(context.Background(), parent.ID, "model", "")
	if err != nil {
		t.Fatalf("CreateChildSession() error = %v", err)
	}

	_, err = mgr.CreateChildSession(context.Background(), child.ID, "model", "")
	if err == nil {
		t.Fatal("expected error creating a child of a child session (children are leaves)")
	}
}

func TestManager_CreateChildSession_UnknownParent(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	if _, err := mgr.CreateChildSession(context.Background(), "does-not-exist", "model", ""); err == nil {
		t.Fatal("expected error for unknown parent session")
	}
}

func TestManager_GetChildren(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	parent := newParentSession(t, store)

	c1, _ := mgr.CreateChildSession(context.Background(), parent.ID, "model", "")
	c2, _ := mgr.CreateChildSession(context.Background(), parent.ID, "model", "")

	children, err := mgr.GetChildren(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("GetChildren() error = %v", err)
	}
	if len(children) != 2 {
		t.Fatalf("GetChildren() length = %d, want 2", len(children))
	}
	seen := map[string]bool{c1.ID: false, c2.ID: false}
	for _, id := range children {
		seen[id] = true
	}
	for id, ok := range seen {
		if !ok {
			t.Errorf("expected child %q in GetChildren() result", id)
		}
	}
}

func TestManager_IsChildSessionAndAgentMode(t *testing.T) {
	store := NewMemoryStore()
	mgr := NewManager(store)
	parent := newParentSession(t, store)
	child, _ := mgr.CreateChildSession(context.Background(), parent.ID, "model", "")

	isChild, err := mgr.IsChildSession(context.Background(), child.ID)
	if err != nil || !isChild {
		t.Fatalf("IsChildSession(child) = (%v, %v), want (true, nil)", isChild, err)
	}

	isChild, err = mgr.IsChildSession(context.Background(), parent.ID)
	if err != nil || isChild {
		t.Fatalf("IsChildSession(parent) = (%v, %v), want (false, nil)", isChild, err)
	}

	mode, err := mgr.GetAgentMode(context.Background(), child.ID)
	if err != nil || mode != models.ModeChild {
		t.Fatalf("GetAgentMode(child) = (%v, %v), want (%v, nil)", mode, err, models.ModeChild)
	}
}
