package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Manager is a thin coordinator over Store for the parent/child session
// hierarchy delegation creates. It does not itself run agents; it only
// mints and tracks session records.
type Manager struct {
	store Store
}

// NewManager wraps a Store with parent/child hierarchy operations.
func NewManager(store Store) *Manager {
	return &Manager{store: store}
}

// CreateChildSession mints a unique child session id, persists a record
// with parent_id set and agent_mode=child, and returns the new session.
func (m *Manager) CreateChildSession(ctx context.Context, parentID, model, title string) (*models.Session, error) {
	parent, err := m.store.Get(ctx, parentID)
	if err != nil {
		return nil, fmt.Errorf("lookup parent session %q: %w", parentID, err)
	}
	if parent == nil {
		return nil, fmt.Errorf("parent session %q does not exist", parentID)
	}
	if parent.IsChild() {
		return nil, fmt.Errorf("session %q is itself a child session: children cannot spawn children", parentID)
	}

	now := time.Now()
	child := &models.Session{
		ID:        uuid.NewString(),
		AgentID:   parent.AgentID,
		Channel:   parent.Channel,
		ChannelID: parent.ChannelID,
		Title:     title,
		Model:     model,
		ParentID:  &parentID,
		AgentMode: models.ModeChild,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.Create(ctx, child); err != nil {
		return nil, fmt.Errorf("persist child session: %w", err)
	}
	return child, nil
}

// GetChildren returns the ids of every session whose parent_id is parentID.
func (m *Manager) GetChildren(ctx context.Context, parentID string) ([]string, error) {
	all, err := m.store.List(ctx, "", ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	var children []string
	for _, s := range all {
		if s.ParentID != nil && *s.ParentID == parentID {
			children = append(children, s.ID)
		}
	}
	return children, nil
}

// GetHierarchy returns the session record including its parent_id and
// agent_mode.
func (m *Manager) GetHierarchy(ctx context.Context, sessionID string) (*models.Session, error) {
	s, err := m.store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("lookup session %q: %w", sessionID, err)
	}
	if s == nil {
		return nil, fmt.Errorf("session %q does not exist", sessionID)
	}
	return s, nil
}

// IsChildSession reports whether sessionID names a delegated child session.
func (m *Manager) IsChildSession(ctx context.Context, sessionID string) (bool, error) {
	s, err := m.GetHierarchy(ctx, sessionID)
	if err != nil {
		return false, err
	}
	return s.IsChild(), nil
}

// GetAgentMode returns the session's agent mode.
func (m *Manager) GetAgentMode(ctx context.Context, sessionID string) (models.AgentMode, error) {
	s, err := m.GetHierarchy(ctx, sessionID)
	if err != nil {
		return "", err
	}
	return s.AgentMode, nil
}
