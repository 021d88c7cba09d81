package models

import "time"

// SessionEventType identifies the kind of progress/lifecycle event published
// on a session's Event Bus channel.
type SessionEventType string

const (
	SessionEventToolStart          SessionEventType = "tool_start"
	SessionEventToolDone           SessionEventType = "tool_done"
	SessionEventToolError          SessionEventType = "tool_error"
	SessionEventAgentStart         SessionEventType = "agent_start"
	SessionEventAgentDone          SessionEventType = "agent_done"
	SessionEventAgentStateChange   SessionEventType = "agent_state_change"
	SessionEventDelegationStart    SessionEventType = "delegation_start"
	SessionEventDelegationComplete SessionEventType = "delegation_complete"
	SessionEventDelegationTimeout  SessionEventType = "delegation_timeout"
	SessionEventChildResponse      SessionEventType = "child_response"
)

// SessionEvent is a single published event on a session's progress channel.
// Which optional fields are set depends on Type; some types (tool_error)
// set more than one.
type SessionEvent struct {
	SessionID  string           `json:"session_id"`
	Type       SessionEventType `json:"type"`
	ToolName   string           `json:"tool_name,omitempty"`
	AgentState AgentState       `json:"agent_state,omitempty"`
	Message    string           `json:"message,omitempty"`
	Metadata   map[string]any   `json:"metadata,omitempty"`
	Timestamp  time.Time        `json:"timestamp"`
}

// AgentState is the Agent Turn Loop's state machine position.
type AgentState string

const (
	AgentStateIdle            AgentState = "idle"
	AgentStateThinking        AgentState = "thinking"
	AgentStateExecutingTools  AgentState = "executing_tools"
	AgentStateWaitingForChild AgentState = "waiting_for_child"
	AgentStateCompleted       AgentState = "completed"
	AgentStateFailed          AgentState = "failed"
)

// AgentStatus is a point-in-time snapshot of a running agent, used by the
// host UI and by delegation's progress reporting.
type AgentStatus struct {
	SessionID     string     `json:"session_id"`
	Mode          AgentMode  `json:"mode"`
	State         AgentState `json:"state"`
	CurrentAction string     `json:"current_action,omitempty"`
	ChildSessions []string   `json:"child_sessions,omitempty"`
	ParentSession string     `json:"parent_session,omitempty"`
}
