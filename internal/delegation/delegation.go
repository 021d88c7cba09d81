// Package delegation runs a delegated child agent to completion and
// translates the outcome into the wire format the parent LLM receives as a
// sub_agent tool result: a WorkReport on success, a ChildFailure on error or
// timeout.
//
// The spawn/announce bookkeeping this package performs is grounded on the
// teacher's sub-agent manager: a bounded pool of concurrently running
// children, a per-run tool allow/deny list, and a structured result instead
// of raw streamed text.
package delegation

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/nexus/internal/agent"
	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultTimeout bounds a single delegated run when the caller does not
// specify one.
const DefaultTimeout = 10 * time.Minute

// DefaultMaxConcurrent caps the number of children running at once across a
// Runner.
const DefaultMaxConcurrent = 5

// ProviderFactory returns the LLM provider and model/system strings a child
// run should use. Delegation does not own provider selection; it asks the
// parent's runtime for one, matching the spec's "children inherit the
// parent's model" default.
type ProviderFactory func() (provider agent.LLMProvider, model, system string)

// Runner spawns delegated child agents and reports their outcome back as
// LLM-ready text.
type Runner struct {
	sessions  *sessions.Manager
	store     sessions.Store
	bus       *eventbus.Bus
	tools     *agent.ToolRegistry
	providers ProviderFactory

	maxConcurrent int64
	active        int64
	timeout       time.Duration
}

// Config configures a Runner.
type Config struct {
	MaxConcurrent int
	Timeout       time.Duration
}

// NewRunner builds a Runner over the given session manager, store, tool
// registry, event bus, and provider factory.
func NewRunner(sessionMgr *sessions.Manager, store sessions.Store, bus *eventbus.Bus, tools *agent.ToolRegistry, providers ProviderFactory, cfg Config) *Runner {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultMaxConcurrent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Runner{
		sessions:      sessionMgr,
		store:         store,
		bus:           bus,
		tools:         tools,
		providers:     providers,
		maxConcurrent: int64(cfg.MaxConcurrent),
		timeout:       cfg.Timeout,
	}
}

// Request describes a single delegation call.
type Request struct {
	ParentSessionID string
	Task            string
	Label           string
	AllowedTools    []string
	DeniedTools     []string
}

// Delegate creates a child session, runs it to completion against Task
// through the Agent Turn Loop, and returns the context string the parent
// LLM should see in place of a raw tool result — a WorkReport on success or
// a ChildFailure on error/timeout. The returned error is non-nil only for
// setup failures (e.g. a bad parent session id); a child agent failure is
// reported through the returned string, never through err.
func (r *Runner) Delegate(ctx context.Context, req Request) (string, error) {
	if atomic.AddInt64(&r.active, 1) > r.maxConcurrent {
		atomic.AddInt64(&r.active, -1)
		return "", fmt.Errorf("delegation: max concurrent children reached (%d)", r.maxConcurrent)
	}
	defer atomic.AddInt64(&r.active, -1)

	child, err := r.sessions.CreateChildSession(ctx, req.ParentSessionID, "", req.Label)
	if err != nil {
		return "", fmt.Errorf("delegation: create child session: %w", err)
	}

	r.publish(child.ID, models.SessionEventDelegationStart, req.Task)

	runCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	start := time.Now()
	report, failure := r.run(runCtx, child, req)
	duration := time.Since(start)

	if failure != nil {
		failure.DurationSeconds = duration.Seconds()
		failure.SessionID = child.ID
		eventType := models.SessionEventDelegationComplete
		if failure.Category == models.FailureTimeout {
			eventType = models.SessionEventDelegationTimeout
		}
		r.publish(child.ID, eventType, failure.Message)
		return failure.ToContextString(), nil
	}

	report.DurationSeconds = duration.Seconds()
	report.SessionID = child.ID
	r.publish(child.ID, models.SessionEventDelegationComplete, "ok")
	return report.ToContextString(), nil
}

// run drives the child's turn loop and classifies the outcome. Exactly one
// of the two return values is non-nil.
func (r *Runner) run(ctx context.Context, child *models.Session, req Request) (*models.WorkReport, *models.ChildFailure) {
	log := models.NewExecutionLog()
	gate := r.buildGate(req.AllowedTools, req.DeniedTools)

	provider, model, system := r.providers()
	memory := agentctx.NewConversationMemory(agentctx.DefaultWindowConfig(), nil)
	memory.SetSystemPrompt(childSystemPrompt(req.Task, req.Label))

	deps := agent.TurnLoopDeps{
		Provider: provider,
		Memory:   memory,
		Bus:      r.bus,
		Model:    model,
		System:   system,
		ToolTurn: agent.ToolTurnDeps{
			Executor: agent.NewExecutor(r.tools, nil),
			Gate:     gate,
			Bus:      r.bus,
			Prompter: alwaysDenyPrompter{}, // children never prompt a human; ask-policy tools are denied
			Log:      log,
		},
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: child.ID,
		Role:      models.RoleUser,
		Content:   req.Task,
		CreatedAt: time.Now(),
	}

	content, err := agent.RunAgentTurnLoop(ctx, deps, agent.TurnLoopConfig{Mode: models.ModeChild}, child.ID, userMsg)
	if err != nil {
		return nil, classifyFailure(err, log, ctx)
	}
	if ctx.Err() != nil {
		return nil, classifyFailure(ctx.Err(), log, ctx)
	}

	return &models.WorkReport{FinalText: content, Log: log}, nil
}

func classifyFailure(err error, log *models.ExecutionLog, ctx context.Context) *models.ChildFailure {
	category := models.FailureToolError
	retry := true
	if ctx.Err() == context.DeadlineExceeded {
		category = models.FailureTimeout
		retry = true
	}

	completed := make([]string, 0, len(log.Executions))
	for _, e := range log.Executions {
		if e.Success {
			completed = append(completed, e.ToolName)
		}
	}

	return &models.ChildFailure{
		Category:           category,
		Message:            err.Error(),
		CompletedSteps:     completed,
		FilesModified:      log.FilesModified(),
		SuggestedRetry:     retry,
		ToolUsage:          log.ToolUsage(),
		LastSuccessfulTool: log.LastSuccessfulTool(),
	}
}

// buildGate configures a PermissionGate from an allow/deny list: denied
// tools are always-denied, and a non-empty allow list denies every other
// registered tool by default.
func (r *Runner) buildGate(allowed, denied []string) *agent.PermissionGate {
	gate := agent.NewPermissionGate()

	if len(allowed) > 0 {
		allowSet := make(map[string]bool, len(allowed))
		for _, name := range allowed {
			allowSet[name] = true
		}
		for _, t := range r.tools.AsLLMTools() {
			if allowSet[t.Name()] {
				gate.Configure(t.Name(), agent.ToolPermissionConfig{Permission: agent.PermissionAlways})
			} else {
				gate.Configure(t.Name(), agent.ToolPermissionConfig{Permission: agent.PermissionNever})
			}
		}
	}
	for _, name := range denied {
		gate.Configure(name, agent.ToolPermissionConfig{Permission: agent.PermissionNever})
	}
	return gate
}

func (r *Runner) publish(sessionID string, typ models.SessionEventType, message string) {
	if r.bus == nil {
		return
	}
	r.bus.Publish(models.SessionEvent{
		SessionID: sessionID,
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
	})
}

// alwaysDenyPrompter resolves every needs-prompt call as denied: a
// delegated child has no human attached to answer an interactive approval
// prompt, so any tool configured "ask" is unreachable for it.
type alwaysDenyPrompter struct{}

func (alwaysDenyPrompter) Prompt(ctx context.Context, sessionID, toolName string, args json.RawMessage) (agent.PromptChoice, error) {
	return agent.PromptDeny, nil
}

func childSystemPrompt(task, label string) string {
	name := label
	if name == "" {
		name = "subagent"
	}
	return fmt.Sprintf(
		"You are %q, a delegated sub-agent. Your entire purpose is to complete this task:\n\n%s\n\n"+
			"Complete it and report back; you are not the main agent and have no conversation with the user.",
		name, task,
	)
}
