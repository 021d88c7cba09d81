package agent

import (
	"context"
	"fmt"
	"time"

	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/streaming"
	"github.com/haasonsaas/nexus/pkg/models"
)

// DefaultMaxTurns is the default ceiling on Agent Turn Loop iterations
// before a run is abandoned as non-terminating.
const DefaultMaxTurns = 70

// TurnLoopConfig configures a single Agent Turn Loop run.
type TurnLoopConfig struct {
	// MaxTurns limits think/act iterations. Default: DefaultMaxTurns.
	MaxTurns int

	// Mode distinguishes a parent run from a delegated child run; carried
	// through to published events so UIs can distinguish them.
	Mode models.AgentMode

	// EchoWhitelist is passed to the Streaming Driver to strip self-echoed
	// tool-call transcriptions from assistant text.
	EchoWhitelist []string
}

func sanitizeTurnLoopConfig(cfg TurnLoopConfig) TurnLoopConfig {
	if cfg.MaxTurns <= 0 {
		cfg.MaxTurns = DefaultMaxTurns
	}
	if cfg.Mode == "" {
		cfg.Mode = models.ModeParent
	}
	return cfg
}

// TurnLoopDeps bundles everything one turn loop run needs.
type TurnLoopDeps struct {
	Provider LLMProvider
	Memory   *agentctx.ConversationMemory
	ToolTurn ToolTurnDeps
	Bus      *eventbus.Bus

	// Model/System are passed through to every completion request this
	// run makes.
	Model  string
	System string
}

// RunAgentTurnLoop drives one full agent run: think, act on any requested
// tools, repeat, until the assistant responds with no further tool calls or
// the turn budget is exhausted. It publishes agent_start, agent_state_change
// (once per transition), and a terminal agent_done to the Event Bus.
//
// Any panic inside a single turn is recovered, reported as a failed run
// (agent_done{status: error}), and re-raised to the caller — a turn loop
// crash must be visible, not silently swallowed.
func RunAgentTurnLoop(ctx context.Context, deps TurnLoopDeps, cfg TurnLoopConfig, sessionID string, userMessage *models.Message) (content string, err error) {
	cfg = sanitizeTurnLoopConfig(cfg)

	defer func() {
		if rec := recover(); rec != nil {
			deps.publishState(sessionID, models.AgentStateFailed)
			deps.publish(sessionID, models.SessionEventAgentDone, fmt.Sprintf("error: %v", rec))
			panic(rec)
		}
	}()

	deps.publish(sessionID, models.SessionEventAgentStart, "")
	deps.Memory.Add(userMessage)

	for turn := 1; turn <= cfg.MaxTurns; turn++ {
		deps.publishState(sessionID, models.AgentStateThinking)

		assistantMsg, toolCalls, err := deps.think(ctx, cfg)
		if err != nil {
			deps.publishState(sessionID, models.AgentStateFailed)
			deps.publish(sessionID, models.SessionEventAgentDone, fmt.Sprintf("error: %v", err))
			return "", fmt.Errorf("turn %d: %w", turn, err)
		}
		deps.Memory.Add(assistantMsg)

		if len(toolCalls) == 0 {
			deps.publishState(sessionID, models.AgentStateCompleted)
			deps.publish(sessionID, models.SessionEventAgentDone, fmt.Sprintf("completed after %d turns", turn))
			return assistantMsg.Content, nil
		}

		deps.publishState(sessionID, models.AgentStateExecutingTools)
		toolTurn := deps.ToolTurn
		toolTurn.Mode = cfg.Mode
		toolMessages := RunToolTurn(ctx, toolTurn, sessionID, toolCalls)
		for _, m := range toolMessages {
			deps.Memory.Add(m)
		}
	}

	deps.publishState(sessionID, models.AgentStateFailed)
	deps.publish(sessionID, models.SessionEventAgentDone, "max_turns")
	return "Max turns exceeded", nil
}

// think calls the provider once, assembles the streamed chunks via the
// Streaming Driver, and returns the finalized assistant message and its
// tool calls.
func (d TurnLoopDeps) think(ctx context.Context, cfg TurnLoopConfig) (*models.Message, []models.ToolCall, error) {
	messages, err := toCompletionMessages(d.Memory.GetMessages())
	if err != nil {
		return nil, nil, err
	}

	req := &CompletionRequest{
		Model:    d.Model,
		System:   d.System,
		Messages: messages,
		Tools:    d.tools(cfg.Mode),
	}

	chunkCh, err := d.Provider.Complete(ctx, req)
	if err != nil {
		return nil, nil, fmt.Errorf("provider completion: %w", err)
	}

	driver := streaming.New(cfg.EchoWhitelist)
	nextIndex := 0
	for chunk := range chunkCh {
		if chunk == nil {
			continue
		}
		if chunk.Error != nil {
			return nil, nil, chunk.Error
		}
		if chunk.Text != "" {
			driver.Apply(streaming.ChunkDelta{TextDelta: chunk.Text})
		}
		if chunk.ToolCall != nil {
			driver.Apply(streaming.ChunkDelta{
				HasToolCall:       true,
				ToolCallIndex:     nextIndex,
				ToolCallID:        chunk.ToolCall.ID,
				ToolCallName:      chunk.ToolCall.Name,
				ArgumentsFragment: string(chunk.ToolCall.Input),
			})
			nextIndex++
		}
	}

	msg := driver.Finalize()
	return msg, msg.ToolCalls, nil
}

// tools returns the tool list offered to the LLM this turn, scoped to mode
// so a child run never sees a parent-only tool like sub_agent in its own
// completion request — not just blocked from calling it.
func (d TurnLoopDeps) tools(mode models.AgentMode) []Tool {
	if d.ToolTurn.Executor == nil {
		return nil
	}
	registry := d.ToolTurn.Executor.Registry()
	if registry == nil {
		return nil
	}
	return registry.FilterByMode(mode).AsLLMTools()
}

func toCompletionMessages(history []*models.Message) ([]CompletionMessage, error) {
	out := make([]CompletionMessage, 0, len(history))
	for _, m := range history {
		if m == nil {
			continue
		}
		if m.Role == "" {
			return nil, fmt.Errorf("history message missing role (id=%s)", m.ID)
		}
		out = append(out, CompletionMessage{
			Role:        string(m.Role),
			Content:     m.Content,
			ToolCalls:   m.ToolCalls,
			ToolResults: m.ToolResults,
			Attachments: m.Attachments,
		})
	}
	return out, nil
}

func (d TurnLoopDeps) publish(sessionID string, typ models.SessionEventType, message string) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(models.SessionEvent{
		SessionID: sessionID,
		Type:      typ,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func (d TurnLoopDeps) publishState(sessionID string, state models.AgentState) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(models.SessionEvent{
		SessionID:  sessionID,
		Type:       models.SessionEventAgentStateChange,
		AgentState: state,
		Timestamp:  time.Now(),
	})
}
