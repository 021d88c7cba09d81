package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/pkg/models"
)

// ToolTurnDeps bundles the collaborators a tool turn needs: the executor
// that actually runs a call (with retry/timeout/panic handling), the
// permission gate that classifies and resolves each call, the event bus
// progress is published to, the interactive prompter used for needs-prompt
// calls, and the execution log the results are recorded into.
type ToolTurnDeps struct {
	Executor *Executor
	Gate     *PermissionGate
	Bus      *eventbus.Bus
	Prompter Prompter
	Log      *models.ExecutionLog

	// Mode restricts dispatch to tools the current session's agent mode may
	// invoke (e.g. a child run may not call sub_agent). Filtering the tools
	// offered to the LLM (see TurnLoopDeps.tools) is the first line of
	// defense; this is the second, in case a call for a mode-restricted
	// tool arrives anyway.
	Mode models.AgentMode
}

// fileToolPath extracts the "path" argument from a well-known file tool's
// JSON arguments, used to attribute the call to files_read/written/edited.
func fileToolPath(args json.RawMessage) string {
	var parsed struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &parsed); err != nil {
		return ""
	}
	return parsed.Path
}

// RunToolTurn executes an ordered list of tool calls from a single assistant
// message and returns an ordered list of Tool messages — one per input
// call, in the same order regardless of which partition (needs-prompt vs
// auto-resolved) a call fell into.
func RunToolTurn(ctx context.Context, deps ToolTurnDeps, sessionID string, calls []models.ToolCall) []*models.Message {
	out := make([]*models.Message, len(calls))
	var needsPrompt, autoResolved []int

	for i, call := range calls {
		if !isValidJSONObject(call.Input) {
			content := fmt.Sprintf("Error: Invalid JSON arguments: %s", jsonSyntaxDetail(call.Input))
			out[i] = toolMessage(call.ID, content, true)
			deps.recordError(call.Name, content)
			deps.publish(sessionID, models.SessionEventToolError, call.Name, content)
			continue
		}

		if registry := deps.registry(); registry != nil {
			if _, ok := registry.Get(call.Name); ok && !registry.IsToolAllowed(call.Name, deps.Mode) {
				content := fmt.Sprintf("Error: tool %q is not available in mode %q", call.Name, deps.Mode)
				out[i] = toolMessage(call.ID, content, true)
				deps.recordError(call.Name, content)
				deps.publish(sessionID, models.SessionEventToolError, call.Name, content)
				continue
			}
		}

		decision, _ := deps.Gate.Classify(sessionID, call.Name, call.Input)
		switch decision {
		case GateDeny:
			content := "Error: Tool execution denied by policy"
			out[i] = toolMessage(call.ID, content, true)
			deps.recordError(call.Name, content)
			deps.publish(sessionID, models.SessionEventToolError, call.Name, content)
		case GateNeedsPrompt:
			needsPrompt = append(needsPrompt, i)
		default:
			autoResolved = append(autoResolved, i)
		}
	}

	// Needs-prompt calls run sequentially to preserve deterministic prompt
	// ordering: a user approving/denying call N must see calls in the order
	// the LLM produced them.
	for _, i := range needsPrompt {
		call := calls[i]
		deps.publish(sessionID, models.SessionEventToolStart, call.Name, "")

		allowed, err := deps.Gate.Resolve(ctx, sessionID, call.Name, call.Input, deps.Prompter)
		if err != nil || !allowed {
			content := "Error: Tool execution denied by user"
			if err != nil {
				content = fmt.Sprintf("Error: Tool execution denied by user: %s", err.Error())
			}
			out[i] = toolMessage(call.ID, content, true)
			deps.recordError(call.Name, content)
			deps.publish(sessionID, models.SessionEventToolError, call.Name, content)
			continue
		}

		out[i] = deps.execute(ctx, sessionID, call)
	}

	// Auto-resolved calls run concurrently.
	var wg sync.WaitGroup
	for _, i := range autoResolved {
		wg.Add(1)
		go func(idx int, call models.ToolCall) {
			defer wg.Done()
			deps.publish(sessionID, models.SessionEventToolStart, call.Name, "")
			out[idx] = deps.execute(ctx, sessionID, call)
		}(i, calls[i])
	}
	wg.Wait()

	return out
}

// registry returns the tool registry behind this turn's Executor, or nil if
// either is unset (e.g. in a test harness wiring a bare Executor).
func (d ToolTurnDeps) registry() *ToolRegistry {
	if d.Executor == nil {
		return nil
	}
	return d.Executor.Registry()
}

// execute runs one already-approved call through the Executor, records it
// in the ExecutionLog, publishes the terminal event, and returns the
// resulting Tool message.
func (d ToolTurnDeps) execute(ctx context.Context, sessionID string, call models.ToolCall) *models.Message {
	start := time.Now()
	res := d.Executor.Execute(ctx, call)
	duration := time.Since(start)

	var content string
	var isError bool
	switch {
	case res.Error != nil:
		content = fmt.Sprintf("Error executing tool: %s", res.Error.Error())
		isError = true
	case res.Result != nil:
		content = res.Result.Content
		isError = res.Result.IsError || strings.HasPrefix(content, "Error:")
	default:
		content = "Error executing tool: no result"
		isError = true
	}

	d.recordExecution(call, content, !isError, duration)
	if isError {
		d.recordError(call.Name, content)
		d.publish(sessionID, models.SessionEventToolError, call.Name, content)
	} else {
		d.publish(sessionID, models.SessionEventToolDone, call.Name, "")
	}

	return toolMessage(call.ID, content, isError)
}

// executionLogMu serializes writes to a shared *models.ExecutionLog:
// auto-resolved calls record concurrently, and ExecutionLog itself keeps no
// lock of its own (it is built to be filled in sequentially by a single
// child agent in the common case).
var executionLogMu sync.Mutex

func (d ToolTurnDeps) recordExecution(call models.ToolCall, resultSummary string, success bool, duration time.Duration) {
	if d.Log == nil {
		return
	}
	executionLogMu.Lock()
	defer executionLogMu.Unlock()
	d.Log.RecordToolCall(call.Name, string(call.Input), resultSummary, success, duration, time.Now(), fileToolPath(call.Input))
}

func (d ToolTurnDeps) recordError(toolName, message string) {
	if d.Log == nil {
		return
	}
	executionLogMu.Lock()
	defer executionLogMu.Unlock()
	d.Log.RecordError(toolName, message)
}

func (d ToolTurnDeps) publish(sessionID string, typ models.SessionEventType, toolName, message string) {
	if d.Bus == nil {
		return
	}
	d.Bus.Publish(models.SessionEvent{
		SessionID: sessionID,
		Type:      typ,
		ToolName:  toolName,
		Message:   message,
		Timestamp: time.Now(),
	})
}

func toolMessage(toolCallID, content string, isError bool) *models.Message {
	return &models.Message{
		Role:      models.RoleTool,
		Content:   content,
		CreatedAt: time.Now(),
		ToolResults: []models.ToolResult{
			{ToolCallID: toolCallID, Content: content, IsError: isError},
		},
	}
}

func isValidJSONObject(raw json.RawMessage) bool {
	if len(raw) == 0 {
		return false
	}
	var v map[string]any
	return json.Unmarshal(raw, &v) == nil
}

func jsonSyntaxDetail(raw json.RawMessage) string {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return err.Error()
	}
	return "expected a JSON object"
}
