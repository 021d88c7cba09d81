package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/haasonsaas/nexus/internal/agent"
	agentctx "github.com/haasonsaas/nexus/internal/agent/context"
	"github.com/haasonsaas/nexus/pkg/models"
)

func buildRunCmd() *cobra.Command {
	var systemPrompt string

	cmd := &cobra.Command{
		Use:   "run <task>",
		Short: "Run a single agent turn loop against a task and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(configPath)
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cfg)
			if err != nil {
				return err
			}

			session := &models.Session{
				ID:        uuid.NewString(),
				Model:     cfg.Model,
				AgentMode: models.ModeParent,
				CreatedAt: time.Now(),
				UpdatedAt: time.Now(),
			}
			if err := rt.sessionStor.Create(cmd.Context(), session); err != nil {
				return fmt.Errorf("create session: %w", err)
			}
			rt.registerSubAgentTool(session.ID)

			result, err := runTask(cmd.Context(), rt, session.ID, args[0], systemPrompt)
			if err != nil {
				return err
			}
			fmt.Println(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&systemPrompt, "system", "", "system prompt override")
	return cmd
}

// runTask drives one Agent Turn Loop run, printing each event to stdout as
// it is published, and returns the assistant's final content.
func runTask(ctx context.Context, rt *cliRuntime, sessionID, task, systemPrompt string) (string, error) {
	events := rt.bus.Subscribe(sessionID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printEvent(ev)
			if ev.Type == models.SessionEventAgentDone {
				return
			}
		}
	}()

	memory := agentctx.NewConversationMemory(agentctx.DefaultWindowConfig(), nil)
	if systemPrompt != "" {
		memory.SetSystemPrompt(systemPrompt)
	}

	log := models.NewExecutionLog()
	deps := agent.TurnLoopDeps{
		Provider: rt.provider,
		Memory:   memory,
		Bus:      rt.bus,
		Model:    rt.cfg.Model,
		System:   systemPrompt,
		ToolTurn: agent.ToolTurnDeps{
			Executor: agent.NewExecutor(rt.registry, nil),
			Gate:     rt.gate,
			Bus:      rt.bus,
			Prompter: autoApprovePrompter{},
			Log:      log,
		},
	}

	userMsg := &models.Message{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Role:      models.RoleUser,
		Content:   task,
		CreatedAt: time.Now(),
	}

	content, err := agent.RunAgentTurnLoop(ctx, deps, agent.TurnLoopConfig{MaxTurns: rt.cfg.MaxTurns, Mode: models.ModeParent}, sessionID, userMsg)
	<-done
	return content, err
}

func printEvent(ev models.SessionEvent) {
	switch ev.Type {
	case models.SessionEventAgentStateChange:
		fmt.Printf("[%s] state: %s\n", ev.SessionID[:8], ev.AgentState)
	case models.SessionEventToolStart:
		fmt.Printf("[%s] tool start: %s\n", ev.SessionID[:8], ev.ToolName)
	case models.SessionEventToolDone:
		fmt.Printf("[%s] tool done: %s\n", ev.SessionID[:8], ev.ToolName)
	case models.SessionEventToolError:
		fmt.Printf("[%s] tool error: %s: %s\n", ev.SessionID[:8], ev.ToolName, ev.Message)
	case models.SessionEventAgentDone:
		fmt.Printf("[%s] done: %s\n", ev.SessionID[:8], ev.Message)
	}
}

// autoApprovePrompter approves every needs-prompt call. The CLI runs
// unattended; a human can instead scope what the agent may touch via
// PermissionGate.Configure before calling runTask.
type autoApprovePrompter struct{}

func (autoApprovePrompter) Prompt(ctx context.Context, sessionID, toolName string, args json.RawMessage) (agent.PromptChoice, error) {
	return agent.PromptAccept, nil
}
