package main

import (
	"fmt"
	"log/slog"

	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/agent/providers"
	"github.com/haasonsaas/nexus/internal/delegation"
	"github.com/haasonsaas/nexus/internal/eventbus"
	"github.com/haasonsaas/nexus/internal/sessions"
	"github.com/haasonsaas/nexus/internal/todo"
	"github.com/haasonsaas/nexus/internal/tools/exec"
	"github.com/haasonsaas/nexus/internal/tools/files"
)

// cliRuntime bundles the collaborators one `nexus run` invocation needs.
type cliRuntime struct {
	cfg         Config
	provider    agent.LLMProvider
	bus         *eventbus.Bus
	registry    *agent.ToolRegistry
	gate        *agent.PermissionGate
	sessionMgr  *sessions.Manager
	sessionStor sessions.Store
	todoStore   *todo.Store
	delegator   *delegation.Runner
}

// buildRuntime wires a provider, tool registry (files, exec, todo),
// permission gate, session store, and delegation runner from cfg; the
// sub_agent tool is added afterwards by registerSubAgentTool. The run
// command builds exactly one of these per invocation.
func buildRuntime(cfg Config) (*cliRuntime, error) {
	provider, err := buildProvider(cfg)
	if err != nil {
		return nil, err
	}

	logger := slog.Default()
	bus := eventbus.New(logger)
	store := sessions.NewMemoryStore()
	sessionMgr := sessions.NewManager(store)
	todoStore := todo.NewStore(logger)
	registry := agent.NewToolRegistry()

	filesCfg := files.Config{Workspace: cfg.Workspace}
	registry.Register(files.NewReadTool(filesCfg))
	registry.Register(files.NewWriteTool(filesCfg))
	registry.Register(files.NewEditTool(filesCfg))
	registry.Register(files.NewApplyPatchTool(filesCfg))

	execMgr := exec.NewManager(cfg.Workspace)
	registry.Register(exec.NewExecTool("exec", execMgr))
	registry.Register(exec.NewProcessTool(execMgr))

	registry.Register(todo.NewTool(todoStore))

	delegator := delegation.NewRunner(sessionMgr, store, bus, registry, func() (agent.LLMProvider, string, string) {
		return provider, cfg.Model, ""
	}, delegation.Config{Timeout: cfg.Timeout})

	gate := agent.NewPermissionGate()

	return &cliRuntime{
		cfg:         cfg,
		provider:    provider,
		bus:         bus,
		registry:    registry,
		gate:        gate,
		sessionMgr:  sessionMgr,
		sessionStor: store,
		todoStore:   todoStore,
		delegator:   delegator,
	}, nil
}

// registerSubAgentTool adds the sub_agent tool bound to sessionID. It is
// registered per-session (not in buildRuntime) because the tool needs to
// know which session is delegating before any call is made.
func (r *cliRuntime) registerSubAgentTool(sessionID string) {
	r.registry.Register(delegation.NewTool(r.delegator, sessionID))
}

func buildProvider(cfg Config) (agent.LLMProvider, error) {
	switch cfg.Provider {
	case "", "anthropic":
		if cfg.AnthropicAPIKey == "" {
			return nil, fmt.Errorf("provider %q requires ANTHROPIC_API_KEY (or anthropic_api_key in config)", "anthropic")
		}
		return providers.NewAnthropicProvider(providers.AnthropicConfig{
			APIKey:       cfg.AnthropicAPIKey,
			DefaultModel: cfg.Model,
		})
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("provider %q requires OPENAI_API_KEY (or openai_api_key in config)", "openai")
		}
		return providers.NewOpenAIProvider(cfg.OpenAIAPIKey), nil
	default:
		return nil, fmt.Errorf("unknown provider %q (want \"anthropic\" or \"openai\")", cfg.Provider)
	}
}
