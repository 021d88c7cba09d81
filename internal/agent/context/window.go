package context

import (
	"log/slog"
	"sync"

	"github.com/haasonsaas/nexus/pkg/models"
)

// WindowConfig configures a ConversationMemory's trimming behavior.
type WindowConfig struct {
	// MaxTokens is the hard cap on total token count (system + window).
	MaxTokens int

	// MaxMessages is an optional soft cap on window length; 0 disables it.
	MaxMessages int

	// Logger receives a Warn entry whenever a trim pass cannot bring the
	// window under MaxTokens (the safety-floor case).
	Logger *slog.Logger
}

// DefaultWindowConfig returns sensible defaults.
func DefaultWindowConfig() WindowConfig {
	return WindowConfig{
		MaxTokens: 8000,
	}
}

// ConversationMemory is a token-bounded sliding window over a conversation's
// non-system messages, plus at most one preserved System message. Mutations
// run a trimmer that preserves the invariant that no Tool message is ever
// orphaned at position 0 without a preceding Assistant message carrying its
// tool_call_id.
//
// ConversationMemory is safe for concurrent use; every mutating method runs
// under a single lock, matching the "short critical sections" resource
// policy for process-owned in-memory state.
type ConversationMemory struct {
	mu      sync.Mutex
	system  *models.Message
	window  []*models.Message
	cfg     WindowConfig
	counter TokenCounter
}

// TokenCounter counts the tokens a message contributes. Implementations must
// be deterministic: the same message always yields the same count.
type TokenCounter interface {
	CountMessage(m *models.Message) int
}

// NewConversationMemory constructs an empty ConversationMemory. A nil
// counter defaults to CharTokenCounter, a deterministic character-based
// approximation (~4 chars/token), matching the fallback-tokenizer
// requirement when no model-specific tokenizer is wired.
func NewConversationMemory(cfg WindowConfig, counter TokenCounter) *ConversationMemory {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultWindowConfig().MaxTokens
	}
	if counter == nil {
		counter = CharTokenCounter{}
	}
	return &ConversationMemory{cfg: cfg, counter: counter}
}

// SetSystemPrompt replaces the stored system message. It is never trimmed.
func (c *ConversationMemory) SetSystemPrompt(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.system = &models.Message{Role: models.RoleSystem, Content: text}
}

// Add appends a message; a System-role message replaces the stored system
// message instead of joining the window. The trimmer then runs.
func (c *ConversationMemory) Add(m *models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.addLocked(m)
	c.trimLocked()
}

// AddBatch appends all messages and runs the trimmer once, used when loading
// a persisted session's history so intermediate trims don't discard
// predecessors a later message still needs (e.g. a tool result whose
// assistant message hasn't been appended yet).
func (c *ConversationMemory) AddBatch(msgs []*models.Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range msgs {
		c.addLocked(m)
	}
	c.trimLocked()
}

func (c *ConversationMemory) addLocked(m *models.Message) {
	if m == nil {
		return
	}
	if m.Role == models.RoleSystem {
		sys := *m
		c.system = &sys
		return
	}
	c.window = append(c.window, m)
}

// GetMessages returns the system message (if any) followed by the current
// window, in order.
func (c *ConversationMemory) GetMessages() []*models.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*models.Message, 0, len(c.window)+1)
	if c.system != nil {
		out = append(out, c.system)
	}
	out = append(out, c.window...)
	return out
}

// Clear discards all non-system messages; the system message survives.
func (c *ConversationMemory) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.window = nil
}

// GetTokenCount returns the sum of tokenized lengths over system + window.
func (c *ConversationMemory) GetTokenCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tokenCountLocked()
}

func (c *ConversationMemory) tokenCountLocked() int {
	total := 0
	if c.system != nil {
		total += c.counter.CountMessage(c.system)
	}
	for _, m := range c.window {
		total += c.counter.CountMessage(m)
	}
	return total
}

// trimLocked runs the trimmer algorithm. Caller must hold the lock.
//
// 1. If MaxMessages is set and window length exceeds it, drop from the
//    front until length == MaxMessages.
// 2. While total tokens > MaxTokens and window length > 1, drop the minimal
//    removable prefix that keeps an Assistant message and all its Tool
//    results together as a unit.
// 3. Orphan sweep: drop any leading Tool messages once more (defensive —
//    step 2 should already prevent this, but a caller appending a bare Tool
//    message directly could otherwise leave one at position 0).
func (c *ConversationMemory) trimLocked() {
	if c.cfg.MaxMessages > 0 {
		for len(c.window) > c.cfg.MaxMessages {
			c.window = c.window[1:]
		}
	}

	for c.tokenCountLocked() > c.cfg.MaxTokens && len(c.window) > 1 {
		prefixLen := c.minimalRemovablePrefixLocked()
		if prefixLen >= len(c.window) {
			c.cfg.Logger.Warn("conversation memory: cannot trim below max_tokens without emptying window",
				slog.Int("tokens", c.tokenCountLocked()),
				slog.Int("max_tokens", c.cfg.MaxTokens),
				slog.Int("window_len", len(c.window)),
			)
			break
		}
		c.window = c.window[prefixLen:]
	}

	for len(c.window) > 1 && c.window[0].Role == models.RoleTool {
		c.window = c.window[1:]
	}
}

// minimalRemovablePrefixLocked computes the length of the smallest prefix of
// the window that can be dropped without orphaning a Tool message.
func (c *ConversationMemory) minimalRemovablePrefixLocked() int {
	if len(c.window) == 0 {
		return 0
	}
	head := c.window[0]
	switch {
	case head.Role == models.RoleAssistant && len(head.ToolCalls) > 0:
		n := 1
		for n < len(c.window) && c.window[n].Role == models.RoleTool {
			n++
		}
		return n
	case head.Role == models.RoleTool:
		n := 0
		for n < len(c.window) && c.window[n].Role == models.RoleTool {
			n++
		}
		return n
	default:
		return 1
	}
}

// CharTokenCounter is a deterministic, model-agnostic fallback tokenizer:
// content length plus tool-call name/argument length, divided by 4 (the
// conventional English-text chars-per-token approximation also used by the
// provider adapters' CountTokens estimators).
type CharTokenCounter struct{}

func (CharTokenCounter) CountMessage(m *models.Message) int {
	if m == nil {
		return 0
	}
	chars := len(m.Content)
	for _, tc := range m.ToolCalls {
		chars += len(tc.Name) + len(tc.Input)
	}
	for _, tr := range m.ToolResults {
		chars += len(tr.Content)
	}
	if chars == 0 {
		return 0
	}
	tokens := chars / 4
	if tokens == 0 {
		tokens = 1
	}
	return tokens
}
