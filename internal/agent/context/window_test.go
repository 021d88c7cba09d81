package context

import (
	"encoding/json"
	"testing"

	"github.com/haasonsaas/nexus/pkg/models"
)

func userMsg(content string) *models.Message {
	return &models.Message{Role: models.RoleUser, Content: content}
}

func assistantToolCallMsg(content string, toolCallID string) *models.Message {
	return &models.Message{
		Role:    models.RoleAssistant,
		Content: content,
		ToolCalls: []models.ToolCall{
			{ID: toolCallID, Name: "some_tool", Input: json.RawMessage(`{}`)},
		},
	}
}

func toolResultMsg(toolCallID, content string) *models.Message {
	return &models.Message{
		Role: models.RoleTool,
		ToolResults: []models.ToolResult{
			{ToolCallID: toolCallID, Content: content},
		},
	}
}

func TestConversationMemory_SystemPromptNeverTrimmed(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1, MaxMessages: 1}, nil)
	mem.SetSystemPrompt("you are a helpful assistant")
	mem.Add(userMsg("hello there, this is a long enough message to exceed one token"))

	msgs := mem.GetMessages()
	if len(msgs) == 0 || msgs[0].Role != models.RoleSystem {
		t.Fatalf("expected system message to survive trimming, got %+v", msgs)
	}
}

func TestConversationMemory_MaxMessagesFrontDrop(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1000000, MaxMessages: 2}, nil)
	mem.Add(userMsg("one"))
	mem.Add(userMsg("two"))
	mem.Add(userMsg("three"))

	msgs := mem.GetMessages()
	if len(msgs) != 2 {
		t.Fatalf("GetMessages() length = %d, want 2", len(msgs))
	}
	if msgs[0].Content != "two" || msgs[1].Content != "three" {
		t.Errorf("expected front-dropped window [two three], got %+v", msgs)
	}
}

// TestConversationMemory_MinimalRemovablePrefixAtomicity verifies scenario
// S5: the assistant message carrying a tool call and the tool result
// answering it are dropped together as a single atomic unit, never split.
func TestConversationMemory_MinimalRemovablePrefixAtomicity(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1}, nil)

	// Directly populate the window bypassing the per-Add trim so we can
	// inspect the first trim pass in isolation.
	mem.window = []*models.Message{
		userMsg("m1"),
		assistantToolCallMsg("calling tool", "call-1"),
		toolResultMsg("call-1", "tool output"),
		userMsg("m2"),
	}

	mem.mu.Lock()
	mem.trimLocked()
	mem.mu.Unlock()

	msgs := mem.GetMessages()
	for _, m := range msgs {
		if m.Role == models.RoleTool {
			t.Fatalf("tool message survived trim without its preceding assistant call: %+v", msgs)
		}
	}
	// The trailing "m2" user message should remain since it's the most recent.
	if len(msgs) == 0 || msgs[len(msgs)-1].Content != "m2" {
		t.Errorf("expected most recent message m2 to survive, got %+v", msgs)
	}
}

func TestConversationMemory_OrphanSweep(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1000000}, nil)
	mem.mu.Lock()
	mem.window = []*models.Message{
		toolResultMsg("call-1", "orphaned result"),
		userMsg("m2"),
	}
	mem.trimLocked()
	mem.mu.Unlock()

	msgs := mem.GetMessages()
	if len(msgs) != 1 || msgs[0].Role == models.RoleTool {
		t.Fatalf("expected orphaned tool message swept, got %+v", msgs)
	}
}

// TestConversationMemory_TrimIsIdempotent verifies the §8 law: running the
// trimmer again on an already-trimmed window changes nothing.
func TestConversationMemory_TrimIsIdempotent(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 50, MaxMessages: 10}, nil)
	for i := 0; i < 20; i++ {
		mem.Add(userMsg("message contents padded out to cost a few tokens each time"))
	}

	before := mem.GetMessages()

	mem.mu.Lock()
	mem.trimLocked()
	mem.mu.Unlock()

	after := mem.GetMessages()
	if len(before) != len(after) {
		t.Fatalf("trim not idempotent: before=%d after=%d", len(before), len(after))
	}
	for i := range before {
		if before[i].Content != after[i].Content {
			t.Errorf("trim not idempotent at index %d: before=%q after=%q", i, before[i].Content, after[i].Content)
		}
	}
}

func TestConversationMemory_ClearPreservesSystem(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1000000}, nil)
	mem.SetSystemPrompt("system text")
	mem.Add(userMsg("hello"))
	mem.Clear()

	msgs := mem.GetMessages()
	if len(msgs) != 1 || msgs[0].Role != models.RoleSystem {
		t.Fatalf("expected only system message after Clear(), got %+v", msgs)
	}
}

func TestConversationMemory_GetTokenCount(t *testing.T) {
	mem := NewConversationMemory(WindowConfig{MaxTokens: 1000000}, nil)
	if mem.GetTokenCount() != 0 {
		t.Errorf("empty memory token count = %d, want 0", mem.GetTokenCount())
	}
	mem.Add(userMsg("some content"))
	if mem.GetTokenCount() <= 0 {
		t.Errorf("expected positive token count after adding content")
	}
}
