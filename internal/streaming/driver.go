// Package streaming assembles a provider's streamed chunks — a text delta
// here, a fragment of a tool call's arguments there — into the single
// Assistant message the rest of the agent pipeline operates on.
package streaming

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/haasonsaas/nexus/pkg/models"
)

// ChunkDelta is one increment of a streamed completion. Exactly the fields
// the provider populated for this chunk are set; everything else is zero.
// ToolCallIndex identifies which tool call in the assistant's eventual
// tool_calls list a fragment belongs to — providers stream multiple tool
// calls interleaved by index, not one at a time.
type ChunkDelta struct {
	TextDelta string

	HasToolCall       bool
	ToolCallIndex     int
	ToolCallID        string
	ToolCallName      string
	ArgumentsFragment string
}

// pendingCall accumulates one tool call's fields across however many
// fragments the provider splits it into.
type pendingCall struct {
	id   string
	name string
	args strings.Builder
}

// Driver accumulates a single streamed turn. It is not safe for concurrent
// use by multiple goroutines — one Driver per in-flight provider call.
type Driver struct {
	content strings.Builder
	calls   map[int]*pendingCall
	echoRe  *regexp.Regexp
}

// New returns a Driver. echoWhitelist, if non-empty, is compiled into a
// regex used by Finalize to strip self-echoed tool-call transcriptions
// (some providers emit a textual rendering of the call they are about to
// make, interleaved with real content) — only tool names in the whitelist
// are considered for stripping, to avoid deleting legitimate prose that
// happens to mention an unrelated tool-shaped string.
func New(echoWhitelist []string) *Driver {
	d := &Driver{calls: make(map[int]*pendingCall)}
	if len(echoWhitelist) > 0 {
		d.echoRe = buildEchoRegex(echoWhitelist)
	}
	return d
}

// Apply folds one chunk delta into the accumulator state.
func (d *Driver) Apply(delta ChunkDelta) {
	if delta.TextDelta != "" {
		d.content.WriteString(delta.TextDelta)
	}
	if !delta.HasToolCall {
		return
	}
	pc, ok := d.calls[delta.ToolCallIndex]
	if !ok {
		pc = &pendingCall{}
		d.calls[delta.ToolCallIndex] = pc
	}
	if delta.ToolCallID != "" {
		pc.id = delta.ToolCallID
	}
	if delta.ToolCallName != "" {
		pc.name = delta.ToolCallName
	}
	if delta.ArgumentsFragment != "" {
		pc.args.WriteString(delta.ArgumentsFragment)
	}
}

// Finalize produces the completed Assistant message once the stream has
// ended: content (if any), and tool calls sorted by their stream tool-call
// index (not by the order in which fragments arrived).
func (d *Driver) Finalize() *models.Message {
	content := d.content.String()
	if d.echoRe != nil && len(d.calls) > 0 {
		content = d.echoRe.ReplaceAllString(content, "")
		content = strings.TrimSpace(content)
	}

	msg := &models.Message{
		Role:      models.RoleAssistant,
		Content:   content,
		CreatedAt: time.Now(),
	}

	if len(d.calls) == 0 {
		return msg
	}

	indices := make([]int, 0, len(d.calls))
	for idx := range d.calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	calls := make([]models.ToolCall, 0, len(indices))
	for _, idx := range indices {
		pc := d.calls[idx]
		calls = append(calls, models.ToolCall{
			ID:    pc.id,
			Name:  pc.name,
			Input: []byte(pc.args.String()),
		})
	}
	msg.ToolCalls = calls
	return msg
}

// buildEchoRegex compiles a pattern matching a JSON-ish textual rendering of
// a call to any whitelisted tool name, e.g. `{"name": "bash", "arguments":
// {...}}`, or a call-expression rendering like `bash({"command": ...})`, so
// Finalize can strip it from prose content.
func buildEchoRegex(names []string) *regexp.Regexp {
	escaped := make([]string, len(names))
	for i, n := range names {
		escaped[i] = regexp.QuoteMeta(n)
	}
	alt := strings.Join(escaped, "|")
	jsonForm := `\{?\s*"?(?:name|function)"?\s*:?\s*"?(?:` + alt + `)"?[^{}]*\{[^{}]*\}\}?`
	callForm := `\b(?:` + alt + `)\s*\(\s*\{[^{}]*\}\s*\)?`
	pattern := `(?s)(?:` + jsonForm + `)|(?:` + callForm + `)`
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil
	}
	return re
}
