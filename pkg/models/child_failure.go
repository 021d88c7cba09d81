package models

import (
	"fmt"
	"strings"
)

// FailureCategory classifies why a delegated child agent failed.
type FailureCategory string

const (
	FailureTimeout        FailureCategory = "timeout"          // needs more time
	FailureMissingContext FailureCategory = "missing_context"  // insufficient info in prompt
	FailureToolError      FailureCategory = "tool_error"        // external tool/dependency failed
	FailureInvalidTask    FailureCategory = "invalid_task"      // task impossible/unclear
	FailurePartial        FailureCategory = "partial"           // some work done, hit blocker
)

// ChildFailure is the structured failure report a failed delegation returns
// to the parent in place of a successful work report.
type ChildFailure struct {
	Category           FailureCategory `json:"category"`
	Message            string          `json:"message"`
	SessionID          string          `json:"session_id"`
	DurationSeconds    float64         `json:"duration"`
	CompletedSteps     []string        `json:"completed_steps"`
	FilesModified      []string        `json:"files_modified"`
	BlockedOn          string          `json:"blocked_on,omitempty"`
	SuggestedRetry     bool            `json:"suggested_retry"`
	SuggestedActions   []string        `json:"suggested_actions"`
	ToolUsage          map[string]int  `json:"tool_usage"`
	LastSuccessfulTool string          `json:"last_successful_tool,omitempty"`
}

// ToContextString formats the failure as the exact wire format a parent LLM
// receives as the sub_agent tool result (spec §6).
func (f *ChildFailure) ToContextString() string {
	var actions strings.Builder
	for _, a := range f.SuggestedActions {
		actions.WriteString("  • ")
		actions.WriteString(a)
		actions.WriteByte('\n')
	}

	completed := "  None"
	if len(f.CompletedSteps) > 0 {
		var b strings.Builder
		for i, s := range f.CompletedSteps {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString("  ✓ ")
			b.WriteString(s)
		}
		completed = b.String()
	}

	filesModified := "none"
	if len(f.FilesModified) > 0 {
		filesModified = strings.Join(f.FilesModified, ", ")
	}

	blockedSection := "\n"
	if f.BlockedOn != "" {
		blockedSection = fmt.Sprintf("\nBlocked on: %s\n", f.BlockedOn)
	}

	retryable := "No"
	retryableFlag := "false"
	if f.SuggestedRetry {
		retryable = "Yes"
		retryableFlag = "true"
	}

	return fmt.Sprintf(`Child agent failed: %s

Category: %s
Duration: %.1fs
Retryable: %s

Work completed before failure:
%s

Files modified: %s%s
Suggested recovery actions:
%s
<task_metadata>
  <session_id>%s</session_id>
  <status>failed</status>
  <failure_category>%s</failure_category>
  <retryable>%s</retryable>
</task_metadata>`,
		f.Message,
		f.Category,
		f.DurationSeconds,
		retryable,
		completed,
		filesModified,
		blockedSection,
		strings.TrimRight(actions.String(), "\n"),
		f.SessionID,
		f.Category,
		retryableFlag,
	)
}
