package models

import "testing"

func TestChildFailure_ToContextString_Timeout(t *testing.T) {
	f := &ChildFailure{
		Category:         FailureTimeout,
		Message:          "child agent timed out after 0.5s",
		SessionID:        "child-123",
		DurationSeconds:  0.5,
		CompletedSteps:   []string{"Created 2 files"},
		FilesModified:    []string{"/a", "/b"},
		SuggestedRetry:   true,
		SuggestedActions: []string{"retry with timeout=1.0s or greater"},
		ToolUsage:        map[string]int{"write_file": 2},
	}

	out := f.ToContextString()

	want := []string{
		"Child agent failed: child agent timed out after 0.5s",
		"Category: timeout",
		"Retryable: Yes",
		"Created 2 files",
		"<failure_category>timeout</failure_category>",
		"<retryable>true</retryable>",
		"<session_id>child-123</session_id>",
	}
	for _, w := range want {
		if !containsSubstring(out, w) {
			t.Errorf("ToContextString() missing %q in:\n%s", w, out)
		}
	}
}

func TestChildFailure_ToContextString_NoBlockedOn(t *testing.T) {
	f := &ChildFailure{
		Category:  FailureInvalidTask,
		Message:   "task unclear",
		SessionID: "child-1",
	}
	out := f.ToContextString()
	if containsSubstring(out, "Blocked on:") {
		t.Errorf("expected no Blocked on section when BlockedOn is empty:\n%s", out)
	}
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}
