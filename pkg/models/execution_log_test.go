package models

import (
	"testing"
	"time"
)

func TestExecutionLog_RecordToolCall_TracksFiles(t *testing.T) {
	log := NewExecutionLog()
	log.RecordToolCall("read_file", `{"path":"/a"}`, "content-of-a", true, 10*time.Millisecond, time.Now(), "/a")
	log.RecordToolCall("write_file", `{"path":"/b"}`, "ok", true, 5*time.Millisecond, time.Now(), "/b")
	log.RecordToolCall("edit_file", `{"path":"/c"}`, "ok", true, 5*time.Millisecond, time.Now(), "/c")

	if _, ok := log.FilesRead["/a"]; !ok {
		t.Error("expected /a to be tracked as read")
	}
	modified := log.FilesModified()
	if len(modified) != 2 {
		t.Fatalf("FilesModified() length = %d, want 2", len(modified))
	}
}

func TestExecutionLog_SuccessRate(t *testing.T) {
	log := NewExecutionLog()
	if log.SuccessRate() != 1.0 {
		t.Errorf("empty log success rate = %v, want 1.0", log.SuccessRate())
	}

	log.RecordToolCall("bash", "{}", "ok", true, time.Millisecond, time.Now(), "")
	log.RecordToolCall("bash", "{}", "boom", false, time.Millisecond, time.Now(), "")

	if got := log.SuccessRate(); got != 0.5 {
		t.Errorf("SuccessRate() = %v, want 0.5", got)
	}
}

func TestExecutionLog_ResultSummaryTruncated(t *testing.T) {
	log := NewExecutionLog()
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'x'
	}
	log.RecordToolCall("bash", "{}", string(long), true, time.Millisecond, time.Now(), "")

	if len(log.Executions[0].ResultSummary) != resultSummaryLimit {
		t.Errorf("ResultSummary length = %d, want %d", len(log.Executions[0].ResultSummary), resultSummaryLimit)
	}
}

func TestExecutionLog_ToolUsageAndLastSuccessful(t *testing.T) {
	log := NewExecutionLog()
	log.RecordToolCall("read_file", "{}", "a", true, time.Millisecond, time.Now(), "/a")
	log.RecordToolCall("bash", "{}", "boom", false, time.Millisecond, time.Now(), "")
	log.RecordToolCall("read_file", "{}", "b", true, time.Millisecond, time.Now(), "/b")

	usage := log.ToolUsage()
	if usage["read_file"] != 2 {
		t.Errorf("usage[read_file] = %d, want 2", usage["read_file"])
	}
	if log.LastSuccessfulTool() != "read_file" {
		t.Errorf("LastSuccessfulTool() = %q, want read_file", log.LastSuccessfulTool())
	}
}

func TestExecutionLog_CountsInvariant(t *testing.T) {
	log := NewExecutionLog()
	log.RecordToolCall("a", "{}", "ok", true, time.Millisecond, time.Now(), "")
	log.RecordToolCall("b", "{}", "ok", true, time.Millisecond, time.Now(), "")
	log.RecordToolCall("a", "{}", "ok", true, time.Millisecond, time.Now(), "")

	var total int
	for _, v := range log.ToolUsage() {
		total += v
	}
	if total != len(log.Executions) {
		t.Errorf("sum(tool_usage) = %d, want len(executions) = %d", total, len(log.Executions))
	}
}
