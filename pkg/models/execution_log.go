package models

import "time"

// ToolExecutionRecord is one entry in an ExecutionLog: a single tool
// invocation made by a (typically child) agent.
type ToolExecutionRecord struct {
	ToolName      string        `json:"tool_name"`
	Args          string        `json:"args"`
	ResultSummary string        `json:"result_summary"` // truncated to 200 chars
	Success       bool          `json:"success"`
	Duration      time.Duration `json:"duration"`
	Timestamp     time.Time     `json:"timestamp"`
}

// ToolExecutionError records a single tool failure observed during a run.
type ToolExecutionError struct {
	ToolName string `json:"tool_name"`
	Message  string `json:"message"`
}

const resultSummaryLimit = 200

// ExecutionLog accumulates everything a child agent did during a delegated
// run: which files it touched, every tool call it made (in order), and
// every error it hit. It is the raw material from which a work report or a
// ChildFailure is built.
type ExecutionLog struct {
	FilesRead    map[string]struct{}   `json:"-"`
	FilesWritten map[string]struct{}   `json:"-"`
	FilesEdited  map[string]struct{}   `json:"-"`
	Executions   []ToolExecutionRecord `json:"tool_executions"`
	Errors       []ToolExecutionError  `json:"errors"`
}

// NewExecutionLog returns an empty, ready-to-use ExecutionLog.
func NewExecutionLog() *ExecutionLog {
	return &ExecutionLog{
		FilesRead:    make(map[string]struct{}),
		FilesWritten: make(map[string]struct{}),
		FilesEdited:  make(map[string]struct{}),
	}
}

// RecordToolCall appends a tool execution record, truncating the result
// summary to resultSummaryLimit characters, and tracks well-known file tool
// names (read_file, write_file, edit_file) against the read/written/edited
// sets.
func (l *ExecutionLog) RecordToolCall(toolName, argsJSON, resultSummary string, success bool, duration time.Duration, at time.Time, path string) {
	if len(resultSummary) > resultSummaryLimit {
		resultSummary = resultSummary[:resultSummaryLimit]
	}
	l.Executions = append(l.Executions, ToolExecutionRecord{
		ToolName:      toolName,
		Args:          argsJSON,
		ResultSummary: resultSummary,
		Success:       success,
		Duration:      duration,
		Timestamp:     at,
	})
	if path == "" {
		return
	}
	switch toolName {
	case "read_file":
		l.FilesRead[path] = struct{}{}
	case "write_file":
		l.FilesWritten[path] = struct{}{}
	case "edit_file":
		l.FilesEdited[path] = struct{}{}
	}
}

// RecordError appends an error entry. Errors do not remove the corresponding
// execution record; both are kept for failure analysis.
func (l *ExecutionLog) RecordError(toolName, message string) {
	l.Errors = append(l.Errors, ToolExecutionError{ToolName: toolName, Message: message})
}

// FilesModified returns the union of FilesWritten and FilesEdited.
func (l *ExecutionLog) FilesModified() []string {
	seen := make(map[string]struct{}, len(l.FilesWritten)+len(l.FilesEdited))
	for p := range l.FilesWritten {
		seen[p] = struct{}{}
	}
	for p := range l.FilesEdited {
		seen[p] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	return out
}

// SuccessRate returns successes/total, defined as 1.0 when the log is empty.
func (l *ExecutionLog) SuccessRate() float64 {
	if len(l.Executions) == 0 {
		return 1.0
	}
	var successes int
	for _, e := range l.Executions {
		if e.Success {
			successes++
		}
	}
	return float64(successes) / float64(len(l.Executions))
}

// ToolUsage returns a per-tool invocation count.
func (l *ExecutionLog) ToolUsage() map[string]int {
	usage := make(map[string]int)
	for _, e := range l.Executions {
		usage[e.ToolName]++
	}
	return usage
}

// LastSuccessfulTool returns the name of the most recent successful tool
// call, or "" if none succeeded.
func (l *ExecutionLog) LastSuccessfulTool() string {
	for i := len(l.Executions) - 1; i >= 0; i-- {
		if l.Executions[i].Success {
			return l.Executions[i].ToolName
		}
	}
	return ""
}
