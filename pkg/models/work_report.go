package models

import (
	"fmt"
	"sort"
	"strings"
)

// WorkReport is the structured string a successful delegation returns to the
// parent: the child's final text plus an <execution_summary> block built
// from its ExecutionLog.
type WorkReport struct {
	FinalText       string
	SessionID       string
	DurationSeconds float64
	Log             *ExecutionLog
}

// ToContextString renders the work report in the wire format spec §6
// describes: final text, then an <execution_summary> with files and tools,
// then <errors> if any occurred.
func (r *WorkReport) ToContextString() string {
	var b strings.Builder
	b.WriteString(r.FinalText)
	b.WriteString("\n\n<execution_summary>\n")
	fmt.Fprintf(&b, "  <session_id>%s</session_id>\n", r.SessionID)
	fmt.Fprintf(&b, "  <duration>%.1fs</duration>\n", r.DurationSeconds)

	log := r.Log
	if log == nil {
		log = NewExecutionLog()
	}
	fmt.Fprintf(&b, "  <success_rate>%.2f</success_rate>\n", log.SuccessRate())

	b.WriteString("  <files>\n")
	fmt.Fprintf(&b, "    <read count=\"%d\">%s</read>\n", len(log.FilesRead), strings.Join(sortedKeys(log.FilesRead), ", "))
	modified := log.FilesModified()
	sort.Strings(modified)
	fmt.Fprintf(&b, "    <modified count=\"%d\">%s</modified>\n", len(modified), strings.Join(modified, ", "))
	b.WriteString("  </files>\n")

	b.WriteString("  <tools>\n")
	usage := log.ToolUsage()
	names := make([]string, 0, len(usage))
	for name := range usage {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&b, "    <tool name=%q count=\"%d\"/>\n", name, usage[name])
	}
	b.WriteString("  </tools>\n")

	if len(log.Errors) > 0 {
		b.WriteString("  <errors>\n")
		for _, e := range log.Errors {
			fmt.Fprintf(&b, "    <error tool=%q>%s</error>\n", e.ToolName, e.Message)
		}
		b.WriteString("  </errors>\n")
	}

	b.WriteString("</execution_summary>")
	return b.String()
}

func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
