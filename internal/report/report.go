// Package report renders recorded runs as markdown documents.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/dyike/CortexDesk/models"
	"github.com/dyike/CortexDesk/pkg/utils"
)

// Markdown renders a run, its approvals and its transcript.
func Markdown(run *models.RunRecord, approvals []models.ApprovalRow) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Run %s\n\n", run.ID)
	fmt.Fprintf(&b, "- Status: %s\n", run.Status)
	fmt.Fprintf(&b, "- Thread: %s\n", run.ThreadID)
	fmt.Fprintf(&b, "- Rounds: %d\n", run.Rounds)
	fmt.Fprintf(&b, "- Started: %s\n", run.CreatedAt.UTC().Format(time.RFC3339))
	fmt.Fprintf(&b, "- Finished: %s\n", run.UpdatedAt.UTC().Format(time.RFC3339))
	if run.Error != "" {
		fmt.Fprintf(&b, "- Error: %s\n", run.Error)
	}

	b.WriteString("\n## Task\n\n")
	b.WriteString(strings.TrimSpace(run.Task))
	b.WriteString("\n")

	if len(approvals) > 0 {
		b.WriteString("\n## Approvals\n\n")
		b.WriteString("| Round | Action | Decision | Mode | Message |\n")
		b.WriteString("|---|---|---|---|---|\n")
		for _, a := range approvals {
			fmt.Fprintf(&b, "| %d | %s | %s | %s | %s |\n", a.Round, cell(a.Action), a.Decision, a.Mode, cell(a.Message))
		}
	}

	b.WriteString("\n## Transcript\n\n")
	if t := strings.TrimSpace(run.Transcript); t != "" {
		b.WriteString(t)
	} else {
		b.WriteString("_No output._")
	}
	b.WriteString("\n")
	return b.String()
}

// Write stores the run report as <dir>/<date>_<run id>.md.
func Write(dir string, run *models.RunRecord, approvals []models.ApprovalRow) (string, error) {
	name := fmt.Sprintf("%s_%s.md", run.CreatedAt.UTC().Format("2006-01-02"), run.ID)
	return utils.WriteMarkdown(dir, name, Markdown(run, approvals))
}

func cell(s string) string {
	s = strings.ReplaceAll(s, "|", `\|`)
	return strings.Join(strings.Fields(s), " ")
}
