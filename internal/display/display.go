// Package display renders run progress and stored records on the terminal.
package display

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/dyike/CortexDesk/consts"
	"github.com/dyike/CortexDesk/internal/hitl"
	"github.com/dyike/CortexDesk/internal/sizing"
	"github.com/dyike/CortexDesk/internal/skills"
	"github.com/dyike/CortexDesk/models"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED"))

	toolCallStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#8B5CF6"))

	approvedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#10B981")).
			Bold(true)

	rejectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)

	mutedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444"))
)

// Console prints run notices. In quiet mode notices go to the error
// stream so stdout only carries the agent's answer.
type Console struct {
	out    io.Writer
	notice io.Writer
}

func NewConsole(stdout, stderr io.Writer, quiet bool) *Console {
	c := &Console{out: stdout, notice: stdout}
	if quiet {
		c.notice = stderr
	}
	return c
}

// Out is where the agent transcript is streamed.
func (c *Console) Out() io.Writer {
	return c.out
}

func (c *Console) ToolCalled(name string) {
	fmt.Fprintf(c.notice, "%s\n", toolCallStyle.Render(fmt.Sprintf("%s: %s", consts.NoticeCallingTool, name)))
}

func (c *Console) ActionResolved(rec hitl.ApprovalRecord) {
	action := rec.Action
	if action == "" {
		action = "interrupt " + rec.InterruptID
	}
	if rec.Decision.Type == hitl.DecisionApprove {
		label := consts.NoticeAutoApproved
		if rec.Mode == hitl.ModeInteractive {
			label = "Approved"
		}
		fmt.Fprintf(c.notice, "%s\n", approvedStyle.Render(fmt.Sprintf("%s: %s", label, action)))
		return
	}
	line := fmt.Sprintf("%s: %s", consts.NoticeRejected, action)
	if rec.Decision.Message != "" {
		line += " (" + rec.Decision.Message + ")"
	}
	fmt.Fprintf(c.notice, "%s\n", rejectedStyle.Render(line))
}

// Error prints a failure line to the notice stream.
func (c *Console) Error(err error) {
	fmt.Fprintf(c.notice, "%s\n", errorStyle.Render("Error: "+err.Error()))
}

// Summary prints the one-line run outcome.
func (c *Console) Summary(runID string, res *hitl.Result) {
	if res == nil {
		return
	}
	line := fmt.Sprintf("run %s %s after %d round(s), %d approval(s)", runID, res.Status, res.Rounds, len(res.Approvals))
	fmt.Fprintf(c.notice, "%s\n", mutedStyle.Render(line))
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

// SizingTable renders a sizing result.
func SizingTable(w io.Writer, symbol string, res sizing.Result, balance float64) {
	fmt.Fprintln(w, titleStyle.Render("Position Sizing: "+symbol))
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"Quantity", sizing.FormatQuantity(res.Quantity, symbol)},
		{"Leverage", fmt.Sprintf("%.2fx", res.Leverage)},
		{"Capital Allocated", fmt.Sprintf("$%.2f", res.CapitalAllocated)},
		{"Risk Amount", fmt.Sprintf("$%.2f (%g%%)", res.RiskAmount, res.RiskPercentUsed)},
		{"Available Balance", fmt.Sprintf("$%.2f", balance)},
	})
	if res.Capped {
		t.AppendSeparator()
		t.AppendRow(table.Row{"Note", "leverage capped at account maximum"})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, Align: text.AlignLeft},
		{Number: 2, WidthMin: 20, Align: text.AlignRight},
	})
	t.Render()
}

// RunsTable lists runs, newest first.
func RunsTable(w io.Writer, runs []models.RunRecord) {
	if len(runs) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded."))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Status", "Rounds", "Task", "Started"})
	for _, r := range runs {
		t.AppendRow(table.Row{r.ID, r.Status, r.Rounds, truncate(r.Task, 48), r.CreatedAt.Local().Format(time.DateTime)})
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
	})
	t.Render()
}

// RunDetail prints a run with its approvals and transcript.
func RunDetail(w io.Writer, run *models.RunRecord, approvals []models.ApprovalRow) {
	fmt.Fprintln(w, titleStyle.Render("Run "+run.ID))
	t := newTable(w)
	t.AppendRows([]table.Row{
		{"Thread", run.ThreadID},
		{"Status", run.Status},
		{"Rounds", run.Rounds},
		{"Task", run.Task},
		{"Started", run.CreatedAt.Local().Format(time.DateTime)},
		{"Finished", run.UpdatedAt.Local().Format(time.DateTime)},
	})
	if run.Error != "" {
		t.AppendRow(table.Row{"Error", run.Error})
	}
	t.Render()

	if len(approvals) > 0 {
		at := newTable(w)
		at.AppendHeader(table.Row{"Round", "Action", "Decision", "Mode", "Message"})
		for _, a := range approvals {
			at.AppendRow(table.Row{a.Round, a.Action, a.Decision, a.Mode, a.Message})
		}
		at.Render()
	}

	if strings.TrimSpace(run.Transcript) != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, run.Transcript)
	}
}

func MemoriesTable(w io.Writer, mems []models.Memory) {
	if len(mems) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No memories saved."))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Description", "Active", "Updated", "Content"})
	for _, m := range mems {
		t.AppendRow(table.Row{m.Name, m.Description, m.Active, m.UpdatedAt.Local().Format(time.DateTime), truncate(m.Content, 60)})
	}
	t.Render()
}

func SkillsTable(w io.Writer, list []skills.Skill) {
	if len(list) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No skills found."))
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Name", "Source", "Description"})
	for _, s := range list {
		t.AppendRow(table.Row{s.Name, s.Source, truncate(s.Description, 70)})
	}
	t.Render()
}

// KeyValueTable renders ordered key/value pairs.
func KeyValueTable(w io.Writer, title string, rows [][2]string) {
	if title != "" {
		fmt.Fprintln(w, titleStyle.Render(title))
	}
	t := newTable(w)
	for _, r := range rows {
		t.AppendRow(table.Row{r[0], r[1]})
	}
	t.Render()
}

func truncate(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
