package cli

import (
	"fmt"
	"strings"
	"time"

	"historysync/internal/application/service/syncer"
	"historysync/internal/domain/entity/instruments"
	"historysync/internal/domain/entity/syncrun"

	"github.com/charmbracelet/lipgloss"
)

const panelWidth = 72

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#7C3AED")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#3B82F6")).
			Padding(0, 1).
			Width(panelWidth)

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#6B7280")).
			Width(22)

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("#10B981")).
		Bold(true)

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#F59E0B")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#EF4444")).
			Bold(true)
)

// maxFailuresShown caps the failure list printed under a summary.
const maxFailuresShown = 15

func statusStyle(status syncrun.Status) lipgloss.Style {
	switch status {
	case syncrun.StatusSynchronized:
		return okStyle
	case syncrun.StatusPartial:
		return warnStyle
	default:
		return errorStyle
	}
}

func line(label string, value any) string {
	return labelStyle.Render(label) + fmt.Sprint(value) + "\n"
}

// RenderSummary formats one run for the terminal.
func RenderSummary(s syncrun.Summary) string {
	var b strings.Builder
	b.WriteString(line("run", s.RunID))
	b.WriteString(line("status", statusStyle(s.Status).Render(string(s.Status))))
	if s.Error != "" {
		b.WriteString(line("error", errorStyle.Render(s.Error)))
	}
	b.WriteString(line("took", s.Duration().Round(time.Millisecond)))
	b.WriteString(line("instruments", fmt.Sprintf("%d (%d skipped)", s.Instruments, s.InstrumentsSkipped)))
	b.WriteString(line("chunks", fmt.Sprintf("%d planned, %d fetched, %d empty", s.ChunksPlanned, s.ChunksFetched, s.ChunksEmpty)))
	if s.ChunkFailures() > 0 {
		b.WriteString(line("chunk failures", warnStyle.Render(fmt.Sprintf(
			"%d transport, %d parse, %d cancelled", s.ChunksTransport, s.ChunksParse, s.ChunksCancelled))))
	}
	b.WriteString(line("rows", fmt.Sprintf("%d parsed, %d rejected", s.RowsParsed, s.RowsRejected)))
	b.WriteString(line("merged", fmt.Sprintf("%d new, %d replaced", s.RowsMerged, s.RowsReplaced)))
	b.WriteString(line("store rows", s.StoreRows))

	out := titleStyle.Render("Synchronization") + "\n" + panelStyle.Render(strings.TrimRight(b.String(), "\n"))
	if len(s.Failures) == 0 {
		return out + "\n"
	}

	var f strings.Builder
	for i, failure := range s.Failures {
		if i == maxFailuresShown {
			fmt.Fprintf(&f, "... %d more\n", len(s.Failures)-maxFailuresShown)
			break
		}
		fmt.Fprintf(&f, "%-6s %s..%s %-9s %s\n", failure.Code, failure.From, failure.To, failure.Kind, failure.Reason)
	}
	return out + "\n" + titleStyle.Render("Failures") + "\n" + panelStyle.Render(strings.TrimRight(f.String(), "\n")) + "\n"
}

// RenderPlan lists the chunks a run would fetch.
func RenderPlan(plan syncer.Plan) string {
	var b strings.Builder
	b.WriteString(line("target", plan.Target))
	b.WriteString(line("instruments", fmt.Sprintf("%d (%d skipped)", len(plan.Kept), len(plan.Skipped))))
	b.WriteString(line("chunks", len(plan.Tasks)))

	perCode := make(map[string]int)
	days := make(map[string]int)
	for _, task := range plan.Tasks {
		perCode[task.Instrument.Code]++
		days[task.Instrument.Code] += task.Chunk.Days()
	}
	for _, inst := range plan.Kept {
		n := perCode[inst.Code]
		if n == 0 {
			b.WriteString(line(inst.Code, okStyle.Render("up to date")))
			continue
		}
		b.WriteString(line(inst.Code, fmt.Sprintf("%d chunks, %d days", n, days[inst.Code])))
	}
	return titleStyle.Render("Plan") + "\n" + panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// RenderInstruments lists instruments with their sync eligibility.
func RenderInstruments(list []instruments.Instrument, filter instruments.Filter) string {
	var b strings.Builder
	for _, inst := range list {
		mark := okStyle.Render("sync")
		if !filter.IsSyncable(inst) {
			mark = warnStyle.Render("skip")
		}
		fmt.Fprintf(&b, "%-8s %s  %s\n", inst.Code, mark, inst.Name)
	}
	return titleStyle.Render(fmt.Sprintf("Instruments (%d)", len(list))) + "\n" + panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}

// RenderRuns lists journaled runs, newest first.
func RenderRuns(runs []syncrun.Summary) string {
	if len(runs) == 0 {
		return "no runs recorded\n"
	}
	var b strings.Builder
	for _, run := range runs {
		fmt.Fprintf(&b, "%s  %-16s %6d merged %4d chunk failures\n",
			run.StartedAt.Format("2006-01-02 15:04"),
			statusStyle(run.Status).Render(string(run.Status)),
			run.RowsMerged,
			run.ChunkFailures(),
		)
	}
	return titleStyle.Render("Runs") + "\n" + panelStyle.Render(strings.TrimRight(b.String(), "\n")) + "\n"
}
