package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/tracker"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	okStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

func historyCmd(c *cli) int {
	settings, err := config.LoadSettings(*c.settingsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	h, err := tracker.OpenHistory(settings.StateDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer h.Close()

	records, err := h.Recent(*c.history.limit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	total, _ := h.Count()

	renderHistory(os.Stdout, records, total, time.Now())
	return 0
}

// renderHistory prints records newest first.
func renderHistory(w io.Writer, records []tracker.Record, total int, now time.Time) {
	if len(records) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No runs recorded yet."))
		return
	}

	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-16s %-9s %-8s %10s %10s  %s", "FINISHED", "STATUS", "MODE", "FRAMES", "DURATION", "RUN")))
	for _, r := range records {
		statusCol := fmt.Sprintf("%-9s", r.Status)
		if r.Status == tracker.StatusComplete {
			statusCol = okStyle.Render(statusCol)
		} else {
			statusCol = failStyle.Render(statusCol)
		}

		frames := fmt.Sprintf("%s/%s", humanize.Comma(int64(r.LastSaved+1)), humanize.Comma(int64(r.FrameCount)))
		name := r.Label
		if r.Scenario != "" {
			name = r.Scenario + ": " + name
		}

		fmt.Fprintf(w, "%-16s %s %-8s %10s %10s  %s\n",
			humanize.RelTime(r.FinishedAt, now, "ago", "from now"),
			statusCol,
			r.Mode,
			frames,
			r.Duration().Round(time.Millisecond),
			name,
		)
		if r.Error != "" {
			fmt.Fprintln(w, mutedStyle.Render("    "+r.Error))
		}
	}

	if total > len(records) {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("%s of %s runs shown", humanize.Comma(int64(len(records))), humanize.Comma(int64(total)))))
	}
}
