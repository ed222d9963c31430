// Package banner prints the startup summary of a scenario.
package banner

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/chr1sbest/acqctl/internal/config"
)

var (
	accent = lipgloss.Color("#3B82F6")
	gray   = lipgloss.Color("#6B7280")

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(gray).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Foreground(accent).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(gray)
)

// Banner handles pretty startup output
type Banner struct {
	writer io.Writer
	width  int
}

// New creates a new Banner that writes to stdout
func New() *Banner {
	return &Banner{
		writer: os.Stdout,
		width:  60,
	}
}

// NewWithWriter creates a Banner with a custom writer (for testing)
func NewWithWriter(w io.Writer) *Banner {
	return &Banner{
		writer: w,
		width:  60,
	}
}

// Print displays the scenario about to run.
func (b *Banner) Print(sc *config.Scenario, mode string) {
	lines := []string{titleStyle.Render("acqctl · " + sc.Name)}
	if sc.Description != "" {
		lines = append(lines, dimStyle.Render(truncate(sc.Description, b.width-4)))
	}
	lines = append(lines, "")
	lines = append(lines, row("mode", mode))
	lines = append(lines, row("runs", fmt.Sprintf("%d", len(sc.Runs))))
	if frames, ok := totalFrames(sc); ok {
		lines = append(lines, row("frames", humanize.Comma(int64(frames))))
	}
	if sc.Saving != nil {
		lines = append(lines, row("saving", savingSummary(sc.Saving)))
	}
	if t := sc.Monitor.GetWaitTimeout(); t > 0 {
		lines = append(lines, row("timeout", t.String()))
	}

	box := boxStyle.Width(b.width - 2).Render(strings.Join(lines, "\n"))
	fmt.Fprintf(b.writer, "\n%s\n\n", box)
}

func row(key, value string) string {
	return fmt.Sprintf("%s %s", dimStyle.Render(fmt.Sprintf("%-8s", key)), value)
}

// totalFrames sums the frames of every run, carrying the count forward
// the way the runs do. ok is false when the first run leaves the camera
// default in place.
func totalFrames(sc *config.Scenario) (int, bool) {
	total, current := 0, 0
	for _, run := range sc.Runs {
		if run.Frames != nil {
			current = *run.Frames
		}
		if current == 0 {
			return 0, false
		}
		total += current
	}
	return total, true
}

func savingSummary(s *config.SavingConfig) string {
	if strings.EqualFold(s.Mode, "manual") {
		return "manual"
	}
	return fmt.Sprintf("%s/%s####%s (%s, %s)", s.Directory, s.Prefix, s.Suffix, s.Format, s.Mode)
}

func truncate(s string, max int) string {
	if max <= 3 || len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
