// Package status renders in-place acquisition progress on a terminal.
package status

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/chr1sbest/acqctl/internal/acq"
	"github.com/chr1sbest/acqctl/internal/monitor"
)

// ANSI cursor control
const (
	clearLine  = "\033[2K"
	moveUp     = "\033[A"
	moveToCol0 = "\r"
)

// Progress bar characters
const (
	barFilled = "█"
	barEmpty  = "░"
	barWidth  = 20
)

var (
	green  = lipgloss.Color("#10B981")
	orange = lipgloss.Color("#E5A00D")
	red    = lipgloss.Color("#EF4444")
	gray   = lipgloss.Color("#6B7280")

	savedStyle    = lipgloss.NewStyle().Foreground(green)
	acquiredStyle = lipgloss.NewStyle().Foreground(orange)
	dimStyle      = lipgloss.NewStyle().Foreground(gray)
	boldStyle     = lipgloss.NewStyle().Bold(true)
	successStyle  = lipgloss.NewStyle().Foreground(green).Bold(true)
	errorStyle    = lipgloss.NewStyle().Foreground(red).Bold(true)
)

// Writer handles in-place status updates to the terminal
type Writer struct {
	w            io.Writer
	mu           sync.Mutex
	linesWritten int
	label        string
}

// New creates a status writer that outputs to stdout
func New() *Writer {
	return &Writer{w: os.Stdout}
}

// NewWithWriter creates a status writer with a custom output
func NewWithWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Clear erases any previously written status lines
func (s *Writer) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clear()
}

func (s *Writer) clear() {
	for i := 0; i < s.linesWritten; i++ {
		fmt.Fprint(s.w, moveUp+clearLine)
	}
	if s.linesWritten > 0 {
		fmt.Fprint(s.w, moveToCol0)
	}
	s.linesWritten = 0
}

// Update clears previous status and writes new status
func (s *Writer) Update(lines ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	for _, line := range lines {
		fmt.Fprintln(s.w, line)
	}
	s.linesWritten = len(lines)
}

// SetLabel names the run shown under the progress bar.
func (s *Writer) SetLabel(label string) {
	s.mu.Lock()
	s.label = label
	s.mu.Unlock()
}

// progressBar draws saved frames solid and frames acquired but not yet
// saved in the accent colour.
func progressBar(acquired, saved, total int) string {
	if total <= 0 {
		return dimStyle.Render(strings.Repeat(barEmpty, barWidth))
	}

	savedCells := clamp(saved*barWidth/total, 0, barWidth)
	acquiredCells := clamp(acquired*barWidth/total, savedCells, barWidth)

	return savedStyle.Render(strings.Repeat(barFilled, savedCells)) +
		acquiredStyle.Render(strings.Repeat(barFilled, acquiredCells-savedCells)) +
		dimStyle.Render(strings.Repeat(barEmpty, barWidth-acquiredCells))
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// counts formats "acquired/total" and "saved/total" as frame counts rather
// than indices.
func counts(r monitor.Report) string {
	return fmt.Sprintf("%s/%s acquired, %s saved",
		humanize.Comma(int64(r.Acquired+1)),
		humanize.Comma(int64(r.Total)),
		humanize.Comma(int64(r.Saved+1)))
}

// Progress shows the state carried by a monitor report. It is suitable as
// a monitor observer.
func (s *Writer) Progress(r monitor.Report) {
	s.mu.Lock()
	label := s.label
	s.mu.Unlock()

	line := fmt.Sprintf("%s %s %s",
		progressBar(r.Acquired+1, r.Saved+1, r.Total),
		dimStyle.Render(counts(r)),
		phaseText(r.Phase))

	lines := []string{line}
	if label != "" {
		lines = append(lines, boldStyle.Render(label))
	}
	s.Update(lines...)
}

func phaseText(p acq.Phase) string {
	switch {
	case p.In(acq.Finished):
		return successStyle.Render(p.String())
	case p.In(acq.Saving):
		return savedStyle.Render(p.String())
	default:
		return acquiredStyle.Render(p.String())
	}
}

// Complete shows completion status
func (s *Writer) Complete(total int) {
	lines := []string{
		fmt.Sprintf("%s %s", progressBar(total, total, total), dimStyle.Render(humanize.Comma(int64(total))+" frames")),
		successStyle.Render("✓ Complete"),
	}
	s.Update(lines...)

	s.mu.Lock()
	s.linesWritten = 0
	s.mu.Unlock()
}

// Error shows error status. The lines are left on screen.
func (s *Writer) Error(label string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.clear()
	if label == "" {
		label = "run"
	}
	fmt.Fprintln(s.w, errorStyle.Render("✗ "+label+" failed"))
	fmt.Fprintln(s.w, dimStyle.Render(err.Error()))
}
