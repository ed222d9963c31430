package status

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/chr1sbest/acqctl/internal/acq"
	"github.com/chr1sbest/acqctl/internal/monitor"
)

func TestProgressBar(t *testing.T) {
	tests := []struct {
		name                   string
		acquired, saved, total int
		wantFilled             int
	}{
		{"empty", 0, 0, 10, 0},
		{"half saved", 5, 5, 10, 10},
		{"acquired ahead", 10, 5, 10, 20},
		{"no total", 3, 3, 0, 0},
		{"overflow", 30, 30, 10, 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bar := progressBar(tt.acquired, tt.saved, tt.total)
			if got := strings.Count(bar, barFilled); got != tt.wantFilled {
				t.Errorf("filled cells = %d, want %d (%q)", got, tt.wantFilled, bar)
			}
			if got := strings.Count(bar, barFilled) + strings.Count(bar, barEmpty); got != barWidth {
				t.Errorf("bar has %d cells, want %d", got, barWidth)
			}
		})
	}
}

func TestProgress(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithWriter(&buf)
	w.SetLabel("Bin 2x2")

	w.Progress(monitor.Report{Acquired: 1499, Saved: 999, Total: 2000, Phase: acq.Acquiring})

	out := buf.String()
	for _, want := range []string{"1,500/2,000 acquired", "1,000 saved", "acquiring", "Bin 2x2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if w.linesWritten != 2 {
		t.Errorf("linesWritten = %d, want 2", w.linesWritten)
	}
}

func TestUpdateClearsPreviousLines(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithWriter(&buf)

	w.Update("one", "two")
	buf.Reset()
	w.Update("three")

	if got := strings.Count(buf.String(), moveUp+clearLine); got != 2 {
		t.Errorf("expected 2 cleared lines, got %d", got)
	}
	if !strings.HasSuffix(buf.String(), "three\n") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestCompleteAndErrorPersist(t *testing.T) {
	var buf bytes.Buffer
	w := NewWithWriter(&buf)

	w.Complete(5)
	if !strings.Contains(buf.String(), "Complete") {
		t.Errorf("missing completion line:\n%s", buf.String())
	}
	if w.linesWritten != 0 {
		t.Error("completion lines should not be cleared by the next update")
	}

	buf.Reset()
	w.Error("ROI run", errors.New("wait timed out"))
	out := buf.String()
	if !strings.Contains(out, "ROI run failed") || !strings.Contains(out, "wait timed out") {
		t.Errorf("unexpected error output:\n%s", out)
	}
}
