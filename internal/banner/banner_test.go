package banner

import (
	"bytes"
	"strings"
	"testing"

	"github.com/chr1sbest/acqctl/internal/config"
)

func TestPrint(t *testing.T) {
	var buf bytes.Buffer
	sc := config.DefaultScenario()
	sc.Runs[0].Frames = new(int)
	*sc.Runs[0].Frames = 1000

	NewWithWriter(&buf).Print(sc, "poll")

	out := buf.String()
	for _, want := range []string{config.DefaultScenarioName, "poll", "runs", "5", "1,515", "data/img####.edf"} {
		if !strings.Contains(out, want) {
			t.Errorf("banner missing %q:\n%s", want, out)
		}
	}
}

func TestTotalFrames(t *testing.T) {
	one, three := 1, 3
	tests := []struct {
		name   string
		runs   []config.RunConfig
		want   int
		wantOK bool
	}{
		{"carried forward", []config.RunConfig{{Frames: &three}, {}, {Frames: &one}}, 7, true},
		{"camera default", []config.RunConfig{{}, {Frames: &three}}, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := totalFrames(&config.Scenario{Runs: tt.runs})
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("totalFrames() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("a long description", 10); got != "a long ..." {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate() = %q", got)
	}
}
