package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWriteRunStateWritesValidJSON(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	rs := RunState{
		RunID:        "abc",
		PID:          123,
		StartedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 1, 0, time.UTC),
		RunNumber:    2,
		Mode:         "poll",
		FrameCount:   500,
		LastAcquired: 41,
		LastSaved:    39,
		Phase:        "acquiring",
		Status:       StatusRunning,
	}
	if err := w.WriteRunState(rs); err != nil {
		t.Fatalf("WriteRunState error: %v", err)
	}

	b, err := os.ReadFile(filepath.Join(dir, "run_state.json"))
	if err != nil {
		t.Fatalf("read run_state.json: %v", err)
	}
	var v map[string]any
	if err := json.Unmarshal(b, &v); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if v["last_acquired"] != float64(41) {
		t.Errorf("last_acquired = %v", v["last_acquired"])
	}

	loaded, err := w.LoadRunState()
	if err != nil {
		t.Fatal(err)
	}
	if loaded == nil || loaded.LastSaved != 39 || loaded.Phase != "acquiring" {
		t.Fatalf("unexpected round trip: %+v", loaded)
	}
}

func TestLoadRunStateMissingOrCorrupt(t *testing.T) {
	dir := t.TempDir()
	w := NewWriter(dir)

	rs, err := w.LoadRunState()
	if err != nil || rs != nil {
		t.Fatalf("expected nil state for missing file, got %+v, %v", rs, err)
	}

	if err := os.WriteFile(w.RunStatePath, []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}
	rs, err = w.LoadRunState()
	if err != nil || rs != nil {
		t.Fatalf("expected nil state for corrupt file, got %+v, %v", rs, err)
	}
}

func TestInterrupted(t *testing.T) {
	live := &RunState{Status: StatusRunning, PID: os.Getpid()}
	if live.Interrupted() {
		t.Error("run owned by this process is not interrupted")
	}
	done := &RunState{Status: StatusComplete, PID: 1 << 30}
	if done.Interrupted() {
		t.Error("completed run is not interrupted")
	}
	var none *RunState
	if none.Interrupted() {
		t.Error("nil state is not interrupted")
	}
}
