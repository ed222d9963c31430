package tracker

import "time"

// RunMetrics accumulates over every run driven from one state directory.
type RunMetrics struct {
	StartedAt      time.Time     `json:"started_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	Runs           int           `json:"runs"`
	Completed      int           `json:"completed"`
	Failed         int           `json:"failed"`
	FramesAcquired int           `json:"frames_acquired"`
	FramesSaved    int           `json:"frames_saved"`
	AcquireTime    time.Duration `json:"acquire_time_ns"`
	LastRunID      string        `json:"last_run_id,omitempty"`
}

// RunDelta is what one run adds to the metrics.
type RunDelta struct {
	FramesAcquired int
	FramesSaved    int
	Duration       time.Duration
	Failed         bool
}

// SaveRate is the fraction of acquired frames that reached disk.
func (m *RunMetrics) SaveRate() float64 {
	if m == nil || m.FramesAcquired == 0 {
		return 0
	}
	return float64(m.FramesSaved) / float64(m.FramesAcquired)
}

func (w *Writer) LoadMetrics() (*RunMetrics, error) {
	return readJSON[RunMetrics](w.MetricsPath)
}

func (w *Writer) SaveMetrics(m *RunMetrics) error {
	return writeJSONAtomic(w.MetricsPath, m)
}

// LoadOrInitMetrics stamps runID onto the stored metrics, creating the file
// on first use.
func (w *Writer) LoadOrInitMetrics(runID string) (*RunMetrics, error) {
	return w.updateMetrics(runID, func(*RunMetrics, time.Time) {})
}

// AddRun folds one finished run into the metrics. Failures to persist are
// dropped; metrics never fail an acquisition.
func (w *Writer) AddRun(runID string, delta RunDelta) {
	_, _ = w.updateMetrics(runID, func(m *RunMetrics, _ time.Time) {
		m.Runs++
		if delta.Failed {
			m.Failed++
		} else {
			m.Completed++
		}
		m.FramesAcquired += delta.FramesAcquired
		m.FramesSaved += delta.FramesSaved
		m.AcquireTime += delta.Duration
	})
}

// MarkComplete stamps the end of a scenario.
func (w *Writer) MarkComplete(runID string) {
	_, _ = w.updateMetrics(runID, func(m *RunMetrics, now time.Time) {
		m.CompletedAt = &now
	})
}

func (w *Writer) updateMetrics(runID string, fn func(*RunMetrics, time.Time)) (*RunMetrics, error) {
	m, err := w.LoadMetrics()
	if err != nil {
		return nil, err
	}
	now := time.Now()
	if m == nil {
		m = &RunMetrics{}
	}
	if m.StartedAt.IsZero() {
		m.StartedAt = now
	}
	fn(m, now)
	m.UpdatedAt = now
	m.LastRunID = runID
	if err := w.SaveMetrics(m); err != nil {
		return nil, err
	}
	return m, nil
}
