package tracker

import "time"

// Run status values written to run_state.json and history records.
const (
	StatusRunning  = "running"
	StatusComplete = "complete"
	StatusTimeout  = "timeout"
	StatusCanceled = "canceled"
	StatusError    = "error"
)

// RunState is the in-flight view of the current acquisition, rewritten on
// every progress report so an external tool can follow along.
type RunState struct {
	RunID        string    `json:"run_id"`
	PID          int       `json:"pid"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	RunNumber    int       `json:"run_number"`
	Label        string    `json:"label,omitempty"`
	Mode         string    `json:"mode"`
	FrameCount   int       `json:"frame_count"`
	LastAcquired int       `json:"last_acquired"`
	LastSaved    int       `json:"last_saved"`
	Phase        string    `json:"phase"`
	Status       string    `json:"status"`
	LastError    string    `json:"last_error,omitempty"`
}
