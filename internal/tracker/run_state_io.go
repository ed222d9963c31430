package tracker

// LoadRunState returns the last written run state, or nil if there is none
// or it cannot be parsed.
func (w *Writer) LoadRunState() (*RunState, error) {
	return readJSON[RunState](w.RunStatePath)
}

// Interrupted reports whether the last run state was left running by a
// process that no longer exists.
func (rs *RunState) Interrupted() bool {
	return rs != nil && rs.Status == StatusRunning && rs.PID > 0 && !processAlive(rs.PID)
}
