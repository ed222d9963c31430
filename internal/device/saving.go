package device

import (
	"fmt"
	"path/filepath"
	"sync"
)

// Saving holds the saving configuration shared by the session, which
// configures it, and the simulator, which consults it for every frame.
type Saving struct {
	mu     sync.RWMutex
	params SavingParams
}

// NewSaving returns a holder with saving disabled.
func NewSaving() *Saving {
	return &Saving{params: SavingParams{Mode: SavingManual, FramesPerFile: 1}}
}

// Configure replaces the saving configuration.
func (s *Saving) Configure(p SavingParams) error {
	if p.FramesPerFile < 1 {
		p.FramesPerFile = 1
	}
	if _, ok := formatNames[p.Format]; !ok {
		return fmt.Errorf("invalid saving configuration: %s", p.Format)
	}
	if _, ok := savingModeNames[p.Mode]; !ok {
		return fmt.Errorf("invalid saving configuration: %s", p.Mode)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.params = p
	return nil
}

// Params returns the current configuration.
func (s *Saving) Params() SavingParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Enabled reports whether frames are written automatically.
func (s *Saving) Enabled() bool {
	return s.Params().Mode != SavingManual
}

// FileName returns the path of the file that receives frame.
func (p SavingParams) FileName(frame int) string {
	perFile := p.FramesPerFile
	if perFile < 1 {
		perFile = 1
	}
	name := fmt.Sprintf("%s%04d%s", p.Prefix, p.NextNumber+frame/perFile, p.Suffix)
	return filepath.Join(p.Directory, name)
}
