package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/chr1sbest/acqctl/internal/device"
)

// ValidationError holds details about a scenario validation failure.
type ValidationError struct {
	Field   string
	Message string
	Context string
}

func (e ValidationError) Error() string {
	if e.Context != "" {
		return fmt.Sprintf("%s: %s (in %s)", e.Field, e.Message, e.Context)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects multiple validation errors.
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	if len(errs) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, e := range errs {
		msgs = append(msgs, "  - "+e.Error())
	}
	return fmt.Sprintf("validation failed with %d error(s):\n%s", len(errs), strings.Join(msgs, "\n"))
}

// HasErrors returns true if there are any validation errors.
func (errs ValidationErrors) HasErrors() bool {
	return len(errs) > 0
}

var knownModes = []string{"poll", "events"}

// Validator checks scenarios before any of their runs start. A zero frame
// count would leave a run waiting forever, so it is rejected here.
type Validator struct {
	errs ValidationErrors
}

// NewValidator creates a new scenario validator.
func NewValidator() *Validator {
	return &Validator{}
}

func (v *Validator) add(field, context, format string, args ...any) {
	v.errs = append(v.errs, ValidationError{
		Field:   field,
		Message: fmt.Sprintf(format, args...),
		Context: context,
	})
}

// Validate checks a scenario and returns every problem found.
func (v *Validator) Validate(sc *Scenario) ValidationErrors {
	v.errs = nil

	if sc.Name == "" {
		v.add("name", "", "scenario name is required")
	}
	if sc.Mode != "" && !isKnownMode(sc.Mode) {
		v.add("mode", "", "unknown mode %q, known modes: %s", sc.Mode, strings.Join(knownModes, ", "))
	}

	v.validateMonitor(sc.Monitor)
	if sc.Saving != nil {
		v.validateSaving(*sc.Saving)
	}

	if len(sc.Runs) == 0 {
		v.add("runs", "", "at least one run is required")
	}
	for i, run := range sc.Runs {
		v.validateRun(run, fmt.Sprintf("runs[%d]", i))
	}

	return v.errs
}

func (v *Validator) validateMonitor(m MonitorConfig) {
	v.checkDuration("report_interval", "monitor", m.ReportInterval, false)
	v.checkDuration("poll_interval", "monitor", m.PollInterval, true)
	v.checkDuration("wait_timeout", "monitor", m.WaitTimeout, false)
	v.checkDuration("run_delay", "monitor", m.RunDelay, false)
	if m.StartRetries != nil && *m.StartRetries < 0 {
		v.add("start_retries", "monitor", "must not be negative, got %d", *m.StartRetries)
	}
}

func (v *Validator) checkDuration(field, context, value string, positive bool) {
	if value == "" {
		return
	}
	d, err := time.ParseDuration(value)
	switch {
	case err != nil:
		v.add(field, context, "invalid duration %q", value)
	case d < 0:
		v.add(field, context, "must not be negative, got %s", value)
	case positive && d == 0:
		v.add(field, context, "must be positive")
	}
}

func (v *Validator) validateSaving(s SavingConfig) {
	if _, err := device.ParseFormat(s.Format); err != nil {
		v.add("format", "saving", "%v", err)
	}
	mode, err := device.ParseSavingMode(s.Mode)
	if err != nil {
		v.add("mode", "saving", "%v", err)
	} else if mode != device.SavingManual && s.Directory == "" {
		v.add("directory", "saving", "directory is required when saving mode is %s", mode)
	}
	if s.NextNumber < 0 {
		v.add("next_number", "saving", "must not be negative, got %d", s.NextNumber)
	}
	if s.FramesPerFile < 0 {
		v.add("frames_per_file", "saving", "must not be negative, got %d", s.FramesPerFile)
	}
}

func (v *Validator) validateRun(r RunConfig, context string) {
	if r.Frames != nil && *r.Frames < 1 {
		v.add("frames", context, "at least one frame is required, got %d", *r.Frames)
	}
	v.checkDuration("exposure", context, r.Exposure, false)
	if r.Bin != nil && (r.Bin.X < 1 || r.Bin.Y < 1) {
		v.add("bin", context, "binning must be at least 1x1, got %dx%d", r.Bin.X, r.Bin.Y)
	}
	if r.ROI != nil {
		if r.ROI.X < 0 || r.ROI.Y < 0 {
			v.add("roi", context, "origin must not be negative, got <%d,%d>", r.ROI.X, r.ROI.Y)
		}
		if r.ROI.Width < 1 || r.ROI.Height < 1 {
			v.add("roi", context, "size must be positive, got <%dx%d>", r.ROI.Width, r.ROI.Height)
		}
	}
}

func isKnownMode(mode string) bool {
	for _, m := range knownModes {
		if strings.EqualFold(m, mode) {
			return true
		}
	}
	return false
}

// ValidateScenario is a convenience function to validate a scenario.
func ValidateScenario(sc *Scenario) error {
	errs := NewValidator().Validate(sc)
	if errs.HasErrors() {
		return errs
	}
	return nil
}
