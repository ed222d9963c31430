package loop

import (
	"fmt"
	"strings"

	"github.com/chr1sbest/acqctl/internal/config"
)

// Apply pushes the settings named by run into sess. Settings the run leaves
// out are not touched, so they carry over from earlier runs.
func Apply(sess Session, run config.RunConfig) error {
	if run.Frames != nil {
		if err := sess.SetFrameCount(*run.Frames); err != nil {
			return fmt.Errorf("failed to set frame count: %w", err)
		}
	}
	if d, ok := run.GetExposure(); ok {
		if err := sess.SetExposure(d); err != nil {
			return fmt.Errorf("failed to set exposure: %w", err)
		}
	}
	if run.Bin != nil {
		if err := sess.SetBin(run.Bin.Bin()); err != nil {
			return fmt.Errorf("failed to set binning: %w", err)
		}
	}
	if run.ROI != nil {
		if err := sess.SetROI(run.ROI.ROI()); err != nil {
			return fmt.Errorf("failed to set roi: %w", err)
		}
	}
	return nil
}

// Describe names a run for log lines: its label, or a summary of the
// settings it changes.
func Describe(run config.RunConfig) string {
	if run.Label != "" {
		return run.Label
	}

	var parts []string
	if d, ok := run.GetExposure(); ok {
		parts = append(parts, "Exp "+d.String())
	}
	if run.Frames != nil {
		parts = append(parts, fmt.Sprintf("%d frames", *run.Frames))
	}
	if run.Bin != nil {
		parts = append(parts, "Bin "+run.Bin.Bin().String())
	}
	if run.ROI != nil {
		parts = append(parts, "ROI "+run.ROI.ROI().String())
	}
	if len(parts) == 0 {
		return "with current settings"
	}
	return strings.Join(parts, ", ")
}

