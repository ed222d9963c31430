package device

import (
	"fmt"
	"strings"
	"time"

	"github.com/chr1sbest/acqctl/internal/monitor"
)

// Bin is the pixel binning factor along each axis.
type Bin struct {
	X int
	Y int
}

// NoBin is 1x1 binning.
var NoBin = Bin{X: 1, Y: 1}

func (b Bin) String() string {
	return fmt.Sprintf("%dx%d", b.X, b.Y)
}

// Point is a pixel position.
type Point struct {
	X int
	Y int
}

// Size is a width and height in pixels.
type Size struct {
	Width  int
	Height int
}

// IsEmpty reports whether the size covers no pixels.
func (s Size) IsEmpty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// ROI is a region of interest in binned pixel coordinates. The zero ROI
// selects the full frame.
type ROI struct {
	TopLeft Point
	Size    Size
}

// FullFrame reports whether r selects the whole sensor.
func (r ROI) FullFrame() bool {
	return r == ROI{}
}

func (r ROI) String() string {
	if r.FullFrame() {
		return "full"
	}
	return fmt.Sprintf("<%d,%d>-<%dx%d>", r.TopLeft.X, r.TopLeft.Y, r.Size.Width, r.Size.Height)
}

// AcqParams is the acquisition configuration pushed to the device before a
// run.
type AcqParams struct {
	FrameCount int
	Exposure   time.Duration
	Bin        Bin
	ROI        ROI
}

// DefaultAcqParams returns the settings a freshly opened camera starts with.
func DefaultAcqParams() AcqParams {
	return AcqParams{
		FrameCount: 1,
		Exposure:   time.Second,
		Bin:        NoBin,
	}
}

// Format is the on-disk image format.
type Format int

const (
	FormatEDF Format = iota
	FormatRAW
	FormatCBF
)

var formatNames = map[Format]string{
	FormatEDF: "edf",
	FormatRAW: "raw",
	FormatCBF: "cbf",
}

func (f Format) String() string {
	if name, ok := formatNames[f]; ok {
		return name
	}
	return fmt.Sprintf("format(%d)", int(f))
}

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	for f, name := range formatNames {
		if strings.EqualFold(s, name) {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown image format %q", s)
}

// SavingMode controls when frames are written.
type SavingMode int

const (
	SavingManual SavingMode = iota
	SavingAutoFrame
	SavingAutoHeader
)

var savingModeNames = map[SavingMode]string{
	SavingManual:     "manual",
	SavingAutoFrame:  "auto-frame",
	SavingAutoHeader: "auto-header",
}

func (m SavingMode) String() string {
	if name, ok := savingModeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("saving-mode(%d)", int(m))
}

// ParseSavingMode accepts a saving mode name, case-insensitively.
func ParseSavingMode(s string) (SavingMode, error) {
	for m, name := range savingModeNames {
		if strings.EqualFold(s, name) {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown saving mode %q", s)
}

// SavingParams describes where and how frames are persisted.
type SavingParams struct {
	Directory     string
	Prefix        string
	Suffix        string
	NextNumber    int
	Format        Format
	Mode          SavingMode
	FramesPerFile int
}

// StatusListener is notified by a device each time its progress changes.
// Notifications are serialized: at most one call is in flight.
type StatusListener interface {
	OnStatusChanged(snap monitor.Snapshot)
}
