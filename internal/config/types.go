package config

import (
	"time"

	"github.com/chr1sbest/acqctl/internal/device"
)

// Scenario is a sequence of acquisition runs loaded from YAML. Settings
// given by a run persist into the runs after it until changed again.
type Scenario struct {
	Name        string        `yaml:"name"`
	Description string        `yaml:"description,omitempty"`
	Mode        string        `yaml:"mode,omitempty"` // poll or events
	Monitor     MonitorConfig `yaml:"monitor,omitempty"`
	Saving      *SavingConfig `yaml:"saving,omitempty"`
	Runs        []RunConfig   `yaml:"runs"`

	// Path is the file the scenario was loaded from, if any.
	Path string `yaml:"-"`
}

// MonitorConfig controls progress reporting and waiting.
type MonitorConfig struct {
	ReportInterval string `yaml:"report_interval,omitempty"` // e.g. "1s"
	PollInterval   string `yaml:"poll_interval,omitempty"`   // e.g. "100ms"
	WaitTimeout    string `yaml:"wait_timeout,omitempty"`    // empty waits forever
	RunDelay       string `yaml:"run_delay,omitempty"`       // pause between runs
	StartRetries   *int   `yaml:"start_retries,omitempty"`
}

// SavingConfig mirrors device.SavingParams with string enums.
type SavingConfig struct {
	Directory     string `yaml:"directory"`
	Prefix        string `yaml:"prefix"`
	Suffix        string `yaml:"suffix"`
	NextNumber    int    `yaml:"next_number,omitempty"`
	Format        string `yaml:"format"`
	Mode          string `yaml:"mode"`
	FramesPerFile int    `yaml:"frames_per_file,omitempty"`
}

// RunConfig is one run. Unset fields keep the previous run's value.
type RunConfig struct {
	Label    string     `yaml:"label,omitempty"`
	Frames   *int       `yaml:"frames,omitempty"`
	Exposure string     `yaml:"exposure,omitempty"` // e.g. "1us", "0.5s"
	Bin      *BinConfig `yaml:"bin,omitempty"`
	ROI      *ROIConfig `yaml:"roi,omitempty"`
}

type BinConfig struct {
	X int `yaml:"x"`
	Y int `yaml:"y"`
}

type ROIConfig struct {
	X      int `yaml:"x"`
	Y      int `yaml:"y"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// GetReportInterval parses the report interval, defaulting to one second.
func (m MonitorConfig) GetReportInterval() time.Duration {
	return parseDuration(m.ReportInterval, time.Second)
}

// GetPollInterval parses the poll interval, defaulting to 100ms.
func (m MonitorConfig) GetPollInterval() time.Duration {
	return parseDuration(m.PollInterval, 100*time.Millisecond)
}

// GetWaitTimeout parses the wait timeout. Zero means no timeout.
func (m MonitorConfig) GetWaitTimeout() time.Duration {
	return parseDuration(m.WaitTimeout, 0)
}

// GetRunDelay parses the pause between runs. Zero runs back to back.
func (m MonitorConfig) GetRunDelay() time.Duration {
	return parseDuration(m.RunDelay, 0)
}

// GetStartRetries returns the device start retry budget, defaulting to 3.
func (m MonitorConfig) GetStartRetries() int {
	if m.StartRetries == nil {
		return 3
	}
	return *m.StartRetries
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

// GetExposure parses the exposure. ok is false when the run leaves it
// unchanged.
func (r RunConfig) GetExposure() (d time.Duration, ok bool) {
	if r.Exposure == "" {
		return 0, false
	}
	d, err := time.ParseDuration(r.Exposure)
	if err != nil {
		return 0, false
	}
	return d, true
}

func (b BinConfig) Bin() device.Bin {
	return device.Bin{X: b.X, Y: b.Y}
}

func (r ROIConfig) ROI() device.ROI {
	return device.ROI{
		TopLeft: device.Point{X: r.X, Y: r.Y},
		Size:    device.Size{Width: r.Width, Height: r.Height},
	}
}

// Params converts the saving section. Enum names must already be valid.
func (s SavingConfig) Params() (device.SavingParams, error) {
	format, err := device.ParseFormat(s.Format)
	if err != nil {
		return device.SavingParams{}, err
	}
	mode, err := device.ParseSavingMode(s.Mode)
	if err != nil {
		return device.SavingParams{}, err
	}
	perFile := s.FramesPerFile
	if perFile == 0 {
		perFile = 1
	}
	return device.SavingParams{
		Directory:     s.Directory,
		Prefix:        s.Prefix,
		Suffix:        s.Suffix,
		NextNumber:    s.NextNumber,
		Format:        format,
		Mode:          mode,
		FramesPerFile: perFile,
	}, nil
}
