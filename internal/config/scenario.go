package config

// DefaultScenarioName names the built-in scenario.
const DefaultScenarioName = "frelon-control"

func intPtr(n int) *int { return &n }

// DefaultScenario is the built-in control sequence: a run with the camera
// defaults, then short exposure, binning and two regions of interest, each
// building on the settings of the run before.
func DefaultScenario() *Scenario {
	return &Scenario{
		Name:        DefaultScenarioName,
		Description: "Camera control smoke test",
		Mode:        "poll",
		Saving: &SavingConfig{
			Directory:     "data",
			Prefix:        "img",
			Suffix:        ".edf",
			NextNumber:    0,
			Format:        "edf",
			Mode:          "auto-frame",
			FramesPerFile: 1,
		},
		Runs: []RunConfig{
			{Label: "First run with default pars"},
			{Exposure: "1us", Frames: intPtr(500)},
			{Bin: &BinConfig{X: 2, Y: 2}, Frames: intPtr(5)},
			{ROI: &ROIConfig{X: 256, Y: 256, Width: 512, Height: 512}},
			{ROI: &ROIConfig{X: 267, Y: 267, Width: 501, Height: 501}},
		},
	}
}
