package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/device"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/session"
	"github.com/chr1sbest/acqctl/internal/workerpool"
)

// logOptions selects where log lines go.
type logOptions struct {
	debug   bool
	json    bool
	console bool
}

// newLogger builds the console logger plus the settings' log file, if any.
// The returned func closes the log file.
func newLogger(s *config.Settings, opts logOptions) (logger.Logger, func() error, error) {
	level := logger.LevelDebug
	if !opts.debug {
		var err error
		level, err = logger.ParseLevel(s.Log.Level)
		if err != nil {
			return nil, nil, err
		}
	}

	var loggers []logger.Logger
	if opts.console {
		if opts.json {
			h := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
				Level:       logger.SlogLevel(level),
				ReplaceAttr: logger.ReplaceLevelAttr,
			})
			loggers = append(loggers, logger.NewSlogLogger(h))
		} else {
			loggers = append(loggers, logger.NewStdoutLogger(level))
		}
	}

	closeFn := func() error { return nil }
	if strings.TrimSpace(s.Log.File) != "" {
		fl, err := logger.NewFileLogger(s.Log.File, level)
		if err != nil {
			return nil, nil, err
		}
		loggers = append(loggers, fl)
		closeFn = fl.Close
	}

	switch len(loggers) {
	case 0:
		return logger.NewNoopLogger(), closeFn, nil
	case 1:
		return loggers[0], closeFn, nil
	default:
		return logger.NewMultiLogger(loggers...), closeFn, nil
	}
}

// sessionOptions combines the scenario's monitor section with command line
// overrides. An empty mode or a zero timeout leaves the scenario's value.
func sessionOptions(sc *config.Scenario, mode string, timeout time.Duration, log logger.Logger) (session.Options, error) {
	if mode == "" {
		mode = sc.Mode
	}
	m, err := session.ParseMode(mode)
	if err != nil {
		return session.Options{}, err
	}
	if timeout == 0 {
		timeout = sc.Monitor.GetWaitTimeout()
	}
	return session.Options{
		Mode:           m,
		ReportInterval: sc.Monitor.GetReportInterval(),
		PollInterval:   sc.Monitor.GetPollInterval(),
		WaitTimeout:    timeout,
		StartRetries:   sc.Monitor.GetStartRetries(),
		Logger:         log,
	}, nil
}

// rig is the simulated camera with its save workers and the session that
// drives it.
type rig struct {
	pool    *workerpool.Pool
	saving  *device.Saving
	camera  *device.Simulator
	session *session.Session
}

func newRig(s *config.Settings, opts session.Options) (*rig, error) {
	pool := workerpool.New(s.Device.Workers, opts.Logger)
	saving := device.NewSaving()
	camera := device.NewSimulator(pool, saving, device.SimulatorOptions{
		Sensor:      device.Size{Width: s.Device.SensorWidth, Height: s.Device.SensorHeight},
		LineTime:    s.Device.LineTime,
		SaveLatency: s.Device.SaveLatency,
		Logger:      opts.Logger,
	})

	sess, err := session.New(camera, saving, pool, opts)
	if err != nil {
		_ = pool.Shutdown()
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return &rig{pool: pool, saving: saving, camera: camera, session: sess}, nil
}

// Close stops the camera and the save workers.
func (r *rig) Close() error {
	stopErr := r.camera.Stop()
	if err := r.pool.Shutdown(); err != nil {
		return err
	}
	return stopErr
}

// loadScenario resolves ref against the profiles directory. With no ref the
// profile default.yaml is used, falling back to the built-in scenario.
func loadScenario(s *config.Settings, ref string, log logger.Logger) (*config.Scenario, error) {
	loader := config.NewLoader(s.ProfilesDir)

	if ref == "" {
		path, err := loader.Resolve("default")
		if err != nil {
			sc := config.DefaultScenario()
			return sc, config.ValidateScenario(sc)
		}
		ref = path
	}

	path, err := loader.Resolve(ref)
	if err != nil {
		return nil, err
	}
	warnMissingEnv(path, log)
	return loader.LoadAndValidate(path)
}

// warnMissingEnv logs variables a scenario references without a default
// that are not set.
func warnMissingEnv(path string, log logger.Logger) {
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	for _, name := range config.MissingEnvVars(string(data)) {
		log.Warn("Scenario references unset environment variable", logger.F("file", path), logger.F("var", name))
	}
}
