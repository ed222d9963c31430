package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chr1sbest/acqctl/internal/config"
	"github.com/chr1sbest/acqctl/internal/logger"
	"github.com/chr1sbest/acqctl/internal/loop"
)

func watchCmd(c *cli) int {
	settings, log, closeLog, err := loadSettingsAndLogger(c, true)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer closeLog()

	path, err := config.NewLoader(settings.ProfilesDir).Resolve(*c.watch.scenario)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	loader := config.NewLoader(dir)
	warnMissingEnv(path, log)
	sc, err := loader.LoadAndValidate(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctl, err := openController(settings, log, sc, *c.watch.mode, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer ctl.Close()

	ctx, cancel := signalContext()
	defer cancel()

	watcher, err := config.NewWatcher(loader, dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := watcher.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer watcher.Stop()

	mainLoop := loop.NewLoop(sc, ctl.rig.session, log)
	mainLoop.SetRunDelay(sc.Monitor.GetRunDelay())
	return finishRun(ctl, watchLoop(ctx, mainLoop, watcher.Events(), path, ctl, log))
}

// watchLoop runs the scenario, then runs it again each time path changes
// until ctx ends. Invalid edits are reported and the previous scenario is
// kept. Mode and monitor changes need a restart.
func watchLoop(ctx context.Context, mainLoop *loop.Loop, events <-chan config.ScenarioEvent, path string, ctl *controller, log logger.Logger) error {
	runPass := func() {
		if err := mainLoop.RunOnce(ctx); err != nil && ctx.Err() == nil {
			log.Error("Scenario pass failed", logger.F("error", err))
		}
	}

	runPass()
	log.Info("Watching for changes", logger.F("file", path))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Path) != path {
				continue
			}
			switch {
			case event.Error != nil:
				log.Error("Failed to reload scenario", logger.F("error", event.Error))
			case event.Removed:
				log.Warn("Scenario file removed, keeping the last version", logger.F("file", path))
			default:
				if err := config.ValidateScenario(event.Scenario); err != nil {
					log.Error("Edited scenario is invalid, keeping the last version", logger.F("error", err))
					continue
				}
				log.Info("Scenario changed, running again", logger.F("scenario", event.Scenario.Name))
				mainLoop.SetScenario(event.Scenario)
				if ctl != nil {
					ctl.rig.session.SetScenario(event.Scenario.Name)
				}
				runPass()
			}
		}
	}
}
