package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/alecthomas/kingpin.v1"
)

// cli holds every parsed flag and argument.
type cli struct {
	settingsFile *string
	debug        *bool
	jsonLogs     *bool

	run struct {
		scenario *string
		mode     *string
		timeout  *time.Duration
		repeat   *bool
		progress *bool
	}
	validate struct {
		scenarios *[]string
	}
	watch struct {
		scenario *string
		mode     *string
	}
	history struct {
		limit *int
	}
	profile struct {
		force *bool
	}
}

func newApp() (*kingpin.Application, *cli) {
	app := kingpin.New("acqctl", "Drive camera acquisition runs and monitor their progress. Command flags go before the scenario argument.")
	app.Version(versionLine())

	c := &cli{}
	c.settingsFile = app.Flag("settings", "Settings file (default: ./acqctl.yaml or the user config dir)").Short('c').String()
	c.debug = app.Flag("debug", "Enable debug output").Short('d').Bool()
	c.jsonLogs = app.Flag("json", "Log as JSON lines").Bool()

	run := app.Command("run", "Run a scenario once")
	c.run.scenario = run.Arg("scenario", "Scenario name or file (default: profiles/default.yaml, else the built-in scenario)").String()
	c.run.mode = run.Flag("mode", "Progress delivery: poll or events").Short('m').String()
	c.run.timeout = run.Flag("timeout", "Give up on a run after this long (0 waits forever)").Short('t').Default("0s").Duration()
	c.run.repeat = run.Flag("repeat", "Repeat the scenario until interrupted").Short('r').Bool()
	c.run.progress = run.Flag("progress", "Show a progress bar instead of log lines").Short('p').Bool()

	validate := app.Command("validate", "Check scenario files without running them")
	c.validate.scenarios = validate.Arg("scenarios", "Scenario names or files (default: every profile)").Strings()

	watch := app.Command("watch", "Run a scenario and run it again whenever its file changes")
	c.watch.scenario = watch.Arg("scenario", "Scenario name or file").Required().String()
	c.watch.mode = watch.Flag("mode", "Progress delivery: poll or events").Short('m').String()

	history := app.Command("history", "List recent runs")
	c.history.limit = history.Flag("limit", "Number of runs to show").Short('n').Default("20").Int()

	profile := app.Command("init", "Write the built-in scenario to the profiles directory")
	c.profile.force = profile.Flag("force", "Overwrite an existing default profile").Short('f').Bool()

	app.Command("version", "Show the version")

	return app, c
}

func main() {
	app, c := newApp()
	command, err := app.Parse(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "acqctl: %v\n", err)
		fmt.Fprintln(os.Stderr, "Run 'acqctl --help' for usage.")
		os.Exit(2)
	}

	switch command {
	case "run":
		os.Exit(runCmd(c))
	case "validate":
		os.Exit(validateCmd(c))
	case "watch":
		os.Exit(watchCmd(c))
	case "history":
		os.Exit(historyCmd(c))
	case "init":
		os.Exit(initCmd(c))
	case "version":
		fmt.Println(versionLine())
	}
}
