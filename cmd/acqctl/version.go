package main

import (
	"fmt"
	"runtime/debug"
	"strings"
)

var version = "dev"

var commit = "none"

var date = "unknown"

func unset(s string) bool {
	s = strings.TrimSpace(s)
	return s == "" || s == "none" || s == "unknown"
}

func versionLine() string {
	if version != "dev" {
		return fmt.Sprintf("acqctl version %s", version)
	}

	c := strings.TrimSpace(commit)
	d := strings.TrimSpace(date)

	if unset(c) || unset(d) {
		if bi, ok := debug.ReadBuildInfo(); ok {
			for _, s := range bi.Settings {
				switch s.Key {
				case "vcs.revision":
					if unset(c) && !unset(s.Value) {
						c = strings.TrimSpace(s.Value)
					}
				case "vcs.time":
					if unset(d) && !unset(s.Value) {
						d = strings.TrimSpace(s.Value)
					}
				}
			}
		}
	}

	if !unset(c) && len(c) > 7 {
		c = c[:7]
	}

	switch {
	case unset(c) && unset(d):
		return "acqctl version dev"
	case unset(c):
		return fmt.Sprintf("acqctl version dev (built %s)", d)
	case unset(d):
		return fmt.Sprintf("acqctl version dev (commit %s)", c)
	}
	return fmt.Sprintf("acqctl version dev (commit %s, built %s)", c, d)
}
