package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/chr1sbest/acqctl/internal/config"
)

func initCmd(c *cli) int {
	settings, err := config.LoadSettings(*c.settingsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	path, err := writeDefaultProfile(settings.ProfilesDir, *c.profile.force)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("Wrote %s\n", path)
	fmt.Println("\nNext:")
	fmt.Println("  acqctl validate")
	fmt.Println("  acqctl run")
	return 0
}

// writeDefaultProfile writes the built-in scenario as default.yaml in dir.
func writeDefaultProfile(dir string, force bool) (string, error) {
	path := filepath.Join(dir, "default.yaml")
	if _, err := os.Stat(path); err == nil && !force {
		return "", fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	data, err := config.Marshal(config.DefaultScenario())
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create profiles directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}
