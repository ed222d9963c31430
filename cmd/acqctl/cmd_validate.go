package main

import (
	"fmt"
	"os"

	"github.com/chr1sbest/acqctl/internal/config"
)

func validateCmd(c *cli) int {
	settings, err := config.LoadSettings(*c.settingsFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	loader := config.NewLoader(settings.ProfilesDir)

	refs := *c.validate.scenarios
	if len(refs) == 0 {
		scenarios, err := loader.LoadDirectory(settings.ProfilesDir)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		if len(scenarios) == 0 {
			fmt.Printf("No scenarios in %s\n", settings.ProfilesDir)
			return 0
		}
		for _, sc := range scenarios {
			refs = append(refs, sc.Path)
		}
	}

	failed := 0
	for _, ref := range refs {
		if err := validateOne(loader, ref); err != nil {
			fmt.Printf("✗ %s\n%v\n", ref, err)
			failed++
			continue
		}
		fmt.Printf("✓ %s\n", ref)
	}

	if failed > 0 {
		fmt.Fprintf(os.Stderr, "%d of %d scenario(s) invalid\n", failed, len(refs))
		return 1
	}
	return 0
}

func validateOne(loader *config.Loader, ref string) error {
	path, err := loader.Resolve(ref)
	if err != nil {
		return err
	}
	_, err = loader.LoadAndValidate(path)
	return err
}
