package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Loader handles loading scenario files.
type Loader struct {
	configDir string
}

// NewLoader creates a new scenario loader.
func NewLoader(configDir string) *Loader {
	return &Loader{configDir: configDir}
}

// IsScenarioFile reports whether name has a YAML extension.
func IsScenarioFile(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}

// scenarioName derives a scenario name from its file name.
func scenarioName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// LoadFile loads a scenario from a specific file path.
// Environment variables are expanded before parsing.
// Supports ${VAR} and ${VAR:-default} syntax.
func (l *Loader) LoadFile(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	data = ExpandEnvVarsBytes(data)

	var sc Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&sc); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse scenario YAML: %w", err)
	}

	if sc.Name == "" {
		sc.Name = scenarioName(path)
	}
	sc.Path = path
	return &sc, nil
}

// LoadAndValidate loads and validates a scenario file.
func (l *Loader) LoadAndValidate(path string) (*Scenario, error) {
	sc, err := l.LoadFile(path)
	if err != nil {
		return nil, err
	}

	if err := ValidateScenario(sc); err != nil {
		return nil, fmt.Errorf("scenario validation failed for %s:\n%w", path, err)
	}

	return sc, nil
}

// LoadDirectory loads every YAML scenario in dir.
func (l *Loader) LoadDirectory(dir string) ([]*Scenario, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario directory: %w", err)
	}

	var scenarios []*Scenario
	for _, entry := range entries {
		if entry.IsDir() || !IsScenarioFile(entry.Name()) {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		sc, err := l.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load %s: %w", entry.Name(), err)
		}
		scenarios = append(scenarios, sc)
	}

	return scenarios, nil
}

// LoadDefault loads default.yaml from the config directory.
func (l *Loader) LoadDefault() (*Scenario, error) {
	return l.LoadFile(filepath.Join(l.configDir, "default.yaml"))
}

// Resolve finds a scenario by path, or by name inside the config directory.
func (l *Loader) Resolve(ref string) (string, error) {
	if _, err := os.Stat(ref); err == nil {
		return ref, nil
	}
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(l.configDir, ref+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("scenario %q not found (looked in %s)", ref, l.configDir)
}

// Marshal renders sc as YAML.
func Marshal(sc *Scenario) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(sc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
