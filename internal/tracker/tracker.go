// Package tracker persists what the controller is doing: the in-flight run
// state, cumulative metrics, a single-controller lock and the run history.
package tracker

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
)

// Writer owns the files in one state directory.
type Writer struct {
	Dir          string
	RunStatePath string
	LockPath     string
	MetricsPath  string
}

func NewWriter(dir string) *Writer {
	return &Writer{
		Dir:          dir,
		RunStatePath: filepath.Join(dir, "run_state.json"),
		LockPath:     filepath.Join(dir, ".acqctl_lock"),
		MetricsPath:  filepath.Join(dir, "run_metrics.json"),
	}
}

// EnsureDir creates the state directory if needed.
func (w *Writer) EnsureDir() error {
	return os.MkdirAll(w.Dir, 0755)
}

func (w *Writer) WriteRunState(s RunState) error {
	return writeJSONAtomic(w.RunStatePath, s)
}

// writeJSONAtomic writes v next to path and renames it into place, so
// readers see either the old or the new document.
func writeJSONAtomic(path string, v any) (err error) {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(f.Name())
		}
	}()

	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	if err = f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// readJSON decodes path into a new T. A missing file yields (nil, nil); an
// unparsable one is treated the same so a torn write never blocks a run.
func readJSON[T any](path string) (*T, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := new(T)
	if json.Unmarshal(b, v) != nil {
		return nil, nil
	}
	return v, nil
}
