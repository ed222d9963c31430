package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ScenarioEvent reports a changed, added or removed scenario file.
type ScenarioEvent struct {
	Path     string
	Scenario *Scenario
	Removed  bool
	Error    error
}

// Watcher monitors a directory for scenario file changes.
type Watcher struct {
	loader   *Loader
	watchDir string
	watcher  *fsnotify.Watcher
	events   chan ScenarioEvent
	debounce time.Duration
	done     chan struct{}

	mu        sync.RWMutex
	scenarios map[string]*Scenario
	names     map[string]string // path -> scenario name
}

// NewWatcher creates a new scenario file watcher.
func NewWatcher(loader *Loader, watchDir string) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		loader:    loader,
		watchDir:  watchDir,
		watcher:   fsWatcher,
		events:    make(chan ScenarioEvent, 10),
		debounce:  100 * time.Millisecond,
		done:      make(chan struct{}),
		scenarios: make(map[string]*Scenario),
		names:     make(map[string]string),
	}, nil
}

// Events returns the channel that receives scenario change events. It is
// closed when the watcher stops.
func (w *Watcher) Events() <-chan ScenarioEvent {
	return w.events
}

// Start loads the scenarios already present and begins watching.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.loadExisting(); err != nil {
		return fmt.Errorf("failed to load existing scenarios: %w", err)
	}

	if err := w.watcher.Add(w.watchDir); err != nil {
		return fmt.Errorf("failed to watch directory %s: %w", w.watchDir, err)
	}

	go w.run(ctx)
	return nil
}

// Stop closes the watcher. The events channel is closed once the watch
// goroutine has exited.
func (w *Watcher) Stop() error {
	select {
	case <-w.done:
		return nil
	default:
	}
	close(w.done)
	return w.watcher.Close()
}

// GetScenario returns a loaded scenario by name.
func (w *Watcher) GetScenario(name string) (*Scenario, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	sc, ok := w.scenarios[name]
	return sc, ok
}

// GetAllScenarios returns all currently loaded scenarios.
func (w *Watcher) GetAllScenarios() map[string]*Scenario {
	w.mu.RLock()
	defer w.mu.RUnlock()
	result := make(map[string]*Scenario, len(w.scenarios))
	for k, v := range w.scenarios {
		result[k] = v
	}
	return result
}

func (w *Watcher) loadExisting() error {
	scenarios, err := w.loader.LoadDirectory(w.watchDir)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	for _, sc := range scenarios {
		w.scenarios[sc.Name] = sc
		w.names[sc.Path] = sc.Name
	}
	return nil
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.events)

	// Editors emit several writes per save; only the last one counts.
	pending := make(map[string]time.Time)
	ticker := time.NewTicker(w.debounce)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !IsScenarioFile(event.Name) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				pending[event.Name] = time.Now()
			} else if event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				delete(pending, event.Name)
				w.handleRemove(ctx, event.Name)
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.emit(ctx, ScenarioEvent{Error: err})

		case <-ticker.C:
			now := time.Now()
			for path, timestamp := range pending {
				if now.Sub(timestamp) >= w.debounce {
					w.handleUpdate(ctx, path)
					delete(pending, path)
				}
			}
		}
	}
}

func (w *Watcher) emit(ctx context.Context, ev ScenarioEvent) {
	select {
	case w.events <- ev:
	case <-ctx.Done():
	case <-w.done:
	}
}

func (w *Watcher) handleUpdate(ctx context.Context, path string) {
	sc, err := w.loader.LoadFile(path)
	if err != nil {
		w.emit(ctx, ScenarioEvent{
			Path:  path,
			Error: fmt.Errorf("failed to load scenario %s: %w", path, err),
		})
		return
	}

	w.mu.Lock()
	if old, ok := w.names[path]; ok && old != sc.Name {
		delete(w.scenarios, old)
	}
	w.scenarios[sc.Name] = sc
	w.names[path] = sc.Name
	w.mu.Unlock()

	w.emit(ctx, ScenarioEvent{Path: path, Scenario: sc})
}

func (w *Watcher) handleRemove(ctx context.Context, path string) {
	w.mu.Lock()
	name, ok := w.names[path]
	if !ok {
		name = scenarioName(filepath.Base(path))
	}
	delete(w.scenarios, name)
	delete(w.names, path)
	w.mu.Unlock()

	w.emit(ctx, ScenarioEvent{Path: path, Removed: true})
}
