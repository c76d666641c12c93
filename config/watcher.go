package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// WatcherConfig configures the definitions watcher
type WatcherConfig struct {
	// Dir is the definitions directory to watch
	Dir string

	// DebounceDelay is how long to wait for more changes before reloading
	DebounceDelay time.Duration

	// Logger for logging events
	Logger *slog.Logger
}

// Watcher watches the definitions directory and reloads on change. Reloads
// are debounced: a burst of file writes produces one reload.
type Watcher struct {
	config  WatcherConfig
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	// Debouncing: mark dirty, reload on the next tick
	pendingMu sync.Mutex
	pending   bool

	// Output channel of reloaded definition sets
	events chan *Definitions
}

// NewWatcher creates a new definitions watcher
func NewWatcher(config WatcherConfig) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if config.DebounceDelay == 0 {
		config.DebounceDelay = 500 * time.Millisecond
	}

	return &Watcher{
		config:  config,
		watcher: fsw,
		logger:  logger,
		events:  make(chan *Definitions, 1),
	}, nil
}

// Events returns the channel of reloaded definition sets
func (w *Watcher) Events() <-chan *Definitions {
	return w.events
}

// Start begins watching the definitions directory
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(w.config.Dir); err != nil {
		return err
	}

	go w.processEvents(ctx)

	w.logger.Info("Definitions watcher started",
		slog.String("dir", w.config.Dir),
		slog.Duration("debounce", w.config.DebounceDelay))
	return nil
}

// Stop stops the watcher
func (w *Watcher) Stop() error {
	close(w.events)
	return w.watcher.Close()
}

// processEvents handles fsnotify events with debouncing
func (w *Watcher) processEvents(ctx context.Context) {
	ticker := time.NewTicker(w.config.DebounceDelay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleFSEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("Watcher error", slog.String("error", err.Error()))

		case <-ticker.C:
			w.flushPending()
		}
	}
}

// handleFSEvent marks the definitions dirty when a definition file changes
func (w *Watcher) handleFSEvent(event fsnotify.Event) {
	switch filepath.Base(event.Name) {
	case RulesFile, AutomationsFile, TemplatesFile, EscalationsFile:
	default:
		return
	}
	w.pendingMu.Lock()
	w.pending = true
	w.pendingMu.Unlock()

	w.logger.Debug("Definition change detected",
		slog.String("file", filepath.Base(event.Name)),
		slog.String("op", event.Op.String()))
}

// flushPending reloads the definitions once per dirty window
func (w *Watcher) flushPending() {
	w.pendingMu.Lock()
	dirty := w.pending
	w.pending = false
	w.pendingMu.Unlock()
	if !dirty {
		return
	}

	defs, err := LoadDefinitions(w.config.Dir)
	if err != nil {
		w.logger.Error("Failed to reload definitions", slog.String("error", err.Error()))
		return
	}

	select {
	case w.events <- defs:
		w.logger.Info("Definitions reloaded", slog.String("dir", w.config.Dir))
	default:
		w.logger.Warn("Definitions channel full, dropping reload")
	}
}
