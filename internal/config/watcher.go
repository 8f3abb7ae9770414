package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/meridianvc/scout/internal/validation"
)

// Watcher hot-reloads the validation rules file so keyword sets and
// thresholds can be tuned without restarting a long discovery deployment.
type Watcher struct {
	path      string
	validator *validation.Validator
	watcher   *fsnotify.Watcher
	logger    *zap.Logger
}

// NewWatcher loads the rules file once and prepares the file watcher.
func NewWatcher(path string, validator *validation.Validator, logger *zap.Logger) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("validation rules path cannot be empty")
	}
	w := &Watcher{path: path, validator: validator, logger: logger}
	if err := w.reload(); err != nil {
		return nil, err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// a watch on the file itself.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}
	w.watcher = fw
	return w, nil
}

// Run processes file events until the context ends.
func (w *Watcher) Run(ctx context.Context) {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}
			if err := w.reload(); err != nil {
				w.logger.Warn("validation rules reload failed; keeping previous rules",
					zap.String("path", w.path),
					zap.Error(err))
				continue
			}
			w.logger.Info("validation rules reloaded", zap.String("path", w.path))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("file watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fmt.Errorf("read rules file: %w", err)
	}
	var cfg validation.Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return fmt.Errorf("parse rules file: %w", err)
	}
	if cfg.AcceptThreshold < 0 || cfg.AcceptThreshold > 1 {
		return fmt.Errorf("accept_threshold must be in [0,1]")
	}
	w.validator.UpdateConfig(cfg)
	return nil
}
