package config

import (
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/chimera-protocol/chimera/apps/state/internal/logger"
)

const debounceDelay = 200 * time.Millisecond

// Watcher reloads the config file when it changes and hands the new config to
// registered callbacks. Invalid edits are logged and skipped.
type Watcher struct {
	path      string
	log       *logger.Logger
	fsw       *fsnotify.Watcher
	stopCh    chan struct{}
	done      chan struct{}
	stopOnce  sync.Once
	mu        sync.RWMutex
	current   *Config
	callbacks []func(*Config)
}

// NewWatcher watches the directory holding initial.File, so editors that
// replace the file on save are still seen.
func NewWatcher(initial *Config, log *logger.Logger) (*Watcher, error) {
	if initial.File == "" {
		return nil, fmt.Errorf("config watcher: no config file in use")
	}
	if log == nil {
		log = logger.NewNop()
	}
	path, err := filepath.Abs(initial.File)
	if err != nil {
		return nil, fmt.Errorf("config watcher: %w", err)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:    path,
		log:     log.With("component", "config_watcher"),
		fsw:     fsw,
		stopCh:  make(chan struct{}),
		done:    make(chan struct{}),
		current: initial,
	}
	go w.loop()
	w.log.Info("config hot reload enabled", "file", path)
	return w, nil
}

// OnChange registers fn; it runs on the watcher goroutine after each
// successful reload.
func (w *Watcher) OnChange(fn func(*Config)) {
	w.mu.Lock()
	w.callbacks = append(w.callbacks, fn)
	w.mu.Unlock()
}

func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
		w.fsw.Close()
		<-w.done
	})
}

func (w *Watcher) loop() {
	defer close(w.done)

	var debounce *time.Timer
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("config file changed", "file", ev.Name, "op", ev.Op.String())
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, w.reload)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error("file watcher error", "error", err)

		case <-w.stopCh:
			return
		}
	}
}

func (w *Watcher) reload() {
	select {
	case <-w.stopCh:
		return
	default:
	}

	next, err := Load(w.path)
	if err != nil {
		w.log.Error("invalid configuration after reload", "error", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = next
	callbacks := make([]func(*Config), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	if prev.Log.Level != next.Log.Level {
		w.log.Info("configuration changed", "log.level", prev.Log.Level+" -> "+next.Log.Level)
	}
	for i, fn := range callbacks {
		w.notify(i, fn, next)
	}
}

func (w *Watcher) notify(idx int, fn func(*Config), cfg *Config) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("config callback panicked", "callback_index", idx, "panic", r)
		}
	}()
	fn(cfg)
}
