package config

import (
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/codescan-io/lintbridge/internal/constants"
)

// SettingsWatcher reloads settings.yaml when it changes on disk and hands
// the parsed result to a callback. Bursts of writes are debounced.
type SettingsWatcher struct {
	path     string
	debounce time.Duration
	onChange func(Settings)

	fsw     *fsnotify.Watcher
	stop    chan struct{}
	stopped chan struct{}

	timerMu sync.Mutex
	timer   *time.Timer
}

// NewSettingsWatcher creates a watcher for the settings file at path.
// The parent directory is watched so editors that replace the file are seen.
func NewSettingsWatcher(path string, onChange func(Settings)) (*SettingsWatcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: create settings watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(path), err)
	}
	return &SettingsWatcher{
		path:     path,
		debounce: constants.SettingsWatchDebounce,
		onChange: onChange,
		fsw:      fsw,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}, nil
}

// Start begins processing filesystem events in the background.
func (w *SettingsWatcher) Start() {
	go w.loop()
}

// Close stops the watcher and waits for the event loop to exit.
func (w *SettingsWatcher) Close() error {
	select {
	case <-w.stop:
		return nil
	default:
	}
	close(w.stop)
	err := w.fsw.Close()
	<-w.stopped

	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timerMu.Unlock()
	return err
}

func (w *SettingsWatcher) loop() {
	defer close(w.stopped)
	target := filepath.Clean(w.path)
	for {
		select {
		case <-w.stop:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Printf("[Config] settings watcher error: %v", err)
		}
	}
}

func (w *SettingsWatcher) schedule() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *SettingsWatcher) reload() {
	select {
	case <-w.stop:
		return
	default:
	}
	settings, err := LoadSettings(w.path)
	if err != nil {
		log.Printf("[Config] ignoring invalid settings update: %v", err)
		return
	}
	log.Printf("[Config] settings reloaded from %s", w.path)
	if w.onChange != nil {
		w.onChange(settings)
	}
}
