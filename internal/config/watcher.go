package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadCallback is called with the freshly loaded config after the file
// on disk changes
type ReloadCallback func(cfg *Config)

// Watcher reloads the config file when it changes on disk. Editors tend to
// write in bursts, so changes are debounced before reloading.
type Watcher struct {
	watcher  *fsnotify.Watcher
	path     string
	callback ReloadCallback
	debounce time.Duration

	timer *time.Timer
	mu    sync.Mutex

	done chan struct{}
}

// NewWatcher creates a watcher for the given config file path
func NewWatcher(path string, callback ReloadCallback) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		watcher:  fw,
		path:     path,
		callback: callback,
		debounce: 500 * time.Millisecond,
		done:     make(chan struct{}),
	}

	// Watch the directory, not the file: editors replace files on save
	// and the inode-level watch would be lost.
	if err := fw.Add(filepath.Dir(path)); err != nil {
		fw.Close()
		return nil, err
	}

	go w.run()
	return w, nil
}

func (w *Watcher) run() {
	for {
		select {
		case <-w.done:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.scheduleReload()
		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, func() {
		cfg, err := Load(w.path)
		if err != nil {
			return // keep running on the previous config
		}
		w.callback(cfg)
	})
}

// Close stops watching
func (w *Watcher) Close() error {
	close(w.done)
	return w.watcher.Close()
}
