package config

import (
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
)

// debounceDelay coalesces a burst of filesystem events (e.g. an editor's
// rename-swap atomic save) into a single dirty signal.
var debounceDelay = 200 * time.Millisecond

// Watch watches path's containing directory for changes and sets dirty
// after a debounce window. Watching the directory, not the file, so
// atomic-rename saves are still seen. If the watcher cannot be created
// or the directory cannot be watched, Watch logs nothing and returns a
// no-op cleanup together with the error, so callers can degrade to
// reloading only on their own tick instead of failing outright.
func Watch(path string, dirty *atomic.Bool) (cleanup func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return func() {}, err
	}
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		_ = watcher.Close()
		return func() {}, err
	}

	done := make(chan struct{})
	go func() {
		var debounce *time.Timer
		for {
			select {
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(debounceDelay, func() { dirty.Store(true) })
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		_ = watcher.Close()
	}, nil
}
