// Package notify reports changes to a file on disk using filesystem events.
// The server uses it to pick up connection types added to the types file
// while it is running.
package notify

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// changeOps are the events that may leave the file with new contents.
// Editors often replace the file instead of writing it in place.
const changeOps = fsnotify.Write | fsnotify.Create | fsnotify.Rename

// FileWatcher watches a single file and calls back when it changes.
type FileWatcher struct {
	path     string
	callback func(path string)
	logger   *slog.Logger
	watcher  *fsnotify.Watcher
	done     chan struct{}
	stopOnce sync.Once
}

// NewFileWatcher creates a watcher for path. The callback runs on the
// watcher goroutine, one change at a time.
func NewFileWatcher(path string, callback func(path string), logger *slog.Logger) *FileWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileWatcher{
		path:     filepath.Clean(path),
		callback: callback,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// Start begins watching. The parent directory is watched so the file may be
// replaced or created later. Call Stop() to clean up.
func (fw *FileWatcher) Start() error {
	dir := filepath.Dir(fw.path)
	if _, err := os.Stat(dir); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	fw.watcher = w

	go fw.loop()
	fw.logger.Info("notify: watching file", "path", fw.path)
	return nil
}

// Stop shuts down the watcher and waits for the callback goroutine to exit.
// It is safe to call more than once.
func (fw *FileWatcher) Stop() {
	if fw.watcher == nil {
		return
	}
	fw.stopOnce.Do(func() {
		_ = fw.watcher.Close()
		<-fw.done
	})
}

func (fw *FileWatcher) loop() {
	defer close(fw.done)
	for {
		select {
		case evt, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if evt.Op&changeOps == 0 || filepath.Clean(evt.Name) != fw.path {
				continue
			}
			if _, err := os.Stat(fw.path); err != nil {
				continue // renamed away; wait for the replacement
			}
			if fw.callback != nil {
				fw.callback(fw.path)
			}
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("notify: watcher error", "error", err)
		}
	}
}
