// Package watcher reports new and changed documents in a directory.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Op is the kind of change
type Op int

const (
	Created Op = iota + 1
	Modified
	Removed
)

func (o Op) String() string {
	switch o {
	case Created:
		return "created"
	case Modified:
		return "modified"
	case Removed:
		return "removed"
	}
	return "unknown"
}

// Event is a settled change to one file
type Event struct {
	Path string
	Op   Op
}

// DefaultSettle is how long a file must stay quiet before its event is emitted
const DefaultSettle = 500 * time.Millisecond

// FSWatcher watches one directory with fsnotify. Bursts of writes to the same
// file are coalesced into a single event once the file has been quiet for the
// settle period.
type FSWatcher struct {
	watcher    *fsnotify.Watcher
	extensions []string
	settle     time.Duration
	logger     *zap.Logger
}

// New creates a watcher for files with one of extensions
func New(extensions []string, settle time.Duration, logger *zap.Logger) (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if len(extensions) == 0 {
		extensions = []string{".txt", ".md"}
	}
	if settle <= 0 {
		settle = DefaultSettle
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &FSWatcher{
		watcher:    w,
		extensions: extensions,
		settle:     settle,
		logger:     logger,
	}, nil
}

type pending struct {
	op       Op
	deadline time.Time
}

// Watch starts monitoring dir. The channel closes when ctx is done or the
// watcher is stopped.
func (w *FSWatcher) Watch(ctx context.Context, dir string) (<-chan Event, error) {
	if err := w.watcher.Add(dir); err != nil {
		return nil, err
	}

	events := make(chan Event, 100)

	go func() {
		defer close(events)

		queue := make(map[string]pending)
		ticker := time.NewTicker(w.settle / 4)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.isWatchedExtension(event.Name) {
					continue
				}

				var op Op
				switch {
				case event.Has(fsnotify.Create):
					op = Created
				case event.Has(fsnotify.Write):
					op = Modified
				case event.Has(fsnotify.Remove), event.Has(fsnotify.Rename):
					op = Removed
				default:
					continue
				}

				if prev, ok := queue[event.Name]; ok && prev.op == Created && op == Modified {
					op = Created
				}
				queue[event.Name] = pending{op: op, deadline: time.Now().Add(w.settle)}

			case now := <-ticker.C:
				for path, p := range queue {
					if now.Before(p.deadline) {
						continue
					}
					delete(queue, path)
					select {
					case events <- Event{Path: path, Op: p.op}:
					case <-ctx.Done():
						return
					}
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("File watcher error", zap.Error(err))
			}
		}
	}()

	return events, nil
}

// Stop stops the watcher
func (w *FSWatcher) Stop() error {
	return w.watcher.Close()
}

func (w *FSWatcher) isWatchedExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range w.extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
