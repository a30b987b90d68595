package watcher

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// WatchError reports a failure to watch a library directory
type WatchError struct {
	Dir string
	Err error
}

func (e *WatchError) Error() string {
	return fmt.Sprintf("failed to watch directory %s: %v", e.Dir, e.Err)
}

func (e *WatchError) Unwrap() error {
	return e.Err
}

// Watcher monitors library directories recursively and emits classified
// events for audio files. Events are sent on a bounded channel; when the
// consumer falls behind, events are dropped and counted rather than blocking
// the notification loop.
type Watcher struct {
	fsw     *fsnotify.Watcher
	events  chan Event
	isAudio func(string) bool
	logger  *logrus.Logger

	mutex sync.Mutex
	roots map[string]bool
	dirs  map[string]bool

	dropped atomic.Int64
	done    chan struct{}
}

// NewWatcher creates a watcher delivering events on a channel of the given
// capacity. isAudio decides which file paths are worth reporting.
func NewWatcher(isAudio func(string) bool, bufferSize int) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	w := &Watcher{
		fsw:     fsw,
		events:  make(chan Event, bufferSize),
		isAudio: isAudio,
		logger:  logger,
		roots:   make(map[string]bool),
		dirs:    make(map[string]bool),
		done:    make(chan struct{}),
	}

	go w.run()
	return w, nil
}

// Events returns the channel of classified file events. It is closed when
// the watcher shuts down.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Watch adds a library root and all of its subdirectories. Watching a root
// that is already watched is a no-op.
func (w *Watcher) Watch(dir string) error {
	w.mutex.Lock()
	if w.roots[dir] {
		w.mutex.Unlock()
		return nil
	}
	w.mutex.Unlock()

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			if strings.HasPrefix(filepath.Base(path), ".") && path != dir {
				return filepath.SkipDir
			}
			if err := w.fsw.Add(path); err != nil {
				return err
			}
			w.mutex.Lock()
			w.dirs[path] = true
			w.mutex.Unlock()
		}
		return nil
	})
	if err != nil {
		return &WatchError{Dir: dir, Err: err}
	}

	w.mutex.Lock()
	w.roots[dir] = true
	w.mutex.Unlock()

	w.logger.WithField("directory", dir).Info("Watching library directory")
	return nil
}

// Unwatch removes a library root and its subdirectories. Unwatching a root
// that is not watched is a no-op.
func (w *Watcher) Unwatch(dir string) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	if !w.roots[dir] {
		return nil
	}
	delete(w.roots, dir)

	prefix := dir + string(os.PathSeparator)
	for watched := range w.dirs {
		if watched == dir || strings.HasPrefix(watched, prefix) {
			// Removal failures are expected when the directory is already gone
			w.fsw.Remove(watched)
			delete(w.dirs, watched)
		}
	}

	w.logger.WithField("directory", dir).Info("Stopped watching library directory")
	return nil
}

// DroppedEvents returns how many events were discarded because the event
// channel was full.
func (w *Watcher) DroppedEvents() int64 {
	return w.dropped.Load()
}

// Close shuts the watcher down and closes the event channel
func (w *Watcher) Close() error {
	err := w.fsw.Close()
	<-w.done
	return err
}

// run selects on fsnotify channels and dispatches events until close
func (w *Watcher) run() {
	defer close(w.done)
	defer close(w.events)

	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.WithError(err).Error("File watcher error")
		}
	}
}

// handleEvent filters and classifies a raw fsnotify event
func (w *Watcher) handleEvent(event fsnotify.Event) {
	// Ignore temporary files and hidden files
	fileName := filepath.Base(event.Name)
	if strings.HasPrefix(fileName, ".") || strings.HasSuffix(fileName, ".tmp") {
		return
	}

	isAudioFile := w.isAudio(event.Name)

	switch {
	case event.Has(fsnotify.Create):
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			// New subdirectory: watch it so files landing inside are seen
			if err := w.fsw.Add(event.Name); err != nil {
				w.logger.WithError(err).WithField("directory", event.Name).Error("Failed to watch new directory")
				return
			}
			w.mutex.Lock()
			w.dirs[event.Name] = true
			w.mutex.Unlock()
			w.logger.WithField("directory", event.Name).Info("Watching new directory")
			return
		}
		if isAudioFile {
			w.emit(Event{Op: Changed, Path: event.Name, IsNew: true})
		}

	case event.Has(fsnotify.Write):
		if isAudioFile {
			w.emit(Event{Op: Changed, Path: event.Name})
		}

	case event.Has(fsnotify.Remove):
		w.handleGone(event.Name, isAudioFile)

	case event.Has(fsnotify.Rename):
		// fsnotify reports only the old path; the new path arrives as a
		// separate Create, so a rename is handled as a removal here.
		w.logger.WithField("path", event.Name).Debug("Rename observed, treating old path as removed")
		w.handleGone(event.Name, isAudioFile)
	}
}

// handleGone emits a removal for an audio file or a watched directory
func (w *Watcher) handleGone(path string, isAudioFile bool) {
	w.mutex.Lock()
	wasDir := w.dirs[path]
	if wasDir {
		delete(w.dirs, path)
	}
	w.mutex.Unlock()

	if isAudioFile || wasDir {
		w.emit(Event{Op: Removed, Path: path})
	}
}

// emit sends without blocking; a full channel drops the event
func (w *Watcher) emit(ev Event) {
	select {
	case w.events <- ev:
	default:
		w.dropped.Add(1)
		w.logger.WithFields(logrus.Fields{
			"path": ev.Path,
			"op":   ev.Op.String(),
		}).Warn("Event channel full, dropping event")
	}
}
