package library

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"rubato/internal/config"
	"rubato/internal/database"
	"rubato/internal/dr"
	"rubato/internal/metadata"
	"rubato/internal/watcher"

	"github.com/sirupsen/logrus"
)

// NotificationKind classifies engine progress notifications
type NotificationKind string

const (
	SyncStarted   NotificationKind = "sync_started"
	SyncCompleted NotificationKind = "sync_completed"
	ScanStarted   NotificationKind = "scan_started"
	ScanCompleted NotificationKind = "scan_completed"
)

// Notification reports engine activity to subscribers
type Notification struct {
	Kind  NotificationKind
	Paths int
}

// Engine owns the watch-debounce-sync pipeline for the music library. Start
// wires a filesystem watcher through a debouncer into the synchronizer; Stop
// tears the pipeline down by closing the watcher and letting channel closure
// cascade through to the batch loop.
type Engine struct {
	cfg       *config.Config
	db        *database.Database
	extractor *metadata.Extractor
	sync      *Synchronizer
	logger    *logrus.Logger

	mutex     sync.Mutex
	watcher   *watcher.Watcher
	debouncer *watcher.Debouncer
	loopDone  chan struct{}
	started   bool

	subMutex    sync.Mutex
	subscribers []chan Notification
}

// NewEngine creates an engine over an open database using the given
// configuration.
func NewEngine(cfg *config.Config, db *database.Database) *Engine {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	extractor := metadata.NewExtractor(cfg.Library.SupportedFormats)

	var drCoordinator *dr.Coordinator
	if cfg.Sync.EnableDRParsing {
		drCoordinator = dr.NewCoordinator(db, time.Duration(cfg.Sync.DRCacheTTLMinutes)*time.Minute)
	}

	return &Engine{
		cfg:       cfg,
		db:        db,
		extractor: extractor,
		sync:      NewSynchronizer(db, extractor, drCoordinator, cfg.Sync.MaxBatchSize),
		logger:    logger,
	}
}

// Synchronizer exposes the underlying synchronizer for direct batch syncing
func (e *Engine) Synchronizer() *Synchronizer {
	return e.sync
}

// Start begins watching the configured library roots. Calling Start on a
// running engine is an error.
func (e *Engine) Start() error {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if e.started {
		return fmt.Errorf("engine already started")
	}

	w, err := watcher.NewWatcher(e.extractor.IsAudioFile, 1024)
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	for _, root := range e.cfg.Library.Roots {
		if err := w.Watch(root); err != nil {
			w.Close()
			return err
		}
	}

	settle := time.Duration(e.cfg.Sync.DebounceDelayMS) * time.Millisecond
	d := watcher.NewDebouncer(w.Events(), settle)

	e.watcher = w
	e.debouncer = d
	e.loopDone = make(chan struct{})
	e.started = true

	go e.processBatches()

	e.logger.WithFields(logrus.Fields{
		"roots":      e.cfg.Library.Roots,
		"debounceMs": e.cfg.Sync.DebounceDelayMS,
	}).Info("Library engine started")
	return nil
}

// Stop shuts the pipeline down and waits for in-flight batches to finish.
// Stopping a stopped engine is a no-op.
func (e *Engine) Stop() {
	e.mutex.Lock()
	defer e.mutex.Unlock()

	if !e.started {
		return
	}

	// Closing the watcher closes its event channel; the debouncer flushes
	// and closes its output, which ends the batch loop.
	e.watcher.Close()
	<-e.debouncer.Done()
	<-e.loopDone

	e.watcher = nil
	e.debouncer = nil
	e.started = false

	e.logger.Info("Library engine stopped")
}

// AddDirectory watches an additional library directory and syncs its current
// contents.
func (e *Engine) AddDirectory(dir string) error {
	e.mutex.Lock()
	w := e.watcher
	e.mutex.Unlock()

	if w != nil {
		if err := w.Watch(dir); err != nil {
			return err
		}
	}

	paths, err := e.collectAudioFiles(dir)
	if err != nil {
		return err
	}
	return e.sync.HandleChanged(paths)
}

// RemoveDirectory stops watching a library directory and removes its tracks
// from the catalog.
func (e *Engine) RemoveDirectory(dir string) error {
	e.mutex.Lock()
	w := e.watcher
	e.mutex.Unlock()

	if w != nil {
		if err := w.Unwatch(dir); err != nil {
			return err
		}
	}
	return e.sync.HandleRemoved([]string{dir})
}

// Subscribe returns a channel of engine notifications. Slow subscribers miss
// notifications rather than stalling the pipeline.
func (e *Engine) Subscribe() <-chan Notification {
	ch := make(chan Notification, 16)
	e.subMutex.Lock()
	e.subscribers = append(e.subscribers, ch)
	e.subMutex.Unlock()
	return ch
}

// notify delivers to all subscribers without blocking
func (e *Engine) notify(n Notification) {
	e.subMutex.Lock()
	defer e.subMutex.Unlock()
	for _, ch := range e.subscribers {
		select {
		case ch <- n:
		default:
		}
	}
}

// processBatches drains debounced batches into the synchronizer
func (e *Engine) processBatches() {
	defer close(e.loopDone)

	for batch := range e.debouncer.Batches() {
		count := len(batch.Paths) + len(batch.Pairs)
		e.notify(Notification{Kind: SyncStarted, Paths: count})

		var err error
		switch batch.Kind {
		case watcher.Changed:
			err = e.sync.HandleChanged(batch.Paths)
		case watcher.Removed:
			err = e.sync.HandleRemoved(batch.Paths)
		case watcher.Renamed:
			err = e.sync.HandleRenamed(batch.Pairs)
		}
		if err != nil {
			e.logger.WithFields(logrus.Fields{
				"kind":  batch.Kind.String(),
				"paths": count,
				"error": err.Error(),
			}).Error("Failed to apply sync batch")
		}

		e.notify(Notification{Kind: SyncCompleted, Paths: count})
	}
}

// ScanLibrary walks every configured root, syncs all audio files found using
// a small worker pool, then prunes catalog entries whose files are gone.
// Returns the number of files synced.
func (e *Engine) ScanLibrary() (int, error) {
	startTime := time.Now()

	var all []string
	for _, root := range e.cfg.Library.Roots {
		paths, err := e.collectAudioFiles(root)
		if err != nil {
			return 0, err
		}
		all = append(all, paths...)
	}

	e.notify(Notification{Kind: ScanStarted, Paths: len(all)})
	e.logger.WithField("files", len(all)).Info("Starting library scan")

	workers := runtime.NumCPU()
	if workers > 4 {
		workers = 4
	}
	chunks := make(chan []string)
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			// Keep draining after a failure so chunk sends never block
			for chunk := range chunks {
				if err := e.sync.HandleChanged(chunk); err != nil {
					select {
					case errs <- err:
					default:
					}
				}
			}
		}()
	}

	batch := e.cfg.Sync.MaxBatchSize
	for start := 0; start < len(all); start += batch {
		end := start + batch
		if end > len(all) {
			end = len(all)
		}
		chunks <- all[start:end]
	}
	close(chunks)
	wg.Wait()
	close(errs)
	if err := <-errs; err != nil {
		return 0, err
	}

	pruned, err := e.sync.PruneMissingFiles()
	if err != nil {
		return 0, err
	}

	e.notify(Notification{Kind: ScanCompleted, Paths: len(all)})
	e.logger.WithFields(logrus.Fields{
		"files":          len(all),
		"pruned":         pruned,
		"processingTime": time.Since(startTime),
	}).Info("Library scan complete")
	return len(all), nil
}

// collectAudioFiles walks a directory tree for supported audio files,
// skipping hidden directories. A missing directory yields an empty list.
func (e *Engine) collectAudioFiles(root string) ([]string, error) {
	var paths []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			if os.IsNotExist(err) && path == root {
				return filepath.SkipAll
			}
			return err
		}
		if info.IsDir() {
			if path != root && filepath.Base(path)[0] == '.' {
				return filepath.SkipDir
			}
			return nil
		}
		if e.extractor.IsAudioFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory %s: %w", root, err)
	}
	return paths, nil
}
