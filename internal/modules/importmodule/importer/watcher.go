package importer

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/ferrow/designvault/internal/events"
	"github.com/ferrow/designvault/internal/logger"
	"github.com/ferrow/designvault/internal/utils"
)

// WatchService monitors drop directories and announces importable
// files once they stop changing. Writers copy files in over several
// seconds, so each path is debounced: the announcement fires only after
// settleInterval passes with no further writes.
type WatchService struct {
	dirs           []string
	settleInterval time.Duration
	eventBus       events.EventBus

	watcher  *fsnotify.Watcher
	stop     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	pending map[string]*time.Timer
}

// NewWatchService creates a watcher for the given drop directories
func NewWatchService(dirs []string, settleInterval time.Duration, bus events.EventBus) *WatchService {
	return &WatchService{
		dirs:           dirs,
		settleInterval: settleInterval,
		eventBus:       bus,
		stop:           make(chan struct{}),
		pending:        make(map[string]*time.Timer),
	}
}

// Start begins watching. Directories that do not exist are logged and
// skipped rather than failing the service.
func (w *WatchService) Start() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create filesystem watcher: %w", err)
	}
	w.watcher = watcher

	watched := 0
	for _, dir := range w.dirs {
		if err := watcher.Add(dir); err != nil {
			logger.Warn("Cannot watch drop directory %s: %v", dir, err)
			continue
		}
		watched++
	}
	if watched == 0 {
		watcher.Close()
		return fmt.Errorf("no drop directories could be watched")
	}

	go w.loop()
	logger.Info("Watching %d drop directories (settle interval %s)", watched, w.settleInterval)
	return nil
}

// Stop halts the watch loop and drops any unsettled timers
func (w *WatchService) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		if w.watcher != nil {
			w.watcher.Close()
		}
		w.mu.Lock()
		for _, t := range w.pending {
			t.Stop()
		}
		w.pending = make(map[string]*time.Timer)
		w.mu.Unlock()
	})
}

func (w *WatchService) loop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if !utils.IsImportable(event.Name) {
				continue
			}
			w.touch(event.Name)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Error("Filesystem watcher error: %v", err)
		case <-w.stop:
			return
		}
	}
}

// touch resets the settle timer for a path. The timer firing means the
// file has been quiet for a full interval.
func (w *WatchService) touch(path string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if timer, exists := w.pending[path]; exists {
		timer.Reset(w.settleInterval)
		return
	}
	w.pending[path] = time.AfterFunc(w.settleInterval, func() {
		w.mu.Lock()
		delete(w.pending, path)
		w.mu.Unlock()
		w.announce(path)
	})
}

func (w *WatchService) announce(path string) {
	logger.Info("Drop folder file settled: %s", path)
	event := events.NewSystemEvent(events.EventWatchFileFound, "Watched file found", path)
	event.Data = map[string]interface{}{"path": path}
	w.eventBus.PublishAsync(event)
}
