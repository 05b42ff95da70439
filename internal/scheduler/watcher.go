package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

// DefaultDebounce coalesces bursts of filesystem events (editors often
// write, rename and chmod in quick succession).
const DefaultDebounce = 500 * time.Millisecond

// Watcher requests a rescan when service files change on disk
type Watcher struct {
	dir      string
	debounce time.Duration
	trigger  chan struct{}
	logger   logger.Logger

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	events  int64
	fired   int64
}

// NewWatcher creates a watcher over dir that signals trigger
func NewWatcher(dir string, debounce time.Duration, trigger chan struct{}, log logger.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		dir:      dir,
		debounce: debounce,
		trigger:  trigger,
		logger:   log,
	}
}

// Start begins watching in the background until ctx is done
func (w *Watcher) Start(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(w.dir); err != nil {
		_ = fw.Close()
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}

	w.mu.Lock()
	w.running = true
	w.mu.Unlock()

	go func() {
		defer func() {
			_ = fw.Close()
			w.mu.Lock()
			w.running = false
			if w.timer != nil {
				w.timer.Stop()
			}
			w.mu.Unlock()
		}()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fw.Events:
				if !ok {
					return
				}
				w.handle(event)
			case err, ok := <-fw.Errors:
				if !ok {
					return
				}
				w.logger.Error("services watcher error", logger.Error(err))
			}
		}
	}()

	w.logger.Info("watching services directory for changes", logger.String("dir", w.dir))
	return nil
}

func (w *Watcher) handle(event fsnotify.Event) {
	if !strings.HasSuffix(event.Name, fileSuffix) {
		return
	}
	// Chmod alone does not change content or mtime-relevant state.
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	w.logger.Debug("service file event", logger.String("op", event.Op.String()), logger.String("file", event.Name))

	w.mu.Lock()
	defer w.mu.Unlock()

	w.events++
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.fire)
}

func (w *Watcher) fire() {
	select {
	case w.trigger <- struct{}{}:
		w.mu.Lock()
		w.fired++
		w.mu.Unlock()
	default:
		// A rescan is already pending and will see this change.
	}
}

// WatcherStats is a point-in-time view of watcher activity.
type WatcherStats struct {
	Running bool   `json:"running"`
	Dir     string `json:"dir"`
	Events  int64  `json:"events"`
	Fired   int64  `json:"fired"`
}

// Stats returns watcher counters
func (w *Watcher) Stats() WatcherStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WatcherStats{Running: w.running, Dir: w.dir, Events: w.events, Fired: w.fired}
}

const fileSuffix = ".json"
