package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

func TestWatcherTriggersOnJSONChanges(t *testing.T) {
	dir := t.TempDir()
	trigger := make(chan struct{}, 1)
	w := NewWatcher(dir, 150*time.Millisecond, trigger, logger.New("error", false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// Several writes in a burst collapse into a single trigger.
	path := filepath.Join(dir, "a.json")
	for i := 0; i < 3; i++ {
		if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	select {
	case <-trigger:
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not trigger a rescan")
	}

	select {
	case <-trigger:
		t.Error("burst of writes should be debounced into one trigger")
	case <-time.After(400 * time.Millisecond):
	}

	if stats := w.Stats(); !stats.Running || stats.Fired != 1 || stats.Events < 1 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestWatcherIgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	trigger := make(chan struct{}, 1)
	w := NewWatcher(dir, 20*time.Millisecond, trigger, logger.New("error", false))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := w.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-trigger:
		t.Error("non-JSON files must not trigger a rescan")
	case <-time.After(300 * time.Millisecond):
	}
}

func TestWatcherMissingDirectory(t *testing.T) {
	w := NewWatcher(filepath.Join(t.TempDir(), "absent"), 0, make(chan struct{}, 1), logger.New("error", false))
	if err := w.Start(context.Background()); err == nil {
		t.Error("Start() on a missing directory should fail")
	}
}
