package app

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"github.com/MrSnakeDoc/whiterails/internal/config"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		ServicesDir:     filepath.Join(t.TempDir(), "services"),
		TickInterval:    config.MinTickInterval,
		RescanInterval:  time.Minute,
		RescanMode:      config.RescanModeScan,
		ShellTimeout:    time.Second,
		OutputLimit:     1024,
		ListLimit:       10,
		ShutdownTimeout: time.Second,
		HistoryLimit:    10,
		NotifyChannel:   "whiterails:notify",
	}
}

func withRedis(cfg *config.Config, addr string) {
	cfg.RedisAddr = addr
	cfg.RedisConnectTimeout = 300 * time.Millisecond
	cfg.RedisRetryInterval = 50 * time.Millisecond
	cfg.RedisMaxWait = 100 * time.Millisecond
	cfg.RedisPingTimeout = 50 * time.Millisecond
	cfg.RedisPoolSize = 2
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.RescanMode = "sometimes"

	_, err := New(context.Background(), cfg, logger.New("error", false))
	if err == nil || !strings.Contains(err.Error(), "WR_RESCAN_MODE") {
		t.Fatalf("New() error = %v, want a config error", err)
	}
}

func TestNewFailsWhenRedisUnreachable(t *testing.T) {
	cfg := testConfig(t)
	withRedis(cfg, "127.0.0.1:1")

	if _, err := New(context.Background(), cfg, logger.New("error", false)); err == nil {
		t.Fatal("New() should fail when redis is configured but unreachable")
	}
}

func TestRunUntilCanceled(t *testing.T) {
	server, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(server.Close)

	cfg := testConfig(t)
	cfg.Watch = true
	cfg.ListenAddr = "127.0.0.1:0"
	withRedis(cfg, server.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := New(ctx, cfg, logger.New("error", false))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if info, err := os.Stat(cfg.ServicesDir); err != nil || !info.IsDir() {
		t.Fatalf("services dir not created: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	deadline := time.Now().Add(3 * time.Second)
	for a.registry.LastScan().IsZero() {
		if time.Now().After(deadline) {
			t.Fatal("initial scan did not happen")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run() did not return after cancel")
	}
}
