package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/config"
	"github.com/MrSnakeDoc/whiterails/internal/dispatch"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver"
	"github.com/MrSnakeDoc/whiterails/internal/httpserver/deps"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/redis"
	"github.com/MrSnakeDoc/whiterails/internal/registry"
	"github.com/MrSnakeDoc/whiterails/internal/scheduler"
	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
	redisstore "github.com/MrSnakeDoc/whiterails/internal/store/redis"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
	"github.com/MrSnakeDoc/whiterails/internal/version"
)

type App struct {
	cfg         *config.Config
	logger      logger.Logger
	server      *httpserver.Server // nil when the admin API is disabled
	redisClient *goredis.Client    // nil when Redis is disabled
	activity    *activity.Store
	registry    *registry.Registry
	loop        *scheduler.Loop
	watcher     *scheduler.Watcher // nil when WR_WATCH=false
}

// New wires every component. Errors here are startup failures and the
// daemon must exit non-zero.
func New(ctx context.Context, cfg *config.Config, loggerClient logger.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	schema, err := servicefile.LoadSchema()
	if err != nil {
		return nil, fmt.Errorf("embedded service schema: %w", err)
	}

	reg := registry.New(cfg.ServicesDir, cfg.MaxServices, servicefile.NewLoader(schema), loggerClient.Named("registry"))
	if err := reg.EnsureDir(); err != nil {
		// Scans report the unreadable directory until it appears.
		loggerClient.Error("failed to create services directory", logger.String("dir", reg.Dir()), logger.Error(err))
	}

	// Redis is optional, but once configured it must be reachable.
	var (
		redisClient *goredis.Client
		store       *redisstore.Store
		publisher   dispatch.Publisher
		runs        scheduler.RunStore
		mirror      scheduler.ServiceMirror
	)
	if cfg.RedisEnabled() {
		redisClient, err = redis.Connect(ctx, redis.OptionsFromConfig(cfg), loggerClient.Named("redis"))
		if err != nil {
			return nil, err
		}
		store = redisstore.NewStore(redisClient)
		publisher = redisstore.NewPublisher(redisClient, cfg.NotifyChannel)
		runs = store
		mirror = store
	} else {
		loggerClient.Info("redis not configured, run history and notification fan-out disabled")
	}

	clock := activity.NewStore()

	dispatcher := dispatch.New(dispatch.Options{
		ShellTimeout: cfg.ShellTimeout,
		OutputLimit:  cfg.OutputLimit,
		ListLimit:    cfg.ListLimit,
	}, clock, publisher, loggerClient.Named("dispatch"))

	// Shared by the HTTP reload endpoint and the fsnotify watcher.
	reloadTrigger := make(chan struct{}, 1)

	sampler := sysinfo.NewHostSampler()

	loop := scheduler.NewLoop(
		reg,
		dispatcher,
		sampler,
		clock,
		runs,
		mirror,
		loggerClient.Named("scheduler"),
		scheduler.Options{
			Tick:         cfg.TickInterval,
			Rescan:       cfg.RescanInterval,
			ReloadMode:   cfg.RescanMode == config.RescanModeReload,
			HistoryLimit: cfg.HistoryLimit,
		},
		reloadTrigger,
	)

	var watcher *scheduler.Watcher
	if cfg.Watch {
		watcher = scheduler.NewWatcher(reg.Dir(), scheduler.DefaultDebounce, reloadTrigger, loggerClient.Named("watcher"))
	}

	a := &App{
		cfg:         cfg,
		logger:      loggerClient,
		redisClient: redisClient,
		activity:    clock,
		registry:    reg,
		loop:        loop,
		watcher:     watcher,
	}

	if cfg.ListenAddr != "" {
		d := deps.Deps{
			Logger:        loggerClient,
			StartTime:     time.Now(),
			Version:       version.Version,
			Commit:        version.Commit,
			BuildDate:     version.BuildDate,
			GoVersion:     version.GoVersion,
			TimeNow:       time.Now,
			AllowedCIDRS:  cfg.AllowedCIDRS,
			TrustProxy:    cfg.TrustProxy,
			Registry:      reg,
			Loop:          loop,
			Watcher:       watcher,
			Activity:      clock,
			Sampler:       sampler,
			RunsStore:     store,
			RedisClient:   redisClient,
			ReloadTrigger: reloadTrigger,
			HistoryLimit:  cfg.HistoryLimit,
		}
		a.server = httpserver.New(cfg, loggerClient, d)
	} else {
		loggerClient.Info("admin API disabled (WR_LISTEN_ADDR is empty)")
	}

	return a, nil
}

// Run starts the daemon and blocks until SIGINT/SIGTERM or a fatal server error.
func (a *App) Run(parent context.Context) error {
	a.logger.Info("starting "+version.String(),
		logger.String("services_dir", a.registry.Dir()),
		logger.Duration("tick", a.cfg.TickInterval),
		logger.Duration("rescan", a.cfg.RescanInterval))

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a.loop.Start(ctx)
	// Idle conditions count from startup, not from the epoch.
	a.activity.Record(time.Now())
	a.logger.Info("scheduler started", logger.Int("services", a.registry.Count()))

	if a.watcher != nil {
		if err := a.watcher.Start(ctx); err != nil {
			// Timed re-scans still pick up changes.
			a.logger.Warn("services watcher unavailable", logger.Error(err))
		}
	}

	errCh := make(chan error, 1)
	if a.server != nil {
		go func() {
			if err := a.server.Start(); err != nil {
				errCh <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down gracefully")
	case runErr = <-errCh:
		a.logger.Error("admin API failed", logger.Error(runErr))
	}

	a.loop.Stop()

	if a.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.ShutdownTimeout)
		defer cancel()
		if err := a.server.Stop(shutdownCtx); err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("failed to stop server: %w", err))
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Warn("failed to close redis", logger.Error(err))
		} else {
			a.logger.Info("redis closed cleanly")
		}
	}

	a.logger.Info("whiterails stopped")
	return runErr
}
