package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/condition"
	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/registry"
	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
)

// Runner executes the actions of a service.
type Runner interface {
	RunAll(ctx context.Context, svc domain.ServiceDefinition) []domain.ActionResult
}

// RunStore persists run records.
type RunStore interface {
	SaveRun(ctx context.Context, rec domain.RunRecord, limit int) error
}

// ServiceMirror receives the live set after every scan.
type ServiceMirror interface {
	SyncServices(ctx context.Context, docs []servicefile.Document) error
}

// Options configures the loop cadence.
type Options struct {
	Tick         time.Duration
	Rescan       time.Duration
	ReloadMode   bool // full Reload instead of incremental Scan
	HistoryLimit int
}

// Loop drives ticks and re-scans from a single goroutine
type Loop struct {
	registry *registry.Registry
	runner   Runner
	sampler  sysinfo.Sampler
	clock    activity.Clock
	runs     RunStore      // optional
	mirror   ServiceMirror // optional
	logger   logger.Logger
	opts     Options
	now      func() time.Time

	stopCh        chan struct{}
	done          chan struct{}
	manualTrigger chan struct{}

	mu      sync.RWMutex
	started bool
	stats   Stats
}

// Stats is a point-in-time view of loop activity.
type Stats struct {
	Running    bool      `json:"running"`
	Ticks      int64     `json:"ticks"`
	Dispatched int64     `json:"dispatched"`
	LastTick   time.Time `json:"last_tick"`
	LastScan   time.Time `json:"last_scan"`
	Scans      int64     `json:"scans"`
}

// TickReport counts what one tick did.
type TickReport struct {
	Due    int
	Met    int
	NotMet int
	Errors int
}

// NewLoop creates a new scheduler loop. runs and mirror may be nil.
func NewLoop(
	reg *registry.Registry,
	runner Runner,
	sampler sysinfo.Sampler,
	clock activity.Clock,
	runs RunStore,
	mirror ServiceMirror,
	log logger.Logger,
	opts Options,
	manualTrigger chan struct{},
) *Loop {
	return &Loop{
		registry:      reg,
		runner:        runner,
		sampler:       sampler,
		clock:         clock,
		runs:          runs,
		mirror:        mirror,
		logger:        log,
		opts:          opts,
		now:           time.Now,
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
		manualTrigger: manualTrigger,
	}
}

// Start performs the initial scan and begins ticking in the background
func (l *Loop) Start(ctx context.Context) {
	l.Rescan(ctx, "startup")

	l.mu.Lock()
	l.started = true
	l.stats.Running = true
	l.mu.Unlock()

	go l.run(ctx)
}

// Stop stops the loop and waits for the current tick to finish
func (l *Loop) Stop() {
	l.mu.RLock()
	started := l.started
	l.mu.RUnlock()
	if !started {
		return
	}

	select {
	case <-l.stopCh:
	default:
		close(l.stopCh)
	}
	<-l.done
}

// Done is closed once the loop goroutine has exited
func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run(ctx context.Context) {
	ticker := time.NewTicker(l.opts.Tick)
	rescan := time.NewTicker(l.opts.Rescan)
	defer func() {
		ticker.Stop()
		rescan.Stop()
		l.mu.Lock()
		l.stats.Running = false
		l.mu.Unlock()
		close(l.done)
	}()

	for {
		select {
		case <-ticker.C:
			l.Tick(ctx, l.now())
		case <-rescan.C:
			l.Rescan(ctx, "timer")
		case <-l.manualTrigger:
			l.logger.Info("manual rescan triggered")
			l.Rescan(ctx, "manual")
		case <-l.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

// Rescan synchronizes the registry with disk and mirrors the result
func (l *Loop) Rescan(ctx context.Context, reason string) registry.ScanReport {
	var report registry.ScanReport
	if l.opts.ReloadMode {
		report = l.registry.Reload(ctx)
	} else {
		report = l.registry.Scan(ctx)
	}

	l.mu.Lock()
	l.stats.Scans++
	l.stats.LastScan = report.StartedAt
	l.mu.Unlock()

	if report.Skipped() {
		return report
	}

	if report.Loaded+report.Updated+report.Removed > 0 || len(report.Errors) > 0 {
		l.logger.Info("services rescanned",
			logger.String("reason", reason),
			logger.Int("total", report.Total()),
			logger.Int("loaded", report.Loaded),
			logger.Int("updated", report.Updated),
			logger.Int("removed", report.Removed),
			logger.Int("errors", len(report.Errors)))
	}

	// Update Redis mirror (best effort)
	if l.mirror != nil {
		services := l.registry.Services()
		docs := make([]servicefile.Document, len(services))
		for i, svc := range services {
			docs[i] = servicefile.FromDefinition(svc)
		}
		if err := l.mirror.SyncServices(ctx, docs); err != nil {
			l.logger.Warn("failed to mirror services to redis", logger.Error(err))
		}
	}

	return report
}

// Tick runs one pass of the interval gate over every live service.
func (l *Loop) Tick(ctx context.Context, now time.Time) TickReport {
	var (
		report  TickReport
		snap    sysinfo.Snapshot
		sampled bool
	)

	for _, svc := range l.registry.Services() {
		if ctx.Err() != nil {
			break
		}
		if !svc.Due(now) {
			continue
		}
		report.Due++

		// Host reads are paid once per tick, and only when something is due.
		if !sampled {
			snap = l.sampler.Sample(ctx)
			snap.Now = now
			sampled = true
			l.logger.Debug("host sampled",
				logger.Duration("uptime", snap.Uptime),
				logger.Float64("load1", snap.Load1),
				logger.Float64("mem_used_percent", snap.MemUsedPercent),
				logger.Int("battery", snap.BatteryLevel))
		}

		res := condition.EvaluateText(svc.Condition, l.clock, snap)
		switch res.Outcome {
		case domain.OutcomeError:
			report.Errors++
			l.logger.Warn("condition evaluation failed",
				logger.String("service", svc.Name),
				logger.String("condition", svc.Condition),
				logger.Error(res.Err))

		case domain.OutcomeNotMet:
			report.NotMet++
			l.registry.MarkRun(svc.SourcePath, now)
			l.logger.Debug("condition not met",
				logger.String("service", svc.Name),
				logger.String("reason", res.Reason))

		case domain.OutcomeMet:
			report.Met++
			l.execute(ctx, svc, res, now)
		}
	}

	l.mu.Lock()
	l.stats.Ticks++
	l.stats.LastTick = now
	l.stats.Dispatched += int64(report.Met)
	l.mu.Unlock()

	return report
}

func (l *Loop) execute(ctx context.Context, svc domain.ServiceDefinition, res condition.Result, now time.Time) {
	l.logger.Info("condition met, dispatching actions",
		logger.String("service", svc.Name),
		logger.String("reason", res.Reason),
		logger.Int("actions", len(svc.Actions)))

	rec := domain.RunRecord{
		ID:         uuid.NewString(),
		Service:    svc.Name,
		SourcePath: svc.SourcePath,
		Condition:  svc.Condition,
		Outcome:    res.Outcome,
		Reason:     res.Reason,
		StartedAt:  now,
	}
	rec.Actions = l.runner.RunAll(ctx, svc)
	rec.FinishedAt = l.now()

	l.registry.MarkRun(svc.SourcePath, now)

	if failed := rec.Failed(); failed > 0 {
		l.logger.Warn("service finished with failed actions",
			logger.String("service", svc.Name),
			logger.String("run_id", rec.ID),
			logger.Int("failed", failed))
	}

	// Save run record (best effort)
	if l.runs != nil {
		if err := l.runs.SaveRun(ctx, rec, l.opts.HistoryLimit); err != nil {
			l.logger.Warn("failed to save run record", logger.String("run_id", rec.ID), logger.Error(err))
		}
	}
}

// Stats returns a copy of the loop counters
func (l *Loop) Stats() Stats {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.stats
}
