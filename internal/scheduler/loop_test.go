package scheduler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/dispatch"
	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/registry"
	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type memoryRuns struct {
	mu      sync.Mutex
	records []domain.RunRecord
	err     error
}

func (m *memoryRuns) SaveRun(_ context.Context, rec domain.RunRecord, _ int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, rec)
	return m.err
}

type countingSampler struct {
	mu    sync.Mutex
	calls int
}

func (s *countingSampler) Sample(context.Context) sysinfo.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return sysinfo.Snapshot{BatteryLevel: sysinfo.FullBattery}
}

func (s *countingSampler) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

type memoryMirror struct {
	docs []servicefile.Document
}

func (m *memoryMirror) SyncServices(_ context.Context, docs []servicefile.Document) error {
	m.docs = docs
	return nil
}

type harness struct {
	dir      string
	clock    *fakeClock
	activity *activity.Store
	registry *registry.Registry
	runs     *memoryRuns
	mirror   *memoryMirror
	sampler  *countingSampler
	loop     *Loop
	trigger  chan struct{}
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	dir := t.TempDir()
	schema, err := servicefile.LoadSchema()
	if err != nil {
		t.Fatalf("LoadSchema() error = %v", err)
	}
	log := logger.New("error", false)

	h := &harness{
		dir:      dir,
		clock:    &fakeClock{now: time.Date(2026, 7, 1, 8, 0, 0, 0, time.UTC)},
		activity: activity.NewStore(),
		runs:     &memoryRuns{},
		mirror:   &memoryMirror{},
		sampler:  &countingSampler{},
		trigger:  make(chan struct{}, 1),
	}
	h.registry = registry.New(dir, 0, servicefile.NewLoader(schema), log)

	d := dispatch.New(dispatch.Options{ShellTimeout: 5 * time.Second, OutputLimit: 4096, ListLimit: 100}, h.activity, nil, log).
		WithClock(h.clock.Now)

	h.loop = NewLoop(h.registry, d, h.sampler,
		h.activity, h.runs, h.mirror, log,
		Options{Tick: time.Second, Rescan: time.Minute, HistoryLimit: 10}, h.trigger)
	h.loop.now = h.clock.Now
	return h
}

func (h *harness) write(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func (h *harness) lastRun(t *testing.T, path string) time.Time {
	t.Helper()
	def, ok := h.registry.Lookup(path)
	if !ok {
		t.Fatalf("service %s not loaded", path)
	}
	return def.LastRunAt
}

func TestIdleNotifyScenario(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "idle.json",
		`{"name":"idle-notify","condition":"no_activity(5)","interval_seconds":1,"actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")

	t0 := h.clock.Now()
	h.activity.Record(t0.Add(-10 * time.Second))

	report := h.loop.Tick(ctx, t0)
	if report.Met != 1 {
		t.Fatalf("first tick = %+v, want one dispatch", report)
	}
	if !h.lastRun(t, path).Equal(t0) {
		t.Errorf("LastRunAt = %v, want %v", h.lastRun(t, path), t0)
	}
	if len(h.runs.records) != 1 || h.runs.records[0].Outcome != domain.OutcomeMet {
		t.Fatalf("run records = %+v", h.runs.records)
	}
	if last, _ := h.activity.Last(); !last.Equal(t0) {
		t.Errorf("activity = %v, notify should record activity at %v", last, t0)
	}

	// Within the interval the gate stays closed and nothing is evaluated.
	report = h.loop.Tick(ctx, t0.Add(500*time.Millisecond))
	if report.Due != 0 {
		t.Errorf("tick inside interval = %+v, want no due services", report)
	}

	// Two seconds later the gate is open but the notify counted as
	// activity, so the idle condition no longer holds.
	t2 := t0.Add(2 * time.Second)
	h.clock.Set(t2)
	report = h.loop.Tick(ctx, t2)
	if report.Met != 0 || report.NotMet != 1 {
		t.Errorf("tick after 2s = %+v, want not met", report)
	}
	if len(h.runs.records) != 1 {
		t.Errorf("run records = %d, want no new dispatch", len(h.runs.records))
	}
}

func TestNotMetResetsGate(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "idle.json",
		`{"name":"idle","condition":"no_activity(60)","interval_seconds":30,"actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")

	now := h.clock.Now()
	h.activity.Record(now)

	report := h.loop.Tick(ctx, now)
	if report.NotMet != 1 {
		t.Fatalf("tick = %+v, want not met", report)
	}
	if !h.lastRun(t, path).Equal(now) {
		t.Errorf("LastRunAt = %v, NotMet should reset the gate to %v", h.lastRun(t, path), now)
	}

	if report := h.loop.Tick(ctx, now.Add(10*time.Second)); report.Due != 0 {
		t.Errorf("tick before interval = %+v, want gate closed", report)
	}
}

func TestEvaluationErrorKeepsGateOpen(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "bad.json",
		`{"name":"bad","condition":"cpu > 90","interval_seconds":60,"actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")
	now := h.clock.Now()

	for i := 0; i < 2; i++ {
		report := h.loop.Tick(ctx, now.Add(time.Duration(i)*time.Second))
		if report.Errors != 1 {
			t.Fatalf("tick %d = %+v, want an evaluation error", i, report)
		}
	}
	if !h.lastRun(t, path).IsZero() {
		t.Error("an evaluation error must not update LastRunAt")
	}
	if len(h.runs.records) != 0 {
		t.Errorf("run records = %d, want none", len(h.runs.records))
	}
}

func TestZeroIntervalIsDueEveryTick(t *testing.T) {
	h := newHarness(t)
	h.write(t, "always.json",
		`{"name":"always","condition":"always_true","interval_seconds":0,"actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")
	now := h.clock.Now()

	for i := 0; i < 3; i++ {
		if report := h.loop.Tick(ctx, now); report.Met != 1 {
			t.Fatalf("tick %d = %+v, want met", i, report)
		}
	}
	if got := h.loop.Stats().Dispatched; got != 3 {
		t.Errorf("Dispatched = %d, want 3", got)
	}
}

func TestTickSamplesHostOnlyWhenDue(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.json",
		`{"name":"a","condition":"always_true","interval_seconds":60,"actions":[{"type":"notify","message":"hi"}]}`)
	h.write(t, "b.json",
		`{"name":"b","condition":"always_true","interval_seconds":60,"actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")
	now := h.clock.Now()

	if report := h.loop.Tick(ctx, now); report.Met != 2 {
		t.Fatalf("first tick = %+v, want both met", report)
	}
	if got := h.sampler.Calls(); got != 1 {
		t.Errorf("samples after first tick = %d, want 1 shared by both services", got)
	}

	if report := h.loop.Tick(ctx, now.Add(time.Second)); report.Due != 0 {
		t.Fatalf("second tick = %+v, want nothing due", report)
	}
	if got := h.sampler.Calls(); got != 1 {
		t.Errorf("samples after idle tick = %d, want still 1", got)
	}
}

func TestFailedActionsStillMarkRun(t *testing.T) {
	h := newHarness(t)
	path := h.write(t, "fail.json",
		`{"name":"fail","condition":"always_true","interval_seconds":60,"actions":[
			{"type":"shell","cmd":"exit 2"},
			{"type":"notify","message":"after"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")
	now := h.clock.Now()

	h.loop.Tick(ctx, now)

	if !h.lastRun(t, path).Equal(now) {
		t.Error("action failures must not block the LastRunAt update")
	}
	rec := h.runs.records[0]
	if len(rec.Actions) != 2 || rec.Actions[0].OK || !rec.Actions[1].OK {
		t.Errorf("actions = %+v, want failure then success", rec.Actions)
	}
	if rec.ID == "" {
		t.Error("run record should carry an id")
	}
}

func TestRunStoreErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t)
	h.runs.err = errors.New("redis down")
	h.write(t, "a.json", `{"name":"a","condition":"always_true","actions":[{"type":"notify","message":"hi"}]}`)

	ctx := context.Background()
	h.loop.Rescan(ctx, "test")
	if report := h.loop.Tick(ctx, h.clock.Now()); report.Met != 1 {
		t.Errorf("tick = %+v", report)
	}
}

func TestRescanMirrorsLiveSet(t *testing.T) {
	h := newHarness(t)
	h.write(t, "a.json", `{"name":"a","condition":"always_true","actions":[{"type":"notify","message":"hi"}]}`)
	h.write(t, "b.json", `{"name":"b","condition":"always_true","actions":[{"type":"notify","message":"hi"}]}`)

	report := h.loop.Rescan(context.Background(), "test")
	if report.Total() != 2 {
		t.Fatalf("Total() = %d, want 2", report.Total())
	}
	if len(h.mirror.docs) != 2 || h.mirror.docs[0].Name != "a" {
		t.Errorf("mirrored = %+v", h.mirror.docs)
	}
}

func TestStartAndManualTrigger(t *testing.T) {
	h := newHarness(t)
	h.loop.opts.Tick = 10 * time.Millisecond
	h.loop.now = time.Now

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h.loop.Start(ctx)
	defer h.loop.Stop()

	if h.registry.Count() != 0 {
		t.Fatalf("Count() = %d, want empty directory", h.registry.Count())
	}

	h.write(t, "a.json", `{"name":"a","condition":"always_true","actions":[{"type":"notify","message":"hi"}]}`)
	h.trigger <- struct{}{}

	deadline := time.Now().Add(3 * time.Second)
	for h.registry.Count() != 1 {
		if time.Now().After(deadline) {
			t.Fatal("manual trigger did not rescan")
		}
		time.Sleep(10 * time.Millisecond)
	}

	stats := h.loop.Stats()
	if !stats.Running || stats.Scans < 2 {
		t.Errorf("Stats() = %+v", stats)
	}
}

func TestStopWithoutStart(t *testing.T) {
	h := newHarness(t)
	done := make(chan struct{})
	go func() {
		h.loop.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop() blocked on a loop that never started")
	}
}
