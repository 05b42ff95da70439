package registry

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
	"github.com/MrSnakeDoc/whiterails/internal/sources/servicefile"
)

const fileSuffix = ".json"

// Registry owns the live set of service definitions loaded from one
// directory. Entries are keyed by source path and kept ordered by it.
type Registry struct {
	dir    string
	limit  int
	loader *servicefile.Loader
	log    logger.Logger
	now    func() time.Time

	mu         sync.RWMutex
	services   map[string]*domain.ServiceDefinition // SourcePath -> definition
	order      []string                             // sorted SourcePaths
	lastScan   time.Time
	lastReport ScanReport
}

// New creates an empty registry over dir. limit <= 0 means unlimited.
func New(dir string, limit int, loader *servicefile.Loader, log logger.Logger) *Registry {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	return &Registry{
		dir:      dir,
		limit:    limit,
		loader:   loader,
		log:      log,
		now:      time.Now,
		services: make(map[string]*domain.ServiceDefinition),
	}
}

func (r *Registry) Dir() string { return r.dir }

// EnsureDir creates the services directory and its parents when missing.
func (r *Registry) EnsureDir() error {
	if err := os.MkdirAll(r.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create services directory %s: %w", r.dir, err)
	}
	return nil
}

// Scan synchronizes the live set with the directory. Unchanged files keep
// their in-memory state, changed files are replaced, missing or now-invalid
// files are dropped.
func (r *Registry) Scan(ctx context.Context) ScanReport {
	return r.scan(ctx, false)
}

// Reload discards the live set and loads every file from scratch.
func (r *Registry) Reload(ctx context.Context) ScanReport {
	return r.scan(ctx, true)
}

type candidate struct {
	path    string
	modTime time.Time
}

func (r *Registry) scan(ctx context.Context, fresh bool) ScanReport {
	report := ScanReport{Dir: r.dir, StartedAt: r.now()}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		report.Err = fmt.Errorf("failed to list services directory: %w", err)
		r.log.Error("Service scan skipped", logger.String("dir", r.dir), logger.Error(err))
		r.record(&report)
		return report
	}

	// Snapshot tracked mtimes so file I/O happens without holding the lock.
	r.mu.RLock()
	tracked := make(map[string]time.Time, len(r.services))
	for path, def := range r.services {
		tracked[path] = def.LastModifiedAt
	}
	r.mu.RUnlock()

	var candidates []candidate
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), fileSuffix) {
			continue
		}
		path := filepath.Join(r.dir, entry.Name())
		info, err := os.Stat(path)
		if err != nil {
			report.Errors = append(report.Errors, classify(path, err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		candidates = append(candidates, candidate{path: path, modTime: info.ModTime()})
	}

	next := make(map[string]*domain.ServiceDefinition, len(candidates))
	keep := make(map[string]bool)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			report.Err = err
			r.record(&report)
			return report
		}

		if r.limit > 0 && len(next)+len(keep) >= r.limit {
			report.Errors = append(report.Errors, classify(c.path, fmt.Errorf("%w (max %d)", ErrLimitReached, r.limit)))
			continue
		}

		prev, known := tracked[c.path]
		if known && !fresh && prev.Equal(c.modTime) {
			keep[c.path] = true
			report.Unchanged++
			continue
		}

		data, err := os.ReadFile(c.path)
		if err != nil {
			report.Errors = append(report.Errors, classify(c.path, fmt.Errorf("failed to read service file: %w", err)))
			continue
		}
		loaded, err := r.loader.LoadBytes(c.path, data, c.modTime)
		if err != nil {
			report.Errors = append(report.Errors, classify(c.path, err))
			continue
		}

		for _, w := range loaded.Warnings {
			report.Warnings = append(report.Warnings, FileWarning{Path: c.path, Message: w})
		}
		def := loaded.Definition
		next[c.path] = &def
		if known && !fresh {
			report.Updated++
		} else {
			report.Loaded++
		}
	}

	r.mu.Lock()
	for path := range keep {
		if def, ok := r.services[path]; ok {
			next[path] = def
		}
	}
	for path := range r.services {
		if _, ok := next[path]; !ok {
			report.Removed++
		}
	}
	r.services = next
	r.order = sortedKeys(next)
	r.mu.Unlock()

	r.record(&report)
	r.logReport(report)
	return report
}

func (r *Registry) record(report *ScanReport) {
	report.Duration = r.now().Sub(report.StartedAt)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.lastScan = report.StartedAt
	r.lastReport = *report
}

func (r *Registry) logReport(report ScanReport) {
	for _, fe := range report.Errors {
		r.log.Error("Service file skipped",
			logger.String("path", fe.Path),
			logger.String("kind", string(fe.Kind)),
			logger.Error(fe.Err),
		)
	}
	for _, w := range report.Warnings {
		r.log.Warn("Service file uses deprecated input",
			logger.String("path", w.Path),
			logger.String("warning", w.Message),
		)
	}
	r.log.Debug("Service scan complete",
		logger.String("dir", report.Dir),
		logger.Int("loaded", report.Loaded),
		logger.Int("updated", report.Updated),
		logger.Int("unchanged", report.Unchanged),
		logger.Int("removed", report.Removed),
		logger.Int("errors", len(report.Errors)),
		logger.Duration("duration", report.Duration),
	)
}

func sortedKeys(m map[string]*domain.ServiceDefinition) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ─────────────────────────────────────────────────────────────────
// Accessors
// ─────────────────────────────────────────────────────────────────

// Count returns the number of live services
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Get returns a copy of the i-th service in source path order.
func (r *Registry) Get(i int) (domain.ServiceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if i < 0 || i >= len(r.order) {
		return domain.ServiceDefinition{}, false
	}
	return *r.services[r.order[i]], true
}

// Lookup returns a copy of the service loaded from path.
func (r *Registry) Lookup(path string) (domain.ServiceDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	def, ok := r.services[path]
	if !ok {
		return domain.ServiceDefinition{}, false
	}
	return *def, true
}

// Services returns copies of every live service in source path order.
func (r *Registry) Services() []domain.ServiceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ServiceDefinition, 0, len(r.order))
	for _, path := range r.order {
		out = append(out, *r.services[path])
	}
	return out
}

// MarkRun advances the LastRunAt of the service at path. It never moves
// the marker backwards and reports false when the service is gone.
func (r *Registry) MarkRun(path string, t time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	def, ok := r.services[path]
	if !ok {
		return false
	}
	if t.After(def.LastRunAt) {
		def.LastRunAt = t
	}
	return true
}

// LastScan returns the start time of the most recent scan attempt
func (r *Registry) LastScan() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastScan
}

// LastReport returns the report of the most recent scan attempt
func (r *Registry) LastReport() ScanReport {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.lastReport
}
