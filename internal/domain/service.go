package domain

import (
	"math"
	"time"
)

// DefaultIntervalSeconds applies when a service file omits its interval.
const DefaultIntervalSeconds = 60

// MaxSeconds is the largest second count a time.Duration can hold. Service
// intervals and idle thresholds above it are rejected.
const MaxSeconds = math.MaxInt64 / int64(time.Second)

// Seconds converts n seconds to a duration, saturating at the largest
// representable duration instead of wrapping negative.
func Seconds(n int64) time.Duration {
	switch {
	case n <= 0:
		return 0
	case n > MaxSeconds:
		return time.Duration(math.MaxInt64)
	default:
		return time.Duration(n) * time.Second
	}
}

// Input sources a service may declare. Informational only.
const (
	InputSystem = "system"
	InputSensor = "sensor"
	InputEvent  = "event"
)

// ServiceDefinition is a validated rule loaded from one file of the
// services directory.
//
// A ServiceDefinition is uniquely identified by its SourcePath.
type ServiceDefinition struct {
	// ─────────────────────────────
	// Identity (immutable)
	// ─────────────────────────────

	// Name is the human label from the document.
	Name string

	// SourcePath is the absolute path of the backing file.
	SourcePath string

	// ─────────────────────────────
	// Rule
	// ─────────────────────────────

	// Condition is the DSL source, e.g. "no_activity(300)".
	Condition string

	// IntervalSeconds gates how often the condition is checked.
	// 0 means the service is eligible on every tick.
	IntervalSeconds int

	// Input is the declared input source (system, sensor, event).
	Input string

	// Actions run in order when the condition is met.
	Actions []ActionSpec

	// ─────────────────────────────
	// Change detection & scheduling
	// ─────────────────────────────

	// LastModifiedAt is the file mtime observed when the file was loaded.
	LastModifiedAt time.Time

	// LastRunAt is the last time the interval gate fired.
	// The zero value means never.
	LastRunAt time.Time
}

// Interval returns IntervalSeconds as a duration.
func (s ServiceDefinition) Interval() time.Duration {
	return Seconds(int64(s.IntervalSeconds))
}

// Due reports whether the interval gate is open at now.
func (s ServiceDefinition) Due(now time.Time) bool {
	if s.IntervalSeconds == 0 || s.LastRunAt.IsZero() {
		return true
	}
	return !now.Before(s.LastRunAt.Add(s.Interval()))
}

// HasRun reports whether the interval gate ever fired for this definition.
func (s ServiceDefinition) HasRun() bool {
	return !s.LastRunAt.IsZero()
}
