package condition

import (
	"fmt"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/sysinfo"
)

// Result is the three-valued outcome of an evaluation. Err is set only when
// Outcome is domain.OutcomeError.
type Result struct {
	Outcome domain.Outcome
	Reason  string
	Err     error
}

func (r Result) Met() bool { return r.Outcome == domain.OutcomeMet }

func met(format string, args ...any) Result {
	return Result{Outcome: domain.OutcomeMet, Reason: fmt.Sprintf(format, args...)}
}

func notMet(format string, args ...any) Result {
	return Result{Outcome: domain.OutcomeNotMet, Reason: fmt.Sprintf(format, args...)}
}

func failed(err error) Result {
	return Result{Outcome: domain.OutcomeError, Reason: err.Error(), Err: err}
}

// Evaluate checks a parsed condition against the activity clock and a
// system snapshot taken at snap.Now.
func Evaluate(c Condition, clock activity.Clock, snap sysinfo.Snapshot) Result {
	switch c := c.(type) {
	case AlwaysTrue:
		return met("always true")

	case NoActivityAtLeast:
		idle, ok := activity.IdleFor(clock, snap.Now)
		if !ok {
			return met("no activity recorded yet")
		}
		threshold := domain.Seconds(int64(c.Seconds))
		if idle >= threshold {
			return met("idle for %s (threshold %s)", idle.Truncate(time.Second), threshold)
		}
		return notMet("idle for %s (threshold %s)", idle.Truncate(time.Second), threshold)

	case BatteryAtLeast:
		if snap.BatteryLevel >= c.Percent {
			return met("battery at %d%% (threshold %d%%)", snap.BatteryLevel, c.Percent)
		}
		return notMet("battery at %d%% (threshold %d%%)", snap.BatteryLevel, c.Percent)

	default:
		return failed(fmt.Errorf("%w: unsupported node %T", ErrUnknownCondition, c))
	}
}

// EvaluateText parses then evaluates. Parse failures become an Error outcome.
func EvaluateText(text string, clock activity.Clock, snap sysinfo.Snapshot) Result {
	c, err := Parse(text)
	if err != nil {
		return failed(err)
	}
	return Evaluate(c, clock, snap)
}
