// Package condition implements the closed trigger DSL:
//
//	always_true            (legacy: ALWAYS_TRUE)
//	no_activity(N)         (legacy: no_activity > Ns)
//	battery_level >= N
//
// Text is parsed into a small typed AST before evaluation.
package condition

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
)

var (
	ErrEmpty            = errors.New("condition is empty")
	ErrUnknownCondition = errors.New("unknown condition")
	ErrMalformed        = errors.New("malformed condition")
	ErrNegativeArgument = errors.New("negative threshold")
)

// Condition is a parsed DSL expression.
type Condition interface {
	String() string
	isCondition()
}

// AlwaysTrue is always met.
type AlwaysTrue struct{}

// NoActivityAtLeast is met once no activity has been recorded for Seconds.
type NoActivityAtLeast struct {
	Seconds int
}

// BatteryAtLeast is met while the battery level is at least Percent.
type BatteryAtLeast struct {
	Percent int
}

func (AlwaysTrue) String() string          { return "always_true" }
func (c NoActivityAtLeast) String() string { return fmt.Sprintf("no_activity(%d)", c.Seconds) }
func (c BatteryAtLeast) String() string    { return fmt.Sprintf("battery_level >= %d", c.Percent) }

func (AlwaysTrue) isCondition()        {}
func (NoActivityAtLeast) isCondition() {}
func (BatteryAtLeast) isCondition()    {}

var (
	noActivityCall   = regexp.MustCompile(`^no_activity\(\s*([+-]?\d+)\s*\)$`)
	noActivityLegacy = regexp.MustCompile(`^no_activity\s*>\s*([+-]?\d+)s$`)
	batteryAtLeast   = regexp.MustCompile(`^battery_level\s*>=\s*([+-]?\d+)$`)
)

// Parse turns condition text into a Condition. Errors wrap one of the
// package sentinels so callers can tell unknown forms from bad arguments.
func Parse(text string) (Condition, error) {
	src := strings.TrimSpace(text)
	if src == "" {
		return nil, ErrEmpty
	}

	switch src {
	case "always_true", "ALWAYS_TRUE":
		return AlwaysTrue{}, nil
	}

	if m := noActivityCall.FindStringSubmatch(src); m != nil {
		n, err := seconds(src, m[1])
		if err != nil {
			return nil, err
		}
		return NoActivityAtLeast{Seconds: n}, nil
	}
	if m := noActivityLegacy.FindStringSubmatch(src); m != nil {
		n, err := seconds(src, m[1])
		if err != nil {
			return nil, err
		}
		return NoActivityAtLeast{Seconds: n}, nil
	}
	if m := batteryAtLeast.FindStringSubmatch(src); m != nil {
		n, err := nonNegative(src, m[1])
		if err != nil {
			return nil, err
		}
		return BatteryAtLeast{Percent: n}, nil
	}

	if strings.HasPrefix(src, "no_activity") || strings.HasPrefix(src, "battery_level") {
		return nil, fmt.Errorf("%w: %q", ErrMalformed, src)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownCondition, src)
}

func nonNegative(src, digits string) (int, error) {
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("%w: %q: %v", ErrMalformed, src, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%w %d in %q", ErrNegativeArgument, n, src)
	}
	return n, nil
}

// seconds is nonNegative bounded by the largest duration the evaluator can
// compare against.
func seconds(src, digits string) (int, error) {
	n, err := nonNegative(src, digits)
	if err != nil {
		return 0, err
	}
	if int64(n) > domain.MaxSeconds {
		return 0, fmt.Errorf("%w: %q: exceeds %d seconds", ErrMalformed, src, domain.MaxSeconds)
	}
	return n, nil
}
