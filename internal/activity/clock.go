// Package activity holds the "time of last recorded activity" that
// no_activity conditions are evaluated against.
package activity

import (
	"sync/atomic"
	"time"
)

// Clock is read by the condition evaluator.
type Clock interface {
	// Last returns the last recorded activity and whether any was ever recorded.
	Last() (time.Time, bool)
}

// Recorder is written by action handlers and the scheduler.
type Recorder interface {
	Record(t time.Time)
}

// Store is a single-timestamp Clock and Recorder safe for concurrent use.
// Writes are last-writer-wins ordered by wall clock: an older timestamp
// never replaces a newer one.
type Store struct {
	nanos atomic.Int64 // 0 = never recorded
}

// NewStore returns a store with no recorded activity.
func NewStore() *Store {
	return &Store{}
}

// NewStoreAt returns a store whose last activity is t.
func NewStoreAt(t time.Time) *Store {
	s := &Store{}
	s.Record(t)
	return s
}

func (s *Store) Record(t time.Time) {
	n := t.UnixNano()
	if n <= 0 {
		return
	}
	for {
		cur := s.nanos.Load()
		if cur >= n {
			return
		}
		if s.nanos.CompareAndSwap(cur, n) {
			return
		}
	}
}

func (s *Store) Last() (time.Time, bool) {
	n := s.nanos.Load()
	if n == 0 {
		return time.Time{}, false
	}
	return time.Unix(0, n), true
}

// IdleFor returns how long it has been since the last activity at now.
// ok is false when no activity was ever recorded.
func IdleFor(c Clock, now time.Time) (idle time.Duration, ok bool) {
	last, ok := c.Last()
	if !ok {
		return 0, false
	}
	return now.Sub(last), true
}
