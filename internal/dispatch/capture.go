package dispatch

import (
	"bytes"
	"sync"
)

// TruncatedMarker is appended to captured output that hit its cap.
const TruncatedMarker = "... output truncated"

// capture collects lines up to a byte budget. A limit <= 0 disables the cap.
type capture struct {
	limit     int
	size      int
	lines     []string
	truncated bool
}

func newCapture(limit int) *capture {
	return &capture{limit: limit}
}

// add stores line and reports whether there is room for more.
func (c *capture) add(line string) bool {
	if c.truncated {
		return false
	}
	if c.limit > 0 && c.size+len(line) > c.limit {
		c.truncated = true
		return false
	}
	c.size += len(line)
	c.lines = append(c.lines, line)
	return true
}

// output returns the captured lines, with the marker when truncated.
func (c *capture) output() []string {
	if !c.truncated {
		return c.lines
	}
	return append(c.lines, TruncatedMarker)
}

// lineWriter splits a byte stream into lines and feeds them to a capture.
// It is used as both Stdout and Stderr of a child so it serializes writes.
type lineWriter struct {
	mu      sync.Mutex
	buf     *capture
	partial []byte
	onLine  func(string)
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial = append(w.partial, p...)
	for {
		i := bytes.IndexByte(w.partial, '\n')
		if i < 0 {
			break
		}
		w.emit(string(bytes.TrimSuffix(w.partial[:i], []byte("\r"))))
		w.partial = w.partial[i+1:]
	}

	// A line longer than the whole budget is flushed as-is so the pending
	// buffer stays bounded.
	if w.buf.limit > 0 && len(w.partial) > w.buf.limit {
		w.emit(string(w.partial))
		w.partial = w.partial[:0]
	}
	return len(p), nil
}

// flush emits a trailing line without newline.
func (w *lineWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.partial) > 0 {
		w.emit(string(w.partial))
		w.partial = nil
	}
}

func (w *lineWriter) emit(line string) {
	if w.buf.add(line) && w.onLine != nil {
		w.onLine(line)
	}
}
