package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

// Notification is what a notify action emits.
type Notification struct {
	Service string    `json:"service"`
	Source  string    `json:"source"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// Publisher forwards notifications outside the process.
type Publisher interface {
	PublishNotification(ctx context.Context, n Notification) error
}

// ─────────────────────────────────────────────────────────────────
// notify
// ─────────────────────────────────────────────────────────────────

type notifyHandler struct {
	publisher Publisher
	log       logger.Logger
	now       func() time.Time
}

func (h *notifyHandler) Kind() domain.ActionKind { return domain.ActionNotify }
func (h *notifyHandler) Policy() Policy          { return PolicyInline }

func (h *notifyHandler) Run(ctx context.Context, req Request) domain.ActionResult {
	if req.Action.Message == "" {
		return failure(h.Kind(), h.Policy(), errors.New("notify requires message"))
	}

	h.log.Info(req.Action.Message, logger.String("service", req.Service))

	if h.publisher != nil {
		n := Notification{
			Service: req.Service,
			Source:  req.SourcePath,
			Message: req.Action.Message,
			At:      h.now(),
		}
		// Best-effort: the log line above is the notification of record.
		if err := h.publisher.PublishNotification(ctx, n); err != nil {
			h.log.Warn("Failed to publish notification", logger.String("service", req.Service), logger.Error(err))
		}
	}

	return domain.ActionResult{OK: true, Output: []string{req.Action.Message}}
}

// ─────────────────────────────────────────────────────────────────
// mkdir
// ─────────────────────────────────────────────────────────────────

type mkdirHandler struct{}

func (h *mkdirHandler) Kind() domain.ActionKind { return domain.ActionMkdir }
func (h *mkdirHandler) Policy() Policy          { return PolicyInline }

func (h *mkdirHandler) Run(_ context.Context, req Request) domain.ActionResult {
	path := req.Action.Path
	if path == "" {
		return failure(h.Kind(), h.Policy(), errors.New("mkdir requires path"))
	}

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return failure(h.Kind(), h.Policy(), fmt.Errorf("%s exists and is not a directory", path))
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return failure(h.Kind(), h.Policy(), fmt.Errorf("failed to create directory: %w", err))
	}
	return domain.ActionResult{OK: true}
}

// ─────────────────────────────────────────────────────────────────
// list_files
// ─────────────────────────────────────────────────────────────────

const listBatch = 256

type listFilesHandler struct {
	entryLimit int
	byteLimit  int
	log        logger.Logger
}

func (h *listFilesHandler) Kind() domain.ActionKind { return domain.ActionListFiles }
func (h *listFilesHandler) Policy() Policy          { return PolicyInline }

func (h *listFilesHandler) Run(ctx context.Context, req Request) domain.ActionResult {
	path := req.Action.Path
	if path == "" {
		path = "/"
	}

	dir, err := os.Open(path)
	if err != nil {
		return failure(h.Kind(), h.Policy(), fmt.Errorf("failed to open directory: %w", err))
	}
	defer func() { _ = dir.Close() }()

	out := newCapture(h.byteLimit)
	count := 0

	for !out.truncated {
		if err := ctx.Err(); err != nil {
			return failure(h.Kind(), h.Policy(), err)
		}

		entries, err := dir.ReadDir(listBatch)
		for _, e := range entries {
			if h.entryLimit > 0 && count >= h.entryLimit {
				out.truncated = true
				break
			}
			name := e.Name()
			if e.IsDir() {
				name += "/"
			}
			if !out.add(name) {
				break
			}
			count++
			h.log.Info(name, logger.String("service", req.Service), logger.String("path", path))
		}

		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return failure(h.Kind(), h.Policy(), fmt.Errorf("failed to list directory: %w", err))
		}
	}

	if out.truncated {
		h.log.Warn(TruncatedMarker, logger.String("service", req.Service), logger.Int("entries", count))
	}
	return domain.ActionResult{OK: true, Output: out.output(), Truncated: out.truncated}
}
