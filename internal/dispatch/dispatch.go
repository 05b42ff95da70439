// Package dispatch runs service actions through a registry of handlers
// keyed by action kind.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/activity"
	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

// Policy describes how a handler relates to the calling goroutine.
type Policy string

const (
	// PolicyInline runs in-process and returns when done.
	PolicyInline Policy = "inline"
	// PolicyDetached spawns a process and returns without waiting for it.
	PolicyDetached Policy = "detached"
	// PolicyWaitAndCapture spawns a process, captures its output and waits.
	PolicyWaitAndCapture Policy = "wait_and_capture"
)

// Request is one action of one service.
type Request struct {
	Service    string
	SourcePath string
	Action     domain.ActionSpec
}

// Handler executes one action kind.
type Handler interface {
	Kind() domain.ActionKind
	Policy() Policy
	Run(ctx context.Context, req Request) domain.ActionResult
}

// Options bound the resources a single action may use.
type Options struct {
	ShellTimeout time.Duration
	OutputLimit  int // bytes of captured output per action
	ListLimit    int // entries per list_files action
}

// Dispatcher routes actions to handlers and isolates their failures.
type Dispatcher struct {
	handlers map[domain.ActionKind]Handler
	recorder activity.Recorder
	log      logger.Logger
	now      func() time.Time
}

// New creates a dispatcher with every built-in handler registered.
// publisher may be nil.
func New(opts Options, recorder activity.Recorder, publisher Publisher, log logger.Logger) *Dispatcher {
	d := &Dispatcher{
		handlers: make(map[domain.ActionKind]Handler),
		recorder: recorder,
		log:      log,
		now:      time.Now,
	}

	d.Register(&notifyHandler{publisher: publisher, log: log.Named("notify"), now: time.Now})
	d.Register(&mkdirHandler{})
	d.Register(&listFilesHandler{entryLimit: opts.ListLimit, byteLimit: opts.OutputLimit, log: log.Named("list_files")})
	d.Register(&runCommandHandler{log: log.Named("run_command")})
	d.Register(&shellHandler{timeout: opts.ShellTimeout, byteLimit: opts.OutputLimit, log: log.Named("shell")})

	return d
}

// WithClock replaces the time source used for durations and recorded
// activity.
func (d *Dispatcher) WithClock(now func() time.Time) *Dispatcher {
	d.now = now
	return d
}

// Register adds or replaces the handler for h.Kind().
func (d *Dispatcher) Register(h Handler) {
	d.handlers[h.Kind()] = h
}

// Handler returns the handler registered for kind.
func (d *Dispatcher) Handler(kind domain.ActionKind) (Handler, bool) {
	h, ok := d.handlers[kind]
	return h, ok
}

// Dispatch runs one action. It never panics on unknown kinds; the failure
// is reported in the result.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (res domain.ActionResult) {
	start := d.now()
	kind := req.Action.Kind

	defer func() {
		if r := recover(); r != nil {
			res = failure(kind, "", fmt.Errorf("handler panic: %v", r))
		}
		res.Duration = d.now().Sub(start)
		d.logResult(req, res)
	}()

	h, ok := d.handlers[kind]
	if !ok {
		return failure(kind, "", fmt.Errorf("unknown action kind %q", kind))
	}

	res = h.Run(ctx, req)
	res.Kind = kind
	res.Policy = string(h.Policy())
	if res.OK && d.recorder != nil {
		d.recorder.Record(d.now())
	}
	return res
}

// RunAll dispatches every action of svc in order. A failed action never
// prevents the following ones from running.
func (d *Dispatcher) RunAll(ctx context.Context, svc domain.ServiceDefinition) []domain.ActionResult {
	results := make([]domain.ActionResult, 0, len(svc.Actions))
	for _, action := range svc.Actions {
		results = append(results, d.Dispatch(ctx, Request{
			Service:    svc.Name,
			SourcePath: svc.SourcePath,
			Action:     action,
		}))
	}
	return results
}

func (d *Dispatcher) logResult(req Request, res domain.ActionResult) {
	fields := []logger.Field{
		logger.String("service", req.Service),
		logger.String("action", string(res.Kind)),
		logger.String("policy", res.Policy),
		logger.Duration("duration", res.Duration),
	}
	if res.PID != 0 {
		fields = append(fields, logger.Int("pid", res.PID))
	}
	if res.OK {
		d.log.Debug("Action completed", fields...)
		return
	}
	fields = append(fields, logger.Int("exit_code", res.ExitCode), logger.String("error", res.Error))
	if res.Signal != "" {
		fields = append(fields, logger.String("signal", res.Signal))
	}
	d.log.Error("Action failed", fields...)
}

func failure(kind domain.ActionKind, policy Policy, err error) domain.ActionResult {
	return domain.ActionResult{
		Kind:     kind,
		Policy:   string(policy),
		ExitCode: -1,
		Error:    err.Error(),
	}
}
