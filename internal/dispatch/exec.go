package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"github.com/MrSnakeDoc/whiterails/internal/domain"
	"github.com/MrSnakeDoc/whiterails/internal/logger"
)

// waitDelay bounds how long Wait keeps reading output after the shell
// exits while a background grandchild still holds the pipe.
const waitDelay = 2 * time.Second

// ─────────────────────────────────────────────────────────────────
// run_command
// ─────────────────────────────────────────────────────────────────

type runCommandHandler struct {
	log logger.Logger
}

func (h *runCommandHandler) Kind() domain.ActionKind { return domain.ActionRunCommand }
func (h *runCommandHandler) Policy() Policy          { return PolicyDetached }

// Run starts the command in a new session and returns without waiting.
// The child is deliberately not tied to ctx so it outlives the tick.
func (h *runCommandHandler) Run(_ context.Context, req Request) domain.ActionResult {
	command := req.Action.Command
	if command == "" {
		return failure(h.Kind(), h.Policy(), errors.New("run_command requires command"))
	}

	cmd := exec.Command("sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return failure(h.Kind(), h.Policy(), fmt.Errorf("failed to start command: %w", err))
	}

	pid := cmd.Process.Pid
	log := h.log.With(logger.String("service", req.Service), logger.Int("pid", pid))
	log.Info("Detached command started", logger.String("command", command))

	go func() {
		status := describeExit(cmd.Wait(), cmd)
		if status.err != nil {
			log.Warn("Detached command exited", logger.Int("exit_code", status.code), logger.String("signal", status.signal), logger.Error(status.err))
			return
		}
		log.Info("Detached command exited", logger.Int("exit_code", 0))
	}()

	return domain.ActionResult{OK: true, PID: pid}
}

// ─────────────────────────────────────────────────────────────────
// shell
// ─────────────────────────────────────────────────────────────────

type shellHandler struct {
	timeout   time.Duration
	byteLimit int
	log       logger.Logger
}

func (h *shellHandler) Kind() domain.ActionKind { return domain.ActionShell }
func (h *shellHandler) Policy() Policy          { return PolicyWaitAndCapture }

// Run executes the command in its own process group, captures combined
// output line by line and waits for it to exit. On timeout or cancellation
// the whole group is killed.
func (h *shellHandler) Run(ctx context.Context, req Request) domain.ActionResult {
	command := req.Action.ShellCommand()
	if command == "" {
		return failure(h.Kind(), h.Policy(), errors.New("shell requires cmd or command"))
	}

	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	log := h.log.With(logger.String("service", req.Service))
	out := &lineWriter{
		buf: newCapture(h.byteLimit),
		onLine: func(line string) {
			log.Debug(line)
		},
	}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Start(); err != nil {
		return failure(h.Kind(), h.Policy(), fmt.Errorf("failed to start shell: %w", err))
	}
	pid := cmd.Process.Pid

	waitErr := cmd.Wait()
	out.flush()

	res := domain.ActionResult{
		PID:       pid,
		Output:    out.buf.output(),
		Truncated: out.buf.truncated,
	}

	status := describeExit(waitErr, cmd)
	res.ExitCode = status.code
	res.Signal = status.signal

	switch {
	case ctx.Err() != nil && status.err != nil:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			res.Error = fmt.Sprintf("timed out after %s: %v", h.timeout, status.err)
		} else {
			res.Error = fmt.Sprintf("canceled: %v", status.err)
		}
	case status.err != nil:
		res.Error = status.err.Error()
	default:
		res.OK = true
	}
	return res
}

type exitStatus struct {
	code   int
	signal string
	err    error
}

// describeExit turns the result of cmd.Wait into an exit code or the
// signal that terminated the process.
func describeExit(waitErr error, cmd *exec.Cmd) exitStatus {
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		// The shell exited but a background child kept the pipe open;
		// the shell's own status is what counts.
		waitErr = nil
	}

	state := cmd.ProcessState
	if state == nil {
		if waitErr == nil {
			waitErr = errors.New("process state unavailable")
		}
		return exitStatus{code: -1, err: waitErr}
	}

	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := ws.Signal()
		return exitStatus{code: -1, signal: sig.String(), err: fmt.Errorf("killed by signal %s", sig)}
	}

	code := state.ExitCode()
	if code != 0 {
		return exitStatus{code: code, err: fmt.Errorf("exit status %d", code)}
	}
	if waitErr != nil {
		return exitStatus{code: code, err: waitErr}
	}
	return exitStatus{code: 0}
}
