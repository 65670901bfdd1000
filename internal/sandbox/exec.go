package sandbox

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"
)

// ExecRuntime implements the Runtime interface using raw OS processes.
// It offers no isolation and exists for development and tests, where a
// Docker daemon is not available.
type ExecRuntime struct{}

// NewExecRuntime creates a new process-based runtime.
func NewExecRuntime() *ExecRuntime {
	return &ExecRuntime{}
}

// Acquire implements Runtime.Acquire using os/exec. The image is ignored;
// the command runs directly in the workspace directory.
func (e *ExecRuntime) Acquire(ctx context.Context, opts Options) (Instance, error) {
	if len(opts.Command) == 0 {
		return nil, fmt.Errorf("exec runtime requires a command")
	}

	cmd := exec.Command(opts.Command[0], opts.Command[1:]...)
	cmd.Dir = opts.WorkspaceDir
	cmd.Env = os.Environ()
	for k, v := range opts.Env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start process: %w", err)
	}

	inst := &ExecInstance{
		cmd:    cmd,
		output: stdout,
		done:   make(chan struct{}),
	}
	go inst.reap()
	return inst, nil
}

// ExecInstance represents a running process.
type ExecInstance struct {
	cmd    *exec.Cmd
	output io.ReadCloser

	done     chan struct{}
	exitCode int
	waitErr  error
}

func (h *ExecInstance) reap() {
	err := h.cmd.Wait()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		h.exitCode = exitErr.ExitCode()
	} else if err != nil {
		h.exitCode = -1
		h.waitErr = err
	}
	close(h.done)
}

func (h *ExecInstance) Wait(ctx context.Context) (ExitResult, error) {
	select {
	case <-h.done:
		return ExitResult{ExitCode: h.exitCode, Error: h.waitErr}, h.waitErr
	case <-ctx.Done():
		return ExitResult{ExitCode: -1, Error: ctx.Err()}, ctx.Err()
	}
}

func (h *ExecInstance) Logs(ctx context.Context) (io.ReadCloser, error) {
	return h.output, nil
}

func (h *ExecInstance) Stop(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Signal(syscall.SIGTERM)
}

// ForceRemove kills the process if it is still alive. Safe after exit.
func (h *ExecInstance) ForceRemove(ctx context.Context) error {
	if h.cmd.Process == nil {
		return nil
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	err := h.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
