// Package sandbox provides the Runtime interface for isolated task
// execution backends.
package sandbox

import (
	"context"
	"io"
)

// Runtime acquires sandbox instances for task execution.
// Implementations include Docker containers and raw process execution.
type Runtime interface {
	// Acquire creates and starts a sandbox for one task. The returned
	// instance is exclusively owned by the calling worker.
	Acquire(ctx context.Context, opts Options) (Instance, error)
}

// Options contains the parameters for starting a sandbox.
type Options struct {
	Image   string
	Command []string
	Env     map[string]string

	// WorkspaceDir is the task's working directory on the host. It is
	// mounted into the sandbox so result artifacts land under it.
	WorkspaceDir string
}

// Instance represents one running sandbox, owned by exactly one task.
type Instance interface {
	// Wait blocks until the sandbox exits and returns the exit result.
	Wait(ctx context.Context) (ExitResult, error)

	// Logs returns a follow reader over the sandbox's stdout/stderr.
	Logs(ctx context.Context) (io.ReadCloser, error)

	// Stop terminates the sandbox with a short grace period.
	Stop(ctx context.Context) error

	// ForceRemove destroys the sandbox and its resources. It is called
	// unconditionally from the cleanup phase and must be safe when the
	// sandbox already exited.
	ForceRemove(ctx context.Context) error
}

// ExitResult is the observed outcome of a sandbox run.
type ExitResult struct {
	ExitCode int
	Error    error
}

// WorkspaceMount is where the host workspace directory appears inside the
// sandbox.
const WorkspaceMount = "/workspace"
