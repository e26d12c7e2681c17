package engine

import "errors"

// Common domain errors used across engine subpackages.
// These errors should be checked using errors.Is().

var (
	// ErrValidation indicates a malformed workflow document or invalid step
	// definition. Surfaced to the caller before execution starts; no
	// execution row is written.
	ErrValidation = errors.New("workflow validation failed")

	// ErrTemplate indicates an unresolved {{var}} reference or a malformed
	// condition. Fails the step and aborts the workflow.
	ErrTemplate = errors.New("template error")

	// ErrTool indicates a tool server is disconnected, returned an error
	// payload, or a shell command exited non-zero. Retried if configured.
	ErrTool = errors.New("tool error")

	// ErrProtocol indicates a tool server spoke an unexpected message.
	// Fails the step and is never retried.
	ErrProtocol = errors.New("protocol error")

	// ErrProvider indicates the LLM provider is unavailable or returned an
	// error. Retried if configured.
	ErrProvider = errors.New("provider error")

	// ErrComposition indicates an unknown sub-workflow or a circular
	// dependency. Fails the step and is never retried.
	ErrComposition = errors.New("composition error")

	// ErrTimeout indicates the workflow wall-clock bound was exceeded.
	ErrTimeout = errors.New("workflow timed out")

	// ErrCancelled indicates explicit cancellation. Terminal.
	ErrCancelled = errors.New("execution cancelled")

	// ErrStorage indicates a backing store I/O failure. Propagated upward;
	// the executor does not swallow these.
	ErrStorage = errors.New("storage error")

	// ErrNotFound indicates a requested record (execution, context, workflow)
	// was not found. Wrapping errors should name what was missing.
	ErrNotFound = errors.New("not found")
)

// IsRetryable reports whether a step failure of this kind may be retried
// under a step retry policy. Only tool and provider failures are transient;
// everything else is deterministic and retrying would not help.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTool) || errors.Is(err, ErrProvider)
}
