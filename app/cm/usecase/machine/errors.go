package machine

import "github.com/pkg/errors"

var (
	// ErrUnknownInstance means no instance of the type exists on the node.
	ErrUnknownInstance = errors.New("unknown copy machine instance")
	// ErrInstanceExists means an instance of the type is already created.
	ErrInstanceExists = errors.New("copy machine instance already exists")
	// ErrAlreadyRunning means a conflicting run owns the instance.
	ErrAlreadyRunning = errors.New("copy machine is already running")
	// ErrNotRunning means there is no run to act on.
	ErrNotRunning = errors.New("copy machine is not running")
	// ErrInstanceFailed means the previous run failed; abort resets it.
	ErrInstanceFailed = errors.New("copy machine failed, abort to reset")
	// ErrEngine wraps the faults reported by the engine.
	ErrEngine = errors.New("copy machine engine fault")
	// ErrAborted means the run was aborted before the trigger completed.
	ErrAborted = errors.New("copy machine run aborted")
	// ErrShutdown means the node is shutting down.
	ErrShutdown = errors.New("copy machine is shutting down")
)
