package machine

import (
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

// Handle identifies a run inside the engine.
type Handle uint64

// EventKind is the kind of the engine notification.
type EventKind int

const (
	// Ready : the engine allocated the resources and the run is copying.
	// Err is set when the allocation failed.
	Ready EventKind = iota
	// Completed : the run finished, Err is set when it failed.
	Completed
	// Quiesced : the run is paused at a checkpoint.
	Quiesced
	// Aborted : the run is unwound and its resources are released.
	Aborted
)

func (k EventKind) String() string {
	switch k {
	case Ready:
		return "ready"
	case Completed:
		return "completed"
	case Quiesced:
		return "quiesced"
	case Aborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Event is an asynchronous notification of the engine.
type Event struct {
	Kind EventKind
	Err  error
}

// Notifier receives the notifications of one run.
// Notify never blocks and may be called from any goroutine,
// including from inside an engine call.
type Notifier interface {
	Notify(e Event)
}

// Engine is the copy machine engine which does the real repair or
// rebalance work. None of its methods may block on data movement:
// the outcome of the requests is reported through the Notifier.
type Engine interface {
	// Start begins a run. The returned handle is valid until Release.
	// An error means the run could not be allocated.
	Start(t machine.Type, p machine.Params, n Notifier) (Handle, error)
	// RequestQuiesce asks the run to pause at the next checkpoint.
	RequestQuiesce(h Handle) error
	// RequestAbort asks the run to unwind.
	RequestAbort(h Handle) error
	// SnapshotProgress reads the progress counters without stopping the run.
	SnapshotProgress(h Handle) (machine.Progress, error)
	// Release forgets the run. Called once the run is terminated.
	Release(h Handle)
}
