package machine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/chanyoung/copymachine/pkg/util/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Result is the outcome of a transition.
type Result struct {
	Err   error
	RunID string
	State machine.State
	// Pending is set when the transition completes asynchronously;
	// the waiter is woken with the final result.
	Pending bool
}

// Waiter is a suspended execution waiting for the engine.
// Wake must not block.
type Waiter interface {
	Wake(r Result)
}

// Instance is the copy machine of one type on the node.
// Transitions are serialized by the transition lock; the published view
// is read without it.
type Instance struct {
	typ      machine.Type
	engine   Engine
	events   *eventQueue
	observer Observer

	// Guarded by mu, the transition lock.
	state        machine.State
	params       machine.Params
	runID        string
	node         string
	handle       Handle
	live         bool
	gen          uint64
	abortPending bool
	waiters      []Waiter
	lastErr      string
	final        machine.Progress
	scheduledAt  time.Time
	finishedAt   time.Time
	closed       bool

	// prev is restored when the engine can't allocate a new run.
	prev snapshot

	mu   sync.Mutex
	view atomic.Value
}

// snapshot is the part of the instance a new run overwrites.
type snapshot struct {
	state       machine.State
	params      machine.Params
	runID       string
	node        string
	handle      Handle
	lastErr     string
	final       machine.Progress
	scheduledAt time.Time
	finishedAt  time.Time
}

func newInstance(t machine.Type, e Engine, q *eventQueue, o Observer) *Instance {
	i := &Instance{
		typ:      t,
		engine:   e,
		events:   q,
		observer: o,
		state:    machine.Idle,
		waiters:  make([]Waiter, 0),
	}
	i.view.Store(&View{Type: t, State: machine.Idle})
	return i
}

// Type returns the machine type of the instance.
func (i *Instance) Type() machine.Type { return i.typ }

// View returns the latest published view. It never waits for a transition.
func (i *Instance) View() *View {
	return i.view.Load().(*View)
}

// publish stores a new view, caller must hold mu.
func (i *Instance) publish() {
	v := &View{
		Type:        i.typ,
		State:       i.state,
		RunID:       i.runID,
		Params:      i.params.Clone(),
		Node:        i.node,
		Handle:      i.handle,
		Live:        i.live,
		Final:       i.final,
		LastError:   i.lastErr,
		ScheduledAt: i.scheduledAt,
		FinishedAt:  i.finishedAt,
	}
	i.view.Store(v)
	i.observer.Observe(*v)
}

func (i *Instance) logger(method string) *logrus.Entry {
	return mlog.GetMethodLogger(logger, method).WithFields(logrus.Fields{
		"type":  i.typ,
		"run":   i.runID,
		"state": i.state,
	})
}

// Trigger starts a new run with the parameters. A retried trigger with
// the same parameters as the current run succeeds with the current run;
// different parameters fail with ErrAlreadyRunning.
func (i *Instance) Trigger(p machine.Params, node string, w Waiter) Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.closed {
		return Result{Err: ErrShutdown, State: i.state}
	}

	switch i.state {
	case machine.Idle, machine.Stopped:
		return i.start(p, node, w)

	case machine.Preparing:
		if !i.params.Equal(p) {
			return Result{Err: errors.Wrapf(ErrAlreadyRunning, "run %s", i.runID), RunID: i.runID, State: i.state}
		}
		// Retried while the engine still prepares; answer together.
		i.waiters = append(i.waiters, w)
		return Result{Pending: true, RunID: i.runID, State: i.state}

	case machine.Running, machine.Quiescing, machine.Quiesced:
		if !i.params.Equal(p) {
			return Result{Err: errors.Wrapf(ErrAlreadyRunning, "run %s", i.runID), RunID: i.runID, State: i.state}
		}
		return Result{RunID: i.runID, State: i.state}

	case machine.Aborting:
		return Result{Err: errors.Wrapf(ErrAlreadyRunning, "run %s is aborting", i.runID), RunID: i.runID, State: i.state}

	default:
		return Result{Err: errors.Wrapf(ErrInstanceFailed, "run %s: %s", i.runID, i.lastErr), RunID: i.runID, State: i.state}
	}
}

// start allocates a new run, caller must hold mu.
func (i *Instance) start(p machine.Params, node string, w Waiter) Result {
	i.prev = snapshot{
		state:       i.state,
		params:      i.params,
		runID:       i.runID,
		node:        i.node,
		handle:      i.handle,
		lastErr:     i.lastErr,
		final:       i.final,
		scheduledAt: i.scheduledAt,
		finishedAt:  i.finishedAt,
	}

	i.gen++
	n := &runNotifier{inst: i, gen: i.gen, q: i.events}
	h, err := i.engine.Start(i.typ, p.Clone(), n)
	if err != nil {
		i.logger("Instance.Trigger").Warnf("engine failed to allocate a run: %v", err)
		return Result{Err: errors.Wrap(ErrEngine, err.Error()), RunID: i.runID, State: i.state}
	}

	i.state = machine.Preparing
	i.params = p.Clone()
	i.runID = uuid.Gen()
	i.node = node
	i.handle = h
	i.live = true
	i.abortPending = false
	i.lastErr = ""
	i.final = machine.Progress{}
	i.scheduledAt = time.Now()
	i.finishedAt = time.Time{}
	i.waiters = append(i.waiters[:0], w)
	i.publish()

	i.logger("Instance.Trigger").Info("preparing a new run")
	return Result{Pending: true, RunID: i.runID, State: i.state}
}

// Quiesce asks the running run to pause. Quiescing a quiesced or
// quiescing run is a no-op.
func (i *Instance) Quiesce() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.state {
	case machine.Running:
		if err := i.engine.RequestQuiesce(i.handle); err != nil {
			return Result{Err: errors.Wrap(ErrEngine, err.Error()), RunID: i.runID, State: i.state}
		}
		i.state = machine.Quiescing
		i.publish()
		i.logger("Instance.Quiesce").Info("quiescing")
		return Result{RunID: i.runID, State: i.state}

	case machine.Quiescing, machine.Quiesced:
		return Result{RunID: i.runID, State: i.state}

	default:
		return Result{Err: errors.Wrapf(ErrNotRunning, "state %s", i.state), RunID: i.runID, State: i.state}
	}
}

// Abort asks the run to unwind. It is effective while the run is still
// preparing; aborting a stopped or idle instance is a no-op and aborting
// a failed instance resets it.
func (i *Instance) Abort() Result {
	i.mu.Lock()
	defer i.mu.Unlock()

	switch i.state {
	case machine.Running, machine.Quiescing, machine.Quiesced:
		if err := i.engine.RequestAbort(i.handle); err != nil {
			return Result{Err: errors.Wrap(ErrEngine, err.Error()), RunID: i.runID, State: i.state}
		}
		i.state = machine.Aborting
		i.publish()
		i.logger("Instance.Abort").Info("aborting")
		return Result{RunID: i.runID, State: i.state}

	case machine.Preparing:
		// The engine is asked once it reports the run ready.
		i.abortPending = true
		i.state = machine.Aborting
		i.publish()
		i.logger("Instance.Abort").Info("abort pending on preparation")
		return Result{RunID: i.runID, State: i.state}

	case machine.Failed:
		i.state = machine.Stopped
		i.publish()
		i.logger("Instance.Abort").Info("failed run is reset")
		return Result{RunID: i.runID, State: i.state}

	default:
		return Result{RunID: i.runID, State: i.state}
	}
}

// handleEvent applies the engine event of the run generation.
func (i *Instance) handleEvent(gen uint64, e Event) {
	i.mu.Lock()

	if gen != i.gen || !i.live {
		i.logger("Instance.handleEvent").Debugf("drop stale %s event of generation %d", e.Kind, gen)
		i.mu.Unlock()
		return
	}

	var (
		wake   []Waiter
		result Result
	)

	switch e.Kind {
	case Ready:
		if i.state != machine.Preparing && !(i.state == machine.Aborting && i.abortPending) {
			break
		}
		wake, i.waiters = i.waiters, make([]Waiter, 0)

		if e.Err != nil {
			result = Result{Err: errors.Wrap(ErrEngine, e.Err.Error()), RunID: i.runID}
			i.engine.Release(i.handle)
			i.live = false
			i.recordUnstarted(e.Err)
			i.rollback()
			result.State = i.state
			i.logger("Instance.handleEvent").Warnf("engine failed to prepare the run: %v", e.Err)
			break
		}

		if i.abortPending {
			// Abort wins over the trigger which is still waiting.
			i.abortPending = false
			if err := i.engine.RequestAbort(i.handle); err != nil {
				// Nothing would report the end of the run.
				i.logger("Instance.handleEvent").Errorf("pending abort failed, release the run: %v", err)
				i.terminate(machine.Stopped, "")
			}
			result = Result{Err: errors.Wrapf(ErrAborted, "run %s", i.runID), RunID: i.runID, State: i.state}
			break
		}

		i.state = machine.Running
		result = Result{RunID: i.runID, State: i.state}
		i.logger("Instance.handleEvent").Info("run started")

	case Quiesced:
		if i.state == machine.Quiescing {
			i.state = machine.Quiesced
			i.logger("Instance.handleEvent").Info("run quiesced")
		}

	case Aborted:
		i.terminate(machine.Stopped, "")
		wake, i.waiters = i.waiters, make([]Waiter, 0)
		result = Result{Err: errors.Wrapf(ErrAborted, "run %s", i.runID), RunID: i.runID, State: i.state}

	case Completed:
		wake, i.waiters = i.waiters, make([]Waiter, 0)
		if i.state == machine.Aborting {
			// The acknowledged abort wins over the outcome of the run.
			if e.Err != nil {
				i.logger("Instance.handleEvent").Warnf("aborted run ended with: %v", e.Err)
			}
			i.terminate(machine.Stopped, "")
			result = Result{Err: errors.Wrapf(ErrAborted, "run %s", i.runID), RunID: i.runID, State: i.state}
		} else if e.Err != nil {
			i.terminate(machine.Failed, e.Err.Error())
			result = Result{Err: errors.Wrap(ErrEngine, e.Err.Error()), RunID: i.runID, State: i.state}
			i.logger("Instance.handleEvent").Errorf("run failed: %v", e.Err)
		} else {
			i.terminate(machine.Stopped, "")
			result = Result{RunID: i.runID, State: i.state}
			i.logger("Instance.handleEvent").Info("run completed")
		}
	}

	i.publish()
	i.mu.Unlock()

	for _, w := range wake {
		w.Wake(result)
	}
}

// terminate ends the live run, caller must hold mu.
func (i *Instance) terminate(state machine.State, lastErr string) {
	if p, err := i.engine.SnapshotProgress(i.handle); err == nil {
		i.final = p
	}
	i.engine.Release(i.handle)

	i.live = false
	i.abortPending = false
	i.state = state
	i.finishedAt = time.Now()
	if lastErr != "" {
		i.lastErr = lastErr
	}
}

// recordUnstarted closes the record of a run the engine could not
// prepare. The published view is left to rollback.
func (i *Instance) recordUnstarted(err error) {
	i.observer.Observe(View{
		Type:        i.typ,
		State:       machine.Failed,
		RunID:       i.runID,
		Params:      i.params.Clone(),
		Node:        i.node,
		LastError:   err.Error(),
		ScheduledAt: i.scheduledAt,
		FinishedAt:  time.Now(),
	})
}

// rollback restores the instance as it was before the failed allocation,
// caller must hold mu. A pending abort is satisfied by stopping.
func (i *Instance) rollback() {
	i.state, i.params, i.runID, i.node = i.prev.state, i.prev.params, i.prev.runID, i.prev.node
	i.handle, i.lastErr, i.final = i.prev.handle, i.prev.lastErr, i.prev.final
	i.scheduledAt, i.finishedAt = i.prev.scheduledAt, i.prev.finishedAt
	if i.abortPending {
		i.state = machine.Stopped
		i.abortPending = false
	}
}

// close wakes the suspended executions and aborts the live run.
func (i *Instance) close() {
	i.mu.Lock()

	i.closed = true
	wake := i.waiters
	i.waiters = make([]Waiter, 0)
	if i.live && i.state != machine.Aborting {
		if err := i.engine.RequestAbort(i.handle); err != nil {
			i.logger("Instance.close").Warnf("abort on close failed: %v", err)
		}
		i.state = machine.Aborting
		i.publish()
	}
	runID := i.runID
	i.mu.Unlock()

	for _, w := range wake {
		w.Wake(Result{Err: ErrShutdown, RunID: runID, State: machine.Aborting})
	}
}

// runNotifier routes the engine events of one run generation into the
// event queue of the manager.
type runNotifier struct {
	inst *Instance
	gen  uint64
	q    *eventQueue
}

func (n *runNotifier) Notify(e Event) {
	n.q.push(queuedEvent{inst: n.inst, gen: n.gen, ev: e})
}
