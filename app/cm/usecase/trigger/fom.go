package trigger

import (
	"fmt"
	"sync"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Phase is the execution phase of a fom.
type Phase int

const (
	// Received : the request is handed over by the registry.
	Received Phase = iota
	// Validating : the request is checked against its instance.
	Validating
	// Applying : the transition is applied under the instance lock.
	Applying
	// Replying : the reply is built and sent.
	Replying
	// Done : the execution is finished.
	Done
	// Failed : the execution hit an error, a reply carrying it follows.
	Failed
)

func (p Phase) String() string {
	switch p {
	case Received:
		return "received"
	case Validating:
		return "validating"
	case Applying:
		return "applying"
	case Replying:
		return "replying"
	case Done:
		return "done"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// fsm : finite state machine.
// Each step of the fom returns the next one, nil when the fom is done.
type fsm func() (next fsm)

// fom is the execution of one request. It runs on the scheduler workers
// and never blocks on the engine: a step which has to wait parks the fom
// and the engine event puts it back on the scheduler.
type fom struct {
	id    uint64
	svc   *Service
	req   *fop.Request
	kind  fop.Kind
	phase Phase

	inst   *cmachine.Instance
	params machine.Params
	node   string

	// result is the outcome of the transition.
	result cmachine.Result
	err    error
	reply  interface{}

	next   fsm
	parked bool
	start  time.Time

	mu sync.Mutex
}

func newFom(id uint64, s *Service, req *fop.Request) *fom {
	f := &fom{
		id:    id,
		svc:   s,
		req:   req,
		kind:  req.Desc.Kind,
		phase: Received,
		start: time.Now(),
	}
	f.next = f.received
	return f
}

func (f *fom) logger(method string) *logrus.Entry {
	return mlog.GetMethodLogger(logger, method).WithFields(logrus.Fields{
		"fom":   f.id,
		"kind":  f.kind,
		"type":  f.req.Desc.MachineType,
		"phase": f.phase,
	})
}

// run is the engine of the fom. Manage the state transitioning until
// meet the state nil or the fom is parked.
func (f *fom) run() {
	f.mu.Lock()
	defer f.mu.Unlock()

	for state := f.next; state != nil; {
		state = state()
		if f.parked {
			f.parked = false
			f.next = state
			return
		}
	}
	f.next = nil
}

// Wake resumes the parked fom with the result of the transition.
func (f *fom) Wake(r cmachine.Result) {
	f.mu.Lock()
	f.result = r
	f.mu.Unlock()

	if !f.svc.sched.enqueue(f) {
		f.run()
	}
}

// park suspends the fom until Wake; resume is run first then.
func (f *fom) park(resume fsm) fsm {
	f.parked = true
	return resume
}

func (f *fom) received() fsm {
	f.svc.counter(f.kind, "requests").Inc(1)
	f.phase = Validating
	return f.validating
}

func (f *fom) validating() fsm {
	var machineType string
	switch body := f.req.Body.(type) {
	case *nilrpc.CmTriggerRequest:
		machineType = body.Type
		f.params = machine.Params{FaultSet: body.FaultSet, PoolVersion: body.PoolVersion}
		f.node = body.Node
		if f.node == "" {
			f.node = f.req.Fop.Sender
		}
	case *nilrpc.CmAddressRequest:
		machineType = body.Type
	default:
		f.err = errors.Wrapf(fop.ErrMalformedPayload, "unexpected body %T", f.req.Body)
		return f.failed
	}

	if machineType != f.req.Desc.MachineType {
		f.err = errors.Wrapf(fop.ErrMalformedPayload, "%s addressed to machine type %q", f.req.Desc, machineType)
		return f.failed
	}

	inst, err := f.svc.manager.Lookup(machine.Type(machineType))
	if err != nil {
		f.err = err
		return f.failed
	}
	f.inst = inst

	f.phase = Applying
	return f.applying
}

func (f *fom) applying() fsm {
	switch f.kind {
	case fop.Trigger:
		f.result = f.inst.Trigger(f.params, f.node, f)
		if f.result.Pending {
			f.logger("fom.applying").Debug("parked until the engine is ready")
			return f.park(f.resumed)
		}
	case fop.Quiesce:
		f.result = f.inst.Quiesce()
	case fop.Abort:
		f.result = f.inst.Abort()
	case fop.Status:
		f.reply = f.svc.status(f.inst)
		f.phase = Replying
		return f.replying
	}
	return f.resumed
}

// resumed takes the result of the transition.
func (f *fom) resumed() fsm {
	if f.result.Err != nil {
		f.err = f.result.Err
		return f.failed
	}

	f.reply = &nilrpc.CmTriggerReply{
		Rc:    nilrpc.RcOK,
		RunID: f.result.RunID,
		State: f.result.State.String(),
	}
	f.phase = Replying
	return f.replying
}

func (f *fom) failed() fsm {
	f.phase = Failed
	f.svc.counter(f.kind, "errors").Inc(1)
	f.logger("fom.failed").Warnf("request failed: %v", f.err)

	if f.kind == fop.Status {
		f.reply = &nilrpc.CmStatusReply{Rc: rcOf(f.err), Diag: f.err.Error()}
	} else {
		rep := &nilrpc.CmTriggerReply{
			Rc:    rcOf(f.err),
			Diag:  f.err.Error(),
			RunID: f.result.RunID,
		}
		if f.inst != nil {
			rep.State = f.result.State.String()
		}
		f.reply = rep
	}

	f.phase = Replying
	return f.replying
}

func (f *fom) replying() fsm {
	f.req.Reply(f.reply)
	f.svc.timer(f.kind).UpdateSince(f.start)

	f.phase = Done
	return f.done
}

func (f *fom) done() fsm {
	f.logger("fom.done").Debug("replied")
	return nil
}
