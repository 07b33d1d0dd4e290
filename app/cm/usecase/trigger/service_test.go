package trigger

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/goleak"
)

// scriptEngine answers every request right away through the notifier,
// as an engine with nothing to copy would.
type scriptEngine struct {
	// gate, when set, holds Start until it is closed.
	gate chan struct{}
	// holdReady leaves the runs preparing until ready is called.
	holdReady bool

	next     cmachine.Handle
	runs     map[cmachine.Handle]cmachine.Notifier
	progress map[cmachine.Handle]uint64
	mu       sync.Mutex
}

func newScriptEngine() *scriptEngine {
	return &scriptEngine{
		runs:     make(map[cmachine.Handle]cmachine.Notifier),
		progress: make(map[cmachine.Handle]uint64),
	}
}

func (e *scriptEngine) Start(t machine.Type, p machine.Params, n cmachine.Notifier) (cmachine.Handle, error) {
	if e.gate != nil {
		<-e.gate
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.next++
	e.runs[e.next] = n
	if !e.holdReady {
		n.Notify(cmachine.Event{Kind: cmachine.Ready})
	}
	return e.next, nil
}

func (e *scriptEngine) ready(h cmachine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.runs[h].Notify(cmachine.Event{Kind: cmachine.Ready})
}

func (e *scriptEngine) RequestQuiesce(h cmachine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.runs[h]
	if !ok {
		return fmt.Errorf("no run %d", h)
	}
	n.Notify(cmachine.Event{Kind: cmachine.Quiesced})
	return nil
}

func (e *scriptEngine) RequestAbort(h cmachine.Handle) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, ok := e.runs[h]
	if !ok {
		return fmt.Errorf("no run %d", h)
	}
	n.Notify(cmachine.Event{Kind: cmachine.Aborted})
	return nil
}

// SnapshotProgress moves one object per read.
func (e *scriptEngine) SnapshotProgress(h cmachine.Handle) (machine.Progress, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.runs[h]; !ok {
		return machine.Progress{}, fmt.Errorf("no run %d", h)
	}
	objs := e.progress[h]
	e.progress[h] = objs + 1
	return machine.Progress{Objects: objs, Bytes: objs * 4096}, nil
}

func (e *scriptEngine) Release(h cmachine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runs, h)
}

type testNode struct {
	registry *fop.Registry
	manager  *cmachine.Manager
	service  *Service
	engine   *scriptEngine
	xid      uint64
}

func newTestNode(t *testing.T, e *scriptEngine, types ...machine.Type) *testNode {
	m := cmachine.NewManager(e, nil)
	for _, typ := range types {
		if _, err := m.Create(typ); err != nil {
			t.Fatal(err)
		}
	}

	r := fop.NewRegistry()
	s, err := NewService(r, m, e, 4, metrics.NewRegistry())
	if err != nil {
		t.Fatal(err)
	}
	return &testNode{registry: r, manager: m, service: s, engine: e}
}

func (n *testNode) stop(t *testing.T) {
	if err := n.service.Stop(); err != nil {
		t.Error(err)
	}
	n.manager.Stop()
}

func (n *testNode) submit(t *testing.T, f *fop.Fop) *fop.Fop {
	select {
	case rep := <-n.registry.Dispatch(f):
		if rep.Xid != f.Xid {
			t.Fatalf("reply xid %d, expected %d", rep.Xid, f.Xid)
		}
		return rep
	case <-time.After(5 * time.Second):
		t.Fatalf("no reply for opcode %d", f.Opcode)
	}
	return nil
}

func (n *testNode) request(t *testing.T, typ string, k fop.Kind, body interface{}) *fop.Fop {
	f, err := nilrpc.NewCmFop(typ, k, atomic.AddUint64(&n.xid, 1), "node1", body)
	if err != nil {
		t.Fatal(err)
	}
	return n.submit(t, f)
}

func (n *testNode) trigger(t *testing.T, typ string, faults []uint64, ver uint64) *nilrpc.CmTriggerReply {
	body := &nilrpc.CmTriggerRequest{Type: typ, FaultSet: faults, PoolVersion: ver}
	rep := &nilrpc.CmTriggerReply{}
	if err := nilrpc.DecodeCmReply(typ, fop.Trigger, n.request(t, typ, fop.Trigger, body), rep); err != nil {
		t.Fatal(err)
	}
	return rep
}

func (n *testNode) control(t *testing.T, typ string, k fop.Kind) *nilrpc.CmTriggerReply {
	rep := &nilrpc.CmTriggerReply{}
	if err := nilrpc.DecodeCmReply(typ, k, n.request(t, typ, k, nil), rep); err != nil {
		t.Fatal(err)
	}
	return rep
}

func (n *testNode) status(t *testing.T, typ string) *nilrpc.CmStatusReply {
	rep := &nilrpc.CmStatusReply{}
	if err := nilrpc.DecodeCmReply(typ, fop.Status, n.request(t, typ, fop.Status, nil), rep); err != nil {
		t.Fatal(err)
	}
	return rep
}

func (n *testNode) waitState(t *testing.T, typ string, state machine.State) *nilrpc.CmStatusReply {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if rep := n.status(t, typ); rep.State == state.String() {
			return rep
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("%s never reached %s", typ, state)
	return nil
}

func ignoreMetrics() goleak.Option {
	return goleak.IgnoreTopFunction("github.com/rcrowley/go-metrics.(*meterArbiter).tick")
}

func TestRegisterRoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreMetrics())

	n := newTestNode(t, newScriptEngine(), "rebalance", "repair")

	before := n.registry.Opcodes()
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}
	if got := len(n.registry.Opcodes()); got != 8 {
		t.Fatalf("expected 8 opcodes, got %d", got)
	}

	if err := n.service.Register("rebalance"); err == nil {
		t.Fatal("double registration succeeded")
	}
	if got := len(n.registry.Opcodes()); got != 8 {
		t.Fatalf("first registration is not intact, %d opcodes", got)
	}
	if err := n.service.Register("repair"); err != nil {
		t.Fatal(err)
	}

	n.stop(t)
	if after := n.registry.Opcodes(); len(after) != len(before) {
		t.Errorf("registry not restored: before %v, after %v", before, after)
	}
}

func TestTriggerStatusAbort(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreMetrics())

	n := newTestNode(t, newScriptEngine(), "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}

	rep := n.trigger(t, "rebalance", []uint64{7}, 1)
	if rep.Rc != nilrpc.RcOK || rep.State != "running" || rep.RunID == "" {
		t.Fatalf("unexpected trigger reply %+v", rep)
	}

	var last uint64
	for i := 0; i < 5; i++ {
		st := n.status(t, "rebalance")
		if st.Rc != nilrpc.RcOK || st.State != "running" || st.RunID != rep.RunID {
			t.Fatalf("unexpected status %+v", st)
		}
		if i == 0 && st.Progress.Objects != 0 {
			t.Errorf("expected no progress at first, got %d", st.Progress.Objects)
		}
		if st.Progress.Objects < last {
			t.Errorf("progress went back from %d to %d", last, st.Progress.Objects)
		}
		last = st.Progress.Objects
	}

	if ab := n.control(t, "rebalance", fop.Abort); ab.Rc != nilrpc.RcOK {
		t.Fatalf("unexpected abort reply %+v", ab)
	}
	st := n.waitState(t, "rebalance", machine.Stopped)
	if st.RunID != rep.RunID {
		t.Errorf("stopped run %s, expected %s", st.RunID, rep.RunID)
	}

	if ab := n.control(t, "rebalance", fop.Abort); ab.Rc != nilrpc.RcOK || ab.State != "stopped" {
		t.Errorf("abort on stopped must be a no-op, got %+v", ab)
	}
}

func TestTriggerIdempotent(t *testing.T) {
	n := newTestNode(t, newScriptEngine(), "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}

	first := n.trigger(t, "rebalance", []uint64{1, 2}, 3)
	second := n.trigger(t, "rebalance", []uint64{1, 2}, 3)
	if first.Rc != nilrpc.RcOK || second.Rc != nilrpc.RcOK {
		t.Fatalf("expected both triggers to succeed, got %+v and %+v", first, second)
	}
	if first.RunID != second.RunID {
		t.Fatalf("retried trigger started a new run: %s, %s", first.RunID, second.RunID)
	}

	conflict := n.trigger(t, "rebalance", []uint64{4}, 3)
	if conflict.Rc != nilrpc.RcAlreadyRunning {
		t.Fatalf("expected already running, got %+v", conflict)
	}

	inst, err := n.manager.Lookup("rebalance")
	if err != nil {
		t.Fatal(err)
	}
	if !inst.View().Params.Equal(machine.Params{FaultSet: []uint64{2, 1}, PoolVersion: 3}) {
		t.Errorf("running parameters changed: %+v", inst.View().Params)
	}
}

func TestConcurrentRetriedTriggers(t *testing.T) {
	n := newTestNode(t, newScriptEngine(), "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}

	const retries = 8
	ids := make(chan string, retries)
	var wg sync.WaitGroup
	for i := 0; i < retries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rep := &nilrpc.CmTriggerReply{}
			f, _ := nilrpc.NewCmFop("rebalance", fop.Trigger, 1, "node1",
				&nilrpc.CmTriggerRequest{Type: "rebalance", FaultSet: []uint64{9}, PoolVersion: 1})
			if err := nilrpc.DecodeCmReply("rebalance", fop.Trigger, <-n.registry.Dispatch(f), rep); err != nil || rep.Rc != nilrpc.RcOK {
				ids <- ""
				return
			}
			ids <- rep.RunID
		}()
	}
	wg.Wait()
	close(ids)

	var runID string
	for id := range ids {
		if id == "" {
			t.Fatal("a retried trigger failed")
		}
		if runID == "" {
			runID = id
		}
		if id != runID {
			t.Fatalf("retried triggers started different runs: %s, %s", runID, id)
		}
	}
}

func TestQuiesce(t *testing.T) {
	n := newTestNode(t, newScriptEngine(), "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}

	if rep := n.control(t, "rebalance", fop.Quiesce); rep.Rc != nilrpc.RcNotRunning {
		t.Fatalf("expected not running on idle, got %+v", rep)
	}

	n.trigger(t, "rebalance", []uint64{1}, 1)
	if rep := n.control(t, "rebalance", fop.Quiesce); rep.Rc != nilrpc.RcOK {
		t.Fatalf("unexpected quiesce reply %+v", rep)
	}
	n.waitState(t, "rebalance", machine.Quiesced)

	if rep := n.control(t, "rebalance", fop.Quiesce); rep.Rc != nilrpc.RcOK || rep.State != "quiesced" {
		t.Errorf("quiesce must be idempotent, got %+v", rep)
	}

	if rep := n.control(t, "rebalance", fop.Abort); rep.Rc != nilrpc.RcOK {
		t.Fatalf("unexpected abort reply %+v", rep)
	}
	n.waitState(t, "rebalance", machine.Stopped)
}

func TestEveryRequestReplied(t *testing.T) {
	// The repair descriptors are registered without an instance.
	n := newTestNode(t, newScriptEngine(), "rebalance")
	defer n.stop(t)
	for _, typ := range []machine.Type{"rebalance", "repair"} {
		if err := n.service.Register(typ); err != nil {
			t.Fatal(err)
		}
	}

	garbage := &fop.Fop{Opcode: nilrpc.RebalanceOpcodes.Trigger, Xid: 100, Payload: []byte{0xc1}}
	empty := &fop.Fop{Opcode: nilrpc.RebalanceOpcodes.Status, Xid: 101}
	wrongType, _ := nilrpc.NewCmFop("rebalance", fop.Quiesce, 102, "node1", &nilrpc.CmAddressRequest{Type: "repair"})
	noType, _ := nilrpc.NewCmFop("rebalance", fop.Abort, 103, "node1", &nilrpc.CmAddressRequest{})
	noInstance, _ := nilrpc.NewCmFop("repair", fop.Status, 104, "node1", nil)

	testCases := []struct {
		req  *fop.Fop
		kind fop.Kind
		typ  string
		rc   nilrpc.Rc
	}{
		{garbage, fop.Trigger, "rebalance", nilrpc.RcMalformedPayload},
		{empty, fop.Status, "rebalance", nilrpc.RcMalformedPayload},
		{wrongType, fop.Quiesce, "rebalance", nilrpc.RcMalformedPayload},
		{noType, fop.Abort, "rebalance", nilrpc.RcMalformedPayload},
		{noInstance, fop.Status, "repair", nilrpc.RcUnknownInstance},
	}
	for i, c := range testCases {
		rep := n.submit(t, c.req)

		var rc nilrpc.Rc
		var err error
		if c.kind == fop.Status {
			body := &nilrpc.CmStatusReply{}
			err = nilrpc.DecodeCmReply(c.typ, c.kind, rep, body)
			rc = body.Rc
		} else {
			body := &nilrpc.CmTriggerReply{}
			err = nilrpc.DecodeCmReply(c.typ, c.kind, rep, body)
			rc = body.Rc
		}
		if err != nil {
			t.Errorf("case %d: %v", i, err)
			continue
		}
		if rc != c.rc {
			t.Errorf("case %d: expected %s, got %s", i, c.rc, rc)
		}
	}

	for _, op := range []fop.Opcode{9999, nilrpc.RebalanceOpcodes.TriggerRep} {
		rep := n.submit(t, &fop.Fop{Opcode: op, Xid: 200})
		if rep.Opcode != fop.ErrorReplyOpcode || fop.DecodeError(rep) == nil {
			t.Errorf("opcode %d: expected an error reply, got %+v", op, rep)
		}
	}
}

func TestStatusNotBlockedByTransition(t *testing.T) {
	e := newScriptEngine()
	e.gate = make(chan struct{})

	n := newTestNode(t, e, "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}

	// The trigger holds the transition lock until the gate opens.
	f, _ := nilrpc.NewCmFop("rebalance", fop.Trigger, 1, "node1",
		&nilrpc.CmTriggerRequest{Type: "rebalance", FaultSet: []uint64{1}, PoolVersion: 1})
	triggered := n.registry.Dispatch(f)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := time.Now()
			rep := &nilrpc.CmStatusReply{}
			sf, _ := nilrpc.NewCmFop("rebalance", fop.Status, 2, "node1", nil)
			select {
			case r := <-n.registry.Dispatch(sf):
				nilrpc.DecodeCmReply("rebalance", fop.Status, r, rep)
				if rep.Rc != nilrpc.RcOK {
					t.Errorf("unexpected status %+v", rep)
				}
			case <-time.After(time.Second):
				t.Errorf("status blocked by a transition for %v", time.Since(start))
			}
		}()
	}
	wg.Wait()

	close(e.gate)
	select {
	case r := <-triggered:
		rep := &nilrpc.CmTriggerReply{}
		if err := nilrpc.DecodeCmReply("rebalance", fop.Trigger, r, rep); err != nil || rep.Rc != nilrpc.RcOK {
			t.Errorf("unexpected trigger reply %+v, %v", rep, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("trigger not replied")
	}
}

func waitPreparing(t *testing.T, inst *cmachine.Instance) {
	deadline := time.Now().Add(5 * time.Second)
	for inst.View().State != machine.Preparing {
		if time.Now().After(deadline) {
			t.Fatalf("instance is %s, expected preparing", inst.View().State)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestAbortWhilePreparing(t *testing.T) {
	e := newScriptEngine()
	e.holdReady = true

	n := newTestNode(t, e, "rebalance")
	defer n.stop(t)
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}
	inst, err := n.manager.Lookup("rebalance")
	if err != nil {
		t.Fatal(err)
	}

	f, _ := nilrpc.NewCmFop("rebalance", fop.Trigger, 1, "node1",
		&nilrpc.CmTriggerRequest{Type: "rebalance", FaultSet: []uint64{1}, PoolVersion: 1})
	triggered := n.registry.Dispatch(f)
	waitPreparing(t, inst)

	if rep := n.control(t, "rebalance", fop.Abort); rep.Rc != nilrpc.RcOK || rep.State != "aborting" {
		t.Fatalf("unexpected abort reply %+v", rep)
	}
	e.ready(inst.View().Handle)

	rep := &nilrpc.CmTriggerReply{}
	select {
	case r := <-triggered:
		if err := nilrpc.DecodeCmReply("rebalance", fop.Trigger, r, rep); err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("trigger not replied")
	}
	if rep.Rc != nilrpc.RcAborted {
		t.Fatalf("expected the trigger to be aborted, got %+v", rep)
	}
	n.waitState(t, "rebalance", machine.Stopped)
}

func TestStopRepliesParkedTrigger(t *testing.T) {
	defer goleak.VerifyNone(t, ignoreMetrics())

	e := newScriptEngine()
	e.holdReady = true

	n := newTestNode(t, e, "rebalance")
	if err := n.service.Register("rebalance"); err != nil {
		t.Fatal(err)
	}
	inst, err := n.manager.Lookup("rebalance")
	if err != nil {
		t.Fatal(err)
	}

	f, _ := nilrpc.NewCmFop("rebalance", fop.Trigger, 1, "node1",
		&nilrpc.CmTriggerRequest{Type: "rebalance", FaultSet: []uint64{1}, PoolVersion: 1})
	triggered := n.registry.Dispatch(f)
	waitPreparing(t, inst)

	n.stop(t)

	rep := &nilrpc.CmTriggerReply{}
	select {
	case r := <-triggered:
		if err := nilrpc.DecodeCmReply("rebalance", fop.Trigger, r, rep); err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("parked trigger not replied on stop")
	}
	if rep.Rc != nilrpc.RcFailed || rep.Diag == "" {
		t.Errorf("unexpected reply on stop %+v", rep)
	}
}

func TestRcOf(t *testing.T) {
	testCases := []struct {
		err error
		rc  nilrpc.Rc
	}{
		{nil, nilrpc.RcOK},
		{cmachine.ErrUnknownInstance, nilrpc.RcUnknownInstance},
		{fop.ErrMalformedPayload, nilrpc.RcMalformedPayload},
		{cmachine.ErrAlreadyRunning, nilrpc.RcAlreadyRunning},
		{cmachine.ErrNotRunning, nilrpc.RcNotRunning},
		{cmachine.ErrAborted, nilrpc.RcAborted},
		{cmachine.ErrEngine, nilrpc.RcFailed},
		{cmachine.ErrInstanceFailed, nilrpc.RcFailed},
		{fmt.Errorf("unknown"), nilrpc.RcFailed},
	}
	for _, c := range testCases {
		if got := rcOf(c.err); got != c.rc {
			t.Errorf("rcOf(%v) = %s, expected %s", c.err, got, c.rc)
		}
	}
}
