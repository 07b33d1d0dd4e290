package delivery

import (
	"time"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/pkg/errors"
)

// submitTimeout bounds the wait for the reply of a submitted fop.
const submitTimeout = 30 * time.Second

// Dispatcher is the fop registry of the node.
type Dispatcher interface {
	Dispatch(f *fop.Fop) <-chan *fop.Fop
	MachineTypes() []string
}

// JobHandlers is the interface that provides the run history handlers.
type JobHandlers interface {
	ListJob(req *nilrpc.CmListJobRequest, res *nilrpc.CmListJobResponse) error
}

// cmHandlers are the nil rpc handlers of the copy machine daemon.
type cmHandlers struct {
	d    Dispatcher
	jh   JobHandlers
	wait time.Duration
}

// Submit dispatches the fop and waits for its reply. The reply is
// abandoned when it does not come in time.
func (h *cmHandlers) Submit(req *fop.Fop, res *fop.Fop) error {
	select {
	case rep := <-h.d.Dispatch(req):
		*res = *rep
		return nil
	case <-time.After(h.wait):
		return errors.Errorf("no reply of opcode %d in %v", req.Opcode, h.wait)
	}
}

// ListJob lists the run history.
func (h *cmHandlers) ListJob(req *nilrpc.CmListJobRequest, res *nilrpc.CmListJobResponse) error {
	return h.jh.ListJob(req, res)
}

// ListMachine lists the machine types registered on the node.
func (h *cmHandlers) ListMachine(req *nilrpc.CmListMachineRequest, res *nilrpc.CmListMachineResponse) error {
	res.Types = h.d.MachineTypes()
	return nil
}
