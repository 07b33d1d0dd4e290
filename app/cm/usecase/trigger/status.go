package trigger

import (
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
)

// ProgressReader reads the progress counters of a live run.
type ProgressReader interface {
	SnapshotProgress(h cmachine.Handle) (machine.Progress, error)
}

// status builds the status reply from the published view of the
// instance and the engine counters. It never takes the transition lock:
// the counters keep moving while they are read, so the reply is a weakly
// consistent snapshot.
func (s *Service) status(inst *cmachine.Instance) *nilrpc.CmStatusReply {
	v := inst.View()

	p := v.Final
	if v.Live {
		live, err := s.progress.SnapshotProgress(v.Handle)
		if err == nil {
			p = live
		} else {
			// The run terminated in between, its final counters are
			// published with the next view.
			v = inst.View()
			p = v.Final
		}
	}

	return &nilrpc.CmStatusReply{
		Rc:    nilrpc.RcOK,
		RunID: v.RunID,
		State: v.State.String(),
		Progress: nilrpc.CmProgress{
			Objects:   p.Objects,
			Bytes:     p.Bytes,
			Remaining: p.Remaining,
		},
		LastError: v.LastError,
	}
}
