package history

import (
	"testing"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	"github.com/chanyoung/copymachine/app/cm/infrastructure/repository/inmem"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	metrics "github.com/rcrowley/go-metrics"
	"go.uber.org/goleak"
)

func TestRecordRuns(t *testing.T) {
	defer goleak.VerifyNone(t)

	s := NewService(inmem.NewJobRepository(0), 16, metrics.NewRegistry())

	now := time.Now()
	s.Observe(cmachine.View{Type: "repair", State: machine.Idle})
	s.Observe(cmachine.View{Type: "repair", State: machine.Preparing, RunID: "r1", ScheduledAt: now,
		Params: machine.Params{FaultSet: []uint64{4}, PoolVersion: 2}, Node: "node1"})
	s.Observe(cmachine.View{Type: "repair", State: machine.Failed, RunID: "r1", ScheduledAt: now,
		Params: machine.Params{FaultSet: []uint64{4}, PoolVersion: 2}, Node: "node1", LastError: "device lost", FinishedAt: now})
	s.Observe(cmachine.View{Type: "rebalance", State: machine.Running, RunID: "r2", ScheduledAt: now.Add(time.Second)})

	// Stop writes the backlog before returning.
	if err := s.Stop(); err != nil {
		t.Fatal(err)
	}
	s.Observe(cmachine.View{Type: "repair", State: machine.Running, RunID: "late"})

	res := &nilrpc.CmListJobResponse{}
	if err := s.ListJob(&nilrpc.CmListJobRequest{}, res); err != nil {
		t.Fatal(err)
	}
	if len(res.List) != 2 || res.List[0].RunID != "r2" || res.List[1].RunID != "r1" {
		t.Fatalf("unexpected jobs %+v", res.List)
	}

	r1 := res.List[1]
	if r1.State != "failed" || r1.Error != "device lost" || r1.PoolVersion != 2 || len(r1.FaultSet) != 1 {
		t.Errorf("unexpected job %+v", r1)
	}

	res = &nilrpc.CmListJobResponse{}
	if err := s.ListJob(&nilrpc.CmListJobRequest{Type: "repair"}, res); err != nil {
		t.Fatal(err)
	}
	if len(res.List) != 1 {
		t.Errorf("unexpected repair jobs %+v", res.List)
	}
}

func TestDropWhenFull(t *testing.T) {
	r := metrics.NewRegistry()
	s := &Service{
		repo:    inmem.NewJobRepository(0),
		viewCh:  make(chan cmachine.View, 1),
		dropped: metrics.GetOrRegisterCounter("cm.history.dropped", r),
	}
	logger = mlog.GetPackageLogger("app/cm/usecase/history")

	// No writer: the second view can't be queued.
	s.Observe(cmachine.View{RunID: "a"})
	s.Observe(cmachine.View{RunID: "b"})
	if s.dropped.Count() != 1 {
		t.Errorf("expected one dropped view, got %d", s.dropped.Count())
	}
}
