package history

import (
	"sync"

	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Service records the runs of the copy machines into the job repository.
// It observes every view the instances publish and writes them from its
// own goroutine, the instances never wait for the repository.
type Service struct {
	repo    job.Repository
	viewCh  chan cmachine.View
	dropped metrics.Counter
	closed  bool

	wg sync.WaitGroup
	mu sync.RWMutex
}

// NewService returns a history service buffering up to backlog views.
func NewService(repo job.Repository, backlog int, r metrics.Registry) *Service {
	logger = mlog.GetPackageLogger("app/cm/usecase/history")

	if r == nil {
		r = metrics.DefaultRegistry
	}

	s := &Service{
		repo:    repo,
		viewCh:  make(chan cmachine.View, backlog),
		dropped: metrics.GetOrRegisterCounter("cm.history.dropped", r),
	}

	s.wg.Add(1)
	go s.run()
	return s
}

// Observe queues the view. It implements the observer of the instances.
func (s *Service) Observe(v cmachine.View) {
	if v.RunID == "" {
		return
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return
	}

	select {
	case s.viewCh <- v:
	default:
		s.dropped.Inc(1)
		ctxLogger := mlog.GetMethodLogger(logger, "Service.Observe")
		ctxLogger.WithField("run", v.RunID).Warn("history backlog is full, drop the view")
	}
}

func (s *Service) run() {
	defer s.wg.Done()

	ctxLogger := mlog.GetMethodLogger(logger, "Service.run")
	for v := range s.viewCh {
		if err := s.repo.Save(toJob(v)); err != nil {
			ctxLogger.WithField("run", v.RunID).Error(err)
		}
	}
}

func toJob(v cmachine.View) *job.Job {
	return &job.Job{
		RunID:       v.RunID,
		Type:        v.Type,
		Params:      v.Params.Clone(),
		Node:        v.Node,
		State:       v.State,
		Error:       v.LastError,
		ScheduledAt: v.ScheduledAt,
		FinishedAt:  v.FinishedAt,
	}
}

// ListJob returns the recorded runs of the type, the newest first.
func (s *Service) ListJob(req *nilrpc.CmListJobRequest, res *nilrpc.CmListJobResponse) error {
	jobs, err := s.repo.List(machine.Type(req.Type))
	if err != nil {
		return errors.Wrap(err, "failed to list jobs")
	}

	res.List = make([]nilrpc.CmJob, len(jobs))
	for i, j := range jobs {
		res.List[i] = nilrpc.CmJob{
			RunID:       j.RunID,
			Type:        j.Type.String(),
			FaultSet:    j.Params.FaultSet,
			PoolVersion: j.Params.PoolVersion,
			Node:        j.Node,
			State:       j.State.String(),
			Error:       j.Error,
			ScheduledAt: j.ScheduledAt,
			FinishedAt:  j.FinishedAt,
		}
	}
	return nil
}

// Stop writes the queued views and closes the repository.
func (s *Service) Stop() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	close(s.viewCh)
	s.mu.Unlock()

	s.wg.Wait()
	return s.repo.Close()
}
