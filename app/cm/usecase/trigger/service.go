package trigger

import (
	"sync"
	"sync/atomic"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Service executes the copy machine requests of the node. It owns the
// descriptor registrations of the machine types it serves and the
// scheduler running the foms.
type Service struct {
	registry *fop.Registry
	manager  *cmachine.Manager
	progress ProgressReader
	sched    *scheduler
	metrics  metrics.Registry

	regs   []*fop.Registration
	nextID uint64

	mu sync.Mutex
}

// NewService returns a new trigger service running numWorker scheduler
// workers. A nil metrics registry means the default one.
func NewService(registry *fop.Registry, m *cmachine.Manager, p ProgressReader, numWorker int, r metrics.Registry) (*Service, error) {
	logger = mlog.GetPackageLogger("app/cm/usecase/trigger")

	if r == nil {
		r = metrics.DefaultRegistry
	}

	sched, err := newScheduler(numWorker)
	if err != nil {
		return nil, err
	}

	return &Service{
		registry: registry,
		manager:  m,
		progress: p,
		sched:    sched,
		metrics:  r,
		regs:     make([]*fop.Registration, 0),
	}, nil
}

// Register installs the descriptors of the machine type. Nothing is
// installed when one of its opcodes is already owned.
func (s *Service) Register(t machine.Type) error {
	tbl, err := nilrpc.Opcodes(t.String())
	if err != nil {
		return err
	}

	set, err := newFopSet(t.String(), tbl, s)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	reg, err := s.registry.Register(set)
	if err != nil {
		return errors.Wrapf(err, "failed to register machine type %s", t)
	}
	s.regs = append(s.regs, reg)

	ctxLogger := mlog.GetMethodLogger(logger, "Service.Register")
	ctxLogger.WithField("type", t).Info("descriptors registered")
	return nil
}

// Handle executes the request on a fom. It implements fop.Handler.
func (s *Service) Handle(req *fop.Request) {
	f := newFom(atomic.AddUint64(&s.nextID, 1), s, req)
	if !s.sched.enqueue(f) {
		f.run()
	}
}

// Stop unregisters the machine types in the reverse order of their
// registration and runs the queued foms to the end. Parked foms are
// finished by the instance manager when it stops.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for i := len(s.regs) - 1; i >= 0; i-- {
		if err := s.regs[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.regs = s.regs[:0]

	s.sched.stop()
	return firstErr
}

func (s *Service) counter(k fop.Kind, name string) metrics.Counter {
	return metrics.GetOrRegisterCounter("cm.fom."+k.String()+"."+name, s.metrics)
}

func (s *Service) timer(k fop.Kind) metrics.Timer {
	return metrics.GetOrRegisterTimer("cm.fom."+k.String()+".latency", s.metrics)
}
