// Package engine is a simulated copy engine. Every run copies a fixed
// number of objects per fault with one worker per placed processor and
// reports through the notifier of the run, like the real data movement
// engine does.
package engine

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/bitmap"
	"github.com/chanyoung/copymachine/pkg/processor"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

var (
	// ErrStopped is returned when a run is started on a stopped engine.
	ErrStopped = errors.New("engine is stopped")
	// ErrNoResource is returned when the engine can't take another run.
	ErrNoResource = errors.New("engine has no free run slot")
	// ErrUnknownHandle is returned for a handle which is not allocated.
	ErrUnknownHandle = errors.New("unknown run handle")
)

// Config of the simulated engine.
type Config struct {
	// Tick is the period of one copy round.
	Tick time.Duration
	// Objects is the number of objects to copy per fault.
	Objects uint64
	// ObjectSize is the size in bytes of an object.
	ObjectSize uint64
	// MaxWorkers caps the workers of a run; 0 means one per online processor.
	MaxWorkers int
	// MaxRuns caps the concurrent runs; 0 means no limit.
	MaxRuns int
}

// Engine runs the copy machine runs. It implements the engine the
// instances of the usecase drive.
type Engine struct {
	cfg     Config
	workers []processor.Descr
	runs    map[cmachine.Handle]*run
	next    cmachine.Handle
	stopped bool

	// moved is the byte meter of every run.
	moved metrics.Meter

	wg sync.WaitGroup
	mu sync.Mutex
}

// New places the workers on the online processors and returns the engine.
func New(cfg Config, topo processor.Topology, r metrics.Registry) (*Engine, error) {
	logger = mlog.GetPackageLogger("app/cm/infrastructure/engine")

	if cfg.Tick <= 0 {
		return nil, errors.New("engine tick must be positive")
	}
	if r == nil {
		r = metrics.DefaultRegistry
	}

	workers, err := place(topo, cfg.MaxWorkers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to place engine workers")
	}

	return &Engine{
		cfg:     cfg,
		workers: workers,
		runs:    make(map[cmachine.Handle]*run),
		moved:   metrics.GetOrRegisterMeter("cm.engine.moved", r),
	}, nil
}

// place picks the processors running the copy workers, spread over
// the numa nodes.
func place(topo processor.Topology, max int) ([]processor.Descr, error) {
	online := bitmap.New(int(topo.MaxProcessorCount()))
	if err := topo.Online(online); err != nil {
		return nil, err
	}

	byNode := make(map[uint32][]processor.Descr)
	nodes := make([]uint32, 0)
	for _, id := range online.Members() {
		var d processor.Descr
		if err := topo.Describe(processor.Nr(id), &d); err != nil {
			return nil, err
		}
		if _, ok := byNode[d.NumaNode]; !ok {
			nodes = append(nodes, d.NumaNode)
		}
		byNode[d.NumaNode] = append(byNode[d.NumaNode], d)
	}

	if max <= 0 || max > online.Count() {
		max = online.Count()
	}
	workers := make([]processor.Descr, 0, max)
	for round := 0; len(workers) < max; round++ {
		for _, n := range nodes {
			if round < len(byNode[n]) && len(workers) < max {
				workers = append(workers, byNode[n][round])
			}
		}
	}
	if len(workers) == 0 {
		return nil, errors.New("no online processor")
	}

	ctxLogger := mlog.GetFunctionLogger(logger, "place")
	ctxLogger.WithFields(logrus.Fields{
		"workers": len(workers),
		"numa":    len(nodes),
		"online":  online.String(),
	}).Info("engine workers placed")
	return workers, nil
}

// Workers returns the number of copy workers of a run.
func (e *Engine) Workers() int { return len(e.workers) }

// Start allocates a run and begins copying. Ready is notified from the
// goroutine of the run.
func (e *Engine) Start(t machine.Type, p machine.Params, n cmachine.Notifier) (cmachine.Handle, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return 0, ErrStopped
	}
	if e.cfg.MaxRuns > 0 && len(e.runs) >= e.cfg.MaxRuns {
		return 0, errors.Wrapf(ErrNoResource, "%d runs", len(e.runs))
	}

	faults := uint64(len(p.FaultSet))
	if faults == 0 {
		faults = 1
	}

	e.next++
	r := &run{
		e:         e,
		handle:    e.next,
		typ:       t,
		notifier:  n,
		total:     faults * e.cfg.Objects,
		quiesceCh: make(chan struct{}),
		abortCh:   make(chan struct{}),
	}
	e.runs[r.handle] = r

	e.wg.Add(1)
	go r.loop()

	mlog.GetMethodLogger(logger, "Engine.Start").WithFields(logrus.Fields{
		"type":   t,
		"handle": r.handle,
		"total":  r.total,
	}).Info("run allocated")
	return r.handle, nil
}

func (e *Engine) lookup(h cmachine.Handle) (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, ok := e.runs[h]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownHandle, "handle %d", h)
	}
	return r, nil
}

// RequestQuiesce asks the run to pause after the current round.
func (e *Engine) RequestQuiesce(h cmachine.Handle) error {
	r, err := e.lookup(h)
	if err != nil {
		return err
	}
	r.quiesceOnce.Do(func() { close(r.quiesceCh) })
	return nil
}

// RequestAbort asks the run to unwind.
func (e *Engine) RequestAbort(h cmachine.Handle) error {
	r, err := e.lookup(h)
	if err != nil {
		return err
	}
	r.abort()
	return nil
}

// SnapshotProgress reads the counters of the run while it copies.
func (e *Engine) SnapshotProgress(h cmachine.Handle) (machine.Progress, error) {
	r, err := e.lookup(h)
	if err != nil {
		return machine.Progress{}, err
	}
	return r.progress(), nil
}

// Release forgets the run.
func (e *Engine) Release(h cmachine.Handle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.runs, h)
}

// Stop aborts the runs and waits for them to unwind.
func (e *Engine) Stop() {
	e.mu.Lock()
	e.stopped = true
	for _, r := range e.runs {
		r.abort()
	}
	e.mu.Unlock()

	e.wg.Wait()
}

// run is a copy machine run inside the engine.
type run struct {
	e        *Engine
	handle   cmachine.Handle
	typ      machine.Type
	notifier cmachine.Notifier
	total    uint64

	// Counters, read by SnapshotProgress without locking.
	objects uint64
	bytes   uint64

	quiesceCh   chan struct{}
	quiesceOnce sync.Once
	abortCh     chan struct{}
	abortOnce   sync.Once
}

func (r *run) abort() {
	r.abortOnce.Do(func() { close(r.abortCh) })
}

func (r *run) progress() machine.Progress {
	objs := atomic.LoadUint64(&r.objects)
	return machine.Progress{
		Objects:   objs,
		Bytes:     atomic.LoadUint64(&r.bytes),
		Remaining: r.total - objs,
	}
}

// loop copies one object per worker and round until the run is done.
// A quiesced run keeps its counters and waits for the abort.
func (r *run) loop() {
	defer r.e.wg.Done()

	ctxLogger := mlog.GetMethodLogger(logger, "run.loop").WithFields(logrus.Fields{
		"type":   r.typ,
		"handle": r.handle,
	})

	r.notifier.Notify(cmachine.Event{Kind: cmachine.Ready})

	ticker := time.NewTicker(r.e.cfg.Tick)
	defer ticker.Stop()

	quiesceCh := r.quiesceCh
	for {
		select {
		case <-r.abortCh:
			ctxLogger.Info("run aborted")
			r.notifier.Notify(cmachine.Event{Kind: cmachine.Aborted})
			return

		case <-quiesceCh:
			quiesceCh = nil
			ticker.Stop()
			ctxLogger.Info("run quiesced")
			r.notifier.Notify(cmachine.Event{Kind: cmachine.Quiesced})

		case <-ticker.C:
			if r.copyRound() {
				ctxLogger.Info("run completed")
				r.notifier.Notify(cmachine.Event{Kind: cmachine.Completed})
				return
			}
		}
	}
}

// copyRound returns true when every object is copied.
func (r *run) copyRound() bool {
	objs := atomic.LoadUint64(&r.objects)
	n := uint64(len(r.e.workers))
	if remaining := r.total - objs; n > remaining {
		n = remaining
	}

	size := n * r.e.cfg.ObjectSize
	atomic.AddUint64(&r.bytes, size)
	atomic.AddUint64(&r.objects, n)
	r.e.moved.Mark(int64(size))

	return objs+n == r.total
}
