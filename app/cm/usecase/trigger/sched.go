package trigger

import (
	"fmt"
	"sync"
)

// scheduler is a fixed pool of workers running the foms. The queue is
// unbounded, enqueue never blocks the registry or the engine event path.
type scheduler struct {
	queue   []*fom
	stopped bool
	cond    *sync.Cond
	wg      sync.WaitGroup
	mu      sync.Mutex
}

func newScheduler(numWorker int) (*scheduler, error) {
	if numWorker <= 0 {
		return nil, fmt.Errorf("invalid number of workers")
	}

	s := &scheduler{queue: make([]*fom, 0)}
	s.cond = sync.NewCond(&s.mu)

	for i := 0; i < numWorker; i++ {
		s.wg.Add(1)
		go s.worker()
	}
	return s, nil
}

// enqueue puts the fom on the run queue. It returns false once the
// scheduler is stopped, the caller has to run the fom by itself.
func (s *scheduler) enqueue(f *fom) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return false
	}
	s.queue = append(s.queue, f)
	s.cond.Signal()
	return true
}

func (s *scheduler) worker() {
	defer s.wg.Done()

	for {
		s.mu.Lock()
		for len(s.queue) == 0 && !s.stopped {
			s.cond.Wait()
		}
		if len(s.queue) == 0 {
			// Stopped and drained.
			s.mu.Unlock()
			return
		}
		f := s.queue[0]
		s.queue[0] = nil
		s.queue = s.queue[1:]
		s.mu.Unlock()

		f.run()
	}
}

// stop runs the queued foms and waits for the workers to exit.
func (s *scheduler) stop() {
	s.mu.Lock()
	s.stopped = true
	s.cond.Broadcast()
	s.mu.Unlock()

	s.wg.Wait()
}
