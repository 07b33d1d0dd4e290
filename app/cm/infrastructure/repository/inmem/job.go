package inmem

import (
	"sort"
	"sync"

	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

type jobRepository struct {
	jobs map[string]*job.Job
	// limit is the number of kept jobs, the oldest are evicted first.
	limit int
	mu    sync.RWMutex
}

// NewJobRepository returns a new in-memory job repository keeping at
// most limit jobs; 0 means no limit.
func NewJobRepository(limit int) job.Repository {
	return &jobRepository{
		jobs:  make(map[string]*job.Job),
		limit: limit,
	}
}

func (r *jobRepository) Save(j *job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := *j
	c.Params = j.Params.Clone()
	r.jobs[j.RunID] = &c

	if r.limit > 0 && len(r.jobs) > r.limit {
		oldest := r.sorted("")
		for _, o := range oldest[r.limit:] {
			delete(r.jobs, o.RunID)
		}
	}
	return nil
}

func (r *jobRepository) List(t machine.Type) ([]*job.Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	l := r.sorted(t)
	for i, j := range l {
		c := *j
		c.Params = j.Params.Clone()
		l[i] = &c
	}
	return l, nil
}

// sorted returns the jobs of the type, the newest first.
func (r *jobRepository) sorted(t machine.Type) []*job.Job {
	l := make([]*job.Job, 0, len(r.jobs))
	for _, j := range r.jobs {
		if t == "" || j.Type == t {
			l = append(l, j)
		}
	}
	sort.Slice(l, func(a, b int) bool {
		if l[a].ScheduledAt.Equal(l[b].ScheduledAt) {
			return l[a].RunID < l[b].RunID
		}
		return l[a].ScheduledAt.After(l[b].ScheduledAt)
	})
	return l
}

func (r *jobRepository) Close() error { return nil }
