package inmem

import (
	"testing"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/job"
	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

func TestJobRepository(t *testing.T) {
	r := NewJobRepository(2)
	now := time.Now()

	jobs := []*job.Job{
		{RunID: "a", Type: "repair", State: machine.Stopped, ScheduledAt: now},
		{RunID: "b", Type: "rebalance", State: machine.Stopped, ScheduledAt: now.Add(time.Second)},
		{RunID: "c", Type: "repair", State: machine.Preparing, ScheduledAt: now.Add(2 * time.Second)},
	}
	for _, j := range jobs {
		if err := r.Save(j); err != nil {
			t.Fatal(err)
		}
	}

	// Update of a kept job.
	if err := r.Save(&job.Job{RunID: "c", Type: "repair", State: machine.Running, ScheduledAt: jobs[2].ScheduledAt}); err != nil {
		t.Fatal(err)
	}

	l, err := r.List("")
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 2 || l[0].RunID != "c" || l[1].RunID != "b" {
		t.Fatalf("unexpected list %v", l)
	}
	if l[0].State != machine.Running {
		t.Errorf("job not updated: %s", l[0].State)
	}

	l, err = r.List("repair")
	if err != nil {
		t.Fatal(err)
	}
	if len(l) != 1 || l[0].RunID != "c" {
		t.Errorf("unexpected repair list %v", l)
	}
}
