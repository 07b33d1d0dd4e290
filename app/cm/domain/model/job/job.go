package job

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

// Job is one run of a copy machine as recorded in the history.
type Job struct {
	RunID       string
	Type        machine.Type
	Params      machine.Params
	Node        string
	State       machine.State
	Error       string
	ScheduledAt time.Time
	FinishedAt  time.Time
}

func (j *Job) String() string {
	return fmt.Sprintf("[ID: %s] [Type: %s] [State: %s] [Faults: %s] [PoolVersion: %d] [Node: %s]",
		j.RunID, j.Type, j.State, FormatFaults(j.Params.FaultSet), j.Params.PoolVersion, j.Node)
}

// Repository stores the jobs. Save replaces the job of the same run id.
// List returns the jobs of the type, every type when empty, the newest
// first.
type Repository interface {
	Save(j *Job) error
	List(t machine.Type) ([]*Job, error)
	Close() error
}

// FormatFaults returns the fault set as a comma separated list.
func FormatFaults(faults []uint64) string {
	s := make([]string, len(faults))
	for i, f := range faults {
		s[i] = strconv.FormatUint(f, 10)
	}
	return strings.Join(s, ",")
}

// ParseFaults parses the comma separated fault set.
func ParseFaults(s string) ([]uint64, error) {
	faults := make([]uint64, 0)
	if s == "" {
		return faults, nil
	}

	for _, f := range strings.Split(s, ",") {
		id, err := strconv.ParseUint(strings.TrimSpace(f), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid fault %q", f)
		}
		faults = append(faults, id)
	}
	return faults, nil
}
