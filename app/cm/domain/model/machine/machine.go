package machine

import (
	"fmt"
	"sort"
)

// Type is the copy machine type, e.g. "repair" or "rebalance".
type Type string

func (t Type) String() string { return string(t) }

// State is the lifecycle state of a copy machine instance.
type State int32

const (
	// Idle : never triggered.
	Idle State = iota
	// Preparing : the engine allocates resources for a new run.
	Preparing
	// Running : the run is copying data.
	Running
	// Quiescing : the run is asked to pause at the next checkpoint.
	Quiescing
	// Quiesced : the run is paused, keeping its progress.
	Quiesced
	// Aborting : the run is asked to unwind.
	Aborting
	// Stopped : the run finished or is aborted.
	Stopped
	// Failed : the run failed, needs an abort to be reset.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Preparing:
		return "preparing"
	case Running:
		return "running"
	case Quiescing:
		return "quiescing"
	case Quiesced:
		return "quiesced"
	case Aborting:
		return "aborting"
	case Stopped:
		return "stopped"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Active reports whether the instance owns a run.
func (s State) Active() bool {
	switch s {
	case Preparing, Running, Quiescing, Quiesced, Aborting:
		return true
	default:
		return false
	}
}

// Params is the engine specific parameters of a run.
type Params struct {
	// FaultSet is the failed devices.
	FaultSet []uint64
	// PoolVersion is the pool version of the run.
	PoolVersion uint64
}

// Equal reports whether the two parameters start the same run.
// The order of the fault set is not significant.
func (p Params) Equal(o Params) bool {
	if p.PoolVersion != o.PoolVersion || len(p.FaultSet) != len(o.FaultSet) {
		return false
	}

	a, b := p.sortedFaults(), o.sortedFaults()
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (p Params) sortedFaults() []uint64 {
	f := make([]uint64, len(p.FaultSet))
	copy(f, p.FaultSet)
	sort.Slice(f, func(i, j int) bool { return f[i] < f[j] })
	return f
}

// Clone returns a deep copy.
func (p Params) Clone() Params {
	return Params{
		FaultSet:    p.sortedFaults(),
		PoolVersion: p.PoolVersion,
	}
}

// Progress is the progress counters of a run.
type Progress struct {
	// Objects is the number of processed objects.
	Objects uint64
	// Bytes is the number of moved bytes.
	Bytes uint64
	// Remaining is the estimated number of remaining objects.
	Remaining uint64
}
