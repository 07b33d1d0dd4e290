package machine

import (
	"time"

	"github.com/chanyoung/copymachine/app/cm/domain/model/machine"
)

// View is an immutable snapshot of an instance. It is published after
// every transition and read without the transition lock.
type View struct {
	Type   machine.Type
	State  machine.State
	RunID  string
	Params machine.Params
	Node   string
	// Handle is valid only when Live is set.
	Handle Handle
	Live   bool
	// Final is the last progress of a terminated run.
	Final       machine.Progress
	LastError   string
	ScheduledAt time.Time
	FinishedAt  time.Time
}

// Observer is notified of every published view. Observe must not block.
type Observer interface {
	Observe(v View)
}

type nopObserver struct{}

func (nopObserver) Observe(View) {}
