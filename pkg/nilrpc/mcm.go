package nilrpc

import (
	"fmt"
	"time"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/pkg/errors"
)

// Rc is the result code carried by every copy machine reply.
type Rc int32

const (
	// RcOK means the request is applied.
	RcOK Rc = iota
	// RcUnknownInstance means no instance of the machine type on the node.
	RcUnknownInstance
	// RcMalformedPayload means the request does not match its schema.
	RcMalformedPayload
	// RcAlreadyRunning means a conflicting run owns the instance.
	RcAlreadyRunning
	// RcNotRunning means there is no run to quiesce.
	RcNotRunning
	// RcFailed means the engine failed; Diag has the details.
	RcFailed
	// RcAborted means the run was aborted before the trigger completed.
	RcAborted
	// RcUnknownOpcode means no descriptor owns the request opcode.
	RcUnknownOpcode
)

func (rc Rc) String() string {
	switch rc {
	case RcOK:
		return "ok"
	case RcUnknownInstance:
		return "unknown instance"
	case RcMalformedPayload:
		return "malformed payload"
	case RcAlreadyRunning:
		return "already running"
	case RcNotRunning:
		return "not running"
	case RcFailed:
		return "failed"
	case RcAborted:
		return "aborted"
	case RcUnknownOpcode:
		return "unknown opcode"
	default:
		return fmt.Sprintf("rc(%d)", int32(rc))
	}
}

// OpcodeTable is the opcodes of one copy machine type.
type OpcodeTable struct {
	Trigger    fop.Opcode
	TriggerRep fop.Opcode
	Quiesce    fop.Opcode
	QuiesceRep fop.Opcode
	Status     fop.Opcode
	StatusRep  fop.Opcode
	Abort      fop.Opcode
	AbortRep   fop.Opcode
}

// Request returns the request opcode of the kind.
func (t OpcodeTable) Request(k fop.Kind) fop.Opcode {
	switch k {
	case fop.Trigger:
		return t.Trigger
	case fop.Quiesce:
		return t.Quiesce
	case fop.Status:
		return t.Status
	default:
		return t.Abort
	}
}

// Reply returns the reply opcode of the kind.
func (t OpcodeTable) Reply(k fop.Kind) fop.Opcode {
	switch k {
	case fop.Trigger:
		return t.TriggerRep
	case fop.Quiesce:
		return t.QuiesceRep
	case fop.Status:
		return t.StatusRep
	default:
		return t.AbortRep
	}
}

// Opcodes of the copy machine types shipped with the daemon.
var (
	RepairOpcodes = OpcodeTable{
		Trigger:    1000,
		TriggerRep: 1001,
		Quiesce:    1002,
		QuiesceRep: 1003,
		Status:     1004,
		StatusRep:  1005,
		Abort:      1006,
		AbortRep:   1007,
	}

	RebalanceOpcodes = OpcodeTable{
		Trigger:    1100,
		TriggerRep: 1101,
		Quiesce:    1102,
		QuiesceRep: 1103,
		Status:     1104,
		StatusRep:  1105,
		Abort:      1106,
		AbortRep:   1107,
	}
)

// Opcodes returns the opcode table of the machine type.
func Opcodes(machineType string) (OpcodeTable, error) {
	switch machineType {
	case "repair":
		return RepairOpcodes, nil
	case "rebalance":
		return RebalanceOpcodes, nil
	default:
		return OpcodeTable{}, fmt.Errorf("no opcodes for machine type %q", machineType)
	}
}

// CmTriggerRequest starts a copy machine run.
type CmTriggerRequest struct {
	// Type is the targeted copy machine type.
	Type string
	// FaultSet is the failed devices the run repairs or drains.
	FaultSet []uint64
	// PoolVersion is the pool version the run moves data to.
	PoolVersion uint64
	// Node is the requesting node.
	Node string
}

// Validate checks the request fields.
func (r *CmTriggerRequest) Validate() error {
	if r.Type == "" {
		return errors.New("empty machine type")
	}
	return nil
}

// CmAddressRequest addresses the running instance without parameters.
// Quiesce, status and abort requests carry it.
type CmAddressRequest struct {
	Type string
}

// Validate checks the request fields.
func (r *CmAddressRequest) Validate() error {
	if r.Type == "" {
		return errors.New("empty machine type")
	}
	return nil
}

// CmTriggerReply is the reply of trigger, quiesce and abort requests.
type CmTriggerReply struct {
	Rc    Rc
	Diag  string
	RunID string
	State string
}

// CmProgress is the progress counters of a run.
type CmProgress struct {
	Objects   uint64
	Bytes     uint64
	Remaining uint64
}

// CmStatusReply is the reply of the status request.
type CmStatusReply struct {
	Rc        Rc
	Diag      string
	RunID     string
	State     string
	Progress  CmProgress
	LastError string
}

// CmListJobRequest requests the run history.
type CmListJobRequest struct {
	// Type filters the machine type; empty lists every type.
	Type string
}

// CmJob is one entry of the run history.
type CmJob struct {
	RunID       string
	Type        string
	FaultSet    []uint64
	PoolVersion uint64
	Node        string
	State       string
	Error       string
	ScheduledAt time.Time
	FinishedAt  time.Time
}

// CmListJobResponse contains the run history, the newest first.
type CmListJobResponse struct {
	List []CmJob
}

// CmListMachineRequest requests the registered machine types.
type CmListMachineRequest struct{}

// CmListMachineResponse contains the registered machine types.
type CmListMachineResponse struct {
	Types []string
}
