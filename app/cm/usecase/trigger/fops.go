package trigger

import (
	"fmt"

	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
)

var (
	triggerSchema = &fop.Schema{
		Name: "cm trigger",
		New:  func() interface{} { return &nilrpc.CmTriggerRequest{} },
	}

	// Quiesce, status and abort only address the instance.
	addressSchema = &fop.Schema{
		Name: "cm address",
		New:  func() interface{} { return &nilrpc.CmAddressRequest{} },
	}

	triggerReplySchema = &fop.Schema{
		Name: "cm trigger reply",
		New:  func() interface{} { return &nilrpc.CmTriggerReply{} },
		Fault: func(err error) interface{} {
			return &nilrpc.CmTriggerReply{Rc: rcOf(err), Diag: err.Error()}
		},
	}

	statusReplySchema = &fop.Schema{
		Name: "cm status reply",
		New:  func() interface{} { return &nilrpc.CmStatusReply{} },
		Fault: func(err error) interface{} {
			return &nilrpc.CmStatusReply{Rc: rcOf(err), Diag: err.Error()}
		},
	}
)

// newFopSet builds the descriptors of the machine type, every request
// executed by the handler.
func newFopSet(machineType string, tbl nilrpc.OpcodeTable, h fop.Handler) (*fop.Set, error) {
	pairs := make([]fop.Pair, 0, len(fop.Kinds))
	for _, k := range fop.Kinds {
		reqSchema, repSchema := addressSchema, triggerReplySchema
		switch k {
		case fop.Trigger:
			reqSchema = triggerSchema
		case fop.Status:
			repSchema = statusReplySchema
		}

		pairs = append(pairs, fop.Pair{
			Request: &fop.Descriptor{
				Kind:        k,
				Dir:         fop.DirRequest,
				Opcode:      tbl.Request(k),
				Name:        fmt.Sprintf("%s %s", machineType, k),
				Schema:      reqSchema,
				MachineType: machineType,
				Handler:     h,
			},
			Reply: &fop.Descriptor{
				Kind:        k,
				Dir:         fop.DirReply,
				Opcode:      tbl.Reply(k),
				Name:        fmt.Sprintf("%s %s reply", machineType, k),
				Schema:      repSchema,
				MachineType: machineType,
			},
		})
	}

	return fop.NewSet(machineType, pairs...)
}
