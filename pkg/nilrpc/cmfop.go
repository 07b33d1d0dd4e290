package nilrpc

import (
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/pkg/errors"
)

// NewCmFop builds the request fop of the kind addressed to the machine type.
// A nil body addresses the instance without parameters.
func NewCmFop(machineType string, k fop.Kind, xid uint64, sender string, body interface{}) (*fop.Fop, error) {
	tbl, err := Opcodes(machineType)
	if err != nil {
		return nil, err
	}

	if body == nil {
		if k == fop.Trigger {
			return nil, errors.New("trigger needs parameters")
		}
		body = &CmAddressRequest{Type: machineType}
	}
	return fop.NewFop(tbl.Request(k), xid, sender, body)
}

// DecodeCmReply decodes the reply of the kind into the body. The error
// reply of the registry is returned as an error.
func DecodeCmReply(machineType string, k fop.Kind, f *fop.Fop, body interface{}) error {
	if f.Opcode == fop.ErrorReplyOpcode {
		return fop.DecodeError(f)
	}

	tbl, err := Opcodes(machineType)
	if err != nil {
		return err
	}
	if f.Opcode != tbl.Reply(k) {
		return errors.Errorf("opcode %d is not the %s %s reply", f.Opcode, machineType, k)
	}
	return fop.Decode(f.Payload, body)
}
