// Package fop implements the operation descriptor registry of the copy
// machine control protocol. A fop (file operation packet) is the unit the
// transport delivers; its opcode selects a descriptor which knows the
// payload schema and the handler executing it.
package fop

import (
	"fmt"
)

// Opcode is the wire-level identifier of a fop type. Opcodes are unique
// across the whole registry, request and reply directions included.
type Opcode uint32

// ErrorReplyOpcode is carried by replies to requests which could not be
// resolved to any live descriptor. Its payload is an ErrorBody.
const ErrorReplyOpcode Opcode = 0

// Kind is the operation a fop asks for.
type Kind int

const (
	// Trigger starts a copy machine run.
	Trigger Kind = iota
	// Quiesce pauses a run at the next safe checkpoint.
	Quiesce
	// Status reads the progress of a run.
	Status
	// Abort stops a run and releases its resources.
	Abort
)

func (k Kind) String() string {
	switch k {
	case Trigger:
		return "trigger"
	case Quiesce:
		return "quiesce"
	case Status:
		return "status"
	case Abort:
		return "abort"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Kinds lists every operation kind.
var Kinds = []Kind{Trigger, Quiesce, Status, Abort}

// Dir is the direction of a fop.
type Dir int

const (
	// DirRequest flows from the caller to the node.
	DirRequest Dir = iota
	// DirReply flows back to the caller.
	DirReply
)

func (d Dir) String() string {
	if d == DirRequest {
		return "request"
	}
	return "reply"
}

// Fop is the message exchanged with the transport.
// Fops are never modified once they are built.
type Fop struct {
	// Opcode selects the descriptor.
	Opcode Opcode
	// Xid is chosen by the sender and echoed in the reply so that the
	// sender can match out of order replies.
	Xid uint64
	// Sender names the requesting node.
	Sender string
	// Payload is the msgpack encoded body.
	Payload []byte
}

// ErrorBody is the payload of a reply carrying ErrorReplyOpcode.
type ErrorBody struct {
	Err string
}

// NewFop encodes the body and builds a fop.
func NewFop(op Opcode, xid uint64, sender string, body interface{}) (*Fop, error) {
	b, err := Encode(body)
	if err != nil {
		return nil, err
	}

	return &Fop{
		Opcode:  op,
		Xid:     xid,
		Sender:  sender,
		Payload: b,
	}, nil
}

func errorReply(req *Fop, err error) *Fop {
	f, encErr := NewFop(ErrorReplyOpcode, req.Xid, "", &ErrorBody{Err: err.Error()})
	if encErr != nil {
		// ErrorBody is a plain struct, encoding it never fails.
		panic(encErr)
	}
	return f
}
