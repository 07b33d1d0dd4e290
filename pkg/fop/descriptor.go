package fop

import (
	"fmt"

	"github.com/pkg/errors"
)

// Handler executes requests of a descriptor. Handle must not block on
// long operations and must make req reply exactly once, possibly later
// from another goroutine.
type Handler interface {
	Handle(req *Request)
}

// Descriptor describes one fop type.
type Descriptor struct {
	Kind        Kind
	Dir         Dir
	Opcode      Opcode
	Name        string
	Schema      *Schema
	MachineType string
	Handler     Handler

	// reply is the descriptor of the reply paired with a request.
	reply *Descriptor
}

// ReplyDescriptor returns the reply paired with the request descriptor.
func (d *Descriptor) ReplyDescriptor() *Descriptor { return d.reply }

func (d *Descriptor) String() string {
	return fmt.Sprintf("%s(%d)", d.Name, d.Opcode)
}

// Pair couples a request descriptor with its reply.
type Pair struct {
	Request *Descriptor
	Reply   *Descriptor
}

// Set is the descriptors of one copy machine type. It is built once and
// installed into a registry as a whole.
type Set struct {
	machineType string
	descs       []*Descriptor
}

// NewSet validates and links the pairs of the machine type.
// Every request must have exactly one reply with a distinct opcode and all
// the opcodes of the set must be pairwise distinct.
func NewSet(machineType string, pairs ...Pair) (*Set, error) {
	if machineType == "" {
		return nil, errors.Wrap(ErrInvalidSet, "empty machine type")
	}

	s := &Set{
		machineType: machineType,
		descs:       make([]*Descriptor, 0, 2*len(pairs)),
	}
	seen := make(map[Opcode]bool)
	kinds := make(map[Kind]bool)
	for _, p := range pairs {
		if p.Request == nil || p.Reply == nil {
			return nil, errors.Wrap(ErrInvalidSet, "unpaired descriptor")
		}
		if p.Request.Dir != DirRequest || p.Reply.Dir != DirReply {
			return nil, errors.Wrapf(ErrInvalidSet, "%s/%s: wrong direction", p.Request, p.Reply)
		}
		if p.Request.Kind != p.Reply.Kind {
			return nil, errors.Wrapf(ErrInvalidSet, "%s/%s: kind mismatch", p.Request, p.Reply)
		}
		if kinds[p.Request.Kind] {
			return nil, errors.Wrapf(ErrInvalidSet, "kind %s paired twice", p.Request.Kind)
		}
		kinds[p.Request.Kind] = true
		if p.Request.Handler == nil {
			return nil, errors.Wrapf(ErrInvalidSet, "%s: no handler", p.Request)
		}
		if p.Request.Schema == nil || p.Reply.Schema == nil || p.Reply.Schema.Fault == nil {
			return nil, errors.Wrapf(ErrInvalidSet, "%s/%s: incomplete schema", p.Request, p.Reply)
		}

		for _, d := range []*Descriptor{p.Request, p.Reply} {
			if d.MachineType != machineType {
				return nil, errors.Wrapf(ErrInvalidSet, "%s: machine type %q, want %q", d, d.MachineType, machineType)
			}
			if d.Opcode == ErrorReplyOpcode || seen[d.Opcode] {
				return nil, errors.Wrapf(ErrInvalidSet, "%s: opcode reused", d)
			}
			seen[d.Opcode] = true
			s.descs = append(s.descs, d)
		}
		p.Request.reply = p.Reply
	}

	return s, nil
}

// MachineType returns the copy machine type the set targets.
func (s *Set) MachineType() string { return s.machineType }

// Descriptors returns the descriptors of the set in installation order.
func (s *Set) Descriptors() []*Descriptor {
	d := make([]*Descriptor, len(s.descs))
	copy(d, s.descs)
	return d
}

// Lookup returns the descriptor of the kind and direction.
func (s *Set) Lookup(k Kind, dir Dir) *Descriptor {
	for _, d := range s.descs {
		if d.Kind == k && d.Dir == dir {
			return d
		}
	}
	return nil
}
