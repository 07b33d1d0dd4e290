package fop

import (
	"sync"

	"github.com/pkg/errors"
)

// Request is a decoded request handed to a Handler.
type Request struct {
	Desc *Descriptor
	Fop  *Fop
	// Body is the decoded payload, its type is given by Desc.Schema.
	Body interface{}

	replyCh chan *Fop
	once    sync.Once
}

// Reply encodes the body with the paired reply schema and sends it back.
// Only the first call has an effect. Sending never blocks: the reply
// channel is buffered and owned by the request.
func (req *Request) Reply(body interface{}) {
	req.once.Do(func() {
		rep := req.Desc.reply
		f, err := NewFop(rep.Opcode, req.Fop.Xid, "", body)
		if err != nil {
			f = errorReply(req.Fop, err)
		}
		req.replyCh <- f
	})
}

// Fault replies with the given error in the reply schema.
func (req *Request) Fault(err error) {
	req.Reply(req.Desc.reply.Schema.Fault(err))
}

// Dispatch hands the fop to the handler of its descriptor and returns the
// channel which will receive exactly one reply. Requests which can't be
// resolved, or whose payload does not match the schema, are answered
// right away. The caller may abandon the channel.
func (r *Registry) Dispatch(f *Fop) <-chan *Fop {
	replyCh := make(chan *Fop, 1)

	desc, err := r.Resolve(f.Opcode)
	if err != nil {
		replyCh <- errorReply(f, err)
		return replyCh
	}
	if desc.Dir != DirRequest {
		replyCh <- errorReply(f, errors.Wrapf(ErrUnexpectedReply, "%s", desc))
		return replyCh
	}

	req := &Request{
		Desc:    desc,
		Fop:     f,
		replyCh: replyCh,
	}

	body, err := desc.Schema.Decode(f.Payload)
	if err != nil {
		req.Fault(err)
		return replyCh
	}
	req.Body = body

	desc.Handler.Handle(req)
	return replyCh
}

// DecodeError returns the error carried by a reply with ErrorReplyOpcode.
func DecodeError(f *Fop) error {
	if f.Opcode != ErrorReplyOpcode {
		return nil
	}

	body := &ErrorBody{}
	if err := Decode(f.Payload, body); err != nil {
		return err
	}
	return errors.New(body.Err)
}
