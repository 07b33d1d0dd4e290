package fop

import (
	"github.com/hashicorp/go-msgpack/codec"
	"github.com/pkg/errors"
)

var mh = &codec.MsgpackHandle{RawToString: true, WriteExt: true}

// Encode encodes the body with msgpack.
func Encode(body interface{}) ([]byte, error) {
	var b []byte
	if err := codec.NewEncoderBytes(&b, mh).Encode(body); err != nil {
		return nil, errors.Wrap(err, "failed to encode fop body")
	}
	return b, nil
}

// Decode decodes the msgpack encoded payload into the body.
func Decode(payload []byte, body interface{}) error {
	if len(payload) == 0 {
		return errors.Wrap(ErrMalformedPayload, "empty payload")
	}
	if err := codec.NewDecoderBytes(payload, mh).Decode(body); err != nil {
		return errors.Wrap(ErrMalformedPayload, err.Error())
	}
	return nil
}

// validator is implemented by bodies which can check their own fields.
type validator interface {
	Validate() error
}

// Schema describes the payload of a fop type.
type Schema struct {
	// Name of the schema, for logging.
	Name string
	// New returns a pointer to a zero body.
	New func() interface{}
	// Fault builds a body which carries the given error. Only reply
	// schemas need it; it is used whenever the request can't be handed
	// to its handler.
	Fault func(err error) interface{}
}

// Decode decodes and validates the payload.
func (s *Schema) Decode(payload []byte) (interface{}, error) {
	body := s.New()
	if err := Decode(payload, body); err != nil {
		return nil, errors.Wrapf(err, "schema %s", s.Name)
	}

	if v, ok := body.(validator); ok {
		if err := v.Validate(); err != nil {
			return nil, errors.Wrapf(ErrMalformedPayload, "schema %s: %v", s.Name, err)
		}
	}
	return body, nil
}
