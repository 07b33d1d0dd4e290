package fop

import "github.com/pkg/errors"

var (
	// ErrDuplicateOpcode is returned when an opcode of the registering
	// set is already owned by a live descriptor.
	ErrDuplicateOpcode = errors.New("duplicate opcode")
	// ErrNotRegistered is returned when unregistering a set whose members
	// are not installed.
	ErrNotRegistered = errors.New("descriptor set is not registered")
	// ErrUnknownOpcode is returned when no live descriptor owns the opcode.
	ErrUnknownOpcode = errors.New("unknown opcode")
	// ErrOutOfOrder is returned when a registration is closed while a
	// newer one is still alive.
	ErrOutOfOrder = errors.New("registrations must be closed in reverse order")
	// ErrInvalidSet is returned by NewSet when the descriptors break the
	// request/reply pairing rules.
	ErrInvalidSet = errors.New("invalid descriptor set")
	// ErrMalformedPayload is returned when a payload does not match its schema.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnexpectedReply is returned when a reply opcode is submitted
	// as a request.
	ErrUnexpectedReply = errors.New("reply opcode submitted as a request")
)
