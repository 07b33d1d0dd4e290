package trigger

import (
	cmachine "github.com/chanyoung/copymachine/app/cm/usecase/machine"
	"github.com/chanyoung/copymachine/pkg/fop"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/pkg/errors"
)

// rcOf maps the error to the result code of the reply.
// Faults of the engine and of the instance are reported as RcFailed.
func rcOf(err error) nilrpc.Rc {
	switch errors.Cause(err) {
	case nil:
		return nilrpc.RcOK
	case cmachine.ErrUnknownInstance:
		return nilrpc.RcUnknownInstance
	case fop.ErrMalformedPayload:
		return nilrpc.RcMalformedPayload
	case cmachine.ErrAlreadyRunning:
		return nilrpc.RcAlreadyRunning
	case cmachine.ErrNotRunning:
		return nilrpc.RcNotRunning
	case cmachine.ErrAborted:
		return nilrpc.RcAborted
	case fop.ErrUnknownOpcode:
		return nilrpc.RcUnknownOpcode
	default:
		return nilrpc.RcFailed
	}
}
