package nilrpc

import (
	"crypto/tls"
	"net"
	"time"

	"github.com/chanyoung/copymachine/pkg/security"
)

// CmRPCPrefix is the prefix for calling copy machine rpc methods.
const CmRPCPrefix = "CM"

// MethodName indicates what procedure will be called.
type MethodName int

const (
	// CmSubmit submits a fop and waits for its reply.
	CmSubmit MethodName = iota
	// CmListJob lists the run history.
	CmListJob
	// CmListMachine lists the machine types registered on the node.
	CmListMachine
)

func (m MethodName) String() string {
	switch m {
	case CmSubmit:
		return CmRPCPrefix + "." + "Submit"
	case CmListJob:
		return CmRPCPrefix + "." + "ListJob"
	case CmListMachine:
		return CmRPCPrefix + "." + "ListMachine"
	default:
		return "unknown"
	}
}

// RPCType is the first byte of connection and it implies the type of the RPC.
type RPCType byte

const (
	// RPCNil used when nil rpc connection.
	RPCNil RPCType = 0x02
)

// DialOptions holds how to reach the daemon.
type DialOptions struct {
	Timeout time.Duration
	// TLS dials with tls when set. RootCA is the pem file used for
	// verifying the server; empty means the system pool.
	TLS    bool
	RootCA string
}

// Dial dials with the given rpc type connection to the address.
func Dial(addr string, rpcType RPCType, opts DialOptions) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: opts.Timeout}

	var (
		conn net.Conn
		err  error
	)
	if opts.TLS {
		config, cfgErr := security.ClientTLSConfig(opts.RootCA)
		if cfgErr != nil {
			return nil, cfgErr
		}
		conn, err = tls.DialWithDialer(dialer, "tcp", addr, config)
	} else {
		conn, err = dialer.Dial("tcp", addr)
	}
	if err != nil {
		return nil, err
	}

	// Write RPC header.
	_, err = conn.Write([]byte{
		byte(rpcType),
	})
	if err != nil {
		conn.Close()
		return nil, err
	}
	return conn, err
}
