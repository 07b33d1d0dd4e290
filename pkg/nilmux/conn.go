package nilmux

import (
	"net"
)

// nilConn gives back the first byte consumed by the mux to the reader.
// Reads of a connection are not concurrent.
type nilConn struct {
	net.Conn
	signByte byte
	pending  bool
}

func newNilConn(conn net.Conn, signByte byte) *nilConn {
	return &nilConn{
		Conn:     conn,
		signByte: signByte,
		pending:  true,
	}
}

func (nc *nilConn) Read(b []byte) (n int, err error) {
	if nc.pending && len(b) > 0 {
		nc.pending = false
		b[0] = nc.signByte
		return 1, nil
	}
	return nc.Conn.Read(b)
}
