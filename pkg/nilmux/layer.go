package nilmux

import (
	"bytes"
	"net"
	"sync"

	"github.com/pkg/errors"
)

// ErrLayerClosed is returned by Accept after the layer is closed.
var ErrLayerClosed = errors.New("transport layer closed")

// Layer is a net.Listener of the mux connections whose first byte is one
// of its types. The daemon puts an rpc server and an http server on top
// of the layers of one mux.
type Layer struct {
	types     []byte
	keepFirst bool
	addr      net.Addr

	conns chan net.Conn
	done  chan struct{}
	once  sync.Once
}

// NewLayer makes a layer accepting the connections starting with one of
// the types. With keepFirst the first byte is handed back to the reader,
// http needs it since the byte is the start of the method.
func NewLayer(types []byte, advertise net.Addr, keepFirst bool) *Layer {
	return &Layer{
		types:     types,
		keepFirst: keepFirst,
		addr:      advertise,
		conns:     make(chan net.Conn),
		done:      make(chan struct{}),
	}
}

func (l *Layer) match(b byte) bool {
	return bytes.IndexByte(l.types, b) >= 0
}

// Addr returns the advertised address of the layer.
func (l *Layer) Addr() net.Addr {
	return l.addr
}

// Accept waits for the next routed connection.
func (l *Layer) Accept() (net.Conn, error) {
	select {
	case conn := <-l.conns:
		return conn, nil
	case <-l.done:
		return nil, ErrLayerClosed
	}
}

// Close stops the Accept callers. Connections routed later are closed.
func (l *Layer) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

func (l *Layer) handleConn(conn net.Conn, first byte) {
	if l.keepFirst {
		conn = newNilConn(conn, first)
	}

	select {
	case l.conns <- conn:
	case <-l.done:
		conn.Close()
	}
}
