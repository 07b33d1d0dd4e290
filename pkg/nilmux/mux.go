package nilmux

import (
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/chanyoung/copymachine/pkg/security"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// headerTimeout bounds the wait for the first byte of a connection.
const headerTimeout = 10 * time.Second

// NilMux is a default mux for nil communications.
// Listen for tcp connections, tls when the security config enables it,
// and route each of them to the layer matching its first byte.
type NilMux struct {
	addr    string
	ln      net.Listener
	layers  []*Layer
	secuCfg *config.Security

	wg sync.WaitGroup
	mu sync.Mutex
}

// NewNilMux creates a NilMux object.
func NewNilMux(addr string, secuCfg *config.Security) *NilMux {
	logger = mlog.GetPackageLogger("pkg/nilmux")

	if secuCfg == nil {
		secuCfg = &config.Security{}
	}

	return &NilMux{
		addr:    addr,
		layers:  make([]*Layer, 0),
		secuCfg: secuCfg,
	}
}

// Address returns the listening address, nil before Listen.
func (m *NilMux) Address() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ln == nil {
		return nil
	}
	return m.ln.Addr()
}

// RegisterLayer regiters a layer to the NilMux.
func (m *NilMux) RegisterLayer(l *Layer) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.layers = append(m.layers, l)
}

// Close closes the listener and the registered layers.
func (m *NilMux) Close() error {
	m.mu.Lock()
	ln := m.ln
	layers := m.layers
	m.mu.Unlock()

	// Close real net.Listener first.
	// This will not accept more connections.
	if ln != nil {
		if err := ln.Close(); err != nil {
			return err
		}
	}
	m.wg.Wait()

	// Close all registered layers.
	for _, l := range layers {
		if err := l.Close(); err != nil {
			return err
		}
	}

	return nil
}

// Listen opens the socket.
func (m *NilMux) Listen() error {
	ln, err := net.Listen("tcp", m.addr)
	if err != nil {
		return errors.Wrap(err, "NilMux Listen failed")
	}

	if m.secuCfg.TLSEnabled() {
		tlsConfig, err := security.ServerTLSConfig(m.secuCfg)
		if err != nil {
			ln.Close()
			return errors.Wrap(err, "NilMux Listen failed")
		}
		ln = tls.NewListener(tcpKeepAliveListener{ln.(*net.TCPListener)}, tlsConfig)
	} else {
		ln = tcpKeepAliveListener{ln.(*net.TCPListener)}
	}

	m.mu.Lock()
	m.ln = ln
	m.mu.Unlock()
	return nil
}

// ListenAndServe opens the socket and routes the incoming connections
// in the background.
func (m *NilMux) ListenAndServe() error {
	if err := m.Listen(); err != nil {
		return err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.serve()
	}()
	return nil
}

func (m *NilMux) serve() {
	m.mu.Lock()
	ln := m.ln
	m.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			mlog.GetMethodLogger(logger, "NilMux.serve").Debugf("stop accepting: %v", err)
			return
		}

		go m.handleConn(conn)
	}
}

func (m *NilMux) handleConn(conn net.Conn) {
	ctxLogger := mlog.GetMethodLogger(logger, "NilMux.handleConn")

	buf := make([]byte, 1)
	conn.SetReadDeadline(time.Now().Add(headerTimeout))
	if _, err := conn.Read(buf); err != nil {
		if err != io.EOF {
			ctxLogger.Errorf("failed to read the first byte: %v", err)
		}
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	m.mu.Lock()
	layers := m.layers
	m.mu.Unlock()

	for _, l := range layers {
		if l.match(buf[0]) {
			l.handleConn(conn, buf[0])
			return
		}
	}

	// No matching layers.
	ctxLogger.Errorf("no matching layers %+v", buf[0])
	conn.Close()
}

// tcpKeepAliveListener sets TCP keep-alive timeouts on accepted connections.
type tcpKeepAliveListener struct {
	*net.TCPListener
}

func (ln tcpKeepAliveListener) Accept() (c net.Conn, err error) {
	tc, err := ln.AcceptTCP()
	if err != nil {
		return
	}
	tc.SetKeepAlive(true)
	tc.SetKeepAlivePeriod(3 * time.Minute)
	return tc, nil
}
