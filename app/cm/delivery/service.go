package delivery

import (
	"net"
	"net/http"
	"net/rpc"
	"time"

	"github.com/chanyoung/copymachine/pkg/nilmux"
	"github.com/chanyoung/copymachine/pkg/nilrpc"
	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/chanyoung/copymachine/pkg/util/mlog"
	"github.com/pkg/errors"
	metrics "github.com/rcrowley/go-metrics"
	"github.com/sirupsen/logrus"
)

var logger *logrus.Entry

// Service is the transport of the copy machine daemon. The nil rpc and
// the admin http api share one port, multiplexed by the first byte.
type Service struct {
	cfg *config.Cm
	cmh *cmHandlers

	nilLayer  *nilmux.Layer
	httpLayer *nilmux.Layer

	nilMux    *nilmux.NilMux
	nilRPCSrv *rpc.Server
	httpSrv   *http.Server
}

// NewDeliveryService creates a delivery service with necessary dependencies.
func NewDeliveryService(cfg *config.Cm, d Dispatcher, jh JobHandlers, r metrics.Registry) (*Service, error) {
	if cfg == nil || d == nil || jh == nil {
		return nil, errors.New("invalid argument")
	}
	logger = mlog.GetPackageLogger("app/cm/delivery")

	if r == nil {
		r = metrics.DefaultRegistry
	}

	addr := net.JoinHostPort(cfg.ServerAddr, cfg.ServerPort)

	// Resolve the daemon address.
	rAddr, err := net.ResolveTCPAddr("tcp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "resolve cm address failed")
	}

	// Create transport layers.
	nilL := nilmux.NewLayer(rpcTypeBytes(), rAddr, false)
	httpL := nilmux.NewLayer(httpTypeBytes(), rAddr, true)

	// Create a mux and register layers.
	m := nilmux.NewNilMux(addr, &cfg.Security)
	m.RegisterLayer(nilL)
	m.RegisterLayer(httpL)

	cmh := &cmHandlers{d: d, jh: jh, wait: submitTimeout}

	// Create rpc server.
	rpcSrv := rpc.NewServer()
	if err := rpcSrv.RegisterName(nilrpc.CmRPCPrefix, cmh); err != nil {
		return nil, err
	}

	// Create http server.
	hsrv := &http.Server{
		Handler:        makeHandler(&adminAPI{cmh: cmh, metrics: r}),
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   submitTimeout + 10*time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return &Service{
		cfg: cfg,
		cmh: cmh,

		nilLayer:  nilL,
		httpLayer: httpL,

		nilMux:    m,
		nilRPCSrv: rpcSrv,
		httpSrv:   hsrv,
	}, nil
}

// Run starts to serve the nil rpc and the admin api.
func (s *Service) Run() error {
	if err := s.nilMux.ListenAndServe(); err != nil {
		return err
	}

	go s.serveNilRPC()
	go s.httpSrv.Serve(s.httpLayer)

	ctxLogger := mlog.GetMethodLogger(logger, "Service.Run")
	ctxLogger.WithField("addr", s.nilMux.Address()).Info("copy machine delivery service is running")
	return nil
}

// Address returns the listening address.
func (s *Service) Address() net.Addr {
	return s.nilMux.Address()
}

// Stop closes the listener and the servers.
func (s *Service) Stop() error {
	// nilMux will closes listener and all the registered layers.
	if err := s.nilMux.Close(); err != nil {
		return errors.Wrap(err, "close nil mux failed")
	}

	// Close the http server.
	return s.httpSrv.Close()
}

func (s *Service) serveNilRPC() {
	ctxLogger := mlog.GetMethodLogger(logger, "Service.serveNilRPC")

	for {
		conn, err := s.nilLayer.Accept()
		if err != nil {
			ctxLogger.Debug(err)
			return
		}
		go s.nilRPCSrv.ServeConn(conn)
	}
}
