package security

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"github.com/chanyoung/copymachine/pkg/util/config"
	"github.com/pkg/errors"
)

// DefaultTLSConfig loads default tls config.
func DefaultTLSConfig() *tls.Config {
	return &tls.Config{
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		},

		MinVersion: tls.VersionTLS12,

		SessionTicketsDisabled: true,
	}
}

// ServerTLSConfig returns the tls config with the server certificate
// of the security config.
func ServerTLSConfig(cfg *config.Security) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(
		cfg.CertsDir+"/"+cfg.ServerCrt,
		cfg.CertsDir+"/"+cfg.ServerKey,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load server key pair")
	}

	tlsConfig := DefaultTLSConfig()
	tlsConfig.Certificates = append(tlsConfig.Certificates, cert)
	return tlsConfig, nil
}

// ClientTLSConfig returns the tls config trusting the given root CA pem.
// Empty rootCA uses the system pool.
func ClientTLSConfig(rootCA string) (*tls.Config, error) {
	tlsConfig := DefaultTLSConfig()
	if rootCA == "" {
		return tlsConfig, nil
	}

	pem, err := os.ReadFile(rootCA)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read root CA")
	}

	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.Errorf("no certificate in %s", rootCA)
	}
	tlsConfig.RootCAs = pool
	return tlsConfig, nil
}
