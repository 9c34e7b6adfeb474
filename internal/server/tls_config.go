package server

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/http"
	"time"

	"messer/internal/logger"
)

// TLSConfig TLS settings for the HTTP listener
type TLSConfig struct {
	CertFile string
	KeyFile  string
	Enabled  bool
}

func NewTLSConfig(certFile, keyFile string, enabled bool) *TLSConfig {
	return &TLSConfig{
		CertFile: certFile,
		KeyFile:  keyFile,
		Enabled:  enabled,
	}
}

// GetTLSConfig returns the server TLS settings: TLS 1.2+ with AEAD suites.
func (c *TLSConfig) GetTLSConfig() *tls.Config {
	return &tls.Config{
		MinVersion: tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305_SHA256,
		},
	}
}

// ValidateCertificates checks that the key pair loads.
func (c *TLSConfig) ValidateCertificates() error {
	if !c.Enabled {
		return nil
	}
	if _, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile); err != nil {
		return fmt.Errorf("load tls key pair: %w", err)
	}
	return nil
}

// NewHTTPServer builds the listener. Write timeouts are left unset because
// websocket connections are long lived after the upgrade.
func (c *TLSConfig) NewHTTPServer(addr string, handler http.Handler) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	if c.Enabled {
		srv.TLSConfig = c.GetTLSConfig()
	}
	return srv
}

// Serve blocks until srv stops. http.ErrServerClosed is reported as nil.
func (c *TLSConfig) Serve(srv *http.Server) error {
	var err error
	if c.Enabled {
		logger.Info("https server listening", "addr", srv.Addr, "cert", c.CertFile)
		err = srv.ListenAndServeTLS(c.CertFile, c.KeyFile)
	} else {
		logger.Info("http server listening", "addr", srv.Addr)
		err = srv.ListenAndServe()
	}
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}
