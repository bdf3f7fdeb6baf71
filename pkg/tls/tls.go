// Package tls builds crypto/tls configurations for the monitor's outbound
// clients (state store, camera, detector) and for its own HTTP and gRPC
// listeners.
//
// Client side, a CA file pins the trusted roots and a certificate/key pair
// enables mutual TLS; with neither, the system roots are used. Server side,
// a certificate/key pair is required and a CA file turns on client
// certificate verification.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

// Config holds TLS file paths for one side of a connection.
type Config struct {
	Enabled  bool
	CertFile string
	KeyFile  string
	CAFile   string
	// ServerName overrides the name checked against the peer certificate.
	ServerName string
}

// Mutual reports whether a client certificate pair is configured.
func (c Config) Mutual() bool {
	return c.CertFile != "" && c.KeyFile != ""
}

// Validate checks that the configured files exist and that the cert and
// key are given together.
func (c Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	if (c.CertFile == "") != (c.KeyFile == "") {
		return errors.New("tls: cert and key files must be set together")
	}
	for _, path := range []string{c.CertFile, c.KeyFile, c.CAFile} {
		if path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("tls file %q: %w", path, err)
		}
	}
	return nil
}

// NewClientTLSConfig returns the client configuration for c, or nil when
// TLS is disabled and the transport defaults apply.
func NewClientTLSConfig(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, nil
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cfg := &tls.Config{
		MinVersion: tls.VersionTLS12,
		ServerName: c.ServerName,
	}

	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.RootCAs = pool
	}

	if c.Mutual() {
		cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load client certificate: %w", err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	return cfg, nil
}

// NewServerTLSConfig returns the listener configuration for c. Client
// certificates are required and verified when CAFile is set.
func NewServerTLSConfig(c Config) (*tls.Config, error) {
	if !c.Enabled {
		return nil, errors.New("tls: server config requested while disabled")
	}
	if !c.Mutual() {
		return nil, errors.New("tls: server requires cert and key files")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load server certificate: %w", err)
	}

	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS13,
	}

	if c.CAFile != "" {
		pool, err := loadPool(c.CAFile)
		if err != nil {
			return nil, err
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

func loadPool(caFile string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("parse CA certificate %q", caFile)
	}
	return pool, nil
}
