package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	cryptotls "crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeSelfSigned writes a CA-capable self-signed cert and its key to dir.
func writeSelfSigned(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "linecast-test"},
		DNSNames:              []string{"localhost"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal key: %v", err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestConfig_Validate(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSigned(t, dir)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled", cfg: Config{CertFile: "/missing"}},
		{name: "system roots", cfg: Config{Enabled: true}},
		{name: "ca only", cfg: Config{Enabled: true, CAFile: cert}},
		{name: "mutual", cfg: Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: cert}},
		{name: "cert without key", cfg: Config{Enabled: true, CertFile: cert}, wantErr: true},
		{name: "missing ca", cfg: Config{Enabled: true, CAFile: filepath.Join(dir, "nope.pem")}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestNewClientTLSConfig(t *testing.T) {
	cert, key := writeSelfSigned(t, t.TempDir())

	cfg, err := NewClientTLSConfig(Config{})
	if err != nil || cfg != nil {
		t.Fatalf("disabled: cfg = %v, err = %v", cfg, err)
	}

	cfg, err = NewClientTLSConfig(Config{Enabled: true, CAFile: cert, ServerName: "localhost"})
	if err != nil {
		t.Fatalf("ca only: %v", err)
	}
	if cfg.RootCAs == nil || len(cfg.Certificates) != 0 || cfg.ServerName != "localhost" {
		t.Errorf("ca only config = %+v", cfg)
	}

	cfg, err = NewClientTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key})
	if err != nil {
		t.Fatalf("mutual: %v", err)
	}
	if len(cfg.Certificates) != 1 || cfg.RootCAs != nil {
		t.Errorf("mutual config: certs = %d, roots = %v", len(cfg.Certificates), cfg.RootCAs)
	}
}

func TestNewServerTLSConfig(t *testing.T) {
	dir := t.TempDir()
	cert, key := writeSelfSigned(t, dir)

	cfg, err := NewServerTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key})
	if err != nil {
		t.Fatalf("NewServerTLSConfig() error = %v", err)
	}
	if cfg.ClientAuth != cryptotls.NoClientCert {
		t.Errorf("ClientAuth = %v without CA", cfg.ClientAuth)
	}

	cfg, err = NewServerTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: cert})
	if err != nil {
		t.Fatalf("NewServerTLSConfig() mutual error = %v", err)
	}
	if cfg.ClientAuth != cryptotls.RequireAndVerifyClientCert || cfg.MinVersion != cryptotls.VersionTLS13 {
		t.Errorf("mutual server config = auth %v, min %x", cfg.ClientAuth, cfg.MinVersion)
	}

	if _, err := NewServerTLSConfig(Config{Enabled: true}); err == nil {
		t.Error("expected error without cert and key")
	}
	if _, err := NewServerTLSConfig(Config{CertFile: cert, KeyFile: key}); err == nil {
		t.Error("expected error when disabled")
	}

	bad := filepath.Join(dir, "bad.pem")
	if err := os.WriteFile(bad, []byte("not pem"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewServerTLSConfig(Config{Enabled: true, CertFile: cert, KeyFile: key, CAFile: bad}); err == nil {
		t.Error("expected error for unparsable CA")
	}
}
