package security

import (
	"crypto/tls"
	"path/filepath"
	"testing"

	"github.com/kbukum/crossmatch/security/tlstest"
)

func TestBuildDefaults(t *testing.T) {
	cfg, err := TLSConfig{}.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("expected TLS 1.2 minimum, got %x", cfg.MinVersion)
	}
	if cfg.RootCAs != nil {
		t.Error("expected system roots")
	}
	if cfg.InsecureSkipVerify {
		t.Error("expected verification on")
	}
}

func TestBuildWithCertificates(t *testing.T) {
	certs := tlstest.Generate(t)
	cfg, err := TLSConfig{
		CAFile:     certs.CAFile,
		CertFile:   certs.CertFile,
		KeyFile:    certs.KeyFile,
		ServerName: "broker.internal",
	}.Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.RootCAs == nil {
		t.Fatal("expected the CA pool")
	}
	if len(cfg.Certificates) != 1 {
		t.Errorf("expected 1 client certificate, got %d", len(cfg.Certificates))
	}
	if cfg.ServerName != "broker.internal" {
		t.Errorf("expected server name broker.internal, got %q", cfg.ServerName)
	}
}

func TestBuildErrors(t *testing.T) {
	certs := tlstest.Generate(t)
	cases := map[string]TLSConfig{
		"missing CA":       {CAFile: filepath.Join(t.TempDir(), "missing.pem")},
		"unparsable CA":    {CAFile: tlstest.InvalidPEM(t)},
		"cert without key": {CertFile: certs.CertFile},
		"key is not a key": {CertFile: certs.CertFile, KeyFile: certs.CAFile},
	}
	for name, c := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := c.Build(); err == nil {
				t.Error("expected an error")
			}
		})
	}
}
