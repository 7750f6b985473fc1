package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var certEpoch = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

// writeTestCertificate writes a self-signed localhost certificate and key
func writeTestCertificate(t *testing.T, dir string) (certFile, keyFile string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "rbacdash.local"},
		NotBefore:             certEpoch,
		NotAfter:              certEpoch.Add(30 * 24 * time.Hour),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"rbacdash.local", "localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}

	certFile = filepath.Join(dir, "cert.pem")
	keyFile = filepath.Join(dir, "key.pem")
	if err := os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600); err != nil {
		t.Fatal(err)
	}
	return certFile, keyFile
}

func TestLoadCertificate(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, dir)

	t.Run("valid certificate", func(t *testing.T) {
		cfg, err := LoadCertificate(certFile, keyFile)
		if err != nil {
			t.Fatalf("LoadCertificate() error = %v", err)
		}
		if len(cfg.Certificates) != 1 || cfg.MinVersion != tls.VersionTLS12 {
			t.Errorf("config = %+v", cfg)
		}
	})

	t.Run("missing files", func(t *testing.T) {
		if _, err := LoadCertificate(filepath.Join(dir, "nope.pem"), keyFile); err == nil {
			t.Error("expected error for missing certificate")
		}
	})

	t.Run("swapped files", func(t *testing.T) {
		if _, err := LoadCertificate(keyFile, certFile); err == nil {
			t.Error("expected error for swapped certificate and key")
		}
	})
}

func TestReadCertificateInfo(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeTestCertificate(t, dir)

	info, err := ReadCertificateInfo(certFile)
	if err != nil {
		t.Fatalf("ReadCertificateInfo() error = %v", err)
	}
	if info.Subject != "rbacdash.local" || len(info.DNSNames) != 2 {
		t.Errorf("info = %+v", info)
	}
	if got := info.DaysLeft(certEpoch.Add(10 * 24 * time.Hour)); got != 20 {
		t.Errorf("DaysLeft() = %d, want 20", got)
	}
	if got := info.DaysLeft(certEpoch.Add(31 * 24 * time.Hour)); got >= 0 {
		t.Errorf("DaysLeft() after expiry = %d, want negative", got)
	}

	if _, err := ReadCertificateInfo(keyFile); err == nil {
		t.Error("expected error reading a key file as certificate")
	}
}

func TestACME(t *testing.T) {
	a := NewACME("ops@example.com", []string{"dash.example.com"}, t.TempDir())

	if got := a.Domains(); len(got) != 1 || got[0] != "dash.example.com" {
		t.Errorf("Domains() = %v", got)
	}
	if cfg := a.TLSConfig(); cfg.GetCertificate == nil || cfg.MinVersion != tls.VersionTLS12 {
		t.Errorf("TLSConfig() = %+v", cfg)
	}

	fallback := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	rec := httptest.NewRecorder()
	a.HTTPHandler(fallback).ServeHTTP(rec, httptest.NewRequest("GET", "http://dash.example.com/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("non-challenge request status = %d, want fallback", rec.Code)
	}
}
