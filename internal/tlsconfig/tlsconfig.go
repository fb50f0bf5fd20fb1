// Package tlsconfig loads server TLS material and can mint a self-signed
// certificate on demand.
package tlsconfig

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"
)

// Sentinel errors distinguishing the ways loading TLS material can fail.
var (
	ErrCertNotFound = errors.New("tlsconfig: certificate file not found")
	ErrKeyNotFound  = errors.New("tlsconfig: private key file not found")
	ErrParse        = errors.New("tlsconfig: failed to parse certificate/key")
	ErrNoKeyFound   = errors.New("tlsconfig: no private key found in key file")
)

// LoadServerConfig reads a PEM-encoded certificate chain and private key
// (tls.X509KeyPair transparently supports both PKCS#8 and SEC1/PKCS#1
// encodings) and builds a server-side *tls.Config advertising TLS 1.2 and
// 1.3 with ALPN offering h2 and http/1.1.
func LoadServerConfig(certFile, keyFile string) (*tls.Config, error) {
	if _, err := os.Stat(certFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrCertNotFound, certFile)
	}
	if _, err := os.Stat(keyFile); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, keyFile)
	}

	certPEM, err := os.ReadFile(certFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading cert: %v", ErrParse, err)
	}
	keyPEM, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: reading key: %v", ErrParse, err)
	}
	if block, _ := pem.Decode(keyPEM); block == nil {
		return nil, ErrNoKeyFound
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		MaxVersion:   tls.VersionTLS13,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}

const selfSignedValidity = 365 * 24 * time.Hour

// GenerateSelfSigned produces an ECDSA P-256 self-signed certificate valid
// for hostname (plus localhost/127.0.0.1 as SANs), writing cert_path with
// mode 0644 and key_path with mode 0600, both under outDir.
func GenerateSelfSigned(hostname, outDir string) (certPath, keyPath string, err error) {
	priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return "", "", fmt.Errorf("generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", fmt.Errorf("generate serial: %w", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   hostname,
			Organization: []string{"FerraGate"},
			Country:      []string{"US"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(selfSignedValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              dnsNames(hostname),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &priv.PublicKey, priv)
	if err != nil {
		return "", "", fmt.Errorf("create certificate: %w", err)
	}

	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", "", fmt.Errorf("create output dir: %w", err)
	}

	certPath = filepath.Join(outDir, hostname+".crt")
	keyPath = filepath.Join(outDir, hostname+".key")

	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certPath, certOut, 0o644); err != nil {
		return "", "", fmt.Errorf("write certificate: %w", err)
	}

	keyBytes, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return "", "", fmt.Errorf("marshal private key: %w", err)
	}
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyBytes})
	if err := os.WriteFile(keyPath, keyOut, 0o600); err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}

	return certPath, keyPath, nil
}

func dnsNames(hostname string) []string {
	names := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		names = append([]string{hostname}, names...)
	}
	return names
}
