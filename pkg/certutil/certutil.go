// Package certutil generates the self-signed TLS certificate the site's
// own web surface terminates with. It reuses the key-generation shape the
// teacher's ACME client used for its account key, minus any ACME client:
// no public CA is ever contacted, matching the spec's explicit exclusion
// of certificate minting from in-scope functionality.
package certutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"os"
	"time"
)

// Pair is a generated self-signed certificate and its private key, PEM
// encoded and ready to write to disk.
type Pair struct {
	CertPEM []byte
	KeyPEM  []byte
}

// MakeSelfSigned builds a self-signed leaf certificate for hostname,
// valid for validFor.
func MakeSelfSigned(hostname string, validFor time.Duration) (*Pair, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("certutil: generate key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("certutil: generate serial: %w", err)
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: hostname},
		NotBefore:    now.Add(-time.Hour),
		NotAfter:     now.Add(validFor),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		IsCA:         true,
		BasicConstraintsValid: true,
		DNSNames:     []string{hostname},
	}
	if ip := net.ParseIP(hostname); ip != nil {
		template.IPAddresses = []net.IP{ip}
		template.DNSNames = nil
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return nil, fmt.Errorf("certutil: create certificate: %w", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("certutil: marshal key: %w", err)
	}
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	return &Pair{CertPEM: certPEM, KeyPEM: keyPEM}, nil
}

// WriteFiles writes the pair to certPath/keyPath with owner-only
// permissions, matching the site document's own persistence mode.
func (p *Pair) WriteFiles(certPath, keyPath string) error {
	if err := os.WriteFile(certPath, p.CertPEM, 0o600); err != nil {
		return fmt.Errorf("certutil: write cert: %w", err)
	}
	if err := os.WriteFile(keyPath, p.KeyPEM, 0o600); err != nil {
		return fmt.Errorf("certutil: write key: %w", err)
	}
	return nil
}

// ExpiresWithin reports whether the certificate at certPath expires
// within window, reusing the same extraction approach the spec's probe
// TLS-expiry guard uses (notAfter comparison).
func ExpiresWithin(certPath string, window time.Duration) (bool, time.Time, error) {
	data, err := os.ReadFile(certPath)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("certutil: read cert: %w", err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return false, time.Time{}, fmt.Errorf("certutil: no PEM block in %s", certPath)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return false, time.Time{}, fmt.Errorf("certutil: parse cert: %w", err)
	}
	return time.Until(cert.NotAfter) < window, cert.NotAfter, nil
}
