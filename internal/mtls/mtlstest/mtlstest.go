// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mtlstest provides certificates for testing TLS connections.
package mtlstest

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kortschak/countup/internal/mtls"
)

// PEM holds PEM encoded certificates and keys signed by a common CA.
type PEM struct {
	Root []byte

	ServerCert, ServerKey []byte
	ClientCert, ClientKey []byte
}

// New returns a CA certificate and server and client certificates
// signed by it. The server certificate is valid for localhost.
func New(t testing.TB) PEM {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate ca key: %v", err)
	}
	ca := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "countup test ca"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
	}
	caDER, err := x509.CreateCertificate(rand.Reader, ca, ca, &caKey.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create ca certificate: %v", err)
	}
	ca, err = x509.ParseCertificate(caDER)
	if err != nil {
		t.Fatalf("failed to parse ca certificate: %v", err)
	}

	var p PEM
	p.Root = pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: caDER})
	p.ServerCert, p.ServerKey = leaf(t, ca, caKey, 2, x509.ExtKeyUsageServerAuth)
	p.ClientCert, p.ClientKey = leaf(t, ca, caKey, 3, x509.ExtKeyUsageClientAuth)
	return p
}

func leaf(t testing.TB, ca *x509.Certificate, caKey *ecdsa.PrivateKey, serial int64, usage x509.ExtKeyUsage) (cert, key []byte) {
	t.Helper()

	k, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: "localhost"},
		DNSNames:     []string{"localhost"},
		IPAddresses:  []net.IP{net.IPv4(127, 0, 0, 1), net.IPv6loopback},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{usage},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca, &k.PublicKey, caKey)
	if err != nil {
		t.Fatalf("failed to create certificate: %v", err)
	}
	kDER, err := x509.MarshalECPrivateKey(k)
	if err != nil {
		t.Fatalf("failed to marshal key: %v", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
		pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: kDER})
}

// Write writes the PEM blocks in p to dir and returns the server and
// client file sets.
func (p PEM) Write(dir string) (server, client mtls.Files, err error) {
	files := []struct {
		name string
		data []byte
		dst  *string
	}{
		{"ca.pem", p.Root, &server.Root},
		{"server.pem", p.ServerCert, &server.Cert},
		{"server.key", p.ServerKey, &server.Key},
		{"client.pem", p.ClientCert, &client.Cert},
		{"client.key", p.ClientKey, &client.Key},
	}
	for _, f := range files {
		path := filepath.Join(dir, f.name)
		err = os.WriteFile(path, f.data, 0o600)
		if err != nil {
			return mtls.Files{}, mtls.Files{}, err
		}
		*f.dst = path
	}
	client.Root = server.Root
	return server, client, nil
}
