// Copyright ©2023 Dan Kortschak. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package mtls provides TLS and mutual TLS configuration for control
// connections over tcp.
package mtls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
)

var (
	ErrMissingCertOrKey       = errors.New("root ca set without certificate or key")
	ErrNoValidRootCertificate = errors.New("no valid root certificate")
	ErrMissingCertificate     = errors.New("missing certificate")
	ErrMissingKey             = errors.New("missing key")
)

// Files holds the paths of PEM encoded files used to configure TLS.
type Files struct {
	Root string // CA certificate used to verify the peer.
	Cert string
	Key  string
}

// IsZero returns whether no file is set.
func (f Files) IsZero() bool {
	return f == Files{}
}

func (f Files) read() (root, cert, key []byte, err error) {
	for _, p := range []struct {
		path string
		dst  *[]byte
	}{
		{f.Root, &root},
		{f.Cert, &cert},
		{f.Key, &key},
	} {
		if p.path == "" {
			continue
		}
		*p.dst, err = os.ReadFile(p.path)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to read tls file: %w", err)
		}
	}
	return root, cert, key, nil
}

// ServerConfig returns a server configuration from the files in f.
// See [NewServerConfig].
func (f Files) ServerConfig() (*tls.Config, error) {
	root, cert, key, err := f.read()
	if err != nil {
		return nil, err
	}
	return NewServerConfig(root, cert, key)
}

// ClientConfig returns a client configuration from the files in f.
// See [NewClientConfig].
func (f Files) ClientConfig() (*tls.Config, error) {
	root, cert, key, err := f.read()
	if err != nil {
		return nil, err
	}
	return NewClientConfig(root, cert, key)
}

// NewServerConfig returns a server TLS configuration. If rootPEM is not
// empty, clients must present a certificate signed by it. The server
// certificate is required. If all parameters are empty, a nil config is
// returned.
func NewServerConfig(rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	if len(rootPEM)|len(certPEMBlock)|len(keyPEMBlock) != 0 && len(certPEMBlock) == 0 {
		return nil, ErrMissingCertificate
	}
	return newConfig(true, rootPEM, certPEMBlock, keyPEMBlock)
}

// NewClientConfig returns a client TLS configuration. If rootPEM is not
// empty the server's certificate is verified against it, and the client
// certificate and key are required. If all parameters are empty, a nil
// config is returned.
func NewClientConfig(rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	return newConfig(false, rootPEM, certPEMBlock, keyPEMBlock)
}

func newConfig(server bool, rootPEM, certPEMBlock, keyPEMBlock []byte) (*tls.Config, error) {
	if len(rootPEM) == 0 && len(certPEMBlock) == 0 && len(keyPEMBlock) == 0 {
		return nil, nil
	}
	cfg := &tls.Config{MinVersion: tls.VersionTLS13}
	if len(rootPEM) != 0 {
		if len(certPEMBlock) == 0 || len(keyPEMBlock) == 0 {
			return nil, ErrMissingCertOrKey
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(rootPEM) {
			return nil, ErrNoValidRootCertificate
		}
		if server {
			cfg.ClientCAs = pool
			cfg.ClientAuth = tls.RequireAndVerifyClientCert
		} else {
			cfg.RootCAs = pool
		}
	}
	switch {
	case len(certPEMBlock) == 0 && len(keyPEMBlock) == 0:
		return cfg, nil
	case len(certPEMBlock) == 0:
		return nil, ErrMissingCertificate
	case len(keyPEMBlock) == 0:
		return nil, ErrMissingKey
	}
	cert, err := tls.X509KeyPair(certPEMBlock, keyPEMBlock)
	if err != nil {
		return nil, err
	}
	cfg.Certificates = []tls.Certificate{cert}
	return cfg, nil
}
