// Copyright 2026 The OpenTrusty Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package pki

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/pkcs12"
)

// NewTLSConfig builds the client TLS configuration used to authenticate to
// the subsystem. Exactly one of PEMPath and PKCS12Path must be set.
func NewTLSConfig(cfg Config) (*tls.Config, error) {
	var (
		cert tls.Certificate
		err  error
	)

	switch {
	case cfg.PEMPath != "" && cfg.PKCS12Path != "":
		return nil, fmt.Errorf("only one of pem path and pkcs12 path may be set")
	case cfg.PEMPath != "":
		cert, err = loadPEMCertificate(cfg.PEMPath)
	case cfg.PKCS12Path != "":
		cert, err = loadPKCS12Certificate(cfg.PKCS12Path, cfg.PKCS12Password)
	default:
		return nil, fmt.Errorf("pem path or pkcs12 path is required")
	}
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		MinVersion:   tls.VersionTLS12,
		Certificates: []tls.Certificate{cert},
	}

	if cfg.CABundlePath != "" {
		bundle, err := os.ReadFile(cfg.CABundlePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA bundle: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(bundle) {
			return nil, fmt.Errorf("no certificates found in CA bundle %s", cfg.CABundlePath)
		}
		tlsConfig.RootCAs = pool
	}

	return tlsConfig, nil
}

// loadPEMCertificate reads a single file holding both the client certificate
// and its private key.
func loadPEMCertificate(path string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read pem file: %w", err)
	}
	cert, err := tls.X509KeyPair(data, data)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate from %s: %w", path, err)
	}
	return cert, nil
}

func loadPKCS12Certificate(path, password string) (tls.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to read pkcs12 file: %w", err)
	}

	blocks, err := pkcs12.ToPEM(data, password)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to decode pkcs12 bundle: %w", err)
	}

	var pemData []byte
	for _, b := range blocks {
		pemData = append(pemData, pem.EncodeToMemory(b)...)
	}

	cert, err := tls.X509KeyPair(pemData, pemData)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("failed to load client certificate from %s: %w", path, err)
	}
	return cert, nil
}
