package pki

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// SystemCertClient reads subsystem certificates from the KRA
type SystemCertClient struct {
	conn *Connection
}

// NewSystemCertClient creates a SystemCertClient over a KRA connection
func NewSystemCertClient(conn *Connection) *SystemCertClient {
	return &SystemCertClient{conn: conn}
}

// GetTransportCert fetches the KRA transport certificate
func (c *SystemCertClient) GetTransportCert(ctx context.Context) (*x509.Certificate, error) {
	var data CertData
	if err := c.conn.Get(ctx, "get_transport_cert", "rest/config/cert/transport", &data); err != nil {
		return nil, err
	}
	return ParseCertificatePEM([]byte(data.Encoded))
}

// LoadCertificateFile reads a PEM certificate from disk
func LoadCertificateFile(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read certificate: %w", err)
	}
	return ParseCertificatePEM(data)
}

// ParseCertificatePEM parses the first certificate in a PEM document
func ParseCertificatePEM(data []byte) (*x509.Certificate, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "CERTIFICATE" {
		return nil, fmt.Errorf("no PEM certificate found")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse certificate: %w", err)
	}
	return cert, nil
}
