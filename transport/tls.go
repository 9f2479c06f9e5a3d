package transport

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// ALPN is the protocol negotiated over every QUIC connection this package
// opens or accepts.
const ALPN = "ample/0.1"

// ServerTLSConfig loads a single (cert, key) PEM pair. The server never
// requests client certificates (spec §4.2); the FQDN embedded in the cert
// is the authoritative server name and it is the client's job to verify
// it, not the server's.
func ServerTLSConfig(certPath, keyPath string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("transport: load TLS identity: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		NextProtos:   []string{ALPN},
		MinVersion:   tls.VersionTLS13,
	}, nil
}

// ClientTLSConfig builds a dedicated root store containing exactly the
// operator-supplied PEM (pinning; no system roots) and requires the
// server certificate's name to match expectedFQDN.
func ClientTLSConfig(trustedCertPEMPath, expectedFQDN string) (*tls.Config, error) {
	pem, err := os.ReadFile(trustedCertPEMPath)
	if err != nil {
		return nil, fmt.Errorf("transport: read trusted cert: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("transport: %s contains no usable certificate", trustedCertPEMPath)
	}
	return &tls.Config{
		RootCAs:    pool,
		ServerName: expectedFQDN,
		NextProtos: []string{ALPN},
		MinVersion: tls.VersionTLS13,
	}, nil
}
