// Package tsa provides an internal RFC 3161 Time Stamping Authority that
// witnesses the SHA-256 digest of a completed run's validation report,
// so a regulator can later prove the report existed, unmodified, at the
// time the run finished — without depending on an external timestamping
// service.
package tsa

import (
	"crypto"
	"crypto/x509"
)

// Config holds TSA server configuration.
type Config struct {
	// Enabled controls whether the TSA is active
	Enabled bool

	// PolicyOID is the timestamp policy OID (e.g., "1.2.3.4.1")
	// This identifies the policy under which timestamps are issued
	PolicyOID string

	// Certificate is the TSA signing certificate
	Certificate *x509.Certificate

	// CertificateChain is the full certificate chain for verification
	CertificateChain []*x509.Certificate

	// PrivateKey is the TSA private key for signing
	// In production, this should come from an HSM
	PrivateKey crypto.Signer

	// HashAlgorithm for timestamp tokens (default: SHA-256)
	HashAlgorithm crypto.Hash

	// AccuracySeconds defines the claimed accuracy of timestamps
	AccuracySeconds int

	// IncludeCertificate includes signing cert in response
	IncludeCertificate bool
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Enabled:            true,
		PolicyOID:          "1.3.6.1.4.1.99999.2.1",
		HashAlgorithm:      crypto.SHA256,
		AccuracySeconds:    1,
		IncludeCertificate: true,
	}
}
