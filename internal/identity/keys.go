// Package identity provides the cryptographic-identity helpers shared by
// the transport and fleet layers: extracting a device's long-term public
// key from its certificate, and generating self-signed certs for tests and
// the wasmctl key-generation helper.
package identity

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// PublicKeyFromCertificate extracts the raw public key from a verified peer
// certificate: the Ed25519 key bytes, the uncompressed elliptic.Marshal
// point for ECDSA, or the PKCS#1 encoding for RSA (not the certificate's
// SubjectPublicKeyInfo DER). This is the device/gateway identity per
// spec.md §6; other key types are rejected.
func PublicKeyFromCertificate(cert *x509.Certificate) ([]byte, error) {
	switch pub := cert.PublicKey.(type) {
	case ed25519.PublicKey:
		return []byte(pub), nil
	case *ecdsa.PublicKey:
		return elliptic.Marshal(pub.Curve, pub.X, pub.Y), nil
	case *rsa.PublicKey:
		return x509.MarshalPKCS1PublicKey(pub), nil
	default:
		return nil, fmt.Errorf("identity: unsupported public key type %T", pub)
	}
}

// Fingerprint returns a stable hex string for a public key, suitable for
// logging without dumping raw key material.
func Fingerprint(pub []byte) string {
	if len(pub) > 8 {
		return hex.EncodeToString(pub[:8])
	}
	return hex.EncodeToString(pub)
}

// GenerateEd25519Identity creates a fresh Ed25519 key pair and a matching
// self-signed certificate, used by device simulators and tests that need a
// throwaway long-term identity without a real provisioning flow.
func GenerateEd25519Identity(commonName string) (tls.Certificate, ed25519.PublicKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * 365 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, pub, priv)
	if err != nil {
		return tls.Certificate{}, nil, err
	}

	cert := tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  priv,
	}
	return cert, pub, nil
}
