package identity

import (
	"crypto/tls"
	"crypto/x509"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvisionWritesLoadableKeyPair(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "device.crt")
	keyPath := filepath.Join(dir, "device.key")

	require.NoError(t, Provision("dev-1", certPath, keyPath))

	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	require.NoError(t, err)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	assert.Equal(t, "dev-1", parsed.Subject.CommonName)
}

func TestGenerateEd25519IdentityRoundTrips(t *testing.T) {
	cert, pub, err := GenerateEd25519Identity("device-1")
	require.NoError(t, err)
	require.Len(t, cert.Certificate, 1)

	parsed, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)

	extracted, err := PublicKeyFromCertificate(parsed)
	require.NoError(t, err)
	assert.Equal(t, []byte(pub), extracted)
}

func TestFingerprintIsStableAndShort(t *testing.T) {
	key := []byte{0xde, 0xad, 0xbe, 0xef, 0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	a := Fingerprint(key)
	b := Fingerprint(key)
	assert.Equal(t, a, b)
	assert.Len(t, a, 16) // 8 bytes hex-encoded
}
