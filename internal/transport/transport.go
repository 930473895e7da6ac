// Package transport implements the certificate-pinned mutual-auth channel
// (spec.md §4.2) that carries framed protocol.Message values between a
// device and its gateway. The server never lets application-level bytes
// reach the session layer until an authorization predicate accepts the
// peer's public key — unauthorized peers are closed right after handshake.
package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/protocol"
)

// ErrUnauthorized is returned (and never sent over the wire) when the
// authorization predicate rejects a peer.
var ErrUnauthorized = errors.New("transport: peer not authorized")

// DefaultReadTimeout bounds every Recv call, per spec.md §5 ("every
// transport read is wrapped in a deadline").
const DefaultReadTimeout = 30 * time.Second

// Authorizer decides whether a peer, identified by its raw public key, may
// proceed past the handshake. It is the boundary where enrollment policy
// (pairing mode) is enforced — see internal/gateway.
type Authorizer func(peerPublicKey []byte) bool

// Conn wraps a TLS connection and the peer identity extracted from its
// verified certificate. It exposes whole protocol.Message values, not raw
// bytes: Send/Recv handle framing internally.
type Conn struct {
	tlsConn     *tls.Conn
	peerPubKey  []byte
	readTimeout time.Duration
}

// PeerPublicKey returns the raw public key from the certificate the peer
// presented during the handshake, as extracted by
// identity.PublicKeyFromCertificate.
func (c *Conn) PeerPublicKey() []byte { return c.peerPubKey }

// RemoteAddr returns the underlying network peer address.
func (c *Conn) RemoteAddr() net.Addr { return c.tlsConn.RemoteAddr() }

// Send frames and writes msg.
func (c *Conn) Send(msg protocol.Message) error {
	return protocol.WriteMessage(c.tlsConn, msg)
}

// Recv blocks until one complete protocol.Message arrives or the read
// deadline elapses.
func (c *Conn) Recv() (protocol.Message, error) {
	deadline := c.readTimeout
	if deadline <= 0 {
		deadline = DefaultReadTimeout
	}
	if err := c.tlsConn.SetReadDeadline(time.Now().Add(deadline)); err != nil {
		return nil, err
	}
	return protocol.ReadMessage(c.tlsConn)
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.tlsConn.Close() }

func peerPublicKeyFrom(state tls.ConnectionState) ([]byte, error) {
	if len(state.PeerCertificates) == 0 {
		return nil, errors.New("transport: no peer certificate presented")
	}
	return identity.PublicKeyFromCertificate(state.PeerCertificates[0])
}

// acceptVerifyFunc builds a VerifyPeerCertificate callback that accepts any
// client certificate shape (self-signed devices are the norm here — trust
// is established by the gateway's authorization predicate, not by chain
// validation) but still enforces the certificate's own validity window.
func acceptVerifyFunc() func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return errors.New("transport: client presented no certificate")
		}
		cert, err := x509.ParseCertificate(rawCerts[0])
		if err != nil {
			return fmt.Errorf("transport: parse client certificate: %w", err)
		}
		now := time.Now()
		if now.Before(cert.NotBefore) || now.After(cert.NotAfter) {
			return errors.New("transport: client certificate not currently valid")
		}
		return nil
	}
}

// dialWithContext adapts net.Dialer to honor ctx cancellation for the initial
// TCP connect, independent of the per-Recv read deadline applied later.
func dialWithContext(ctx context.Context, network, addr string, timeout time.Duration) (net.Conn, error) {
	d := net.Dialer{Timeout: timeout}
	return d.DialContext(ctx, network, addr)
}
