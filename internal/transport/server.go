package transport

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"net"
	"time"
)

// Server presents a certificate signed by a known CA and requires (but does
// not chain-validate) a client certificate on every accepted connection.
// It is the gateway side of C2.
type Server struct {
	listener    net.Listener
	authorize   Authorizer
	readTimeout time.Duration
}

// ServerConfig configures Listen.
type ServerConfig struct {
	// Addr is the TCP address to listen on, e.g. ":4433".
	Addr string
	// ServerCert is the gateway's own certificate chain, presented to
	// every connecting device.
	ServerCert tls.Certificate
	// ReadTimeout bounds every Conn.Recv call; zero uses DefaultReadTimeout.
	ReadTimeout time.Duration
}

// Listen starts accepting TLS connections. The returned Server does not yet
// authorize any peer — callers drive Accept in a loop and apply cfg's
// Authorizer (set separately via SetAuthorizer, so it can be swapped live
// as pairing mode toggles) before handing a Conn to the session layer.
func Listen(cfg ServerConfig) (*Server, error) {
	tlsCfg := &tls.Config{
		Certificates:          []tls.Certificate{cfg.ServerCert},
		ClientAuth:            tls.RequireAnyClientCert,
		MinVersion:            tls.VersionTLS12,
		VerifyPeerCertificate: acceptVerifyFunc(),
	}

	ln, err := tls.Listen("tcp", cfg.Addr, tlsCfg)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", cfg.Addr, err)
	}

	return &Server{
		listener:    ln,
		readTimeout: cfg.ReadTimeout,
	}, nil
}

// SetAuthorizer installs (or replaces) the authorization predicate applied
// to every newly accepted connection, before the handshake ever reaches
// the session layer.
func (s *Server) SetAuthorizer(auth Authorizer) {
	s.authorize = auth
}

// Addr returns the bound listener address.
func (s *Server) Addr() net.Addr { return s.listener.Addr() }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.listener.Close() }

// Accept blocks for the next connection, performs the TLS handshake,
// extracts the peer's public key, and runs the authorization predicate.
// Handshake failures or an Unauthorized verdict close the connection
// without ever returning a *Conn to the caller, satisfying spec.md §4.2's
// "handshake failures close the connection without ever reaching the
// session layer" and §4.6's authorization gate.
func (s *Server) Accept() (*Conn, error) {
	for {
		raw, err := s.listener.Accept()
		if err != nil {
			return nil, err
		}

		tlsConn, ok := raw.(*tls.Conn)
		if !ok {
			raw.Close()
			continue
		}

		if err := tlsConn.Handshake(); err != nil {
			slog.Warn("transport: handshake failed", "remote", raw.RemoteAddr(), "error", err)
			tlsConn.Close()
			continue
		}

		pub, err := peerPublicKeyFrom(tlsConn.ConnectionState())
		if err != nil {
			slog.Warn("transport: could not extract peer identity", "remote", raw.RemoteAddr(), "error", err)
			tlsConn.Close()
			continue
		}

		if s.authorize != nil && !s.authorize(pub) {
			slog.Warn("transport: peer unauthorized, closing", "remote", raw.RemoteAddr(), "fingerprint", fingerprintHex(pub))
			tlsConn.Close()
			continue
		}

		return &Conn{tlsConn: tlsConn, peerPubKey: pub, readTimeout: s.readTimeout}, nil
	}
}

func fingerprintHex(pub []byte) string {
	if len(pub) > 8 {
		pub = pub[:8]
	}
	const hexDigits = "0123456789abcdef"
	out := make([]byte, 2*len(pub))
	for i, b := range pub {
		out[2*i] = hexDigits[b>>4]
		out[2*i+1] = hexDigits[b&0xf]
	}
	return string(out)
}
