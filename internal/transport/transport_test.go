package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/protocol"
)

func startTestServer(t *testing.T, authorize Authorizer) *Server {
	t.Helper()
	gwCert, _, err := identity.GenerateEd25519Identity("gateway")
	require.NoError(t, err)

	srv, err := Listen(ServerConfig{Addr: "127.0.0.1:0", ServerCert: gwCert, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	srv.SetAuthorizer(authorize)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func TestHandshakeAndRoundTripWhenAuthorized(t *testing.T) {
	srv := startTestServer(t, func([]byte) bool { return true })

	serverConns := make(chan *Conn, 1)
	serverErrs := make(chan error, 1)
	go func() {
		c, err := srv.Accept()
		serverConns <- c
		serverErrs <- err
	}()

	devCert, _, err := identity.GenerateEd25519Identity("device-1")
	require.NoError(t, err)

	client, err := Dial(context.Background(), ClientConfig{
		Addr:        srv.Addr().String(),
		DeviceCert:  devCert,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, <-serverErrs)
	serverConn := <-serverConns
	require.NotNil(t, serverConn)
	defer serverConn.Close()

	require.NoError(t, client.Send(&protocol.Heartbeat{}))
	msg, err := serverConn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagHeartbeat, msg.Tag())
}

func TestUnauthorizedPeerNeverReachesSessionLayer(t *testing.T) {
	srv := startTestServer(t, func([]byte) bool { return false })

	accepted := make(chan error, 1)
	go func() {
		_, err := srv.Accept()
		accepted <- err
	}()

	devCert, _, err := identity.GenerateEd25519Identity("rogue-device")
	require.NoError(t, err)

	client, err := Dial(context.Background(), ClientConfig{
		Addr:        srv.Addr().String(),
		DeviceCert:  devCert,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err, "TLS handshake itself succeeds; rejection happens at the authorization gate")

	_, err = client.Recv()
	assert.Error(t, err, "server must close before sending anything to an unauthorized peer")
}

func TestDialRejectsPinnedKeyMismatch(t *testing.T) {
	srv := startTestServer(t, func([]byte) bool { return true })
	go srv.Accept()

	devCert, _, err := identity.GenerateEd25519Identity("device-1")
	require.NoError(t, err)

	_, err = Dial(context.Background(), ClientConfig{
		Addr:         srv.Addr().String(),
		DeviceCert:   devCert,
		DialTimeout:  2 * time.Second,
		ExpectedPeer: []byte("not-the-real-gateway-key"),
	})
	assert.Error(t, err)
}
