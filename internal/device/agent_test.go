package device

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/transport"
)

func startEchoGateway(t *testing.T, authorize transport.Authorizer) *transport.Server {
	t.Helper()
	gwCert, _, err := identity.GenerateEd25519Identity("gateway")
	require.NoError(t, err)
	srv, err := transport.Listen(transport.ServerConfig{Addr: "127.0.0.1:0", ServerCert: gwCert, ReadTimeout: 2 * time.Second})
	require.NoError(t, err)
	srv.SetAuthorizer(authorize)
	t.Cleanup(func() { srv.Close() })
	return srv
}

func newTestAgent(t *testing.T, addr string) *Agent {
	t.Helper()
	devCert, _, err := identity.GenerateEd25519Identity("device")
	require.NoError(t, err)

	return NewAgent(Config{
		GatewayAddr: addr,
		ClientConfig: transport.ClientConfig{
			DeviceCert:  devCert,
			DialTimeout: 2 * time.Second,
			ReadTimeout: 200 * time.Millisecond,
		},
		Identity:           NewMemIdentityStore(),
		HeartbeatInterval:  50 * time.Millisecond,
		MissedAckThreshold: 2,
	})
}

func TestAgentEnrollsThenAttaches(t *testing.T) {
	srv := startEchoGateway(t, func([]byte) bool { return true })

	serverConns := make(chan *transport.Conn, 1)
	go func() {
		c, _ := srv.Accept()
		serverConns <- c
	}()

	agent := newTestAgent(t, srv.Addr().String())

	require.NoError(t, agent.Step(context.Background())) // connect
	assert.Equal(t, PhaseEnrolling, agent.Phase())

	serverConn := <-serverConns
	defer serverConn.Close()

	enrollDone := make(chan error, 1)
	go func() { enrollDone <- agent.Step(context.Background()) }()

	msg, err := serverConn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagEnrollmentRequest, msg.Tag())
	require.NoError(t, serverConn.Send(protocol.EnrollmentAccepted{}))

	msg, err = serverConn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagPublicKey, msg.Tag())
	require.NoError(t, serverConn.Send(protocol.DeviceUuid{UUID: [16]byte{1, 2, 3}}))

	msg, err = serverConn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagEnrollmentAcknowledgment, msg.Tag())
	require.NoError(t, serverConn.Send(protocol.EnrollmentCompleted{}))

	require.NoError(t, <-enrollDone)
	assert.Equal(t, PhaseAttaching, agent.Phase())

	require.NoError(t, agent.Step(context.Background())) // attach
	assert.Equal(t, PhaseSteady, agent.Phase())

	msg, err = serverConn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagDeviceInfo, msg.Tag())

	rec, ok, err := agent.cfg.Identity.Load()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, [16]byte{1, 2, 3}, rec.DeviceUUID)
}

func TestAgentSendsHeartbeatOnSteadyTick(t *testing.T) {
	srv := startEchoGateway(t, func([]byte) bool { return true })

	serverConns := make(chan *transport.Conn, 1)
	go func() {
		c, _ := srv.Accept()
		serverConns <- c
	}()

	agent := newTestAgent(t, srv.Addr().String())
	rec := EnrollmentRecord{DeviceUUID: [16]byte{9}}
	require.NoError(t, agent.cfg.Identity.Save(rec))

	require.NoError(t, agent.Step(context.Background())) // connect -> Attaching (persisted record)
	assert.Equal(t, PhaseAttaching, agent.Phase())

	serverConn := <-serverConns
	defer serverConn.Close()

	require.NoError(t, agent.Step(context.Background())) // attach -> Steady
	msg, err := serverConn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagDeviceInfo, msg.Tag())

	agent.lastHeartbeatSent = time.Now().Add(-time.Hour)
	require.NoError(t, agent.Step(context.Background())) // steady tick sends heartbeat, then times out on Recv

	msg, err = serverConn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagHeartbeat, msg.Tag())
}
