package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/store"
	"github.com/wasmbed/wasmbed/internal/transport"
)

func startTestGateway(t *testing.T, st store.Store, pairing *PairingMode) *Server {
	t.Helper()
	gwCert, _, err := identity.GenerateEd25519Identity("gateway")
	require.NoError(t, err)

	srv, err := NewServer(ServerConfig{
		Addr:             "127.0.0.1:0",
		ServerCert:       gwCert,
		HeartbeatTimeout: 2 * time.Second,
		Pairing:          pairing,
		Store:            st,
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	go srv.Serve(ctx)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return srv
}

func dialDevice(t *testing.T, srv *Server) (*transport.Conn, []byte) {
	t.Helper()
	devCert, pub, err := identity.GenerateEd25519Identity("device")
	require.NoError(t, err)

	conn, err := transport.Dial(context.Background(), transport.ClientConfig{
		Addr:        srv.Addr().String(),
		DeviceCert:  devCert,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	return conn, pub
}

func TestEnrollmentFlowMintsDeviceAndIndex(t *testing.T) {
	st := store.NewMemStore()
	pairing := NewPairingMode(time.Minute)
	pairing.Enable()
	srv := startTestGateway(t, st, pairing)

	conn, pub := dialDevice(t, srv)
	defer conn.Close()

	require.NoError(t, conn.Send(protocol.EnrollmentRequest{}))
	msg, err := conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagEnrollmentAccepted, msg.Tag())

	require.NoError(t, conn.Send(protocol.PublicKey{Key: pub}))
	msg, err = conn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagDeviceUuid, msg.Tag())
	deviceUUID := msg.(protocol.DeviceUuid)

	require.NoError(t, conn.Send(protocol.EnrollmentAcknowledgment{}))
	msg, err = conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagEnrollmentCompleted, msg.Tag())

	var name string
	found, err := st.Get(context.Background(), "device_by_pubkey", pubKeyIndex(pub), &name)
	require.NoError(t, err)
	require.True(t, found)
	assert.NotEmpty(t, deviceUUID.UUID)

	var dev fleet.Device
	found, err = st.Get(context.Background(), "device", name, &dev)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fleet.DeviceEnrolled, dev.Phase)
}

func TestEnrollmentRejectedWhenPairingDisabled(t *testing.T) {
	st := store.NewMemStore()
	pairing := NewPairingMode(time.Minute)
	pairing.Enable()
	srv := startTestGateway(t, st, pairing)

	// An unknown key is only admitted while pairing is open, so the session
	// is established first (the heartbeat round trip shows the gateway has
	// authorized it) and pairing is closed before the enrollment request.
	conn, _ := dialDevice(t, srv)
	defer conn.Close()
	require.NoError(t, conn.Send(protocol.Heartbeat{}))
	msg, err := conn.Recv()
	require.NoError(t, err)
	require.Equal(t, protocol.TagHeartbeatAck, msg.Tag())
	pairing.Disable()

	require.NoError(t, conn.Send(protocol.EnrollmentRequest{}))
	msg, err = conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagEnrollmentRejected, msg.Tag())
}

func TestHeartbeatRoundTripForKnownDevice(t *testing.T) {
	st := store.NewMemStore()
	pairing := NewPairingMode(0)
	srv := startTestGateway(t, st, pairing)

	// Register the device before dialing: with pairing closed, only a key
	// already in the store passes the gateway's authorization check.
	devCert, pub, err := identity.GenerateEd25519Identity("device")
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "device", "dev-1", fleet.Device{Name: "dev-1", PublicKey: pub, Phase: fleet.DeviceEnrolled}))
	require.NoError(t, st.Put(ctx, "device_by_pubkey", pubKeyIndex(pub), "dev-1"))

	conn, err := transport.Dial(ctx, transport.ClientConfig{
		Addr:        srv.Addr().String(),
		DeviceCert:  devCert,
		DialTimeout: 2 * time.Second,
		ReadTimeout: 2 * time.Second,
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.Send(protocol.Heartbeat{}))
	msg, err := conn.Recv()
	require.NoError(t, err)
	assert.Equal(t, protocol.TagHeartbeatAck, msg.Tag())
}

func TestSupervisorDemotesStaleHeartbeat(t *testing.T) {
	st := store.NewMemStore()
	gwCert, _, err := identity.GenerateEd25519Identity("gateway")
	require.NoError(t, err)
	srv, err := NewServer(ServerConfig{
		Addr:             "127.0.0.1:0",
		ServerCert:       gwCert,
		HeartbeatTimeout: 10 * time.Millisecond,
		Store:            st,
	})
	require.NoError(t, err)
	defer srv.Close()

	ctx := context.Background()
	require.NoError(t, st.Put(ctx, "device", "dev-1", fleet.Device{
		Name:          "dev-1",
		Phase:         fleet.DeviceConnected,
		LastHeartbeat: time.Now().Add(-time.Hour),
	}))

	srv.sweepStaleDevices(ctx)

	var dev fleet.Device
	found, err := st.Get(ctx, "device", "dev-1", &dev)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, fleet.DeviceUnreachable, dev.Phase)
}
