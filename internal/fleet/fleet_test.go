package fleet

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wasmbed/wasmbed/internal/store"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAssignGatewayIsDeterministic(t *testing.T) {
	running := []string{"gw-a", "gw-b", "gw-c"}

	first, ok := AssignGateway("device-17", "", running)
	require.True(t, ok)

	for i := 0; i < 20; i++ {
		again, ok := AssignGateway("device-17", "", running)
		require.True(t, ok)
		assert.Equal(t, first, again)
	}
}

func TestAssignGatewayPrefersPreferredWhenRunning(t *testing.T) {
	running := []string{"gw-a", "gw-b"}
	gw, ok := AssignGateway("device-1", "gw-b", running)
	require.True(t, ok)
	assert.Equal(t, "gw-b", gw)
}

func TestAssignGatewayFallsBackWhenPreferredNotRunning(t *testing.T) {
	running := []string{"gw-a", "gw-b"}
	gw, ok := AssignGateway("device-1", "gw-missing", running)
	require.True(t, ok)
	assert.Contains(t, running, gw)
}

func TestTransitionDeviceAppliesOutOfTableTransitionWithWarning(t *testing.T) {
	next := TransitionDevice(discardLogger(), "device-1", DevicePending, DeviceConnected)
	assert.Equal(t, DeviceConnected, next)
}

func TestAggregatePhase(t *testing.T) {
	assert.Equal(t, AppDeploying, AggregatePhase(nil))

	assert.Equal(t, AppRunning, AggregatePhase(map[string]DeviceAppStatus{
		"d1": {Phase: DeviceAppRunning},
		"d2": {Phase: DeviceAppRunning},
	}))

	assert.Equal(t, AppPartiallyRunning, AggregatePhase(map[string]DeviceAppStatus{
		"d1": {Phase: DeviceAppRunning},
		"d2": {Phase: DeviceAppFailed},
	}))

	assert.Equal(t, AppFailed, AggregatePhase(map[string]DeviceAppStatus{
		"d1": {Phase: DeviceAppFailed},
		"d2": {Phase: DeviceAppDeploying},
	}))
}

type fakeDispatcher struct {
	deployed []string
}

func (f *fakeDispatcher) DispatchDeploy(_ context.Context, deviceName string, _ Application) error {
	f.deployed = append(f.deployed, deviceName)
	return nil
}

func (f *fakeDispatcher) DispatchStop(context.Context, string, string) error { return nil }

func TestReconcileApplicationDeploysToConnectedTargets(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "device", "dev-1", Device{Name: "dev-1", Phase: DeviceConnected}))
	require.NoError(t, st.Put(ctx, "application", "app-1", Application{
		Name:     "app-1",
		Selector: Selector{Devices: []string{"dev-1"}},
		Phase:    AppDeploying,
	}))

	disp := &fakeDispatcher{}
	require.NoError(t, ReconcileApplication(ctx, discardLogger(), st, disp, "app-1"))

	assert.Equal(t, []string{"dev-1"}, disp.deployed)

	var app Application
	found, err := st.Get(ctx, "application", "app-1", &app)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, DeviceAppDeploying, app.DeviceStatus["dev-1"].Phase)
}

func TestReconcileDevicesAssignsGatewayToEnrolledDevice(t *testing.T) {
	st := store.NewMemStore()
	ctx := context.Background()

	require.NoError(t, st.Put(ctx, "gateway", "gw-1", Gateway{Name: "gw-1", Phase: GatewayRunning}))
	require.NoError(t, st.Put(ctx, "device", "dev-1", Device{Name: "dev-1", Phase: DeviceEnrolled}))

	require.NoError(t, ReconcileDevices(ctx, discardLogger(), st))

	var dev Device
	found, err := st.Get(ctx, "device", "dev-1", &dev)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "gw-1", dev.Gateway.Name)
}
