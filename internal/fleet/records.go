// Package fleet implements the Device and Application phase state machines
// and reconciliation decision functions of spec.md §4.7, generalized from
// the teacher's federation.HandshakeStateMachine.
package fleet

import "time"

// Device is the persisted record for one enrolled or enrolling device
// (spec.md §3 "Device record").
type Device struct {
	Name             string     `json:"name"`
	PublicKey        []byte     `json:"public_key"`
	PreferredGateway string     `json:"preferred_gateway,omitempty"`
	Phase            DevicePhase `json:"phase"`
	Gateway          GatewayRef `json:"gateway,omitempty"`
	LastHeartbeat    time.Time  `json:"last_heartbeat,omitempty"`
}

// GatewayRef is the assigned-gateway reference carried on a Device record.
type GatewayRef struct {
	Name       string    `json:"name,omitempty"`
	Endpoint   string    `json:"endpoint,omitempty"`
	AttachedAt time.Time `json:"attached_at,omitempty"`
}

func (g GatewayRef) IsZero() bool { return g.Name == "" }

// Gateway is the persisted record for one gateway process.
type Gateway struct {
	Name           string       `json:"name"`
	Endpoint       string       `json:"endpoint"`
	Capabilities   []string     `json:"capabilities,omitempty"`
	Phase          GatewayPhase `json:"phase"`
	ConnectedCount int          `json:"connected_count"`
	EnrolledCount  int          `json:"enrolled_count"`
}

type GatewayPhase string

const (
	GatewayPending GatewayPhase = "Pending"
	GatewayRunning GatewayPhase = "Running"
	GatewayStopped GatewayPhase = "Stopped"
	GatewayFailed  GatewayPhase = "Failed"
)

// DeviceAppPhase is the per-device status an Application tracks for each
// target device.
type DeviceAppPhase string

const (
	DeviceAppDeploying DeviceAppPhase = "Deploying"
	DeviceAppRunning   DeviceAppPhase = "Running"
	DeviceAppFailed    DeviceAppPhase = "Failed"
	DeviceAppStopped   DeviceAppPhase = "Stopped"
)

// DeviceAppStatus is one entry in an Application's per-device status map.
type DeviceAppStatus struct {
	Phase         DeviceAppPhase `json:"phase"`
	LastHeartbeat time.Time      `json:"last_heartbeat,omitempty"`
	RestartCount  int            `json:"restart_count"`
	Error         string         `json:"error,omitempty"`
}

// Selector resolves the target device set for an Application: either an
// explicit name list or the "all devices" sentinel.
type Selector struct {
	Devices []string `json:"devices,omitempty"`
	All     bool     `json:"all,omitempty"`
}

// AppStats are the aggregate counters recomputed on each reconcile.
type AppStats struct {
	Total    int `json:"total"`
	Deployed int `json:"deployed"`
	Running  int `json:"running"`
	Failed   int `json:"failed"`
	Stopped  int `json:"stopped"`
}

// Application is the persisted record for one deployed WebAssembly
// application (spec.md §3 "Application record").
type Application struct {
	Name         string                     `json:"name"`
	DisplayName  string                     `json:"display_name,omitempty"`
	PayloadBytes []byte                     `json:"payload_bytes"`
	Selector     Selector                   `json:"selector"`
	Phase        ApplicationPhase           `json:"phase"`
	DeviceStatus map[string]DeviceAppStatus `json:"device_status,omitempty"`
	Stats        AppStats                   `json:"stats"`
}
