// Package device implements the client side of the wasmbed protocol
// (spec.md §4.5): enrollment, attachment, heartbeat, and application
// deploy/stop handling, driven one step at a time by a single poll loop —
// never spawning goroutines of its own, matching a single-threaded MCU
// firmware's constraints and the teacher's step-function handshake style
// (internal/federation/handshake_v2.go's SendHello/ReceiveHello/...).
package device

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/transport"
	"github.com/wasmbed/wasmbed/internal/wasm"
)

// Phase is the device's own connection/session state, separate from (but
// observed by) the gateway's fleet.DevicePhase.
type Phase string

const (
	PhaseDisconnected Phase = "Disconnected"
	PhaseEnrolling    Phase = "Enrolling"
	PhaseAttaching    Phase = "Attaching"
	PhaseSteady       Phase = "Steady"
)

// Capabilities is what the device advertises in DeviceInfo on attachment.
type Capabilities struct {
	AvailableMemory uint32
	CPUArch         string
	WasmFeatures    string
	MaxAppSize      uint32
}

// Config configures an Agent.
type Config struct {
	GatewayAddr          string
	ClientConfig         transport.ClientConfig // Addr is overwritten with GatewayAddr
	Identity             IdentityStore
	Capabilities         Capabilities
	Limits               wasm.Limits
	HeartbeatInterval    time.Duration
	MissedAckThreshold   int
	EnrollBackoff        time.Duration
	Logger               *slog.Logger
}

type runningApp struct {
	name string
	inst *wasm.Instance
}

// Agent is the device-side session: one struct, one Step method, no
// background goroutines.
type Agent struct {
	cfg    Config
	logger *slog.Logger

	phase         Phase
	conn          *transport.Conn
	deviceUUID    [16]byte
	selfPublicKey []byte

	lastHeartbeatSent time.Time
	missedAcks        int

	apps map[string]*runningApp
}

// NewAgent constructs an Agent in the Disconnected phase.
func NewAgent(cfg Config) *Agent {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 30 * time.Second
	}
	if cfg.MissedAckThreshold <= 0 {
		cfg.MissedAckThreshold = 3
	}
	if cfg.EnrollBackoff <= 0 {
		cfg.EnrollBackoff = 5 * time.Second
	}
	if cfg.Limits == (wasm.Limits{}) {
		cfg.Limits = wasm.DefaultLimits
	}
	return &Agent{
		cfg:    cfg,
		logger: cfg.Logger,
		phase:  PhaseDisconnected,
		apps:   make(map[string]*runningApp),
	}
}

// Phase reports the agent's current state, for tests and diagnostics.
func (a *Agent) Phase() Phase { return a.phase }

// Step advances the agent by exactly one unit of work: dial, run the
// enrollment dance, attach, or service one steady-state read. The caller
// (cmd/device-agent's `for { agent.Step(ctx) }`) drives the cadence.
func (a *Agent) Step(ctx context.Context) error {
	switch a.phase {
	case PhaseDisconnected:
		return a.connect(ctx)
	case PhaseEnrolling:
		return a.runEnrollment(ctx)
	case PhaseAttaching:
		return a.attach(ctx)
	case PhaseSteady:
		return a.steadyStateTick(ctx)
	default:
		return fmt.Errorf("device: unknown phase %q", a.phase)
	}
}

func (a *Agent) connect(ctx context.Context) error {
	cfg := a.cfg.ClientConfig
	cfg.Addr = a.cfg.GatewayAddr
	conn, err := transport.Dial(ctx, cfg)
	if err != nil {
		return fmt.Errorf("device: dial %s: %w", a.cfg.GatewayAddr, err)
	}
	a.conn = conn

	if a.selfPublicKey == nil {
		pub, err := selfPublicKey(a.cfg.ClientConfig)
		if err != nil {
			a.closeConn()
			return fmt.Errorf("device: extract own public key: %w", err)
		}
		a.selfPublicKey = pub
	}

	rec, ok, err := a.cfg.Identity.Load()
	if err != nil {
		a.logger.Warn("device: failed to load persisted identity", "error", err)
	}
	if ok {
		a.deviceUUID = rec.DeviceUUID
		a.phase = PhaseAttaching
	} else {
		a.phase = PhaseEnrolling
	}
	return nil
}

// runEnrollment executes the full spec.md §4.5 step-2 dance synchronously:
// send EnrollmentRequest; await EnrollmentAccepted; send PublicKey; await
// DeviceUuid; send EnrollmentAcknowledgment; await EnrollmentCompleted. On
// rejection or any protocol error, the connection is closed and the agent
// backs off to Disconnected for the next Step to retry.
func (a *Agent) runEnrollment(ctx context.Context) error {
	fail := func(err error) error {
		a.closeConn()
		a.phase = PhaseDisconnected
		time.Sleep(a.cfg.EnrollBackoff)
		return err
	}

	if err := a.conn.Send(protocol.EnrollmentRequest{}); err != nil {
		return fail(fmt.Errorf("device: send EnrollmentRequest: %w", err))
	}
	msg, err := a.conn.Recv()
	if err != nil {
		return fail(fmt.Errorf("device: recv EnrollmentAccepted: %w", err))
	}
	if rej, ok := msg.(protocol.EnrollmentRejected); ok {
		return fail(fmt.Errorf("device: enrollment rejected: %s", rej.Reason))
	}
	if msg.Tag() != protocol.TagEnrollmentAccepted {
		return fail(fmt.Errorf("device: expected EnrollmentAccepted, got %s", msg.Tag()))
	}

	if err := a.conn.Send(protocol.PublicKey{Key: a.selfPublicKey}); err != nil {
		return fail(fmt.Errorf("device: send PublicKey: %w", err))
	}
	msg, err = a.conn.Recv()
	if err != nil {
		return fail(fmt.Errorf("device: recv DeviceUuid: %w", err))
	}
	uuidMsg, ok := msg.(protocol.DeviceUuid)
	if !ok {
		return fail(fmt.Errorf("device: expected DeviceUuid, got %s", msg.Tag()))
	}
	a.deviceUUID = uuidMsg.UUID

	if err := a.conn.Send(protocol.EnrollmentAcknowledgment{}); err != nil {
		return fail(fmt.Errorf("device: send EnrollmentAcknowledgment: %w", err))
	}
	msg, err = a.conn.Recv()
	if err != nil {
		return fail(fmt.Errorf("device: recv EnrollmentCompleted: %w", err))
	}
	if msg.Tag() != protocol.TagEnrollmentCompleted {
		return fail(fmt.Errorf("device: expected EnrollmentCompleted, got %s", msg.Tag()))
	}

	if err := a.cfg.Identity.Save(EnrollmentRecord{DeviceUUID: a.deviceUUID}); err != nil {
		a.logger.Warn("device: failed to persist enrollment record", "error", err)
	}
	a.phase = PhaseAttaching
	return nil
}

func (a *Agent) attach(ctx context.Context) error {
	err := a.conn.Send(protocol.DeviceInfo{
		AvailableMemory: a.cfg.Capabilities.AvailableMemory,
		CPUArch:         a.cfg.Capabilities.CPUArch,
		WasmFeatures:    a.cfg.Capabilities.WasmFeatures,
		MaxAppSize:      a.cfg.Capabilities.MaxAppSize,
	})
	if err != nil {
		a.closeConn()
		a.phase = PhaseDisconnected
		return fmt.Errorf("device: send DeviceInfo: %w", err)
	}
	a.phase = PhaseSteady
	a.lastHeartbeatSent = time.Now()
	a.missedAcks = 0
	return nil
}

// steadyStateTick sends a heartbeat if the heartbeat interval has elapsed,
// then services one read bounded by the connection's read timeout
// (ClientConfig.ReadTimeout): a message arrives and is dispatched, or the
// read times out and the missed-ack check runs.
func (a *Agent) steadyStateTick(ctx context.Context) error {
	if time.Since(a.lastHeartbeatSent) >= a.cfg.HeartbeatInterval {
		if err := a.sendHeartbeat(); err != nil {
			return a.disconnectSteady(fmt.Errorf("device: send Heartbeat: %w", err))
		}
	}

	msg, err := a.conn.Recv()
	if err != nil {
		if isTimeout(err) {
			return a.checkMissedAcks()
		}
		return a.disconnectSteady(fmt.Errorf("device: recv: %w", err))
	}

	switch m := msg.(type) {
	case protocol.HeartbeatAck:
		a.missedAcks = 0
	case protocol.ApplicationDeploy:
		a.handleDeploy(m)
	case protocol.ApplicationStop:
		a.handleStop(m)
	default:
		a.logger.Warn("device: unhandled message in steady state", "type", msg.Tag())
	}
	return nil
}

func (a *Agent) sendHeartbeat() error {
	if err := a.conn.Send(protocol.Heartbeat{}); err != nil {
		return err
	}
	a.lastHeartbeatSent = time.Now()
	return nil
}

func (a *Agent) checkMissedAcks() error {
	if time.Since(a.lastHeartbeatSent) < a.cfg.HeartbeatInterval {
		return nil
	}
	a.missedAcks++
	if a.missedAcks > a.cfg.MissedAckThreshold {
		return a.disconnectSteady(errors.New("device: missed heartbeat ack threshold exceeded"))
	}
	return nil
}

func (a *Agent) disconnectSteady(cause error) error {
	a.closeConn()
	a.phase = PhaseDisconnected
	return cause
}

func (a *Agent) handleDeploy(m protocol.ApplicationDeploy) {
	inst, err := a.loadApp(m.Bytes)
	if err != nil {
		_ = a.conn.Send(protocol.ApplicationDeployAck{AppID: m.AppID, Success: false, Error: err.Error()})
		return
	}

	if runErr := inst.Run(); runErr != nil {
		_ = a.conn.Send(protocol.ApplicationDeployAck{AppID: m.AppID, Success: false, Error: runErr.Error()})
		return
	}

	a.apps[m.AppID] = &runningApp{name: m.Name, inst: inst}
	if err := a.conn.Send(protocol.ApplicationDeployAck{AppID: m.AppID, Success: true}); err != nil {
		a.logger.Warn("device: failed to send ApplicationDeployAck", "app", m.AppID, "error", err)
		return
	}
	_ = a.conn.Send(protocol.ApplicationStatus{AppID: m.AppID, Status: "Running"})
}

func (a *Agent) loadApp(bytecode []byte) (*wasm.Instance, error) {
	if err := wasm.PreValidate(bytecode, a.cfg.Limits); err != nil {
		return nil, err
	}
	mod, err := wasm.Parse(bytecode, a.cfg.Limits)
	if err != nil {
		return nil, err
	}
	return wasm.NewInstance(mod, a.cfg.Limits, a.logger), nil
}

func (a *Agent) handleStop(m protocol.ApplicationStop) {
	delete(a.apps, m.AppID)
	if err := a.conn.Send(protocol.ApplicationStopAck{AppID: m.AppID, Success: true}); err != nil {
		a.logger.Warn("device: failed to send ApplicationStopAck", "app", m.AppID, "error", err)
	}
}

func (a *Agent) closeConn() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// selfPublicKey extracts the device's own long-term public key from its
// leaf certificate, the bytes it must present in PublicKey{key} during
// enrollment so the gateway can cross-check it against the TLS handshake's
// peer key (spec.md §4.5 step 2 / internal/gateway's PublicKey handler).
func selfPublicKey(cfg transport.ClientConfig) ([]byte, error) {
	if len(cfg.DeviceCert.Certificate) == 0 {
		return nil, errors.New("device: DeviceCert has no leaf certificate")
	}
	leaf := cfg.DeviceCert.Leaf
	if leaf == nil {
		var err error
		leaf, err = x509.ParseCertificate(cfg.DeviceCert.Certificate[0])
		if err != nil {
			return nil, err
		}
	}
	return identity.PublicKeyFromCertificate(leaf)
}
