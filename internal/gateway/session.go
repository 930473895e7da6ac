package gateway

import (
	"bytes"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/transport"
)

// enrollingPeer tracks an in-progress enrollment for one connection: the
// gateway has accepted EnrollmentRequest but hasn't yet minted a device
// identifier.
type enrollingPeer struct {
	active bool
}

// handleConn runs the session loop for one accepted connection: strict
// FIFO request/reply, suspending only on Recv/Send and the store.
func (s *Server) handleConn(ctx context.Context, conn *transport.Conn) {
	peerKey := conn.PeerPublicKey()
	deviceName, known := s.deviceNameForKey(peerKey)
	enrolling := enrollingPeer{}

	defer func() {
		conn.Close()
		if deviceName != "" {
			s.onDisconnect(deviceName)
		}
	}()

	if known {
		s.onAttach(deviceName, conn)
	}

	for {
		msg, err := conn.Recv()
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case protocol.Heartbeat:
			if deviceName != "" {
				s.touchHeartbeat(deviceName)
			}
			if err := conn.Send(protocol.HeartbeatAck{}); err != nil {
				return
			}

		case protocol.EnrollmentRequest:
			if !s.pairing.Enabled() {
				_ = conn.Send(protocol.EnrollmentRejected{Reason: "pairing mode is not enabled"})
				return
			}
			enrolling.active = true
			if err := conn.Send(protocol.EnrollmentAccepted{}); err != nil {
				return
			}

		case protocol.PublicKey:
			if !enrolling.active {
				_ = conn.Send(protocol.EnrollmentRejected{Reason: "unexpected PublicKey outside an enrollment flow"})
				return
			}
			if !bytes.Equal(m.Key, peerKey) {
				_ = conn.Send(protocol.EnrollmentRejected{Reason: "presented key does not match the TLS peer key"})
				return
			}
			newName := uuid.NewString()
			dev := fleet.Device{Name: newName, PublicKey: peerKey, Phase: fleet.DevicePending}
			dev.Phase = fleet.TransitionDevice(s.logger, newName, dev.Phase, fleet.DeviceEnrolling)
			dev.Phase = fleet.TransitionDevice(s.logger, newName, dev.Phase, fleet.DeviceEnrolled)
			if err := s.persistNewDevice(dev); err != nil {
				s.logger.Warn("gateway: failed to persist enrolled device", "error", err)
				_ = conn.Send(protocol.EnrollmentRejected{Reason: "internal error persisting device record"})
				return
			}
			deviceName = newName
			if err := conn.Send(protocol.DeviceUuid{UUID: deviceUUIDBytes(newName)}); err != nil {
				return
			}

		case protocol.EnrollmentAcknowledgment:
			if err := conn.Send(protocol.EnrollmentCompleted{}); err != nil {
				return
			}
			enrolling.active = false

		case protocol.DeviceInfo:
			if deviceName == "" {
				return
			}
			s.onAttach(deviceName, conn)

		case protocol.ApplicationStatus:
			s.recordDeviceAppStatus(deviceName, m.AppID, fleet.DeviceAppStatus{
				Phase:         deviceAppPhaseFromStatus(m.Status),
				LastHeartbeat: time.Now(),
				Error:         m.Error,
			})

		case protocol.ApplicationDeployAck:
			phase := fleet.DeviceAppDeploying
			if m.Success {
				phase = fleet.DeviceAppRunning
			} else {
				phase = fleet.DeviceAppFailed
			}
			s.recordDeviceAppStatus(deviceName, m.AppID, fleet.DeviceAppStatus{Phase: phase, Error: m.Error})
			if s.metrics != nil {
				if m.Success {
					s.metrics.DeploySuccesses.WithLabelValues(m.AppID).Inc()
				} else {
					s.metrics.DeployFailures.WithLabelValues(m.AppID).Inc()
				}
			}

		case protocol.ApplicationStopAck:
			s.recordDeviceAppStatus(deviceName, m.AppID, fleet.DeviceAppStatus{Phase: fleet.DeviceAppStopped})

		default:
			s.logger.Warn("gateway: unhandled message type on session", "device", deviceName, "type", msg.Tag())
		}
	}
}

func deviceAppPhaseFromStatus(status string) fleet.DeviceAppPhase {
	switch status {
	case string(fleet.DeviceAppRunning), string(fleet.DeviceAppFailed), string(fleet.DeviceAppStopped):
		return fleet.DeviceAppPhase(status)
	default:
		return fleet.DeviceAppDeploying
	}
}

// deviceUUIDBytes derives a stable 16-byte identifier for the wire
// DeviceUuid message from the device's store name (a uuid.NewString()
// value), parsing it back into raw bytes.
func deviceUUIDBytes(deviceName string) [16]byte {
	parsed, err := uuid.Parse(deviceName)
	if err != nil {
		return [16]byte{}
	}
	return parsed
}

func (s *Server) onAttach(deviceName string, conn *transport.Conn) {
	s.setSession(deviceName, conn)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var dev fleet.Device
	found, err := s.store.Get(ctx, "device", deviceName, &dev)
	if err != nil || !found {
		return
	}
	dev.Phase = fleet.TransitionDevice(s.logger, deviceName, dev.Phase, fleet.DeviceConnected)
	dev.Gateway = fleet.GatewayRef{Name: s.selfName(), AttachedAt: time.Now()}
	dev.LastHeartbeat = time.Now()
	if err := s.store.Put(ctx, "device", deviceName, dev); err != nil {
		s.logger.Warn("gateway: failed to persist attach", "device", deviceName, "error", err)
		return
	}
	s.publishDevice(deviceName, dev.Phase)
}

func (s *Server) onDisconnect(deviceName string) {
	s.clearSession(deviceName)

	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var dev fleet.Device
	found, err := s.store.Get(ctx, "device", deviceName, &dev)
	if err != nil || !found {
		return
	}
	dev.Phase = fleet.TransitionDevice(s.logger, deviceName, dev.Phase, fleet.DeviceDisconnected)
	dev.Gateway = fleet.GatewayRef{}
	if err := s.store.Put(ctx, "device", deviceName, dev); err != nil {
		s.logger.Warn("gateway: failed to persist disconnect", "device", deviceName, "error", err)
		return
	}
	s.publishDevice(deviceName, dev.Phase)
}

func (s *Server) touchHeartbeat(deviceName string) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var dev fleet.Device
	found, err := s.store.Get(ctx, "device", deviceName, &dev)
	if err != nil || !found {
		return
	}
	dev.LastHeartbeat = time.Now()
	if err := s.store.Put(ctx, "device", deviceName, dev); err != nil {
		s.logger.Warn("gateway: failed to persist heartbeat", "device", deviceName, "error", err)
	}
}

func (s *Server) persistNewDevice(dev fleet.Device) error {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	if err := s.store.Put(ctx, "device", dev.Name, dev); err != nil {
		return err
	}
	if err := s.store.Put(ctx, "device_by_pubkey", pubKeyIndex(dev.PublicKey), dev.Name); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.EnrolledDevices.Inc()
	}
	return nil
}

func (s *Server) recordDeviceAppStatus(deviceName, appID string, status fleet.DeviceAppStatus) {
	if deviceName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()

	var app fleet.Application
	err := s.store.Update(ctx, "application", appID, &app, func() error {
		if app.DeviceStatus == nil {
			app.DeviceStatus = make(map[string]fleet.DeviceAppStatus)
		}
		app.DeviceStatus[deviceName] = status
		app.Phase = fleet.TransitionApplication(s.logger, appID, app.Phase, fleet.AggregatePhase(app.DeviceStatus))
		return nil
	})
	if err != nil {
		s.logger.Warn("gateway: failed to record application status", "application", appID, "device", deviceName, "error", err)
		return
	}
	s.publishApplication(appID, app.Phase)
}

func (s *Server) selfName() string {
	if s.transport == nil {
		return ""
	}
	return s.transport.Addr().String()
}
