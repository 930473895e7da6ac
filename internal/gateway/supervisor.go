package gateway

import (
	"context"
	"time"

	"github.com/wasmbed/wasmbed/internal/fleet"
)

// defaultSweepInterval is the heartbeat-staleness sweep period (spec.md
// §4.6 step 5: "every 30s").
const defaultSweepInterval = 30 * time.Second

// RunSupervisor periodically demotes Connected devices whose heartbeat has
// gone stale to Unreachable, grounded on the teacher's
// TrustScoreDecayScheduler ticker loop (internal/reputation/decay_scheduler.go).
// It blocks until ctx is canceled.
func (s *Server) RunSupervisor(ctx context.Context) {
	s.runSupervisor(ctx, defaultSweepInterval)
}

func (s *Server) runSupervisor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweepStaleDevices(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) sweepStaleDevices(ctx context.Context) {
	listCtx, cancel := context.WithTimeout(ctx, storeTimeout)
	names, err := s.store.List(listCtx, "device")
	cancel()
	if err != nil {
		s.logger.Warn("gateway: supervisor failed to list devices", "error", err)
		return
	}

	now := time.Now()
	for _, name := range names {
		getCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		var dev fleet.Device
		found, err := s.store.Get(getCtx, "device", name, &dev)
		cancel()
		if err != nil || !found || dev.Phase != fleet.DeviceConnected {
			continue
		}
		if now.Sub(dev.LastHeartbeat) <= s.heartbeatTimeout {
			continue
		}

		dev.Phase = fleet.TransitionDevice(s.logger, name, dev.Phase, fleet.DeviceUnreachable)
		dev.Gateway = fleet.GatewayRef{}

		putCtx, cancel := context.WithTimeout(ctx, storeTimeout)
		err = s.store.Put(putCtx, "device", name, dev)
		cancel()
		if err != nil {
			s.logger.Warn("gateway: supervisor failed to persist unreachable device", "device", name, "error", err)
			continue
		}
		s.publishDevice(name, dev.Phase)
		if s.metrics != nil {
			s.metrics.HeartbeatMisses.Inc()
		}
	}
}
