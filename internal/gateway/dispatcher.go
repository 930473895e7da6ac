package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/wasmbed/wasmbed/internal/circuitbreaker"
	"github.com/wasmbed/wasmbed/internal/config"
	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/protocol"
	"github.com/wasmbed/wasmbed/internal/wasm"
)

// dispatchBreakerConfig governs the per-device circuit breaker guarding
// DispatchDeploy/DispatchStop: three consecutive send failures (a device
// that keeps dropping its session) trip the breaker open for 30s, so the
// reconciler's next tick doesn't immediately retry the same doomed send.
func dispatchBreakerConfig(name string) *circuitbreaker.Config {
	return &circuitbreaker.Config{
		Name:        name,
		MaxRequests: 1,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(c circuitbreaker.Counts) bool {
			return c.ConsecutiveFailures >= 3
		},
	}
}

// DispatchDeploy implements fleet.Dispatcher: it runs the deploy-time
// quota pre-check (SPEC_FULL §9, original_source's gateway validation
// pass) before ever shipping the module bytes to a memory-constrained
// device, then forwards ApplicationDeploy over the device's live session,
// behind a per-device circuit breaker.
func (s *Server) DispatchDeploy(ctx context.Context, deviceName string, app fleet.Application) error {
	lim := limitsFromConfig(s.interpreterLimits)
	if err := wasm.PreValidate(app.PayloadBytes, lim); err != nil {
		return fmt.Errorf("gateway: deploy rejected at pre-check: %w", err)
	}

	breaker := s.breakers.GetOrCreate(deviceName, dispatchBreakerConfig(deviceName))
	_, err := breaker.Execute(func() (interface{}, error) {
		conn := s.lookupSession(deviceName)
		if conn == nil {
			return nil, fmt.Errorf("gateway: device %s has no live session", deviceName)
		}
		return nil, conn.Send(protocol.ApplicationDeploy{
			AppID: app.Name,
			Name:  app.DisplayName,
			Bytes: app.PayloadBytes,
		})
	})
	return err
}

// DispatchStop implements fleet.Dispatcher.
func (s *Server) DispatchStop(ctx context.Context, deviceName, appName string) error {
	breaker := s.breakers.GetOrCreate(deviceName, dispatchBreakerConfig(deviceName))
	_, err := breaker.Execute(func() (interface{}, error) {
		conn := s.lookupSession(deviceName)
		if conn == nil {
			return nil, fmt.Errorf("gateway: device %s has no live session", deviceName)
		}
		return nil, conn.Send(protocol.ApplicationStop{AppID: appName})
	})
	return err
}

func limitsFromConfig(ic config.InterpreterConfig) wasm.Limits {
	lim := wasm.DefaultLimits
	if ic.MaxFunctions > 0 {
		lim.MaxFunctions = ic.MaxFunctions
	}
	if ic.MaxOperatorsPerFunction > 0 {
		lim.MaxOperatorsPerFunction = ic.MaxOperatorsPerFunction
	}
	if ic.MaxInstructionCount > 0 {
		lim.MaxInstructionCount = ic.MaxInstructionCount
	}
	if ic.MaxRecursionDepth > 0 {
		lim.MaxRecursionDepth = ic.MaxRecursionDepth
	}
	return lim
}
