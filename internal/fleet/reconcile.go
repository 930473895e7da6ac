package fleet

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wasmbed/wasmbed/internal/store"
)

const storeTimeout = 5 * time.Second

// Dispatcher is the "issue an ApplicationDeploy/Stop via its owning
// gateway" capability the Application reconciler needs. internal/gateway
// provides the concrete implementation; defining the interface here (the
// consumer) rather than there avoids an import cycle and keeps the
// reconciler's contract a plain function over its dependencies, matching
// spec.md §4.7's "decision function, not watch/patch plumbing" scope.
type Dispatcher interface {
	DispatchDeploy(ctx context.Context, deviceName string, app Application) error
	DispatchStop(ctx context.Context, deviceName, appName string) error
}

// ReconcileDevices implements the Device reconciler of spec.md §4.7: every
// Enrolled-but-unassigned device gets a gateway, and any device whose
// referenced gateway has vanished (or stopped running) is demoted to
// Disconnected.
func ReconcileDevices(ctx context.Context, logger *slog.Logger, st store.Store) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	gatewayNames, err := st.List(ctx, "gateway")
	if err != nil {
		return fmt.Errorf("fleet: list gateways: %w", err)
	}
	var running []string
	for _, name := range gatewayNames {
		var gw Gateway
		ok, err := st.Get(ctx, "gateway", name, &gw)
		if err != nil || !ok {
			continue
		}
		if gw.Phase == GatewayRunning {
			running = append(running, gw.Name)
		}
	}
	runningSet := make(map[string]bool, len(running))
	for _, g := range running {
		runningSet[g] = true
	}

	deviceNames, err := st.List(ctx, "device")
	if err != nil {
		return fmt.Errorf("fleet: list devices: %w", err)
	}

	for _, name := range deviceNames {
		var dev Device
		ok, err := st.Get(ctx, "device", name, &dev)
		if err != nil || !ok {
			continue
		}

		if dev.Phase == DeviceEnrolled && dev.Gateway.IsZero() {
			if gw, assigned := AssignGateway(dev.Name, dev.PreferredGateway, running); assigned {
				dev.Gateway = GatewayRef{Name: gw, AttachedAt: time.Now()}
				if err := st.Put(ctx, "device", dev.Name, dev); err != nil {
					logger.Warn("fleet: failed to persist gateway assignment", "device", dev.Name, "error", err)
				}
			}
			continue
		}

		if !dev.Gateway.IsZero() && !runningSet[dev.Gateway.Name] &&
			(dev.Phase == DeviceConnected || dev.Phase == DeviceEnrolled) {
			dev.Phase = TransitionDevice(logger, dev.Name, dev.Phase, DeviceDisconnected)
			dev.Gateway = GatewayRef{}
			if err := st.Put(ctx, "device", dev.Name, dev); err != nil {
				logger.Warn("fleet: failed to persist gateway-vanished demotion", "device", dev.Name, "error", err)
			}
		}
	}

	return nil
}

// ReconcileApplication implements the Application reconciler of spec.md
// §4.7 for one named record: resolve targets, deploy to newly-eligible
// devices, and aggregate per-device status into the application phase.
func ReconcileApplication(ctx context.Context, logger *slog.Logger, st store.Store, disp Dispatcher, appName string) error {
	ctx, cancel := context.WithTimeout(ctx, storeTimeout)
	defer cancel()

	var app Application
	ok, err := st.Get(ctx, "application", appName, &app)
	if err != nil {
		return fmt.Errorf("fleet: load application %s: %w", appName, err)
	}
	if !ok {
		return fmt.Errorf("fleet: application %s not found", appName)
	}

	if app.Phase == AppStopped || app.Phase == AppDeleting {
		return nil
	}

	targets, err := resolveTargets(ctx, st, app.Selector)
	if err != nil {
		return err
	}

	if app.DeviceStatus == nil {
		app.DeviceStatus = make(map[string]DeviceAppStatus)
	}

	for _, deviceName := range targets {
		var dev Device
		ok, err := st.Get(ctx, "device", deviceName, &dev)
		if err != nil || !ok || dev.Phase != DeviceConnected {
			continue
		}

		status, hasStatus := app.DeviceStatus[deviceName]
		needsDeploy := !hasStatus || status.Phase == DeviceAppFailed
		if !needsDeploy {
			continue
		}

		if err := disp.DispatchDeploy(ctx, deviceName, app); err != nil {
			logger.Warn("fleet: deploy dispatch failed", "application", appName, "device", deviceName, "error", err)
			app.DeviceStatus[deviceName] = DeviceAppStatus{Phase: DeviceAppFailed, Error: err.Error()}
			continue
		}
		app.DeviceStatus[deviceName] = DeviceAppStatus{Phase: DeviceAppDeploying}
	}

	app.Phase = TransitionApplication(logger, app.Name, app.Phase, AggregatePhase(app.DeviceStatus))
	app.Stats = computeStats(app.DeviceStatus)

	return st.Put(ctx, "application", app.Name, app)
}

func resolveTargets(ctx context.Context, st store.Store, sel Selector) ([]string, error) {
	if sel.All {
		return st.List(ctx, "device")
	}
	return sel.Devices, nil
}

func computeStats(statuses map[string]DeviceAppStatus) AppStats {
	var s AppStats
	s.Total = len(statuses)
	for _, st := range statuses {
		switch st.Phase {
		case DeviceAppDeploying:
			s.Deployed++
		case DeviceAppRunning:
			s.Running++
		case DeviceAppFailed:
			s.Failed++
		case DeviceAppStopped:
			s.Stopped++
		}
	}
	return s
}
