package fleet

import "log/slog"

// DevicePhase is one state in the Device state machine (spec.md §4.7).
type DevicePhase string

const (
	DevicePending      DevicePhase = "Pending"
	DeviceEnrolling    DevicePhase = "Enrolling"
	DeviceEnrolled     DevicePhase = "Enrolled"
	DeviceConnected    DevicePhase = "Connected"
	DeviceDisconnected DevicePhase = "Disconnected"
	DeviceUnreachable  DevicePhase = "Unreachable"
)

// deviceTransitions is the explicit allowed-transition table from spec.md
// §4.7: "Initial Pending → Enrolling → Enrolled → Connected. Connected ⇄
// Disconnected. Connected → Unreachable (by supervisor). Unreachable →
// Connected on re-attach."
var deviceTransitions = map[DevicePhase][]DevicePhase{
	DevicePending:      {DeviceEnrolling},
	DeviceEnrolling:     {DeviceEnrolled},
	DeviceEnrolled:      {DeviceConnected},
	DeviceConnected:     {DeviceDisconnected, DeviceUnreachable},
	DeviceDisconnected:  {DeviceConnected},
	DeviceUnreachable:   {DeviceConnected},
}

// TransitionDevice moves current to next. Unlike the teacher's
// HandshakeStateMachine, an out-of-table transition is not rejected: it is
// applied anyway, with a warning, per spec.md §4.7's observation-driven
// design — device phase is last-writer-wins from reality, not a ledger
// that can refuse what actually happened on the wire.
func TransitionDevice(logger *slog.Logger, deviceName string, current, next DevicePhase) DevicePhase {
	if !deviceTransitionAllowed(current, next) {
		logger.Warn("device phase transition outside table, applying anyway",
			"device", deviceName, "from", current, "to", next)
	}
	return next
}

func deviceTransitionAllowed(from, to DevicePhase) bool {
	for _, s := range deviceTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplicationPhase is one state in the Application state machine.
type ApplicationPhase string

const (
	AppCreating         ApplicationPhase = "Creating"
	AppDeploying        ApplicationPhase = "Deploying"
	AppRunning          ApplicationPhase = "Running"
	AppPartiallyRunning ApplicationPhase = "PartiallyRunning"
	AppFailed           ApplicationPhase = "Failed"
	AppStopping         ApplicationPhase = "Stopping"
	AppStopped          ApplicationPhase = "Stopped"
	AppDeleting         ApplicationPhase = "Deleting"
)

func (p ApplicationPhase) IsTerminal() bool {
	return p == AppStopped
}

var appTransitions = map[ApplicationPhase][]ApplicationPhase{
	AppCreating:         {AppDeploying},
	AppDeploying:        {AppRunning, AppPartiallyRunning, AppFailed, AppStopping},
	AppRunning:          {AppPartiallyRunning, AppStopping},
	AppPartiallyRunning: {AppRunning, AppStopping},
	AppFailed:           {AppDeploying, AppStopping}, // self-healing re-entry
	AppStopping:         {AppStopped},
	AppDeleting:         {AppStopping},
}

// TransitionApplication moves current to next, same apply-and-warn policy
// as TransitionDevice. Deleting is not handled here, and not by the
// reconciler either: ReconcileApplication (reconcile.go) returns early for a
// Deleting record and leaves its phase unchanged, so nothing moves a
// Deleting application to Stopping.
func TransitionApplication(logger *slog.Logger, appName string, current, next ApplicationPhase) ApplicationPhase {
	if !appTransitionAllowed(current, next) {
		logger.Warn("application phase transition outside table, applying anyway",
			"application", appName, "from", current, "to", next)
	}
	return next
}

func appTransitionAllowed(from, to ApplicationPhase) bool {
	for _, s := range appTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// AggregatePhase implements spec.md §4.7's aggregation rule: all Running ⇒
// Running; some Running ⇒ PartiallyRunning; none Running and any Failed ⇒
// Failed; otherwise keep Deploying.
func AggregatePhase(statuses map[string]DeviceAppStatus) ApplicationPhase {
	if len(statuses) == 0 {
		return AppDeploying
	}
	total, running, failed := 0, 0, 0
	for _, s := range statuses {
		total++
		switch s.Phase {
		case DeviceAppRunning:
			running++
		case DeviceAppFailed:
			failed++
		}
	}
	switch {
	case running == total:
		return AppRunning
	case running > 0:
		return AppPartiallyRunning
	case failed > 0:
		return AppFailed
	default:
		return AppDeploying
	}
}
