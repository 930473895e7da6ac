// Package metrics holds the gateway-side Prometheus counters/gauges
// exposed on the HTTP bind address's /metrics endpoint, grounded on the
// teacher's internal/escrow.Metrics registration style.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every metric the gateway records. A nil *Registry is
// valid everywhere it's used — callers guard with a nil check so metrics
// stay optional for tests and the standalone simulator.
type Registry struct {
	ConnectedDevices prometheus.Gauge
	EnrolledDevices  prometheus.Gauge
	DeploySuccesses  *prometheus.CounterVec
	DeployFailures   *prometheus.CounterVec
	HeartbeatMisses  prometheus.Counter
}

// NewRegistry creates and registers the gateway's metrics against the
// default Prometheus registry.
func NewRegistry() *Registry {
	return &Registry{
		ConnectedDevices: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wasmbed_gateway_connected_devices",
			Help: "Number of devices currently holding a live session with this gateway.",
		}),
		EnrolledDevices: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "wasmbed_gateway_enrolled_devices",
			Help: "Number of devices this gateway has completed enrollment for.",
		}),
		DeploySuccesses: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wasmbed_gateway_deploy_successes_total",
			Help: "ApplicationDeployAck{success=true} messages observed, by application.",
		}, []string{"application"}),
		DeployFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "wasmbed_gateway_deploy_failures_total",
			Help: "ApplicationDeployAck{success=false} messages observed, by application.",
		}, []string{"application"}),
		HeartbeatMisses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "wasmbed_gateway_heartbeat_misses_total",
			Help: "Devices the supervisor sweep demoted to Unreachable for a stale heartbeat.",
		}),
	}
}
