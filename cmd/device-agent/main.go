package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wasmbed/wasmbed/internal/device"
	"github.com/wasmbed/wasmbed/internal/identity"
	"github.com/wasmbed/wasmbed/internal/transport"
	"github.com/wasmbed/wasmbed/internal/wasm"
)

func main() {
	gatewayAddr := flag.String("gateway", ":4433", "gateway address (host:port)")
	certPath := flag.String("cert", "", "device certificate path (PEM); a throwaway identity is generated if empty")
	keyPath := flag.String("key", "", "device private key path (PEM), required alongside -cert")
	identityPath := flag.String("identity-file", "device-identity.json", "where the enrollment record (device UUID) persists across restarts")
	heartbeatSec := flag.Int("heartbeat-period-sec", 30, "heartbeat emission cadence")
	missedAckThreshold := flag.Int("missed-ack-threshold", 3, "missed heartbeat acks tolerated before disconnecting")
	flag.Parse()

	logger := slog.Default()

	deviceCert, err := loadOrGenerateIdentity(*certPath, *keyPath)
	if err != nil {
		log.Fatalf("device-agent: load identity: %v", err)
	}

	agent := device.NewAgent(device.Config{
		GatewayAddr: *gatewayAddr,
		ClientConfig: transport.ClientConfig{
			DeviceCert:  deviceCert,
			DialTimeout: 10 * time.Second,
		},
		Identity: device.NewFileIdentityStore(*identityPath),
		Capabilities: device.Capabilities{
			AvailableMemory: 64 * 1024,
			CPUArch:         "cortex-m4",
			WasmFeatures:    "mvp",
			MaxAppSize:      16 * 1024,
		},
		Limits:             wasm.DefaultLimits,
		HeartbeatInterval:  time.Duration(*heartbeatSec) * time.Second,
		MissedAckThreshold: *missedAckThreshold,
		Logger:             logger,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("device-agent: shutting down")
		cancel()
	}()

	logger.Info("device-agent: starting", "gateway", *gatewayAddr)

	lastPhase := agent.Phase()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if err := agent.Step(ctx); err != nil {
			logger.Warn("device-agent: step failed", "phase", lastPhase, "error", err)
			if agent.Phase() == device.PhaseDisconnected {
				time.Sleep(time.Second)
			}
		}
		if agent.Phase() != lastPhase {
			logger.Info("device-agent: phase change", "from", lastPhase, "to", agent.Phase())
			lastPhase = agent.Phase()
		}
	}
}

// loadOrGenerateIdentity reads a PEM cert/key pair from disk, or mints a
// throwaway Ed25519 identity when none is configured — convenient for
// local simulation, never for a provisioned fleet.
func loadOrGenerateIdentity(certPath, keyPath string) (tls.Certificate, error) {
	if certPath == "" || keyPath == "" {
		cert, _, err := identity.GenerateEd25519Identity("wasmbed-device-agent")
		return cert, err
	}
	return tls.LoadX509KeyPair(certPath, keyPath)
}
