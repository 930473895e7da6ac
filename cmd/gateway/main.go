package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/wasmbed/wasmbed/internal/adminws"
	"github.com/wasmbed/wasmbed/internal/config"
	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/gateway"
	"github.com/wasmbed/wasmbed/internal/metrics"
	"github.com/wasmbed/wasmbed/internal/store"
)

const reconcileInterval = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (optional; defaults + WASMBED_* env vars apply on top)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("gateway: load config: %v", err)
	}

	logger := slog.Default()

	serverCert, err := tls.LoadX509KeyPair(cfg.Gateway.ServerCert, cfg.Gateway.ServerKey)
	if err != nil {
		log.Fatalf("gateway: load server certificate: %v", err)
	}

	st := newStore(cfg.Store, cfg.Gateway.Namespace, logger)
	reg := metrics.NewRegistry()
	hub := adminws.NewHub(logger)

	srv, err := gateway.NewServer(gateway.ServerConfig{
		Addr:              cfg.Gateway.BindAddr,
		ServerCert:        serverCert,
		HeartbeatTimeout:  cfg.Heartbeat.Timeout(),
		Pairing:           gateway.NewPairingMode(cfg.Pairing.Timeout()),
		Store:             st,
		InterpreterLimits: cfg.Interpreter,
		Logger:            logger,
		Metrics:           reg,
		Events:            hub,
	})
	if err != nil {
		log.Fatalf("gateway: start server: %v", err)
	}
	if cfg.Pairing.Enabled {
		srv.Pairing().Enable()
	}

	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		if err := srv.Serve(ctx); err != nil {
			logger.Error("gateway: session listener stopped", "error", err)
		}
	}()
	go srv.RunSupervisor(ctx)
	go runReconcileLoop(ctx, logger, st, srv)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/admin/ws", hub.ServeHTTP)
	mux.HandleFunc("/admin/pairing", pairingHandler(srv))
	mux.HandleFunc("/admin/applications", applicationsHandler(st, srv))
	mux.HandleFunc("/admin/applications/", applicationStopHandler(st, srv))
	mux.HandleFunc("/admin/devices", devicesHandler(st))
	httpSrv := &http.Server{Addr: cfg.Gateway.HTTPBindAddr, Handler: mux}

	go func() {
		logger.Info("gateway: http listener starting", "addr", cfg.Gateway.HTTPBindAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("gateway: http listener stopped", "error", err)
		}
	}()

	logger.Info("gateway: session listener starting", "addr", srv.Addr().String())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("gateway: shutting down")
	cancel()
	srv.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	_ = httpSrv.Shutdown(shutdownCtx)
}

// runReconcileLoop periodically runs the Device reconciler and the
// Application reconciler for every known application, grounded on the
// teacher's decay-scheduler ticker loop shape.
func runReconcileLoop(ctx context.Context, logger *slog.Logger, st store.Store, disp fleet.Dispatcher) {
	ticker := time.NewTicker(reconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := fleet.ReconcileDevices(ctx, logger, st); err != nil {
				logger.Warn("gateway: device reconcile failed", "error", err)
			}
			names, err := st.List(ctx, "application")
			if err != nil {
				logger.Warn("gateway: failed to list applications for reconcile", "error", err)
				continue
			}
			for _, name := range names {
				if err := fleet.ReconcileApplication(ctx, logger, st, disp, name); err != nil {
					logger.Warn("gateway: application reconcile failed", "application", name, "error", err)
				}
			}
		case <-ctx.Done():
			return
		}
	}
}

func pairingHandler(srv *gateway.Server) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			srv.Pairing().Enable()
			w.WriteHeader(http.StatusNoContent)
		case http.MethodDelete:
			srv.Pairing().Disable()
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	}
}

func newStore(cfg config.StoreConfig, namespace string, logger *slog.Logger) store.Store {
	if cfg.Backend != "redis" {
		return store.NewMemStore()
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Warn("gateway: failed to parse redis url, falling back to in-memory store", "error", err)
		return store.NewMemStore()
	}
	client := redis.NewClient(opts)
	return store.NewRedisStore(client, namespace)
}
