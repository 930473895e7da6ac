package gateway

import (
	"context"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/wasmbed/wasmbed/internal/adminws"
	"github.com/wasmbed/wasmbed/internal/circuitbreaker"
	"github.com/wasmbed/wasmbed/internal/config"
	"github.com/wasmbed/wasmbed/internal/fleet"
	"github.com/wasmbed/wasmbed/internal/metrics"
	"github.com/wasmbed/wasmbed/internal/store"
	"github.com/wasmbed/wasmbed/internal/transport"
)

// ServerConfig configures a Server's transport and behavior.
type ServerConfig struct {
	Addr              string
	ServerCert        tls.Certificate
	HeartbeatTimeout  time.Duration
	Pairing           *PairingMode
	Store             store.Store
	InterpreterLimits config.InterpreterConfig
	Logger            *slog.Logger
	Metrics           *metrics.Registry
	Events            adminws.Publisher // optional; nil disables admin fan-out
}

// Server accepts connections (one goroutine per connection, per spec.md
// §4.6) and runs the gateway-side protocol handling described there.
type Server struct {
	transport         *transport.Server
	store             store.Store
	pairing           *PairingMode
	heartbeatTimeout  time.Duration
	interpreterLimits config.InterpreterConfig
	logger            *slog.Logger
	metrics           *metrics.Registry
	events            adminws.Publisher
	breakers          *circuitbreaker.Manager

	mu       sync.Mutex
	sessions map[string]*transport.Conn // device name -> live session
}

// NewServer starts listening on cfg.Addr.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Store == nil {
		return nil, errors.New("gateway: Store is required")
	}
	if cfg.Pairing == nil {
		cfg.Pairing = NewPairingMode(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = 90 * time.Second
	}

	tr, err := transport.Listen(transport.ServerConfig{
		Addr:        cfg.Addr,
		ServerCert:  cfg.ServerCert,
		ReadTimeout: cfg.HeartbeatTimeout,
	})
	if err != nil {
		return nil, err
	}

	s := &Server{
		transport:         tr,
		store:             cfg.Store,
		pairing:           cfg.Pairing,
		heartbeatTimeout:  cfg.HeartbeatTimeout,
		interpreterLimits: cfg.InterpreterLimits,
		logger:            cfg.Logger,
		metrics:           cfg.Metrics,
		events:            cfg.Events,
		breakers:          circuitbreaker.NewManager(nil),
		sessions:          make(map[string]*transport.Conn),
	}
	tr.SetAuthorizer(s.authorize)
	return s, nil
}

// Addr returns the listener's bound address.
func (s *Server) Addr() net.Addr { return s.transport.Addr() }

// Pairing returns the gate governing unknown-peer enrollment, so an
// operator-facing surface (cmd/gateway's HTTP endpoint, wasmctl) can
// toggle it without reaching into Server's internals.
func (s *Server) Pairing() *PairingMode { return s.pairing }

// Logger exposes the Server's logger to cmd/gateway's admin HTTP handlers,
// so they log through the same structured logger the session/supervisor
// code uses rather than standing up a second one.
func (s *Server) Logger() *slog.Logger { return s.logger }

// Close stops accepting new connections.
func (s *Server) Close() error { return s.transport.Close() }

// Serve accepts connections until ctx is canceled or the listener closes,
// spawning one session goroutine per accepted connection.
func (s *Server) Serve(ctx context.Context) error {
	for {
		conn, err := s.transport.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}
		go s.handleConn(ctx, conn)
	}
}

// authorize implements transport.Authorizer: known devices are always
// authorized; unknown peers are authorized only while pairing mode is
// open, since an unrecognized public key can only become a Device record
// via the enrollment flow that follows.
func (s *Server) authorize(peerPublicKey []byte) bool {
	if _, ok := s.deviceNameForKey(peerPublicKey); ok {
		return true
	}
	return s.pairing.Enabled()
}

func pubKeyIndex(pub []byte) string { return hex.EncodeToString(pub) }

func (s *Server) deviceNameForKey(pub []byte) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	var name string
	found, err := s.store.Get(ctx, "device_by_pubkey", pubKeyIndex(pub), &name)
	if err != nil || !found {
		return "", false
	}
	return name, true
}

func (s *Server) lookupSession(deviceName string) *transport.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[deviceName]
}

func (s *Server) setSession(deviceName string, conn *transport.Conn) {
	s.mu.Lock()
	s.sessions[deviceName] = conn
	s.mu.Unlock()
	if s.metrics != nil {
		s.metrics.ConnectedDevices.Inc()
	}
}

func (s *Server) clearSession(deviceName string) {
	s.mu.Lock()
	_, existed := s.sessions[deviceName]
	delete(s.sessions, deviceName)
	s.mu.Unlock()
	if existed && s.metrics != nil {
		s.metrics.ConnectedDevices.Dec()
	}
}

const storeTimeout = 5 * time.Second

func (s *Server) publishDevice(name string, phase fleet.DevicePhase) {
	if s.events == nil {
		return
	}
	s.events.Publish(adminws.Event{Kind: "device", Name: name, Phase: string(phase), Timestamp: time.Now()})
}

func (s *Server) publishApplication(name string, phase fleet.ApplicationPhase) {
	if s.events == nil {
		return
	}
	s.events.Publish(adminws.Event{Kind: "application", Name: name, Phase: string(phase), Timestamp: time.Now()})
}
