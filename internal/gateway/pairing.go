// Package gateway implements the server-side per-connection session
// handling, pairing-mode gate, and heartbeat supervisor sweep of spec.md
// §4.6, built on internal/transport and internal/protocol.
package gateway

import (
	"sync"
	"time"
)

// PairingMode is the global "pairing mode" flag from spec.md §9's design
// note: a single read-heavy boolean protected by a reader-writer lock,
// owned by cmd/gateway's entry point and injected into every session —
// never a package-level global.
type PairingMode struct {
	mu        sync.RWMutex
	enabled   bool
	timeout   time.Duration
	enabledAt time.Time
}

// NewPairingMode constructs a gate, initially disabled, that auto-disables
// itself timeout after being enabled (spec.md §6 "pairing timeout, default
// 300s").
func NewPairingMode(timeout time.Duration) *PairingMode {
	return &PairingMode{timeout: timeout}
}

// Enable opens the pairing window.
func (p *PairingMode) Enable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = true
	p.enabledAt = time.Now()
}

// Disable closes the pairing window immediately.
func (p *PairingMode) Disable() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = false
}

// Enabled reports whether pairing is currently open, accounting for the
// timeout having elapsed since Enable was called.
func (p *PairingMode) Enabled() bool {
	p.mu.RLock()
	enabled, enabledAt := p.enabled, p.enabledAt
	p.mu.RUnlock()

	if !enabled {
		return false
	}
	if p.timeout > 0 && time.Since(enabledAt) > p.timeout {
		return false
	}
	return true
}
