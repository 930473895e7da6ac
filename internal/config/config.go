// Package config loads the control-plane and device-agent configuration
// described in spec.md §6 from YAML, with environment variable overrides
// layered on top — the same two-step load-then-override shape the teacher
// uses for its own Config.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"
)

// Config is the full set of values the control plane (gateway + reconcilers)
// and, where noted, the device agent recognize.
type Config struct {
	Gateway     GatewayConfig     `yaml:"gateway"`
	Pairing     PairingConfig     `yaml:"pairing"`
	Heartbeat   HeartbeatConfig   `yaml:"heartbeat"`
	Store       StoreConfig       `yaml:"store"`
	Interpreter InterpreterConfig `yaml:"interpreter"`
}

type GatewayConfig struct {
	BindAddr     string `yaml:"bind_addr"`
	HTTPBindAddr string `yaml:"http_bind_addr"`
	ServerCert   string `yaml:"server_cert_path"`
	ServerKey    string `yaml:"server_key_path"`
	CACert       string `yaml:"ca_cert_path"`
	Namespace    string `yaml:"namespace"`
}

type PairingConfig struct {
	Enabled    bool `yaml:"enabled"`
	TimeoutSec int  `yaml:"timeout_sec"`
}

func (p PairingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSec) * time.Second
}

type HeartbeatConfig struct {
	TimeoutSec     int `yaml:"timeout_sec"`     // gateway-side: how stale before Unreachable
	DevicePeriodSec int `yaml:"device_period_sec"` // device-side: emission cadence
}

func (h HeartbeatConfig) Timeout() time.Duration {
	return time.Duration(h.TimeoutSec) * time.Second
}

func (h HeartbeatConfig) DevicePeriod() time.Duration {
	return time.Duration(h.DevicePeriodSec) * time.Second
}

// StoreConfig selects and configures the internal/store backend.
type StoreConfig struct {
	Backend  string `yaml:"backend"` // "mem" or "redis"
	RedisURL string `yaml:"redis_url"`
}

// InterpreterConfig mirrors internal/wasm.Limits so deploy-time validation
// and the device build can both be tuned from one file without code changes.
type InterpreterConfig struct {
	MaxFunctions            int `yaml:"max_functions"`
	MaxOperatorsPerFunction int `yaml:"max_operators_per_function"`
	MaxInstructionCount     int `yaml:"max_instruction_count"`
	MaxRecursionDepth       int `yaml:"max_recursion_depth"`
	ValueStackCap           int `yaml:"value_stack_cap"`
	LabelStackCap           int `yaml:"label_stack_cap"`
}

// Default returns the configuration spec.md §6 lists as defaults: pairing
// off, 300s pairing timeout, 90s heartbeat timeout, 30s device period, and
// the interpreter quotas from §4.4.
func Default() Config {
	return Config{
		Gateway: GatewayConfig{
			BindAddr:     ":4433",
			HTTPBindAddr: ":8080",
			Namespace:    "default",
		},
		Pairing: PairingConfig{
			Enabled:    false,
			TimeoutSec: 300,
		},
		Heartbeat: HeartbeatConfig{
			TimeoutSec:      90,
			DevicePeriodSec: 30,
		},
		Store: StoreConfig{
			Backend: "mem",
		},
		Interpreter: InterpreterConfig{
			MaxFunctions:            32,
			MaxOperatorsPerFunction: 1000,
			MaxInstructionCount:     500,
			MaxRecursionDepth:       32,
			ValueStackCap:           256,
			LabelStackCap:           16,
		},
	}
}

// Load reads path as YAML over the defaults, then applies WASMBED_*
// environment overrides. A missing file is not an error: callers that only
// want env-var configuration (e.g. quick test harnesses) can pass "".
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("config: open %s: %w", path, err)
			}
		} else {
			defer f.Close()
			if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
				return cfg, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides follows the teacher's getEnv/getEnvBool/getEnvInt
// override layering, renamed to the WASMBED_ prefix.
func (c *Config) applyEnvOverrides() {
	c.Gateway.BindAddr = getEnv("WASMBED_GATEWAY_BIND_ADDR", c.Gateway.BindAddr)
	c.Gateway.HTTPBindAddr = getEnv("WASMBED_HTTP_BIND_ADDR", c.Gateway.HTTPBindAddr)
	c.Gateway.ServerCert = getEnv("WASMBED_SERVER_CERT_PATH", c.Gateway.ServerCert)
	c.Gateway.ServerKey = getEnv("WASMBED_SERVER_KEY_PATH", c.Gateway.ServerKey)
	c.Gateway.CACert = getEnv("WASMBED_CA_CERT_PATH", c.Gateway.CACert)
	c.Gateway.Namespace = getEnv("WASMBED_NAMESPACE", c.Gateway.Namespace)

	c.Pairing.Enabled = getEnvBool("WASMBED_PAIRING_ENABLED", c.Pairing.Enabled)
	c.Pairing.TimeoutSec = getEnvInt("WASMBED_PAIRING_TIMEOUT_SEC", c.Pairing.TimeoutSec)

	c.Heartbeat.TimeoutSec = getEnvInt("WASMBED_HEARTBEAT_TIMEOUT_SEC", c.Heartbeat.TimeoutSec)
	c.Heartbeat.DevicePeriodSec = getEnvInt("WASMBED_HEARTBEAT_DEVICE_PERIOD_SEC", c.Heartbeat.DevicePeriodSec)

	c.Store.Backend = getEnv("WASMBED_STORE_BACKEND", c.Store.Backend)
	c.Store.RedisURL = getEnv("WASMBED_STORE_REDIS_URL", c.Store.RedisURL)

	c.Interpreter.MaxFunctions = getEnvInt("WASMBED_MAX_FUNCTIONS", c.Interpreter.MaxFunctions)
	c.Interpreter.MaxOperatorsPerFunction = getEnvInt("WASMBED_MAX_OPERATORS_PER_FUNCTION", c.Interpreter.MaxOperatorsPerFunction)
	c.Interpreter.MaxInstructionCount = getEnvInt("WASMBED_MAX_INSTRUCTION_COUNT", c.Interpreter.MaxInstructionCount)
	c.Interpreter.MaxRecursionDepth = getEnvInt("WASMBED_MAX_RECURSION_DEPTH", c.Interpreter.MaxRecursionDepth)
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
