// Package config resolves broker configuration from built-in defaults,
// overridden by environment variables, overridden in turn by explicit CLI
// flags. An optional YAML file loaded with Load is applied last: any field
// it sets overrides the flag, environment and default values.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the broker needs to boot: the HTTP/worker listen
// address, pool sizing, and the timing constants named in the external
// interface's configuration table.
type Config struct {
	// ListenAddress is the address the HTTP and worker-websocket surface binds to.
	// Default: ":8080"
	ListenAddress string

	// MaxWorkers caps the number of simultaneously connected workers.
	// Default: 100
	MaxWorkers int

	// HeartbeatInterval is the cadence of server-initiated heartbeat frames.
	// Default: 25s
	HeartbeatInterval time.Duration

	// LivenessWindow is the maximum permissible gap since a worker's last
	// heartbeat response before it is evicted.
	// Default: 30s
	LivenessWindow time.Duration

	// ResponseWait is how long the dispatcher waits for a rendezvous deposit
	// before failing a dispatch with timeout.
	// Default: 120s
	ResponseWait time.Duration

	// AcquireWait is how long the dispatcher retries registry.ClaimIdle
	// before failing a dispatch with no_worker.
	// Default: 10s
	AcquireWait time.Duration

	// DebugLogRedisURL optionally points the peripheral debug-log sink at a
	// Redis instance. Empty disables the sink.
	DebugLogRedisURL string

	// GRPCHealthPort optionally exposes the gRPC health surface alongside
	// the HTTP one. Zero disables it.
	GRPCHealthPort int

	// EtcdEndpoints optionally registers this process's presence in etcd.
	// Empty disables presence registration.
	EtcdEndpoints []string
}

// fileConfig is the YAML-facing shape of broker.yaml: a config file, layered
// over the CLI flags, environment variables and defaults, only ever overrides
// fields it actually sets. Durations are strings so the file stays readable
// ("30s" rather than a duration in nanoseconds).
type fileConfig struct {
	ListenAddress     string   `yaml:"listen_address,omitempty"`
	MaxWorkers        int      `yaml:"max_workers,omitempty"`
	HeartbeatInterval string   `yaml:"heartbeat_interval,omitempty"`
	LivenessWindow    string   `yaml:"liveness_window,omitempty"`
	ResponseWait      string   `yaml:"response_wait,omitempty"`
	AcquireWait       string   `yaml:"acquire_wait,omitempty"`
	DebugLogRedisURL  string   `yaml:"debug_log_redis_url,omitempty"`
	GRPCHealthPort    int      `yaml:"grpc_health_port,omitempty"`
	EtcdEndpoints     []string `yaml:"etcd_endpoints,omitempty"`
}

// DefaultConfig returns the broker's built-in defaults, with ListenAddress
// and MaxWorkers additionally resolved from CLI flags and environment
// variables.
//
// ListenAddress resolution order:
//  1. --listen-address CLI flag (if present)
//  2. BROKER_LISTEN_ADDRESS environment variable
//  3. Default: ":8080"
//
// MaxWorkers resolution order is the same shape, via --max-workers /
// BROKER_MAX_WORKERS.
func DefaultConfig() *Config {
	listen := ":8080"
	if cli := flagValue("--listen-address"); cli != "" {
		listen = cli
	} else if env := os.Getenv("BROKER_LISTEN_ADDRESS"); env != "" {
		listen = env
	}

	maxWorkers := 100
	if cli := flagValue("--max-workers"); cli != "" {
		if n, err := strconv.Atoi(cli); err == nil && n > 0 {
			maxWorkers = n
		}
	} else if env := os.Getenv("BROKER_MAX_WORKERS"); env != "" {
		if n, err := strconv.Atoi(env); err == nil && n > 0 {
			maxWorkers = n
		}
	}

	return &Config{
		ListenAddress:     listen,
		MaxWorkers:        maxWorkers,
		HeartbeatInterval: 25 * time.Second,
		LivenessWindow:    30 * time.Second,
		ResponseWait:      120 * time.Second,
		AcquireWait:       10 * time.Second,
	}
}

// flagValue parses a --name or --name=value CLI flag from os.Args.
// Returns "" if not found.
func flagValue(name string) string {
	args := os.Args[1:]
	prefix := name + "="
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if len(arg) > len(prefix) && arg[:len(prefix)] == prefix {
			return arg[len(prefix):]
		}
	}
	return ""
}

// Load reads and parses a broker.yaml file at the given path, layering any
// fields it sets over the built-in defaults (which have already applied
// flag/env overrides). A field absent from the file, or an unparsable
// duration string, leaves the default in place.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg := DefaultConfig()
	applyFileConfig(cfg, &fc)
	return cfg, nil
}

// applyFileConfig layers fc's set fields onto cfg in place.
func applyFileConfig(cfg *Config, fc *fileConfig) {
	if fc.ListenAddress != "" {
		cfg.ListenAddress = fc.ListenAddress
	}
	if fc.MaxWorkers > 0 {
		cfg.MaxWorkers = fc.MaxWorkers
	}
	if d, ok := parseDuration(fc.HeartbeatInterval); ok {
		cfg.HeartbeatInterval = d
	}
	if d, ok := parseDuration(fc.LivenessWindow); ok {
		cfg.LivenessWindow = d
	}
	if d, ok := parseDuration(fc.ResponseWait); ok {
		cfg.ResponseWait = d
	}
	if d, ok := parseDuration(fc.AcquireWait); ok {
		cfg.AcquireWait = d
	}
	if fc.DebugLogRedisURL != "" {
		cfg.DebugLogRedisURL = fc.DebugLogRedisURL
	}
	if fc.GRPCHealthPort > 0 {
		cfg.GRPCHealthPort = fc.GRPCHealthPort
	}
	if len(fc.EtcdEndpoints) > 0 {
		cfg.EtcdEndpoints = fc.EtcdEndpoints
	}
}

func parseDuration(s string) (time.Duration, bool) {
	if s == "" {
		return 0, false
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, false
	}
	return d, true
}
