// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package config loads the daemon's own bootstrap settings — its data
// directory, socket paths, proxy port range, reconcile cadence, and CA
// validity — from an HJSON file, grounded on teacher internal/config's
// HJSON-via-hjson-go loading. Unlike the teacher, this is not a per-project
// manifest language: clauderon has exactly one config file, for the daemon
// itself (spec.md §1 puts "configuration file loading" for end-user
// projects out of scope), so the teacher's template-expansion and
// JSON-schema-shaped project-manifest validation are not ported.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hjson/hjson-go/v4"
)

// Duration wraps time.Duration so config files can write durations the way
// the teacher's own HJSON configs do ("30s", "5m", "10m0s") instead of raw
// nanosecond integers.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a plain number of
// nanoseconds, matching encoding/json's usual looseness for this idiom.
func (d *Duration) UnmarshalJSON(data []byte) error {
	var asString string
	if err := json.Unmarshal(data, &asString); err == nil {
		parsed, err := time.ParseDuration(asString)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", asString, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var asNanos int64
	if err := json.Unmarshal(data, &asNanos); err != nil {
		return fmt.Errorf("config: duration must be a string or number: %w", err)
	}
	*d = Duration(asNanos)
	return nil
}

// MarshalJSON renders the duration the way it's usually authored.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Config is the daemon's own bootstrap configuration.
type Config struct {
	// DataDir is the daemon's config/data root (spec.md §6's persisted
	// layout lives under here). Defaults to ~/.clauderon.
	DataDir string `json:"data_dir"`

	// WorktreeRoot is the dedicated per-daemon root every session worktree
	// is created under (spec.md §3 invariant: never the source repo
	// itself). Defaults to "<data_dir>/worktrees".
	WorktreeRoot string `json:"worktree_root"`

	Sockets SocketsConfig `json:"sockets"`
	Proxy   ProxyConfig   `json:"proxy"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Logging LoggingConfig `json:"logging"`
}

// SocketsConfig names the three local IPC endpoints (spec.md §6).
type SocketsConfig struct {
	Control string `json:"control"` // default "<data_dir>/control.sock"
	Console string `json:"console"` // default "<data_dir>/console.sock"
	Hooks   string `json:"hooks"`   // default "<data_dir>/hooks.sock"

	// HTTPAddr is the loopback address the HTTP control plane listens on,
	// e.g. "127.0.0.1:4270". Empty disables the HTTP surface.
	HTTPAddr string `json:"http_addr"`
	// HooksHTTPAddr is the loopback address the hook-ingest HTTP endpoint
	// listens on (spec.md §4.10: "any client that can reach it on
	// loopback; no auth").
	HooksHTTPAddr string `json:"hooks_http_addr"`
}

// ProxyConfig configures the per-session port allocator and the proxy CA
// (spec.md §4.4, §4.9).
type ProxyConfig struct {
	BasePort int `json:"base_port"` // default portalloc.DefaultBasePort (18100)
	MaxPorts int `json:"max_ports"` // default portalloc.MaxSessions (500)

	// CAValidity is the proxy CA's certificate lifetime. Defaults to 10
	// years, matching spec.md §4.9.
	CAValidity Duration `json:"ca_validity"`
	// LeafValidity is each per-host leaf certificate's lifetime. Defaults
	// to 1 day, matching spec.md §4.9.
	LeafValidity Duration `json:"leaf_validity"`

	// AuditLogPath is where proxied-request audit entries are appended.
	// Empty disables auditing (a no-op writer is substituted).
	AuditLogPath string `json:"audit_log_path"`

	// SecretsDir is the last-resort credential lookup location (spec.md
	// §4.9's "file in the daemon's secrets directory").
	SecretsDir string `json:"secrets_dir"`
	// SecretManagerCLI, if set, is invoked as an external secret-manager
	// CLI collaborator, ranked above the secrets directory and below the
	// process environment.
	SecretManagerCLI string `json:"secret_manager_cli"`
}

// ReconcileConfig configures the periodic reconciler (spec.md §4.7).
type ReconcileConfig struct {
	Interval Duration `json:"interval"` // default 30s
}

// LoggingConfig configures the process-wide logger.
type LoggingConfig struct {
	Debug bool `json:"debug"`
}

// Default returns a Config with every field at its documented default,
// rooted at dataDir.
func Default(dataDir string) Config {
	return Config{
		DataDir:      dataDir,
		WorktreeRoot: filepath.Join(dataDir, "worktrees"),
		Sockets: SocketsConfig{
			Control:       filepath.Join(dataDir, "control.sock"),
			Console:       filepath.Join(dataDir, "console.sock"),
			Hooks:         filepath.Join(dataDir, "hooks.sock"),
			HTTPAddr:      "127.0.0.1:4270",
			HooksHTTPAddr: "127.0.0.1:4271",
		},
		Proxy: ProxyConfig{
			BasePort:     18100,
			MaxPorts:     500,
			CAValidity:   Duration(10 * 365 * 24 * time.Hour),
			LeafValidity: Duration(24 * time.Hour),
			AuditLogPath: filepath.Join(dataDir, "audit.jsonl"),
			SecretsDir:   filepath.Join(dataDir, "secrets"),
		},
		Reconcile: ReconcileConfig{Interval: Duration(30 * time.Second)},
	}
}

// Load reads and parses an HJSON config file at path, laying its fields
// over Default(dataDir) so a config file may set only what it needs to
// override.
func Load(path, dataDir string) (Config, error) {
	cfg := Default(dataDir)

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config: read %s: %w", path, err)
	}

	var asMap map[string]any
	if err := hjson.Unmarshal(data, &asMap); err != nil {
		return cfg, fmt.Errorf("config: parse %s: %w", path, err)
	}
	normalized, err := json.Marshal(asMap)
	if err != nil {
		return cfg, fmt.Errorf("config: normalize %s: %w", path, err)
	}
	if err := json.Unmarshal(normalized, &cfg); err != nil {
		return cfg, fmt.Errorf("config: decode %s: %w", path, err)
	}

	if cfg.DataDir == "" {
		cfg.DataDir = dataDir
	}
	return cfg, nil
}

// EnsureDirs creates DataDir, WorktreeRoot, and the proxy secrets directory
// if they don't already exist.
func (c Config) EnsureDirs() error {
	for _, dir := range []string{c.DataDir, c.WorktreeRoot, c.Proxy.SecretsDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}
