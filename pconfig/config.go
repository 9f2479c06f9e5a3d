// Package pconfig loads the producer's JSON configuration document (spec
// §6), following the teacher's config/setting.go shape: unmarshal into a
// package struct, validate with a verify method, report load errors with
// fmt since the logger doesn't exist yet.
package pconfig

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config is the top-level producer JSON document.
type Config struct {
	Libpath      string        `json:"libpath"`
	LogLevel     string        `json:"log_level"`
	LogPath      string        `json:"log_path"`
	Transport    TransportOpts `json:"transport_opts"`
	TransportCfg TransportCfg  `json:"transport_cfg"`
	BindAddr     string        `json:"bind_addr"`

	UseAccountCoalescer        bool   `json:"use_account_coalescer"`
	AccountCoalescerDurationUS uint32 `json:"account_coalescer_duration_us"`
}

// TransportOpts carries the TLS identity.
type TransportOpts struct {
	CertPath string `json:"cert_path"`
	KeyPath  string `json:"key_path"`
	FQDN     string `json:"fqdn"`
}

// TransportCfg selects wire compression.
type TransportCfg struct {
	UseZstdCompression bool `json:"use_zstd_compression"`
	UseLz4Compression  bool `json:"use_lz4_compression"`
}

// Load reads and validates a producer config document from path.
func Load(path string) (*Config, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pconfig: read %s: %w", path, err)
	}
	var cfg Config
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, fmt.Errorf("pconfig: parse %s: %w", path, err)
	}
	if err := cfg.verify(); err != nil {
		return nil, fmt.Errorf("pconfig: %s: %w", path, err)
	}
	return &cfg, nil
}

// verify fills in defaults and rejects invalid combinations. The
// zstd+lz4 mutual-exclusion decision resolves spec §9 Open Question 1:
// source left the behavior undefined; this implementation treats the
// combination as a Configuration error.
func (c *Config) verify() error {
	if c.Libpath == "" {
		return fmt.Errorf("missing libpath")
	}
	if c.Transport.CertPath == "" || c.Transport.KeyPath == "" {
		return fmt.Errorf("transport_opts.cert_path and key_path are required")
	}
	if c.Transport.FQDN == "" {
		return fmt.Errorf("transport_opts.fqdn is required")
	}
	if c.BindAddr == "" {
		return fmt.Errorf("bind_addr is required")
	}
	if c.TransportCfg.UseZstdCompression && c.TransportCfg.UseLz4Compression {
		return fmt.Errorf("transport_cfg: use_zstd_compression and use_lz4_compression are mutually exclusive")
	}
	if c.AccountCoalescerDurationUS == 0 {
		c.AccountCoalescerDurationUS = 1000
	}
	switch c.LogLevel {
	case "":
		c.LogLevel = "info"
	case "error", "warn", "info", "debug", "trace":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
