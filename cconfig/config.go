// Package cconfig parses the consumer's CLI surface (spec §6). It adapts
// the teacher's parse-then-verify shape to flag.FlagSet instead of JSON,
// since the consumer is a standalone process rather than a host-loaded
// plugin.
package cconfig

import (
	"flag"
	"fmt"
)

// Config is the parsed consumer CLI configuration.
type Config struct {
	UpstreamProxyAddr   string
	FQDN                string
	CertPath            string
	GeyserPluginConfigs stringList
	MetricsOTLPURL      string
}

// stringList implements flag.Value for the repeatable -g flag.
type stringList []string

func (s *stringList) String() string {
	if s == nil {
		return ""
	}
	return fmt.Sprint([]string(*s))
}

func (s *stringList) Set(v string) error {
	*s = append(*s, v)
	return nil
}

// Parse parses args (normally os.Args[1:]) into a validated Config.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("ample-consumer", flag.ContinueOnError)

	cfg := &Config{}
	fs.StringVar(&cfg.UpstreamProxyAddr, "upstream-proxy-addr", "", "host:port of the producer's QUIC listener (required)")
	fs.StringVar(&cfg.FQDN, "fqdn", "", "expected server FQDN for cert verification (required)")
	fs.StringVar(&cfg.CertPath, "cert-path", "certs/cert.pem", "path to the pinned server certificate PEM")
	fs.Var(&cfg.GeyserPluginConfigs, "geyser-plugin-config", "path to a downstream plugin config (repeatable)")
	fs.Var(&cfg.GeyserPluginConfigs, "g", "shorthand for -geyser-plugin-config")
	fs.StringVar(&cfg.MetricsOTLPURL, "metrics-otlp-url", "", "optional OTLP metrics collector URL")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if err := cfg.verify(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) verify() error {
	if c.UpstreamProxyAddr == "" {
		return fmt.Errorf("--upstream-proxy-addr is required")
	}
	if c.FQDN == "" {
		return fmt.Errorf("--fqdn is required")
	}
	if len(c.GeyserPluginConfigs) == 0 {
		return fmt.Errorf("at least one -g/--geyser-plugin-config is required")
	}
	return nil
}
