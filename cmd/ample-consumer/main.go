// Command ample-consumer is the standalone consumer process: it dials a
// producer's QUIC listener, verifies its pinned certificate, and checks
// that each downstream plugin config path given via
// -g/--geyser-plugin-config exists; no plugin is instantiated from those
// paths (spec §6).
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"ample/cconfig"
	"ample/gateway"
	"ample/pluginabi"
)

// Exit codes per spec §6.
const (
	exitClean          = 0
	exitBadConfig      = 2
	exitFatalTransport = 3
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cfg, err := cconfig.Parse(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to parse configuration: %v\n", err)
		return exitBadConfig
	}

	plugins, err := loadDownstreamPlugins(cfg.GeyserPluginConfigs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load downstream plugins: %v\n", err)
		return exitBadConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer, err := gateway.NewConsumer(ctx, cfg, plugins)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start transport client: %v\n", err)
		return exitFatalTransport
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	consumer.Shutdown()
	return exitClean
}

// loadDownstreamPlugins checks that each configured plugin config path
// exists and returns an empty plugin list. Instantiating arbitrary user
// plugins from a config path is the downstream plugin-manager's job and is
// out of scope per spec §1.
func loadDownstreamPlugins(configPaths []string) ([]pluginabi.EventConsumerPlugin, error) {
	plugins := make([]pluginabi.EventConsumerPlugin, 0, len(configPaths))
	for _, path := range configPaths {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("plugin config %s: %w", path, err)
		}
	}
	return plugins, nil
}
