package gateway

import (
	"context"

	"go.uber.org/zap"

	"ample/cconfig"
	"ample/dispatch"
	"ample/obs"
	"ample/pluginabi"
	"ample/transport"
)

// Consumer owns the reconnecting transport client and the dispatch sink
// that delivers decoded records to every loaded downstream plugin.
type Consumer struct {
	logger  *zap.Logger
	metrics *obs.Metrics

	client *transport.Client
	sink   *dispatch.Sink

	cancel context.CancelFunc
}

// NewConsumer dials the upstream producer (reconnecting indefinitely per
// spec §4.3, §7) and starts the dispatch sink fanning records out to
// plugins.
func NewConsumer(ctx context.Context, cfg *cconfig.Config, plugins []pluginabi.EventConsumerPlugin) (*Consumer, error) {
	logger := obs.NewLogger(obs.LogConfig{Level: "info"})
	metrics := obs.NewMetrics()

	runCtx, cancel := context.WithCancel(ctx)

	client, err := transport.Connect(runCtx, transport.ClientConfig{
		UpstreamAddr:    cfg.UpstreamProxyAddr,
		ExpectedFQDN:    cfg.FQDN,
		TrustedCertPath: cfg.CertPath,
		Metrics:         metrics,
		Logger:          logger,
	})
	if err != nil {
		cancel()
		return nil, err
	}

	sink := dispatch.New(plugins, logger, metrics.RecordPluginError)

	c := &Consumer{
		logger:  logger,
		metrics: metrics,
		client:  client,
		sink:    sink,
		cancel:  cancel,
	}
	go sink.Run(runCtx, client.Events)

	logger.Info("ample consumer started", zap.String("upstream", cfg.UpstreamProxyAddr))
	return c, nil
}

// Metrics exposes the prometheus registry; OTLP push wiring itself is out
// of scope (spec §1), and --metrics-otlp-url is parsed into cconfig.Config
// but not read by this package.
func (c *Consumer) Metrics() *obs.Metrics { return c.metrics }

// Shutdown stops the reconnect loop and the dispatch sink.
func (c *Consumer) Shutdown() {
	c.cancel()
	c.client.Close()
	c.logger.Info("ample consumer stopped")
	_ = c.logger.Sync()
}
