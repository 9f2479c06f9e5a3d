// Package gateway wires the producer- and consumer-side components
// together. The producer builds its fan-out queues, then loads the TLS
// identity and binds the listener (transport.Start), then starts the
// coalescer and the ingress adapter; shutdown runs in reverse.
package gateway

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"ample/coalescer"
	"ample/codec"
	"ample/eventkind"
	"ample/fanout"
	"ample/ingress"
	"ample/obs"
	"ample/pconfig"
	"ample/transport"
)

// Producer owns every component on the validator-resident side: the
// fan-out queues, the optional account coalescer, the ingress adapter the
// host plugin ABI calls into, and the QUIC server pumping queues onto the
// wire.
type Producer struct {
	cfg     *pconfig.Config
	logger  *zap.Logger
	metrics *obs.Metrics

	Adapter *ingress.Adapter

	queues    *fanout.ByKind
	coalescer *coalescer.Coalescer
	server    *transport.ServerHandle

	cancel context.CancelFunc
}

// NewProducer performs the full startup sequence and returns a running
// Producer. TLS identity load failures and listener bind failures are
// fatal here; nothing after this point can fail the process (spec §4.8,
// §7).
func NewProducer(ctx context.Context, cfg *pconfig.Config) (*Producer, error) {
	logger := obs.NewLogger(obs.LogConfig{Level: cfg.LogLevel, Path: cfg.LogPath})
	metrics := obs.NewMetrics()

	compression := codec.None
	switch {
	case cfg.TransportCfg.UseZstdCompression:
		compression = codec.Zstd
	case cfg.TransportCfg.UseLz4Compression:
		compression = codec.Lz4
	}

	// §4.8 startup order: listener bind + TLS identity load happen first,
	// so a bad cert/key or an unavailable bind address fails here, before
	// anything that would need tearing down (the coalescer goroutine, the
	// ingress adapter) has been started.
	runCtx, cancel := context.WithCancel(ctx)

	// Queues are inert until a connection is accepted, so building them
	// here costs nothing and only supplies transport.Start's config.
	queues := fanout.NewByKind(metrics, nil)

	server, err := transport.Start(runCtx, transport.ServerConfig{
		BindAddr:      cfg.BindAddr,
		CertPath:      cfg.Transport.CertPath,
		KeyPath:       cfg.Transport.KeyPath,
		Compression:   compression,
		ProducerID:    transport.NewProducerID(),
		Queues:        queues,
		Metrics:       metrics,
		Logger:        logger,
		DrainDeadline: 2 * time.Second,
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("gateway: start transport server: %w", err)
	}

	p := &Producer{
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		queues:  queues,
		server:  server,
		cancel:  cancel,
	}

	if cfg.UseAccountCoalescer {
		p.coalescer = coalescer.New(coalescer.Config{
			Window: time.Duration(cfg.AccountCoalescerDurationUS) * time.Microsecond,
			Out:    queues.For(eventkind.Account),
		})
		go p.coalescer.Run(runCtx)
	}

	p.Adapter = ingress.New(queues, p.coalescer)

	logger.Info("ample producer started", zap.String("bind_addr", cfg.BindAddr))
	return p, nil
}

// Metrics exposes the prometheus registry for the host process to scrape
// or bridge to OTLP; the export path itself is out of scope (spec §1).
func (p *Producer) Metrics() *obs.Metrics { return p.metrics }

// Shutdown reverses the startup order: flush the coalescer synchronously,
// drain the transport server, then cancel everything still running. The
// ingress adapter itself is not disabled.
func (p *Producer) Shutdown() {
	if p.coalescer != nil {
		p.coalescer.FlushAll()
	}
	if p.server != nil {
		_ = p.server.Close()
	}
	p.cancel()
	p.logger.Info("ample producer stopped")
	_ = p.logger.Sync()
}
