package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/quic-go/quic-go"
	"go.uber.org/zap"

	"ample/codec"
	"ample/eventkind"
	"ample/fanout"
	"ample/obs"
)

// Backoff bounds for client reconnection (spec §4.3).
const (
	backoffStart  = 200 * time.Millisecond
	backoffCap    = 10 * time.Second
	backoffJitter = 0.25
)

// ClientConfig configures Connect.
type ClientConfig struct {
	UpstreamAddr    string
	ExpectedFQDN    string
	TrustedCertPath string
	CompressionHint codec.Compression
	NeededKinds     KindBitset
	Metrics         *obs.Metrics
	Logger          *zap.Logger
}

// Client owns one reconnecting QUIC connection to a producer and the
// per-kind queues downstream consumers pull decoded records from.
type Client struct {
	cfg    ClientConfig
	queues *fanout.ByKind
	cancel context.CancelFunc
	done   chan struct{}
}

// Connect starts the reconnect loop in the background and returns
// immediately; Events begins delivering records once the first handshake
// completes.
func Connect(ctx context.Context, cfg ClientConfig) (*Client, error) {
	if cfg.NeededKinds == 0 {
		cfg.NeededKinds = BitsetAll()
	}
	runCtx, cancel := context.WithCancel(ctx)
	c := &Client{
		cfg:    cfg,
		queues: fanout.NewByKind(cfg.Metrics, nil),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(c.done)
		c.reconnectLoop(runCtx)
	}()
	return c, nil
}

// Events returns the queue a dispatch sink should pull kind's decoded
// records from, in the order they were written on the wire.
func (c *Client) Events(kind eventkind.Kind) *fanout.Queue {
	return c.queues.For(kind)
}

// Close stops the reconnect loop and waits for it to exit.
func (c *Client) Close() {
	c.cancel()
	<-c.done
}

func (c *Client) reconnectLoop(ctx context.Context) {
	backoff := backoffStart
	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runOneConnection(ctx)
		if ctx.Err() != nil {
			return
		}
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.ReconnectsTotal.Inc()
		}
		c.cfg.Logger.Warn("connection lost, reconnecting", zap.Error(err), zap.Duration("backoff", backoff))

		jitter := 1 + (rand.Float64()*2-1)*backoffJitter
		wait := time.Duration(float64(backoff) * jitter)
		select {
		case <-ctx.Done():
			return
		case <-time.After(wait):
		}

		backoff *= 2
		if backoff > backoffCap {
			backoff = backoffCap
		}
	}
}

// runOneConnection dials, performs the handshake, and pumps every data
// stream until a fatal error occurs. A gap in monotonic_seq across
// invocations of this function is expected (spec §4.3) and is not an
// error surfaced to consumers.
func (c *Client) runOneConnection(ctx context.Context) error {
	tlsConfig, err := ClientTLSConfig(c.cfg.TrustedCertPath, c.cfg.ExpectedFQDN)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrTlsVerify, err)
	}

	dialCtx, dialCancel := context.WithTimeout(ctx, 10*time.Second)
	defer dialCancel()

	conn, err := quic.DialAddr(dialCtx, c.cfg.UpstreamAddr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("%w: dial %s: %v", ErrTlsVerify, c.cfg.UpstreamAddr, err)
	}
	defer conn.CloseWithError(0, "")

	hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
	defer hcancel()

	control, err := conn.AcceptUniStream(hctx)
	if err != nil {
		return fmt.Errorf("%w: accept control stream: %v", ErrTransportTransient, err)
	}
	desc, err := readDescriptor(control)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrIncompatibleHandshake, err)
	}
	if desc.ProtocolVersion != ProtocolVersion {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("%w: protocol version %d != %d", ErrIncompatibleHandshake, desc.ProtocolVersion, ProtocolVersion)
	}
	if !desc.EnabledKinds.Supersets(c.cfg.NeededKinds) {
		if c.cfg.Metrics != nil {
			c.cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("%w: producer enabled_kinds does not cover required kinds", ErrIncompatibleHandshake)
	}

	streams := make([]quic.ReceiveStream, len(eventkind.All))
	for i := range eventkind.All {
		s, err := conn.AcceptUniStream(hctx)
		if err != nil {
			return fmt.Errorf("%w: accept data stream %d: %v", ErrTransportTransient, i, err)
		}
		streams[i] = s
	}

	errCh := make(chan error, len(streams))
	readerCtx, readerCancel := context.WithCancel(ctx)
	defer readerCancel()
	for i, kind := range eventkind.All {
		go func(stream quic.ReceiveStream, kind eventkind.Kind) {
			errCh <- c.readStream(readerCtx, stream, kind)
		}(streams[i], kind)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

// readStream runs exactly one reader per stream, preserving per-stream
// (and therefore per-kind) order end to end (spec §4.3, §5).
func (c *Client) readStream(ctx context.Context, stream quic.ReceiveStream, kind eventkind.Kind) error {
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		decodedKind, payload, err := codec.Decode(stream)
		if err != nil {
			if c.cfg.Metrics != nil && !errors.Is(err, io.EOF) {
				c.cfg.Metrics.DecodeErrors.Inc()
			}
			return fmt.Errorf("%w: decode %s stream: %v", ErrTransportTransient, kind, err)
		}
		if decodedKind != kind {
			return fmt.Errorf("%w: stream %s produced frame tagged %s", ErrIncompatibleHandshake, kind, decodedKind)
		}
		c.queues.For(kind).Submit(eventkind.Record{Kind: kind, Payload: payload})
	}
}
