// Package transport implements the QUIC/TLS multiplexed transport shared
// by the producer (Server) and consumer (Client) sides: one control
// stream plus one unidirectional data stream per event kind, all
// server-initiated (spec §4.2, §4.3).
package transport

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/quic-go/quic-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ample/codec"
	"ample/eventkind"
	"ample/fanout"
	"ample/obs"
)

// connectAttemptLimit and connectAttemptWindow bound how many handshake
// attempts a single remote IP may make, the same shape as the teacher's
// WAF IP cache (controller/server.go): count attempts in a fixed window
// that starts at the IP's first attempt and ends when go-cache's TTL
// evicts the counter, reject once the ceiling is hit.
const (
	connectAttemptLimit  = 20
	connectAttemptWindow = 30 * time.Second
)

// ServerConfig configures Start.
type ServerConfig struct {
	BindAddr      string
	CertPath      string
	KeyPath       string
	Compression   codec.Compression
	ProducerID    [16]byte
	Queues        *fanout.ByKind
	Metrics       *obs.Metrics
	Logger        *zap.Logger
	DrainDeadline time.Duration
}

// ServerHandle is returned by Start; Close triggers graceful shutdown.
type ServerHandle struct {
	listener *quic.Listener
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	drain    time.Duration
}

// Start binds the QUIC listener and begins accepting connections in a
// background goroutine. Listener-level faults (bind, cert load) are
// returned immediately and are fatal at startup; per-connection faults
// never propagate past this function (spec §4.2).
func Start(ctx context.Context, cfg ServerConfig) (*ServerHandle, error) {
	tlsConfig, err := ServerTLSConfig(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return nil, err
	}

	listener, err := quic.ListenAddr(cfg.BindAddr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", cfg.BindAddr, err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	handle := &ServerHandle{listener: listener, cancel: cancel, drain: cfg.DrainDeadline}

	attempts := cache.New(connectAttemptWindow, connectAttemptWindow*2)

	handle.wg.Add(1)
	go func() {
		defer handle.wg.Done()
		acceptLoop(runCtx, listener, cfg, attempts, &handle.wg)
	}()

	return handle, nil
}

// Close cancels accept loop and all live connections, then waits for them
// to drain up to DrainDeadline before the listener's own Close forces
// everything shut.
func (h *ServerHandle) Close() error {
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	drain := h.drain
	if drain <= 0 {
		drain = 2 * time.Second
	}
	select {
	case <-done:
	case <-time.After(drain):
	}
	return h.listener.Close()
}

func acceptLoop(ctx context.Context, listener *quic.Listener, cfg ServerConfig, attempts *cache.Cache, wg *sync.WaitGroup) {
	for {
		conn, err := listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			cfg.Logger.Warn("accept failed", zap.Error(err))
			continue
		}

		host, _, _ := net.SplitHostPort(conn.RemoteAddr().String())
		if host == "" {
			host = conn.RemoteAddr().String()
		}
		if count, found := attempts.Get(host); found && count.(int) >= connectAttemptLimit {
			cfg.Logger.Warn("rejecting connection, too many attempts", zap.String("remote", host))
			_ = conn.CloseWithError(0, "too many connection attempts")
			continue
		} else if found {
			attempts.Increment(host, 1)
		} else {
			attempts.Set(host, 1, cache.DefaultExpiration)
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := serveConnection(ctx, conn, cfg); err != nil {
				cfg.Logger.Info("connection closed", zap.String("remote", conn.RemoteAddr().String()), zap.Error(err))
			}
		}()
	}
}

// serveConnection drives one peer: handshake, then one serializer task
// per data stream, using an errgroup so that any stream's fatal error
// terminates every other task on the same connection (spec §3 "a
// connection's streams share fate").
func serveConnection(parent context.Context, conn quic.Connection, cfg ServerConfig) error {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	defer conn.CloseWithError(0, "")

	hctx, hcancel := context.WithTimeout(ctx, 10*time.Second)
	defer hcancel()

	control, err := conn.OpenUniStreamSync(hctx)
	if err != nil {
		if cfg.Metrics != nil {
			cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("transport: open control stream: %w", err)
	}
	desc := Descriptor{
		ProtocolVersion:       ProtocolVersion,
		EnabledKinds:          BitsetAll(),
		AdvertisedCompression: cfg.Compression,
		ProducerID:            cfg.ProducerID,
	}
	if err := writeDescriptor(control, desc); err != nil {
		if cfg.Metrics != nil {
			cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("transport: write handshake descriptor: %w", err)
	}
	if err := control.Close(); err != nil {
		if cfg.Metrics != nil {
			cfg.Metrics.HandshakeFailures.Inc()
		}
		return fmt.Errorf("transport: close control stream: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, kind := range eventkind.All {
		kind := kind
		stream, err := conn.OpenUniStreamSync(hctx)
		if err != nil {
			if cfg.Metrics != nil {
				cfg.Metrics.HandshakeFailures.Inc()
			}
			return fmt.Errorf("transport: open data stream for %s: %w", kind, err)
		}
		g.Go(func() error {
			return pumpStream(gctx, stream, cfg.Queues.For(kind), kind, cfg)
		})
	}

	return g.Wait()
}

// pumpStream drains kind's fan-out queue and writes each record as a
// frame. QUIC's own per-stream flow control is the only backpressure; the
// write is never attempted while holding any shared lock (spec §4.2).
func pumpStream(ctx context.Context, stream quic.SendStream, queue *fanout.Queue, kind eventkind.Kind, cfg ServerConfig) error {
	defer stream.Close()

	for {
		rec, ok := queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-queue.Wait():
				continue
			case <-time.After(100 * time.Millisecond):
				continue
			}
		}

		frame, err := codec.Encode(kind, rec.Payload, cfg.Compression)
		if err != nil {
			if cfg.Metrics != nil {
				cfg.Metrics.RecordDrop(kind, obs.DropFrameTooLarge)
			}
			cfg.Logger.Warn("dropping oversize record", zap.Stringer("kind", kind), zap.Error(err))
			continue
		}

		if _, err := stream.Write(frame); err != nil {
			return fmt.Errorf("%w: write %s stream: %v", ErrTransportTransient, kind, err)
		}
		if cfg.Metrics != nil {
			cfg.Metrics.RecordFrame(kind, len(frame))
		}
	}
}

// NewProducerID generates a random producer identity for the handshake
// descriptor.
func NewProducerID() [16]byte {
	var id [16]byte
	_, _ = rand.Read(id[:])
	return id
}

