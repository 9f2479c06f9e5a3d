// Package dispatch implements the consumer's dispatch sink: one
// dispatcher goroutine per event kind, pulling decoded records off the
// transport client's per-kind queue and invoking the local plugin host in
// order (spec §4.7).
package dispatch

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"ample/eventkind"
	"ample/fanout"
	"ample/pluginabi"
)

// Sink owns the handle to the local plugin host and runs one dispatcher
// per kind against a transport client's queues.
type Sink struct {
	plugins []pluginabi.EventConsumerPlugin
	logger  *zap.Logger

	pluginErrors func(kind eventkind.Kind)
}

// New builds a Sink that fans every decoded record out to each plugin in
// plugins, in registration order.
func New(plugins []pluginabi.EventConsumerPlugin, logger *zap.Logger, onPluginError func(kind eventkind.Kind)) *Sink {
	return &Sink{plugins: plugins, logger: logger, pluginErrors: onPluginError}
}

// Run starts one dispatcher goroutine per kind against queues, blocking
// until ctx is cancelled.
func (s *Sink) Run(ctx context.Context, queues func(eventkind.Kind) *fanout.Queue) {
	for _, kind := range eventkind.All {
		kind := kind
		go s.dispatchLoop(ctx, queues(kind), kind)
	}
	<-ctx.Done()
}

func (s *Sink) dispatchLoop(ctx context.Context, queue *fanout.Queue, kind eventkind.Kind) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, ok := queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-queue.Wait():
				continue
			}
		}
		s.deliver(kind, rec)
	}
}

// deliver invokes every plugin's handler for kind, isolating panics and
// errors so a single buggy downstream plugin can never take down the
// gateway (spec §4.7: "plugin bugs should not crash the gateway").
func (s *Sink) deliver(kind eventkind.Kind, rec eventkind.Record) {
	for _, p := range s.plugins {
		s.invokeOne(p, kind, rec)
	}
}

func (s *Sink) invokeOne(p pluginabi.EventConsumerPlugin, kind eventkind.Kind, rec eventkind.Record) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("plugin panicked",
				zap.String("plugin", p.Name()),
				zap.Stringer("kind", kind),
				zap.Any("recover", r))
			if s.pluginErrors != nil {
				s.pluginErrors(kind)
			}
		}
	}()

	var err error
	switch kind {
	case eventkind.Account:
		err = p.OnAccount(rec)
	case eventkind.Transaction:
		err = p.OnTransaction(rec)
	case eventkind.Entry:
		err = p.OnEntry(rec)
	case eventkind.Block:
		err = p.OnBlockMetadata(rec)
	case eventkind.SlotStatus:
		err = p.OnSlotStatus(rec)
	default:
		err = fmt.Errorf("dispatch: unknown kind %s", kind)
	}
	if err != nil {
		s.logger.Warn("plugin returned error",
			zap.String("plugin", p.Name()),
			zap.Stringer("kind", kind),
			zap.Error(err))
		if s.pluginErrors != nil {
			s.pluginErrors(kind)
		}
	}
}
