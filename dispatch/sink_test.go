package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"ample/eventkind"
	"ample/fanout"
	"ample/pluginabi"
)

type recordingPlugin struct {
	name    string
	mu      sync.Mutex
	seen    []eventkind.Record
	fail    bool
	panicOn bool
}

func (p *recordingPlugin) Name() string { return p.name }

func (p *recordingPlugin) handle(rec eventkind.Record) error {
	if p.panicOn {
		panic("boom")
	}
	p.mu.Lock()
	p.seen = append(p.seen, rec)
	p.mu.Unlock()
	if p.fail {
		return errors.New("plugin failure")
	}
	return nil
}

func (p *recordingPlugin) OnAccount(rec eventkind.Record) error       { return p.handle(rec) }
func (p *recordingPlugin) OnTransaction(rec eventkind.Record) error   { return p.handle(rec) }
func (p *recordingPlugin) OnEntry(rec eventkind.Record) error         { return p.handle(rec) }
func (p *recordingPlugin) OnBlockMetadata(rec eventkind.Record) error { return p.handle(rec) }
func (p *recordingPlugin) OnSlotStatus(rec eventkind.Record) error    { return p.handle(rec) }

func (p *recordingPlugin) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.seen)
}

func TestSinkDeliversInOrder(t *testing.T) {
	plugin := &recordingPlugin{name: "recorder"}
	queues := fanout.NewByKind(nil, nil)
	sink := New([]pluginabi.EventConsumerPlugin{plugin}, zaptest.NewLogger(t), nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, queues.For)

	for i := uint64(0); i < 5; i++ {
		queues.For(eventkind.Transaction).Submit(eventkind.Record{Kind: eventkind.Transaction, MonotonicSeq: i})
	}

	require.Eventually(t, func() bool { return plugin.count() == 5 }, time.Second, time.Millisecond)

	plugin.mu.Lock()
	defer plugin.mu.Unlock()
	for i, rec := range plugin.seen {
		assert.Equal(t, uint64(i), rec.MonotonicSeq)
	}
}

func TestSinkIsolatesPluginPanic(t *testing.T) {
	panicker := &recordingPlugin{name: "panicker", panicOn: true}
	healthy := &recordingPlugin{name: "healthy"}
	queues := fanout.NewByKind(nil, nil)

	var errCount int
	var mu sync.Mutex
	sink := New([]pluginabi.EventConsumerPlugin{panicker, healthy}, zaptest.NewLogger(t), func(eventkind.Kind) {
		mu.Lock()
		errCount++
		mu.Unlock()
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx, queues.For)

	queues.For(eventkind.Block).Submit(eventkind.Record{Kind: eventkind.Block})

	require.Eventually(t, func() bool { return healthy.count() == 1 }, time.Second, time.Millisecond)
	mu.Lock()
	assert.Equal(t, 1, errCount)
	mu.Unlock()
}
