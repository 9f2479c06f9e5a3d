package coalescer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"ample/eventkind"
	"ample/fanout"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestRunGoroutineExitsOnCancel(t *testing.T) {
	defer goleak.VerifyNone(t)

	out := fanout.New(eventkind.Account, 4, nil)
	c := New(Config{Window: time.Millisecond, Out: out})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("coalescer Run did not exit after cancel")
	}
}

func TestCoalesceCollapsesToHighestProgress(t *testing.T) {
	out := fanout.New(eventkind.Account, 16, nil)
	c := New(Config{Window: 20 * time.Millisecond, Out: out})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var pubkey [32]byte
	pubkey[0] = 0xAA

	for _, wv := range []uint64{10, 11, 12} {
		c.Insert(eventkind.Record{
			Kind:         eventkind.Account,
			Slot:         100,
			WriteVersion: wv,
			Pubkey:       pubkey,
		})
	}

	deadline := time.After(2 * time.Second)
	var rec eventkind.Record
	var ok bool
	for {
		rec, ok = out.Pop()
		if ok {
			break
		}
		select {
		case <-deadline:
			t.Fatal("timed out waiting for coalesced emission")
		case <-time.After(time.Millisecond):
		}
	}

	assert.Equal(t, uint64(12), rec.WriteVersion)
	assert.Equal(t, uint64(100), rec.Slot)
	_, ok = out.Pop()
	assert.False(t, ok, "only one record should be emitted for the pubkey")
}

func TestCoalesceNeverRegresses(t *testing.T) {
	out := fanout.New(eventkind.Account, 16, nil)
	c := New(Config{Window: 10 * time.Millisecond, Out: out})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	var pubkey [32]byte
	pubkey[0] = 0xBB

	c.Insert(eventkind.Record{Kind: eventkind.Account, Slot: 100, WriteVersion: 12, Pubkey: pubkey})
	c.Insert(eventkind.Record{Kind: eventkind.Account, Slot: 100, WriteVersion: 5, Pubkey: pubkey})

	time.Sleep(100 * time.Millisecond)
	rec, ok := out.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(12), rec.WriteVersion)
}

func TestFlushAllOnShutdown(t *testing.T) {
	out := fanout.New(eventkind.Account, 16, nil)
	c := New(Config{Window: time.Hour, Out: out})

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	var pubkey [32]byte
	pubkey[0] = 0xCC
	c.Insert(eventkind.Record{Kind: eventkind.Account, Slot: 1, WriteVersion: 1, Pubkey: pubkey})

	time.Sleep(5 * time.Millisecond)
	c.FlushAll()

	rec, ok := out.Pop()
	require.True(t, ok)
	assert.Equal(t, uint64(1), rec.WriteVersion)

	cancel()
}
