// Package coalescer implements the optional account-update coalescer that
// sits between the producer ingress adapter and the accounts fan-out
// queue. It collapses high-rate writes to the same pubkey inside a short
// window, never regressing (slot, write_version) for any pubkey (spec
// §4.5, §9 "coalescer as mailbox-owned state").
package coalescer

import (
	"context"
	"time"

	"ample/eventkind"
	"ample/fanout"
)

type entry struct {
	record        eventkind.Record
	firstInsertAt time.Time
}

// insertMsg and flushAllMsg are the two message types the mailbox goroutine
// selects on, alongside its flush ticker; there is no shared map, so no
// lock is needed (spec §9).
type insertMsg struct {
	record eventkind.Record
}

type flushAllMsg struct {
	done chan struct{}
}

// Coalescer owns a private map from pubkey to its latest entry plus an
// insertion-ordered pending list, both touched only by the single run
// goroutine.
type Coalescer struct {
	window   time.Duration
	tick     time.Duration
	out      *fanout.Queue
	insertCh chan insertMsg
	flushCh  chan flushAllMsg
	done     chan struct{}
}

// Config controls the coalescer's window and output queue.
type Config struct {
	// Window is the maximum time an update may be delayed before emission.
	Window time.Duration
	// Out is the accounts fan-out queue entries are emitted into.
	Out *fanout.Queue
}

// New builds a Coalescer; call Run to start its mailbox goroutine.
func New(cfg Config) *Coalescer {
	tick := cfg.Window / 4
	if tick <= 0 {
		tick = time.Microsecond
	}
	return &Coalescer{
		window:   cfg.Window,
		tick:     tick,
		out:      cfg.Out,
		insertCh: make(chan insertMsg, 1024),
		flushCh:  make(chan flushAllMsg),
		done:     make(chan struct{}),
	}
}

// Insert enqueues an account record for coalescing. Safe to call
// concurrently; delivery to the mailbox goroutine is via a buffered
// channel so callers on the ingress hot path are not blocked by the
// flusher's work, only by channel capacity under extreme backpressure.
func (c *Coalescer) Insert(rec eventkind.Record) {
	select {
	case c.insertCh <- insertMsg{record: rec}:
	case <-c.done:
	}
}

// FlushAll synchronously emits every pending entry, in first-insertion
// order, then returns. Used on connection shutdown (spec §4.5 "on
// shutdown, all entries are flushed synchronously").
func (c *Coalescer) FlushAll() {
	done := make(chan struct{})
	select {
	case c.flushCh <- flushAllMsg{done: done}:
		<-done
	case <-c.done:
	}
}

// Run is the mailbox goroutine. It owns the map and pending-order slice
// exclusively and exits when ctx is cancelled.
func (c *Coalescer) Run(ctx context.Context) {
	defer close(c.done)

	entries := make(map[[32]byte]*entry)
	var pending [][32]byte // insertion order of first-touched pubkeys

	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	emit := func(pubkey [32]byte) {
		e := entries[pubkey]
		delete(entries, pubkey)
		c.out.Submit(e.record)
	}

	flushDue := func(now time.Time) {
		cut := 0
		for _, pk := range pending {
			e, ok := entries[pk]
			if !ok {
				cut++
				continue
			}
			if now.Sub(e.firstInsertAt) < c.window {
				break
			}
			emit(pk)
			cut++
		}
		pending = pending[cut:]
	}

	for {
		select {
		case <-ctx.Done():
			for _, pk := range pending {
				if _, ok := entries[pk]; ok {
					emit(pk)
				}
			}
			return

		case msg := <-c.insertCh:
			pk := msg.record.Pubkey
			if existing, ok := entries[pk]; ok {
				if eventkind.Newer(msg.record, existing.record) {
					existing.record = msg.record
				}
				continue
			}
			entries[pk] = &entry{record: msg.record, firstInsertAt: time.Now()}
			pending = append(pending, pk)

		case <-ticker.C:
			flushDue(time.Now())

		case msg := <-c.flushCh:
			for _, pk := range pending {
				if _, ok := entries[pk]; ok {
					emit(pk)
				}
			}
			pending = pending[:0]
			close(msg.done)
		}
	}
}
