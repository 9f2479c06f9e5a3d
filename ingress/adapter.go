// Package ingress implements the producer's synchronous entry points,
// invoked directly by the host validator's own threads. No entry point
// fails upward (spec §4.6). Submissions to the fan-out queues never block;
// an account update routed through the coalescer blocks while the
// coalescer's mailbox channel is full.
package ingress

import (
	"sync/atomic"

	"ample/coalescer"
	"ample/eventkind"
	"ample/fanout"
)

// Adapter translates host-plugin callbacks into fan-out queue submissions.
// It holds one atomic monotonic-seq counter per kind; those counters plus
// the fan-out queue pushes (each a short mutex-guarded append) are the
// adapter's only synchronization, run entirely on the caller's (host
// validator's) thread.
type Adapter struct {
	queues    *fanout.ByKind
	coalescer *coalescer.Coalescer // nil when disabled

	seq [5]atomic.Uint64

	startupDone atomic.Bool
}

// New builds an Adapter. coalescerOrNil is nil when the account coalescer
// is disabled, in which case account records route directly to the
// accounts fan-out queue.
func New(queues *fanout.ByKind, coalescerOrNil *coalescer.Coalescer) *Adapter {
	return &Adapter{queues: queues, coalescer: coalescerOrNil}
}

func (a *Adapter) nextSeq(kind eventkind.Kind) uint64 {
	return a.seq[kind].Add(1)
}

// OnStartupDone marks the end-of-startup boundary. Account notifications
// received before this call are discarded (spec §4.6: no snapshot replay).
func (a *Adapter) OnStartupDone() {
	a.startupDone.Store(true)
}

// OnAccount handles update_account. pubkey and writeVersion are the
// fields the host's payload exposes for coalescing and metrics; payload
// is the opaque bincode blob, ownership transferred (not copied).
func (a *Adapter) OnAccount(slot uint64, pubkey [32]byte, writeVersion uint64, payload []byte) {
	if !a.startupDone.Load() {
		return
	}
	rec := eventkind.Record{
		Kind:         eventkind.Account,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(eventkind.Account),
		Payload:      payload,
		WriteVersion: writeVersion,
		Pubkey:       pubkey,
	}
	if a.coalescer != nil {
		a.coalescer.Insert(rec)
		return
	}
	a.queues.For(eventkind.Account).Submit(rec)
}

// OnTransaction handles notify_transaction.
func (a *Adapter) OnTransaction(slot uint64, payload []byte) {
	a.submit(eventkind.Transaction, slot, payload)
}

// OnEntry handles notify_entry.
func (a *Adapter) OnEntry(slot uint64, payload []byte) {
	a.submit(eventkind.Entry, slot, payload)
}

// OnBlockMetadata handles notify_block_metadata.
func (a *Adapter) OnBlockMetadata(slot uint64, payload []byte) {
	a.submit(eventkind.Block, slot, payload)
}

// OnSlotStatus handles update_slot_status.
func (a *Adapter) OnSlotStatus(slot uint64, payload []byte) {
	a.submit(eventkind.SlotStatus, slot, payload)
}

func (a *Adapter) submit(kind eventkind.Kind, slot uint64, payload []byte) {
	a.queues.For(kind).Submit(eventkind.Record{
		Kind:         kind,
		Slot:         slot,
		MonotonicSeq: a.nextSeq(kind),
		Payload:      payload,
	})
}
