// Package eventkind defines the closed set of Geyser event kinds that flow
// through the gateway and the envelope wrapped around each kind's opaque
// payload.
package eventkind

import "fmt"

// Kind identifies one of the five event streams. The numeric value doubles
// as the stream index used on both the producer and consumer side.
type Kind uint8

const (
	Account Kind = iota
	Transaction
	Entry
	Block
	SlotStatus

	numKinds = int(SlotStatus) + 1
)

// All lists every kind in stream-index order.
var All = [numKinds]Kind{Account, Transaction, Entry, Block, SlotStatus}

func (k Kind) String() string {
	switch k {
	case Account:
		return "account"
	case Transaction:
		return "transaction"
	case Entry:
		return "entry"
	case Block:
		return "block"
	case SlotStatus:
		return "slot_status"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Valid reports whether k is one of the five known kinds.
func (k Kind) Valid() bool {
	return k <= SlotStatus
}

// Record is the envelope the ingress adapter builds around a host-plugin
// payload. Payload is an opaque bincode blob whose layout is owned by the
// host validator's plugin interface; the gateway never inspects it except
// to pull the account-specific fields out for coalescing and metrics.
type Record struct {
	Kind         Kind
	Slot         uint64
	MonotonicSeq uint64
	Payload      []byte

	// Account-only fields, extracted by the caller before building the
	// Record. Zero for every other kind.
	WriteVersion uint64
	Pubkey       [32]byte
}

// Progress returns r's (Slot, WriteVersion) pair, the progress metric that
// Newer compares lexicographically.
func (r Record) Progress() (slot, writeVersion uint64) {
	return r.Slot, r.WriteVersion
}

// Newer reports whether r represents later progress than other, ordering by
// (Slot, WriteVersion) lexicographically.
func Newer(r, other Record) bool {
	if r.Slot != other.Slot {
		return r.Slot > other.Slot
	}
	return r.WriteVersion > other.WriteVersion
}
