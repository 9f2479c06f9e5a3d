// Package pluginabi defines the host-plugin ABI surface the gateway
// sits between: the producer side implements the validator's plugin
// capability set (§6 "Host plugin ABI"), and the consumer side loads
// downstream plugins through the symmetric "Plugin host interface".
//
// The actual dynamic-load mechanics (Go plugin.Open, the host validator's
// loader) are out of scope per spec §1; this package only fixes the
// method-set contract both sides agree on.
package pluginabi

import "ample/eventkind"

// EventConsumerPlugin is implemented by every downstream plugin the
// consumer hosts. Methods are invoked in per-kind, per-connection order
// (spec §5); a returned error is logged and counted, never fatal (spec
// §4.7, §7 PluginError).
type EventConsumerPlugin interface {
	Name() string

	OnAccount(rec eventkind.Record) error
	OnTransaction(rec eventkind.Record) error
	OnEntry(rec eventkind.Record) error
	OnBlockMetadata(rec eventkind.Record) error
	OnSlotStatus(rec eventkind.Record) error
}

// HostCapabilities is declared by the producer side to the host validator
// loader: which callbacks it wants invoked. This implementation declares
// every kind wanted except startup account dumps (spec §6).
type HostCapabilities struct {
	WantsAccountUpdates      bool
	WantsStartupAccountDumps bool
	WantsTransactions        bool
	WantsEntries             bool
	WantsBlockMetadata       bool
	WantsSlotStatus          bool
}

// DefaultHostCapabilities is what this gateway's producer plugin declares.
func DefaultHostCapabilities() HostCapabilities {
	return HostCapabilities{
		WantsAccountUpdates:      true,
		WantsStartupAccountDumps: false,
		WantsTransactions:        true,
		WantsEntries:             true,
		WantsBlockMetadata:       true,
		WantsSlotStatus:          true,
	}
}
