// Package plugin is the producer's dynamic-library entry point: the
// symbol the host validator's plugin loader resolves and calls into
// (spec §6 "Host plugin ABI"). Loader mechanics (Go plugin.Open, symbol
// resolution) are the host validator's responsibility and out of scope
// per spec §1; this package only implements the capability set the host
// expects to find once it has the object in hand.
package plugin

import (
	"context"
	"fmt"

	"ample/gateway"
	"ample/pconfig"
	"ample/pluginabi"
)

// GeyserPlugin is the exported object a *ample.so built with
// -buildmode=plugin hands back from its constructor symbol. It implements
// the host validator's plugin capability set.
type GeyserPlugin struct {
	gw *gateway.Producer
}

// New is the constructor symbol the host loader calls. (The actual
// exported symbol name and calling convention are defined by the host
// validator's loader, not by this package.)
func New() *GeyserPlugin {
	return &GeyserPlugin{}
}

// Capabilities reports which callbacks this plugin wants invoked.
func (p *GeyserPlugin) Capabilities() pluginabi.HostCapabilities {
	return pluginabi.DefaultHostCapabilities()
}

// OnLoad loads configPath, starts the transport server and fan-out
// pipeline, and is the producer-side startup described in spec §4.8.
func (p *GeyserPlugin) OnLoad(configPath string) error {
	cfg, err := pconfig.Load(configPath)
	if err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	gw, err := gateway.NewProducer(context.Background(), cfg)
	if err != nil {
		return fmt.Errorf("plugin: %w", err)
	}
	p.gw = gw
	return nil
}

// OnUnload reverses OnLoad, draining queues up to the configured deadline
// before forcing everything closed (spec §4.8).
func (p *GeyserPlugin) OnUnload() {
	if p.gw != nil {
		p.gw.Shutdown()
	}
}

// NotifyEndOfStartup marks the end of the host's startup account replay;
// account updates before this call are discarded (spec §4.6).
func (p *GeyserPlugin) NotifyEndOfStartup() {
	p.gw.Adapter.OnStartupDone()
}

// UpdateAccount is update_account.
func (p *GeyserPlugin) UpdateAccount(slot uint64, pubkey [32]byte, writeVersion uint64, payload []byte) {
	p.gw.Adapter.OnAccount(slot, pubkey, writeVersion, payload)
}

// UpdateSlotStatus is update_slot_status.
func (p *GeyserPlugin) UpdateSlotStatus(slot uint64, payload []byte) {
	p.gw.Adapter.OnSlotStatus(slot, payload)
}

// NotifyTransaction is notify_transaction.
func (p *GeyserPlugin) NotifyTransaction(slot uint64, payload []byte) {
	p.gw.Adapter.OnTransaction(slot, payload)
}

// NotifyEntry is notify_entry.
func (p *GeyserPlugin) NotifyEntry(slot uint64, payload []byte) {
	p.gw.Adapter.OnEntry(slot, payload)
}

// NotifyBlockMetadata is notify_block_metadata.
func (p *GeyserPlugin) NotifyBlockMetadata(slot uint64, payload []byte) {
	p.gw.Adapter.OnBlockMetadata(slot, payload)
}
