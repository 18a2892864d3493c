// Package ports declares the interfaces the core components depend on,
// following the teacher repository's ports-and-adapters convention
// (internal/core/ports in wmap): the core never imports a concrete adapter
// directly, only the interface it needs.
package ports

import (
	"context"

	"github.com/wisp-sensor/wisp/internal/domain"
)

// Sink is the document-store upward interface (spec.md §6). Adapters:
// internal/sink (gorm + sqlite).
type Sink interface {
	UpsertDevice(ctx context.Context, d domain.Device) error
	UpsertAccessPoint(ctx context.Context, a domain.AccessPoint) error
	RecordEvent(ctx context.Context, e Event) error
	Close() error
}

// Event is a durable record of a discovery, mirrored to the document sink's
// events collection and to the bus envelope.
type Event struct {
	Type      string
	Timestamp string
	MAC       string
	RSSI      *int
	Vendor    string
	SSID      string
	Channel   *int
}

// Bus is the event-bus upward interface (spec.md §6). Adapters: internal/bus
// (cloud.google.com/go/pubsub).
type Bus interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// VendorResolver maps a MAC's OUI to a vendor string, invoked at most once
// per newly created device (spec.md §4.5). Adapters: internal/vendor.
type VendorResolver interface {
	Lookup(ctx context.Context, mac domain.MAC) (vendor string, ok bool)
}

// RadioController owns the NIC's mode and channel (spec.md §4.3). Adapters:
// internal/radio.
type RadioController interface {
	EnableMonitor(ctx context.Context) error
	DisableMonitor(ctx context.Context)
	SetChannel(ctx context.Context, channel int) error
	CurrentChannel() int
}
