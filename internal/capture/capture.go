// Package capture implements the Capture Loop (spec.md §4.4): open a live
// pcap handle on the monitor interface, iterate frames, feed each to the
// Frame Decoder and then the Observation Store. Grounded on the teacher's
// pcap usage (internal/adapters/sniffer/injection/pcap_injector.go uses
// pcap.OpenLive/pcap.BlockForever from the same github.com/google/gopacket/pcap
// package) and on PacketHandler.HandlePacket's per-packet dispatch shape.
package capture

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/wisp-sensor/wisp/internal/decode"
	"github.com/wisp-sensor/wisp/internal/domain"
	"github.com/wisp-sensor/wisp/internal/telemetry"
)

const (
	snaplen     = 2048
	readTimeout = 100 * time.Millisecond
	bpfFilter   = "type mgt and (subtype beacon or subtype probe-req)"
)

// ErrCaptureOpen is returned when the pcap handle cannot be opened.
var ErrCaptureOpen = errors.New("capture: failed to open handle")

// Sink receives decoded observations. *store.Store implements this.
type Sink interface {
	Ingest(obs domain.Observation)
}

// Loop owns a live capture handle on one monitor-mode interface.
type Loop struct {
	Interface string
	Sink      Sink

	handle *pcap.Handle
}

// NewLoop constructs a Loop. Open must be called before Run.
func NewLoop(iface string, sink Sink) *Loop {
	return &Loop{Interface: iface, Sink: sink}
}

// Open acquires the pcap handle and applies the BPF filter, falling back to
// Decoder-side filtering (the Decoder already only emits Beacon/Probe
// Request observations) if the driver rejects the filter.
func (l *Loop) Open() error {
	handle, err := pcap.OpenLive(l.Interface, snaplen, true, readTimeout)
	if err != nil {
		return errFrom(err)
	}
	if err := handle.SetBPFFilter(bpfFilter); err != nil {
		log.Printf("capture: BPF filter unsupported on %s, falling back to decoder-side filtering: %v", l.Interface, err)
	}
	l.handle = handle
	return nil
}

func errFrom(err error) error {
	return errors.Join(ErrCaptureOpen, err)
}

// Run iterates captured frames until ctx is cancelled, feeding each through
// the Decoder then the Store. Decode errors are logged and swallowed — a
// malformed frame never kills the loop (spec.md §4.4). Returns when ctx is
// done, at the next read boundary, and closes the handle.
func (l *Loop) Run(ctx context.Context) {
	defer l.handle.Close()

	source := gopacket.NewPacketSource(l.handle, l.handle.LinkType())
	packets := source.Packets()

	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-packets:
			if !ok {
				return
			}
			l.handleOne(packet)
		}
	}
}

func (l *Loop) handleOne(packet gopacket.Packet) {
	telemetry.PacketsCaptured.WithLabelValues(l.Interface).Inc()

	obs, err := decode.Decode(packet)
	if err != nil {
		telemetry.PacketsDropped.WithLabelValues(l.Interface, "decode_error").Inc()
		log.Printf("capture: decode error on %s: %v", l.Interface, err)
		return
	}
	if obs == nil {
		return
	}

	telemetry.PacketsProcessed.WithLabelValues(l.Interface).Inc()
	l.Sink.Ingest(*obs)
}
