// Package decode turns a captured 802.11 frame into a domain.Observation.
// Grounded on the teacher's PacketHandler.HandlePacket
// (internal/adapters/sniffer/packet_handler.go), narrowed to the
// Beacon/Probe-Request scope of this sensor and built on the same
// github.com/google/gopacket + github.com/google/gopacket/layers stack.
package decode

import (
	"errors"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/wisp-sensor/wisp/internal/domain"
)

// dot11MinHeaderLen is the minimum 802.11 MAC header length (spec.md §4.1
// rule 1).
const dot11MinHeaderLen = 24

// capabilityPrivacyBit is bit 4 of the beacon/probe-response capability
// info field.
const capabilityPrivacyBit = 0x0010

// ErrFrameTooShort is returned for frames too short to hold a valid
// radiotap header plus an 802.11 MAC header.
var ErrFrameTooShort = errors.New("decode: frame too short")

// Decode parses a single captured frame. Returns (nil, nil) for frames that
// are valid but irrelevant to this sensor (wrong type/subtype); returns a
// non-nil error only for malformed frames, which the Capture Loop logs and
// swallows per spec.md §4.4.
func Decode(packet gopacket.Packet) (*domain.Observation, error) {
	if len(packet.Data()) < dot11MinHeaderLen {
		return nil, ErrFrameTooShort
	}

	dot11Layer := packet.Layer(layers.LayerTypeDot11)
	if dot11Layer == nil {
		return nil, ErrFrameTooShort
	}
	dot11, ok := dot11Layer.(*layers.Dot11)
	if !ok {
		return nil, ErrFrameTooShort
	}

	rssi := domain.RSSISentinel
	if rt := packet.Layer(layers.LayerTypeRadioTap); rt != nil {
		if radiotap, ok := rt.(*layers.RadioTap); ok {
			rssi = int(radiotap.DBMAntennaSignal)
		}
	}

	switch dot11.Type {
	case layers.Dot11TypeMgmtBeacon:
		return decodeBeacon(packet, dot11, rssi)
	case layers.Dot11TypeMgmtProbeReq:
		return decodeProbeRequest(packet, dot11, rssi)
	default:
		return nil, nil
	}
}

func decodeBeacon(packet gopacket.Packet, dot11 *layers.Dot11, rssi int) (*domain.Observation, error) {
	bssid, err := domain.ParseMAC(dot11.Address3.String())
	if err != nil {
		return nil, err
	}

	var capability uint16
	var ieData []byte
	if beacon := packet.Layer(layers.LayerTypeDot11MgmtBeacon); beacon != nil {
		if b, ok := beacon.(*layers.Dot11MgmtBeacon); ok {
			capability = b.Flags
		}
		ieData = beacon.LayerPayload()
	}
	ieData = fallbackIEs(packet, ieData)

	ssid, _ := ssidFromElements(ieData)
	channel, _ := channelFromElements(ieData)
	encryption := classifyEncryption(capability, ieData)

	return &domain.Observation{
		Kind:       domain.ObservationBeacon,
		BSSID:      bssid,
		SSID:       ssid,
		Channel:    channel,
		RSSI:       rssi,
		Encryption: encryption,
	}, nil
}

func decodeProbeRequest(packet gopacket.Packet, dot11 *layers.Dot11, rssi int) (*domain.Observation, error) {
	source, err := domain.ParseMAC(dot11.Address2.String())
	if err != nil {
		return nil, err
	}

	var ieData []byte
	if probe := packet.Layer(layers.LayerTypeDot11MgmtProbeReq); probe != nil {
		ieData = probe.LayerPayload()
	}
	ieData = fallbackIEs(packet, ieData)

	ssid, hasSSID := ssidFromElements(ieData)

	return &domain.Observation{
		Kind:      domain.ObservationProbeRequest,
		SourceMAC: source,
		SSID:      ssid,
		HasSSID:   hasSSID,
		RSSI:      rssi,
	}, nil
}

// fallbackIEs reconstructs the IE byte stream from individually decoded
// Dot11InformationElement layers when LayerPayload() came back empty —
// some drivers hand gopacket frames it decodes all the way down instead of
// leaving a flat payload behind.
func fallbackIEs(packet gopacket.Packet, ieData []byte) []byte {
	if len(ieData) > 0 {
		return ieData
	}
	var rebuilt []byte
	for _, l := range packet.Layers() {
		ie, ok := l.(*layers.Dot11InformationElement)
		if !ok {
			continue
		}
		rebuilt = append(rebuilt, byte(ie.ID), ie.Length)
		rebuilt = append(rebuilt, ie.Info...)
	}
	return rebuilt
}

// classifyEncryption implements spec.md §4.1's beacon encryption rule.
func classifyEncryption(capability uint16, ieData []byte) domain.Encryption {
	if capability&capabilityPrivacyBit == 0 {
		return domain.EncryptionOpen
	}

	var rsnData []byte
	var hasWPA1Vendor bool
	walkElements(ieData, func(e element) bool {
		switch {
		case e.id == ieRSN:
			rsnData = e.value
		case isWPA1VendorIE(e):
			hasWPA1Vendor = true
		}
		return true
	})

	if rsnData != nil {
		info, err := parseRSN(rsnData)
		if err == nil && hasSAE(info) {
			return domain.EncryptionWPA3
		}
		return domain.EncryptionWPA2
	}
	if hasWPA1Vendor {
		return domain.EncryptionWPA
	}
	return domain.EncryptionWEP
}
