// Package store holds the in-memory device/access-point census: the
// Observation Store of spec.md §4.2. Sharded-map concurrency design is
// grounded on the teacher's internal/core/services/registry/device_registry.go
// (DeviceRegistry, numShards=16, getShard by string hash), generalized down
// from the teacher's full behavioral registry to the two record types this
// spec needs, and built correctly from the start around the
// snapshot-before-callback discipline the teacher's own GetAllDevices
// deep-copy had to retrofit.
package store

import (
	"sync"
	"time"

	"github.com/wisp-sensor/wisp/internal/domain"
)

const numShards = 16

type deviceShard struct {
	mu      sync.RWMutex
	devices map[string]*domain.Device
}

type apShard struct {
	mu  sync.RWMutex
	aps map[string]*domain.AccessPoint
}

// OnDevice is invoked after a device's record has been created or updated,
// with a value snapshot and whether this ingest created the record.
type OnDevice func(device domain.Device, isNew bool)

// OnAccessPoint is invoked after an access point's record has been created
// or updated, with a value snapshot and whether this ingest created the
// record.
type OnAccessPoint func(ap domain.AccessPoint, isNew bool)

// Store maintains the MAC→Device and BSSID→AccessPoint maps described in
// spec.md §4.2 and invokes callbacks after releasing its locks, never while
// holding one, to avoid the Store↔Publisher lock cycle spec.md §9 warns
// about.
type Store struct {
	deviceShards []*deviceShard
	apShards     []*apShard

	onDevice OnDevice
	onAP     OnAccessPoint

	currentChannel func() int

	now func() time.Time
}

// New constructs a Store. onDevice/onAP may be nil. currentChannel feeds
// stats() and may be nil (reports 0).
func New(onDevice OnDevice, onAP OnAccessPoint, currentChannel func() int) *Store {
	s := &Store{
		deviceShards:   make([]*deviceShard, numShards),
		apShards:       make([]*apShard, numShards),
		onDevice:       onDevice,
		onAP:           onAP,
		currentChannel: currentChannel,
		now:            time.Now,
	}
	for i := 0; i < numShards; i++ {
		s.deviceShards[i] = &deviceShard{devices: make(map[string]*domain.Device)}
		s.apShards[i] = &apShard{aps: make(map[string]*domain.AccessPoint)}
	}
	return s
}

func shardIndex(key string) int {
	hash := uint32(0)
	for i := 0; i < len(key); i++ {
		hash = hash*31 + uint32(key[i])
	}
	return int(hash % numShards)
}

func (s *Store) deviceShard(mac string) *deviceShard {
	return s.deviceShards[shardIndex(mac)]
}

func (s *Store) apShard(bssid string) *apShard {
	return s.apShards[shardIndex(bssid)]
}

// Ingest applies an Observation to the store and invokes the configured
// callback, snapshot-first, after releasing the relevant shard lock.
func (s *Store) Ingest(obs domain.Observation) {
	switch obs.Kind {
	case domain.ObservationProbeRequest:
		s.ingestProbeRequest(obs)
	case domain.ObservationBeacon:
		s.ingestBeacon(obs)
	}
}

func (s *Store) ingestProbeRequest(obs domain.Observation) {
	if !validMAC(obs.SourceMAC) {
		return
	}
	key := obs.SourceMAC.String()
	shard := s.deviceShard(key)

	shard.mu.Lock()
	device, ok := shard.devices[key]
	isNew := !ok
	if !ok {
		device = domain.NewDevice(obs.SourceMAC, s.now())
		shard.devices[key] = device
	}
	device.LastSeen = s.now()
	device.AddRSSI(obs.RSSI)
	if obs.HasSSID || obs.SSID != "" {
		device.AddProbeSSID(obs.SSID)
	}
	device.PacketCount++
	snapshot := device.Clone()
	shard.mu.Unlock()

	if s.onDevice != nil {
		s.onDevice(snapshot, isNew)
	}
}

func (s *Store) ingestBeacon(obs domain.Observation) {
	if !validMAC(obs.BSSID) {
		return
	}
	key := obs.BSSID.String()
	shard := s.apShard(key)

	shard.mu.Lock()
	ap, ok := shard.aps[key]
	isNew := !ok
	if ap == nil {
		ap = domain.NewAccessPoint(obs.BSSID, s.now())
		shard.aps[key] = ap
	}
	ap.LastSeen = s.now()
	ap.AddRSSI(obs.RSSI)
	ap.BeaconCount++
	if ap.SSID == "" && obs.SSID != "" {
		ap.SSID = obs.SSID
	}
	ap.Channel = obs.Channel
	ap.Encryption = obs.Encryption
	snapshot := ap.Clone()
	shard.mu.Unlock()

	if s.onAP != nil {
		s.onAP(snapshot, isNew)
	}
}

// validMAC rejects broadcast and multicast addresses before record creation
// (spec.md §3 invariant, tightened per §9 to also reject multicast sources).
func validMAC(mac domain.MAC) bool {
	return mac.IsValid() && !mac.IsBroadcast() && !mac.IsMulticast()
}

// Stats reports current store sizes and the advisory current channel.
type Stats struct {
	Devices int
	APs     int
	Channel int
}

// Stats returns the current record counts and channel, per spec.md §4.2.
func (s *Store) Stats() Stats {
	devices := 0
	for _, shard := range s.deviceShards {
		shard.mu.RLock()
		devices += len(shard.devices)
		shard.mu.RUnlock()
	}
	aps := 0
	for _, shard := range s.apShards {
		shard.mu.RLock()
		aps += len(shard.aps)
		shard.mu.RUnlock()
	}
	channel := 0
	if s.currentChannel != nil {
		channel = s.currentChannel()
	}
	return Stats{Devices: devices, APs: aps, Channel: channel}
}

// AllDevices returns a value-copy snapshot of every device record.
func (s *Store) AllDevices() []domain.Device {
	var out []domain.Device
	for _, shard := range s.deviceShards {
		shard.mu.RLock()
		for _, d := range shard.devices {
			out = append(out, d.Clone())
		}
		shard.mu.RUnlock()
	}
	return out
}

// AllAccessPoints returns a value-copy snapshot of every access point
// record.
func (s *Store) AllAccessPoints() []domain.AccessPoint {
	var out []domain.AccessPoint
	for _, shard := range s.apShards {
		shard.mu.RLock()
		for _, a := range shard.aps {
			out = append(out, a.Clone())
		}
		shard.mu.RUnlock()
	}
	return out
}
