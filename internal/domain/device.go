package domain

import "time"

// RSSIWindow is the number of most-recent RSSI samples retained per record.
const RSSIWindow = 10

// ProbeSSIDSoftCap bounds the number of distinct probe SSIDs retained per
// Device. Once reached, further distinct SSIDs are dropped rather than
// growing the set unbounded.
const ProbeSSIDSoftCap = 64

// RSSISentinel is used when a frame carries no antenna-signal field.
const RSSISentinel = -100

// Encryption classifies a beacon's advertised security.
type Encryption int

const (
	EncryptionUnknown Encryption = iota
	EncryptionOpen
	EncryptionWEP
	EncryptionWPA
	EncryptionWPA2
	EncryptionWPA3
)

func (e Encryption) String() string {
	switch e {
	case EncryptionOpen:
		return "Open"
	case EncryptionWEP:
		return "WEP"
	case EncryptionWPA:
		return "WPA"
	case EncryptionWPA2:
		return "WPA2"
	case EncryptionWPA3:
		return "WPA3"
	default:
		return "Unknown"
	}
}

// Device is a client station observed via probe requests. Mutated only
// through Store operations; callers outside internal/store must treat
// values returned from the store as immutable snapshots.
type Device struct {
	MAC         MAC
	FirstSeen   time.Time
	LastSeen    time.Time
	RSSIValues  []int
	ProbeSSIDs  map[string]struct{}
	PacketCount uint64
	Vendor      string
}

// NewDevice creates a fresh record for a first observation. Callers must
// have already rejected broadcast/multicast MACs.
func NewDevice(mac MAC, now time.Time) *Device {
	return &Device{
		MAC:        mac,
		FirstSeen:  now,
		LastSeen:   now,
		ProbeSSIDs: make(map[string]struct{}),
	}
}

// AddRSSI appends a sample, discarding the oldest once the window overflows.
func (d *Device) AddRSSI(rssi int) {
	d.RSSIValues = appendBounded(d.RSSIValues, rssi, RSSIWindow)
}

// AddProbeSSID records a non-empty SSID, subject to the soft cap. A blank
// SSID is a no-op, matching the decoder's "no SSID present" case.
func (d *Device) AddProbeSSID(ssid string) {
	if ssid == "" {
		return
	}
	if _, ok := d.ProbeSSIDs[ssid]; ok {
		return
	}
	if len(d.ProbeSSIDs) >= ProbeSSIDSoftCap {
		return
	}
	d.ProbeSSIDs[ssid] = struct{}{}
}

// AverageRSSI returns the mean of the retained RSSI window, or false if no
// samples have been recorded yet. Read-only; does not affect the window.
func (d *Device) AverageRSSI() (float64, bool) {
	return averageOf(d.RSSIValues)
}

// Clone returns a deep value copy safe to hand to a callback outside the
// store's lock.
func (d *Device) Clone() Device {
	cp := *d
	cp.RSSIValues = append([]int(nil), d.RSSIValues...)
	cp.ProbeSSIDs = make(map[string]struct{}, len(d.ProbeSSIDs))
	for s := range d.ProbeSSIDs {
		cp.ProbeSSIDs[s] = struct{}{}
	}
	return cp
}

// AccessPoint is a wireless access point observed via beacons.
type AccessPoint struct {
	BSSID       MAC
	SSID        string
	Channel     int
	FirstSeen   time.Time
	LastSeen    time.Time
	RSSIValues  []int
	BeaconCount uint64
	Encryption  Encryption
}

// NewAccessPoint creates a fresh record for a first beacon observation.
func NewAccessPoint(bssid MAC, now time.Time) *AccessPoint {
	return &AccessPoint{BSSID: bssid, FirstSeen: now, LastSeen: now}
}

// AddRSSI appends a sample, discarding the oldest once the window overflows.
func (a *AccessPoint) AddRSSI(rssi int) {
	a.RSSIValues = appendBounded(a.RSSIValues, rssi, RSSIWindow)
}

// AverageRSSI returns the mean of the retained RSSI window, or false if no
// samples have been recorded yet.
func (a *AccessPoint) AverageRSSI() (float64, bool) {
	return averageOf(a.RSSIValues)
}

// Clone returns a deep value copy safe to hand to a callback outside the
// store's lock.
func (a *AccessPoint) Clone() AccessPoint {
	cp := *a
	cp.RSSIValues = append([]int(nil), a.RSSIValues...)
	return cp
}

// ObservationKind distinguishes the two frame subtypes this sensor cares
// about.
type ObservationKind int

const (
	ObservationBeacon ObservationKind = iota
	ObservationProbeRequest
)

// Observation is the transient value produced by the Frame Decoder and fed
// to the Observation Store. Fields not relevant to Kind are left zero.
type Observation struct {
	Kind       ObservationKind
	BSSID      MAC
	SourceMAC  MAC
	SSID       string
	HasSSID    bool
	Channel    int
	RSSI       int
	Encryption Encryption
}

func appendBounded(values []int, v int, window int) []int {
	values = append(values, v)
	if len(values) > window {
		values = values[len(values)-window:]
	}
	return values
}

func averageOf(values []int) (float64, bool) {
	if len(values) == 0 {
		return 0, false
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values)), true
}
