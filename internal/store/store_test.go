package store

import (
	"sync"
	"testing"

	"github.com/wisp-sensor/wisp/internal/domain"
)

func mustMAC(t *testing.T, s string) domain.MAC {
	t.Helper()
	mac, err := domain.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return mac
}

func TestIngestProbeRequestCreatesDevice(t *testing.T) {
	var got domain.Device
	var gotNew bool
	s := New(func(d domain.Device, isNew bool) {
		got = d
		gotNew = isNew
	}, nil, nil)

	s.Ingest(domain.Observation{
		Kind:      domain.ObservationProbeRequest,
		SourceMAC: mustMAC(t, "aa:bb:cc:11:22:33"),
		SSID:      "cafe",
		HasSSID:   true,
		RSSI:      -62,
	})

	if !gotNew {
		t.Error("expected is_new=true for first observation")
	}
	if got.PacketCount != 1 {
		t.Errorf("PacketCount = %d, want 1", got.PacketCount)
	}
	if _, ok := got.ProbeSSIDs["cafe"]; !ok {
		t.Error("expected probe_ssids to contain \"cafe\"")
	}
	if len(got.RSSIValues) != 1 || got.RSSIValues[0] != -62 {
		t.Errorf("RSSIValues = %v, want [-62]", got.RSSIValues)
	}
	if s.Stats().Devices != 1 {
		t.Errorf("Stats().Devices = %d, want 1", s.Stats().Devices)
	}
}

func TestIngestProbeRequestUpdatesNotDuplicates(t *testing.T) {
	var newCount int
	s := New(func(d domain.Device, isNew bool) {
		if isNew {
			newCount++
		}
	}, nil, nil)

	mac := mustMAC(t, "aa:bb:cc:11:22:33")
	for i := 0; i < 3; i++ {
		s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mac, RSSI: -50})
	}

	if newCount != 1 {
		t.Errorf("newCount = %d, want 1", newCount)
	}
	if s.Stats().Devices != 1 {
		t.Errorf("Stats().Devices = %d, want 1", s.Stats().Devices)
	}
}

func TestIngestRejectsBroadcastAndMulticast(t *testing.T) {
	s := New(nil, nil, nil)
	s.Ingest(domain.Observation{Kind: domain.ObservationBeacon, BSSID: mustMAC(t, "ff:ff:ff:ff:ff:ff")})
	s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mustMAC(t, "01:00:5e:00:00:01")})
	if s.Stats().Devices != 0 || s.Stats().APs != 0 {
		t.Errorf("Stats() = %+v, want zero records", s.Stats())
	}
}

func TestIngestBeaconHiddenThenNamedSSID(t *testing.T) {
	var lastAP domain.AccessPoint
	s := New(nil, func(ap domain.AccessPoint, isNew bool) {
		lastAP = ap
	}, nil)

	bssid := mustMAC(t, "de:ad:be:ef:00:01")
	s.Ingest(domain.Observation{
		Kind:       domain.ObservationBeacon,
		BSSID:      bssid,
		SSID:       "",
		Channel:    6,
		Encryption: domain.EncryptionWPA2,
	})
	s.Ingest(domain.Observation{
		Kind:       domain.ObservationBeacon,
		BSSID:      bssid,
		SSID:       "home",
		Channel:    6,
		Encryption: domain.EncryptionWPA2,
	})

	if lastAP.SSID != "home" {
		t.Errorf("SSID = %q, want \"home\"", lastAP.SSID)
	}
	if lastAP.Encryption != domain.EncryptionWPA2 {
		t.Errorf("Encryption = %v, want WPA2", lastAP.Encryption)
	}
	if lastAP.BeaconCount != 2 {
		t.Errorf("BeaconCount = %d, want 2", lastAP.BeaconCount)
	}
	if s.Stats().APs != 1 {
		t.Errorf("Stats().APs = %d, want 1", s.Stats().APs)
	}
}

func TestIngestRSSIWindowBound(t *testing.T) {
	s := New(nil, nil, nil)
	mac := mustMAC(t, "aa:bb:cc:11:22:33")
	for i := 0; i < 15; i++ {
		s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mac, RSSI: -60 - i})
	}
	devices := s.AllDevices()
	if len(devices) != 1 {
		t.Fatalf("len(devices) = %d, want 1", len(devices))
	}
	if len(devices[0].RSSIValues) != domain.RSSIWindow {
		t.Errorf("len(RSSIValues) = %d, want %d", len(devices[0].RSSIValues), domain.RSSIWindow)
	}
}

func TestSnapshotsAreIndependentOfLiveStore(t *testing.T) {
	s := New(nil, nil, nil)
	mac := mustMAC(t, "aa:bb:cc:11:22:33")
	s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mac, RSSI: -50})

	devices := s.AllDevices()
	s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mac, RSSI: -60})

	if len(devices[0].RSSIValues) != 1 {
		t.Errorf("snapshot mutated by later ingest: %v", devices[0].RSSIValues)
	}
}

func TestConcurrentIngestIsRaceFree(t *testing.T) {
	s := New(nil, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			mac := mustMAC(t, "aa:bb:cc:11:22:33")
			s.Ingest(domain.Observation{Kind: domain.ObservationProbeRequest, SourceMAC: mac, RSSI: -n})
		}(i)
	}
	wg.Wait()
	if s.Stats().Devices != 1 {
		t.Errorf("Stats().Devices = %d, want 1", s.Stats().Devices)
	}
}

func TestStatsReportsCurrentChannel(t *testing.T) {
	s := New(nil, nil, func() int { return 6 })
	if got := s.Stats().Channel; got != 6 {
		t.Errorf("Stats().Channel = %d, want 6", got)
	}
}
