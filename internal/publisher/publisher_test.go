package publisher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wisp-sensor/wisp/internal/domain"
	"github.com/wisp-sensor/wisp/internal/ports"
)

type fakeSink struct {
	mu       sync.Mutex
	devices  []domain.Device
	aps      []domain.AccessPoint
	events   []ports.Event
	upsertFn func(domain.Device) error
}

func (f *fakeSink) UpsertDevice(ctx context.Context, d domain.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertFn != nil {
		if err := f.upsertFn(d); err != nil {
			return err
		}
	}
	f.devices = append(f.devices, d)
	return nil
}

func (f *fakeSink) UpsertAccessPoint(ctx context.Context, a domain.AccessPoint) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.aps = append(f.aps, a)
	return nil
}

func (f *fakeSink) RecordEvent(ctx context.Context, e ports.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}
func (f *fakeSink) Close() error { return nil }

func (f *fakeSink) deviceCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.devices)
}

func (f *fakeSink) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

type fakeBus struct {
	mu     sync.Mutex
	events []ports.Event
}

func (f *fakeBus) Publish(ctx context.Context, e ports.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, e)
	return nil
}
func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) eventCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.events)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustMAC(t *testing.T, s string) domain.MAC {
	t.Helper()
	m, err := domain.ParseMAC(s)
	if err != nil {
		t.Fatalf("ParseMAC(%q): %v", s, err)
	}
	return m
}

func TestPublisherLifecycleRejectsStartWithoutConnect(t *testing.T) {
	p := New(&fakeSink{}, &fakeBus{}, nil, 100, time.Hour, testLogger())
	if err := p.Start(context.Background()); err != ErrNotConnected {
		t.Fatalf("Start() = %v, want ErrNotConnected", err)
	}
}

func TestPublisherLifecycleTransitions(t *testing.T) {
	p := New(&fakeSink{}, &fakeBus{}, nil, 100, time.Hour, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	p.Connect(ctx)
	if p.State() != Connected {
		t.Fatalf("State() = %v, want Connected", p.State())
	}
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if p.State() != Running {
		t.Fatalf("State() = %v, want Running", p.State())
	}

	p.Stop(ctx)
	if p.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped", p.State())
	}

	// double-stop is a no-op
	p.Stop(ctx)
	if p.State() != Stopped {
		t.Fatalf("State() after double-stop = %v, want Stopped", p.State())
	}
}

func TestPublisherFlushesOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, &fakeBus{}, nil, 2, time.Hour, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)
	defer p.Stop(ctx)

	p.OnDevice(*domain.NewDevice(mustMAC(t, "aa:bb:cc:00:00:01"), time.Now()), true)
	p.OnDevice(*domain.NewDevice(mustMAC(t, "aa:bb:cc:00:00:02"), time.Now()), true)

	deadline := time.Now().Add(2 * time.Second)
	for sink.deviceCount() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sink.deviceCount(); got != 2 {
		t.Fatalf("sink.deviceCount() = %d, want 2", got)
	}
}

func TestPublisherEmitsDiscoveryEventOnlyForNewRecords(t *testing.T) {
	sink := &fakeSink{}
	bus := &fakeBus{}
	p := New(sink, bus, nil, 100, 20*time.Millisecond, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)
	defer p.Stop(ctx)

	mac := mustMAC(t, "aa:bb:cc:00:00:03")
	p.OnDevice(*domain.NewDevice(mac, time.Now()), true)
	time.Sleep(80 * time.Millisecond)
	p.OnDevice(*domain.NewDevice(mac, time.Now()), false)
	time.Sleep(80 * time.Millisecond)

	if got := bus.eventCount(); got != 1 {
		t.Fatalf("bus.eventCount() = %d, want 1 (only the new record publishes)", got)
	}
}

func TestPublisherStopFlushesFinalBatch(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, &fakeBus{}, nil, 100, time.Hour, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)

	p.OnDevice(*domain.NewDevice(mustMAC(t, "aa:bb:cc:00:00:04"), time.Now()), true)
	p.Stop(ctx)

	if got := sink.deviceCount(); got != 1 {
		t.Fatalf("sink.deviceCount() after Stop() = %d, want 1", got)
	}
}

func TestPublisherStopWithoutStartIsNoop(t *testing.T) {
	p := New(&fakeSink{}, &fakeBus{}, nil, 100, time.Hour, testLogger())
	p.Stop(context.Background())
	if p.State() != Stopped {
		t.Fatalf("State() = %v, want Stopped", p.State())
	}
}

func TestPublisherRecordsEventForNewDeviceOnly(t *testing.T) {
	sink := &fakeSink{}
	p := New(sink, &fakeBus{}, nil, 100, 20*time.Millisecond, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)
	defer p.Stop(ctx)

	mac := mustMAC(t, "aa:bb:cc:00:00:05")
	p.OnDevice(*domain.NewDevice(mac, time.Now()), true)
	time.Sleep(80 * time.Millisecond)
	p.OnDevice(*domain.NewDevice(mac, time.Now()), false)
	time.Sleep(80 * time.Millisecond)

	if got := sink.eventCount(); got != 1 {
		t.Fatalf("sink.eventCount() = %d, want 1 (recorded only for the new device)", got)
	}
}

// TestPublisherRetriesAfterSinkFailureWithBackoff exercises spec.md §7's
// reconnect behavior: a failing sink must not drop records, and once it
// recovers the retained batch must still be delivered.
func TestPublisherRetriesAfterSinkFailureWithBackoff(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	sink := &fakeSink{upsertFn: func(domain.Device) error {
		if failing.Load() {
			return errors.New("sink unavailable")
		}
		return nil
	}}
	p := New(sink, &fakeBus{}, nil, 100, 10*time.Millisecond, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)
	defer p.Stop(ctx)

	p.OnDevice(*domain.NewDevice(mustMAC(t, "aa:bb:cc:00:00:06"), time.Now()), true)

	// Give the publisher a chance to fail and back off at least once.
	time.Sleep(30 * time.Millisecond)
	if got := sink.deviceCount(); got != 0 {
		t.Fatalf("sink.deviceCount() while failing = %d, want 0 (record must be retained, not dropped)", got)
	}

	failing.Store(false)
	deadline := time.Now().Add(2 * time.Second)
	for sink.deviceCount() < 1 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sink.deviceCount(); got != 1 {
		t.Fatalf("sink.deviceCount() after recovery = %d, want 1 (pending record must be delivered)", got)
	}
}

// TestPublisherOverflowCapDropsOldest exercises spec.md §7's bounded
// overflow: once a persistently failing sink lets the batch exceed
// 10×BATCH_SIZE, the oldest pending record must be dropped rather than
// letting the batch grow unbounded.
func TestPublisherOverflowCapDropsOldest(t *testing.T) {
	sink := &fakeSink{upsertFn: func(domain.Device) error {
		return errors.New("sink unavailable")
	}}
	batchSize := 2
	p := New(sink, &fakeBus{}, nil, batchSize, time.Hour, testLogger())
	ctx := context.Background()
	p.Connect(ctx)
	p.Start(ctx)
	defer p.Stop(ctx)

	oldest := mustMAC(t, "aa:bb:cc:00:01:00")
	p.OnDevice(*domain.NewDevice(oldest, time.Now()), true)
	// Force enough flush attempts (driven by batch-size triggers) to
	// exceed the 10x overflow cap without ever succeeding.
	for i := 1; i <= batchSize*10+5; i++ {
		mac := mustMAC(t, fmt.Sprintf("aa:bb:cc:00:02:%02x", i))
		p.OnDevice(*domain.NewDevice(mac, time.Now()), true)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		p.mu.Lock()
		size := len(p.deviceBatch)
		_, hasOldest := p.deviceBatch[oldest.String()]
		p.mu.Unlock()
		if size <= p.overflowCap && !hasOldest {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("expected the oldest pending record to be dropped once the batch exceeded the overflow cap")
}
