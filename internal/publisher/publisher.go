// Package publisher implements the Publisher (spec.md §4.6): batches
// Observation Store updates and forwards them to the document sink, and
// announces newly-discovered devices/APs on the event bus. Grounded on
// the teacher's internal/core/services/persistence.PersistenceManager
// (ticker + map-keyed batch, swap-then-flush under a single lock) and on
// _examples/original_source/src/publisher.py for the on_device/on_ap
// split and the explicit state machine. The reconnect-with-backoff and
// bounded-overflow behavior (spec.md §7) has no teacher analogue — it is
// built from spec.md's own bounded-backoff schedule and overflow-cap
// rule, layered onto the teacher's batch/flush shape.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/wisp-sensor/wisp/internal/domain"
	"github.com/wisp-sensor/wisp/internal/ports"
	"github.com/wisp-sensor/wisp/internal/telemetry"
)

// State is the Publisher's lifecycle state (spec.md §4.6).
type State int

const (
	Disconnected State = iota
	Connected
	Running
	Draining
	Stopped
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Running:
		return "running"
	case Draining:
		return "draining"
	case Stopped:
		return "stopped"
	default:
		return "unknown"
	}
}

var ErrNotConnected = errors.New("publisher: start requires Connected state")

// backoffSchedule is spec.md §7's reconnect schedule: 1s, 2s, 5s, capped
// at 10s.
var backoffSchedule = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	5 * time.Second,
	10 * time.Second,
}

// backoffState tracks consecutive failures against a single upward
// dependency (the sink or the bus) and gates retry attempts accordingly.
// Callers hold the Publisher's mutex while touching it.
type backoffState struct {
	failures int
	retryAt  time.Time
}

func (b *backoffState) ready(now time.Time) bool {
	return b.failures == 0 || !now.Before(b.retryAt)
}

func (b *backoffState) recordFailure(now time.Time) {
	idx := b.failures
	if idx >= len(backoffSchedule) {
		idx = len(backoffSchedule) - 1
	}
	b.retryAt = now.Add(backoffSchedule[idx])
	b.failures++
}

func (b *backoffState) recordSuccess() {
	b.failures = 0
	b.retryAt = time.Time{}
}

// Publisher batches devices and access points under a single mutex and
// flushes them to the sink on a ticker or when a batch fills, emitting a
// discovery event for each record new since the previous flush. Records
// that fail to upsert are retained in the batch for the next flush cycle
// instead of being dropped, subject to the overflow cap in spec.md §7.
type Publisher struct {
	sink   ports.Sink
	bus    ports.Bus
	vendor ports.VendorResolver
	logger *slog.Logger

	batchSize   int
	overflowCap int
	interval    time.Duration

	mu            sync.Mutex
	state         State
	deviceBatch   map[string]domain.Device
	apBatch       map[string]domain.AccessPoint
	deviceOrder   []string
	apOrder       []string
	newDeviceKeys map[string]struct{}
	newAPKeys     map[string]struct{}
	sinkBackoff   backoffState
	busBackoff    backoffState

	stopCh chan struct{}
	doneCh chan struct{}
	once   sync.Once
}

func New(sink ports.Sink, bus ports.Bus, vendor ports.VendorResolver, batchSize int, interval time.Duration, logger *slog.Logger) *Publisher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Publisher{
		sink:          sink,
		bus:           bus,
		vendor:        vendor,
		logger:        logger,
		batchSize:     batchSize,
		overflowCap:   batchSize * 10,
		interval:      interval,
		state:         Disconnected,
		deviceBatch:   make(map[string]domain.Device),
		apBatch:       make(map[string]domain.AccessPoint),
		newDeviceKeys: make(map[string]struct{}),
		newAPKeys:     make(map[string]struct{}),
	}
}

// Connect transitions Disconnected -> Connected. Idempotent.
func (p *Publisher) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state == Disconnected {
		p.state = Connected
	}
	return nil
}

// Start requires Connected and spawns the flusher goroutine.
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state != Connected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	p.state = Running
	p.mu.Unlock()

	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	go p.run(ctx)
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.doneCh)
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.flush(context.WithoutCancel(ctx))
			return
		case <-p.stopCh:
			p.flush(context.WithoutCancel(ctx))
			return
		case <-ticker.C:
			p.flush(ctx)
		}
	}
}

// OnDevice is registered with the Observation Store as its device
// callback (spec.md §4.2's snapshot-before-callback discipline means d is
// already an independent copy).
func (p *Publisher) OnDevice(d domain.Device, isNew bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := d.MAC.String()
	if _, exists := p.deviceBatch[key]; !exists {
		p.deviceOrder = append(p.deviceOrder, key)
	}
	p.deviceBatch[key] = d
	if isNew {
		p.newDeviceKeys[key] = struct{}{}
	}
	p.enforceOverflowCapLocked()
	if len(p.deviceBatch) >= p.batchSize {
		go p.flush(context.Background())
	}
}

// OnAccessPoint is the parallel callback for AP records.
func (p *Publisher) OnAccessPoint(a domain.AccessPoint, isNew bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	key := a.BSSID.String()
	if _, exists := p.apBatch[key]; !exists {
		p.apOrder = append(p.apOrder, key)
	}
	p.apBatch[key] = a
	if isNew {
		p.newAPKeys[key] = struct{}{}
	}
	p.enforceOverflowCapLocked()
	if len(p.apBatch) >= p.batchSize {
		go p.flush(context.Background())
	}
}

// enforceOverflowCapLocked drops the oldest pending records once a batch
// exceeds the safety cap (spec.md §7), which only happens when the sink
// has been failing for long enough that flush cycles stop shrinking the
// batch. Caller must hold p.mu.
func (p *Publisher) enforceOverflowCapLocked() {
	for len(p.deviceBatch) > p.overflowCap && len(p.deviceOrder) > 0 {
		oldest := p.deviceOrder[0]
		p.deviceOrder = p.deviceOrder[1:]
		if _, ok := p.deviceBatch[oldest]; ok {
			delete(p.deviceBatch, oldest)
			delete(p.newDeviceKeys, oldest)
			p.logger.Warn("device batch overflow, dropping oldest pending record", "mac", oldest, "cap", p.overflowCap)
			telemetry.PublisherOverflowDrops.WithLabelValues("device").Inc()
		}
	}
	for len(p.apBatch) > p.overflowCap && len(p.apOrder) > 0 {
		oldest := p.apOrder[0]
		p.apOrder = p.apOrder[1:]
		if _, ok := p.apBatch[oldest]; ok {
			delete(p.apBatch, oldest)
			delete(p.newAPKeys, oldest)
			p.logger.Warn("access point batch overflow, dropping oldest pending record", "bssid", oldest, "cap", p.overflowCap)
			telemetry.PublisherOverflowDrops.WithLabelValues("ap").Inc()
		}
	}
}

// filterPresentKeys returns order with any key no longer present in m (and
// any duplicate) removed, preserving relative order.
func filterPresentKeys[V any](order []string, m map[string]V) []string {
	out := make([]string, 0, len(order))
	seen := make(map[string]struct{}, len(order))
	for _, k := range order {
		if _, ok := m[k]; !ok {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

// flush copies out the current batches and the sink's backoff readiness
// without holding the mutex during any I/O, so a slow or failing sink
// round-trip never blocks a concurrent OnDevice/OnAccessPoint call.
// Records that fail to upsert stay in the batch (and count toward the
// overflow cap) so the next cycle retries them; successful records are
// removed under a second, brief lock.
func (p *Publisher) flush(ctx context.Context) {
	p.mu.Lock()
	devices := make(map[string]domain.Device, len(p.deviceBatch))
	for k, v := range p.deviceBatch {
		devices[k] = v
	}
	aps := make(map[string]domain.AccessPoint, len(p.apBatch))
	for k, v := range p.apBatch {
		aps[k] = v
	}
	newDevices := make(map[string]struct{}, len(p.newDeviceKeys))
	for k := range p.newDeviceKeys {
		newDevices[k] = struct{}{}
	}
	newAPs := make(map[string]struct{}, len(p.newAPKeys))
	for k := range p.newAPKeys {
		newAPs[k] = struct{}{}
	}
	now := time.Now()
	sinkReady := p.sinkBackoff.ready(now)
	p.mu.Unlock()

	if len(devices) == 0 && len(aps) == 0 {
		return
	}
	if !sinkReady {
		telemetry.PublisherFlushes.WithLabelValues("backoff").Inc()
		return
	}

	start := time.Now()
	sinkFailed := false

	settledDevices := make([]string, 0, len(devices))
	for key, d := range devices {
		if err := p.flushDevice(ctx, key, d, newDevices); err != nil {
			p.logger.Error("device upsert failed, will retry", "mac", key, "error", err)
			sinkFailed = true
			continue
		}
		settledDevices = append(settledDevices, key)
	}

	settledAPs := make([]string, 0, len(aps))
	for key, a := range aps {
		if err := p.flushAccessPoint(ctx, key, a, newAPs); err != nil {
			p.logger.Error("access point upsert failed, will retry", "bssid", key, "error", err)
			sinkFailed = true
			continue
		}
		settledAPs = append(settledAPs, key)
	}

	p.mu.Lock()
	for _, key := range settledDevices {
		delete(p.deviceBatch, key)
		delete(p.newDeviceKeys, key)
	}
	for _, key := range settledAPs {
		delete(p.apBatch, key)
		delete(p.newAPKeys, key)
	}
	p.deviceOrder = filterPresentKeys(p.deviceOrder, p.deviceBatch)
	p.apOrder = filterPresentKeys(p.apOrder, p.apBatch)
	if sinkFailed {
		p.sinkBackoff.recordFailure(time.Now())
	} else {
		p.sinkBackoff.recordSuccess()
	}
	p.enforceOverflowCapLocked()
	p.mu.Unlock()

	status := "ok"
	if sinkFailed {
		status = "retry"
	}
	telemetry.PublisherFlushes.WithLabelValues(status).Inc()
	telemetry.PublisherFlushDuration.Observe(time.Since(start).Seconds())
}

// flushDevice upserts a device and, the first time it is seen, records and
// publishes a discovery event. Returns an error only for a sink failure;
// the caller retains the record for the next flush cycle in that case.
func (p *Publisher) flushDevice(ctx context.Context, key string, d domain.Device, newKeys map[string]struct{}) error {
	_, isNew := newKeys[key]
	if isNew && d.Vendor == "" && p.vendor != nil {
		if v, ok := p.vendor.Lookup(ctx, d.MAC); ok {
			d.Vendor = v
		}
	}

	if err := p.sink.UpsertDevice(ctx, d); err != nil {
		return err
	}

	if isNew {
		rssi, ok := d.AverageRSSI()
		event := ports.Event{
			Type:      "device_discovered",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			MAC:       key,
			Vendor:    d.Vendor,
		}
		if ok {
			r := int(rssi)
			event.RSSI = &r
		}
		p.recordEvent(ctx, event, "mac", key)
		p.publishEvent(ctx, event, "mac", key)
	}
	return nil
}

// flushAccessPoint is the parallel path for AP records.
func (p *Publisher) flushAccessPoint(ctx context.Context, key string, a domain.AccessPoint, newKeys map[string]struct{}) error {
	if err := p.sink.UpsertAccessPoint(ctx, a); err != nil {
		return err
	}

	if _, isNew := newKeys[key]; isNew {
		channel := a.Channel
		event := ports.Event{
			Type:      "ap_discovered",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			MAC:       key,
			SSID:      a.SSID,
			Channel:   &channel,
		}
		p.recordEvent(ctx, event, "bssid", key)
		p.publishEvent(ctx, event, "bssid", key)
	}
	return nil
}

// recordEvent durably records a discovery event in the sink's events
// collection (spec.md §6). Best-effort: a failure here does not hold back
// the device/AP record that already upserted successfully.
func (p *Publisher) recordEvent(ctx context.Context, event ports.Event, keyLabel, key string) {
	if err := p.sink.RecordEvent(ctx, event); err != nil {
		p.logger.Warn("event record failed", keyLabel, key, "error", err)
	}
}

// publishEvent announces a discovery event on the event bus, gated by its
// own backoff so a down bus doesn't get hammered every flush cycle.
// Discovery events are a notification channel, not the durable record
// (that's recordEvent/the sink), so a dropped publish during an outage is
// not retried.
func (p *Publisher) publishEvent(ctx context.Context, event ports.Event, keyLabel, key string) {
	if p.bus == nil {
		return
	}

	p.mu.Lock()
	ready := p.busBackoff.ready(time.Now())
	p.mu.Unlock()
	if !ready {
		return
	}

	err := p.bus.Publish(ctx, event)

	p.mu.Lock()
	if err != nil {
		p.busBackoff.recordFailure(time.Now())
	} else {
		p.busBackoff.recordSuccess()
	}
	p.mu.Unlock()

	if err != nil {
		p.logger.Warn("discovery event publish failed", keyLabel, key, "error", err)
	}
}

// Stop transitions through Draining (final synchronous flush) to Stopped.
// Double-stop is a no-op.
func (p *Publisher) Stop(ctx context.Context) {
	p.once.Do(func() {
		p.mu.Lock()
		if p.state != Running {
			p.state = Stopped
			p.mu.Unlock()
			return
		}
		p.state = Draining
		p.mu.Unlock()

		close(p.stopCh)
		<-p.doneCh

		p.mu.Lock()
		p.state = Stopped
		p.mu.Unlock()
	})
}

func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}
