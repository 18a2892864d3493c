package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// PacketsCaptured counts total frames received off the monitor interface.
	PacketsCaptured = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "packets_captured_total",
			Help:      "Total number of frames captured by the sensor",
		},
		[]string{"interface"},
	)

	// PacketsProcessed counts frames that decoded into an Observation.
	PacketsProcessed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "packets_processed_total",
			Help:      "Total number of frames decoded into an observation",
		},
		[]string{"interface"},
	)

	// PacketsDropped counts frames the decoder rejected as malformed
	// (reason "decode_error").
	PacketsDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "packets_dropped_total",
			Help:      "Total number of frames dropped",
		},
		[]string{"interface", "reason"},
	)

	// StoreDevices is the current number of Device records held in the store.
	// This gauge and the next two are set by the Supervisor's stats reporter
	// every 30 seconds.
	StoreDevices = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wisp",
			Name:      "store_devices",
			Help:      "Current number of devices held in the observation store",
		},
	)

	// StoreAccessPoints is the current number of AccessPoint records held
	// in the store.
	StoreAccessPoints = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wisp",
			Name:      "store_access_points",
			Help:      "Current number of access points held in the observation store",
		},
	)

	// CurrentChannel mirrors the Radio Controller's current channel.
	CurrentChannel = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wisp",
			Name:      "current_channel",
			Help:      "Channel the radio is currently tuned to",
		},
	)

	// PublisherFlushes counts completed publisher flush cycles.
	PublisherFlushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "publisher_flushes_total",
			Help:      "Total number of publisher flush cycles",
		},
		[]string{"result"},
	)

	// PublisherFlushDuration observes flush round-trip latency to the sink.
	PublisherFlushDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "wisp",
			Name:      "publisher_flush_duration_seconds",
			Help:      "Duration of publisher flush cycles",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// VendorLookups counts vendor resolver outcomes.
	VendorLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "vendor_lookups_total",
			Help:      "Total number of vendor resolver lookups by outcome",
		},
		[]string{"result"},
	)

	// PublisherOverflowDrops counts records dropped from the publisher's
	// retry queue after a sink outage exceeded the safety cap.
	PublisherOverflowDrops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wisp",
			Name:      "publisher_overflow_drops_total",
			Help:      "Total number of pending records dropped due to sink-outage overflow",
		},
		[]string{"kind"},
	)

	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry.
// Idempotent.
func InitMetrics() {
	once.Do(func() {
		prometheus.DefaultRegisterer.Register(PacketsCaptured)
		prometheus.DefaultRegisterer.Register(PacketsProcessed)
		prometheus.DefaultRegisterer.Register(PacketsDropped)
		prometheus.DefaultRegisterer.Register(StoreDevices)
		prometheus.DefaultRegisterer.Register(StoreAccessPoints)
		prometheus.DefaultRegisterer.Register(CurrentChannel)
		prometheus.DefaultRegisterer.Register(PublisherFlushes)
		prometheus.DefaultRegisterer.Register(PublisherFlushDuration)
		prometheus.DefaultRegisterer.Register(VendorLookups)
		prometheus.DefaultRegisterer.Register(PublisherOverflowDrops)
	})
}
