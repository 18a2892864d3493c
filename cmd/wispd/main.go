// Command wispd is the passive 802.11 surveillance sensor daemon: it wires
// the Radio Controller, Capture Loop, Frame Decoder, Observation Store,
// Vendor Resolver, Publisher, and Supervisor together and runs until an
// interrupt or termination signal arrives. Grounded on the teacher's
// cmd/wmap/main.go wiring style and internal/app.Application facade.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/wisp-sensor/wisp/internal/bus"
	"github.com/wisp-sensor/wisp/internal/capture"
	"github.com/wisp-sensor/wisp/internal/config"
	"github.com/wisp-sensor/wisp/internal/ports"
	"github.com/wisp-sensor/wisp/internal/publisher"
	"github.com/wisp-sensor/wisp/internal/radio"
	"github.com/wisp-sensor/wisp/internal/sink"
	"github.com/wisp-sensor/wisp/internal/store"
	"github.com/wisp-sensor/wisp/internal/supervisor"
	"github.com/wisp-sensor/wisp/internal/telemetry"
	"github.com/wisp-sensor/wisp/internal/vendor"
	"github.com/wisp-sensor/wisp/internal/webstats"
)

func main() {
	cfg := config.Load()
	logger := telemetry.NewLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	telemetry.InitMetrics()

	shutdownTracer, err := telemetry.InitTracer()
	if err != nil {
		logger.Warn("tracer init failed, continuing without tracing", "error", err)
	} else {
		defer shutdownTracer(context.Background())
	}

	docSink, err := sink.NewSQLiteSink(cfg.SinkDSN)
	if err != nil {
		logger.Error("document sink init failed", "error", err)
		os.Exit(1)
	}
	defer docSink.Close()

	var eventBus ports.Bus
	if cfg.BusHost != "" {
		pubsubBus, err := bus.NewPubSubBus(context.Background(), cfg.BusHost, cfg.BusTopic)
		if err != nil {
			logger.Warn("event bus init failed, discovery events will not be published", "error", err)
		} else {
			defer pubsubBus.Close()
			eventBus = pubsubBus
		}
	}

	var resolver ports.VendorResolver
	vendorResolver, err := vendor.NewResolver(vendor.Config{
		OfflineDBPath: cfg.VendorDBPath,
		CacheCapacity: cfg.VendorCacheSize,
		EnableHTTP:    true,
	}, logger)
	if err != nil {
		logger.Warn("vendor resolver init failed, proceeding without vendor lookups", "error", err)
	} else {
		defer vendorResolver.Close()
		resolver = vendorResolver
	}

	pub := publisher.New(docSink, eventBus, resolver, cfg.BatchSize, cfg.BatchInterval, logger)

	channelPlan := make([]int, 0, len(radio.Channels2GHz)+len(radio.Channels5GHz))
	channelPlan = append(channelPlan, radio.Channels2GHz...)
	channelPlan = append(channelPlan, radio.Channels5GHz...)

	driver := radio.NewDriver(cfg.Interface, nil)
	hopper := radio.NewHopper(driver, channelPlan, cfg.ChannelHopInterval)

	observationStore := store.New(pub.OnDevice, pub.OnAccessPoint, hopper.CurrentChannel)
	captureLoop := capture.NewLoop(cfg.Interface, observationStore)

	stats := &webstats.Server{Addr: cfg.HTTPAddr, Store: observationStore, Logger: logger}
	go func() {
		if err := stats.Run(context.Background()); err != nil {
			logger.Error("webstats server error", "error", err)
		}
	}()

	sup := &supervisor.Supervisor{
		Radio:     driver,
		Hopper:    hopper,
		Store:     observationStore,
		Capture:   captureLoop,
		Publisher: pub,
		Logger:    logger,
	}

	if err := sup.Run(context.Background()); err != nil {
		logger.Error("fatal error", "error", err)
		os.Exit(1)
	}
}
