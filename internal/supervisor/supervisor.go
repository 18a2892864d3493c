// Package supervisor wires the capture pipeline together and drives its
// lifecycle (spec.md §4.7), grounded on the teacher's internal/app.Application
// facade (bootstrap/Run/cleanup, signal-driven shutdown) and on
// original_source/main.py's signal_handler + StatsReporter.
package supervisor

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wisp-sensor/wisp/internal/capture"
	"github.com/wisp-sensor/wisp/internal/publisher"
	"github.com/wisp-sensor/wisp/internal/radio"
	"github.com/wisp-sensor/wisp/internal/store"
	"github.com/wisp-sensor/wisp/internal/telemetry"
)

const statsReportInterval = 30 * time.Second

// Supervisor orchestrates startup order per spec.md §4.7: Publisher.connect
// -> Radio.enable_monitor -> Store ready -> Publisher.start -> Radio.hop_loop
// (spawned) -> Capture.run (blocking). Teardown is the reverse.
type Supervisor struct {
	Radio     *radio.Driver
	Hopper    *radio.Hopper
	Store     *store.Store
	Capture   *capture.Loop
	Publisher *publisher.Publisher
	Logger    *slog.Logger
}

// Run executes the full startup -> block-until-signal -> teardown sequence.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := s.Publisher.Connect(ctx); err != nil {
		return err
	}

	if err := s.Radio.EnableMonitor(ctx); err != nil {
		return err
	}
	defer s.Radio.DisableMonitor(context.Background())

	if err := s.Publisher.Start(ctx); err != nil {
		return err
	}
	defer s.Publisher.Stop(context.Background())

	if err := s.Capture.Open(); err != nil {
		return err
	}

	hopperDone := make(chan struct{})
	go func() {
		defer close(hopperDone)
		s.Hopper.Run(ctx)
	}()

	statsDone := make(chan struct{})
	go func() {
		defer close(statsDone)
		s.reportStats(ctx)
	}()

	s.Logger.Info("wisp ready")
	s.Capture.Run(ctx)

	<-hopperDone
	<-statsDone

	return nil
}

func (s *Supervisor) reportStats(ctx context.Context) {
	ticker := time.NewTicker(statsReportInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.Store.Stats()
			telemetry.StoreDevices.Set(float64(stats.Devices))
			telemetry.StoreAccessPoints.Set(float64(stats.APs))
			telemetry.CurrentChannel.Set(float64(stats.Channel))
			s.Logger.Info("stats",
				"devices", stats.Devices,
				"access_points", stats.APs,
				"current_channel", stats.Channel,
			)
		}
	}
}
