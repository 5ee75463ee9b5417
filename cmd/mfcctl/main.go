package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/mfcctl/internal/bus"
	"codeberg.org/mutker/mfcctl/internal/config"
	"codeberg.org/mutker/mfcctl/internal/logger"
	"codeberg.org/mutker/mfcctl/internal/metrics"
	"codeberg.org/mutker/mfcctl/internal/mfc"
	"codeberg.org/mutker/mfcctl/internal/pid"
	"codeberg.org/mutker/mfcctl/internal/recorder"
	"codeberg.org/mutker/mfcctl/internal/session"
	"codeberg.org/mutker/mfcctl/internal/telemetry"
)

var (
	cfg       *config.Config
	manager   *session.Manager
	store     *telemetry.Store
	rec       *recorder.Recorder
	collector metrics.Collector
)

func init() {
	var err error
	cfg, err = config.Load()
	if err != nil {
		fmt.Printf("failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Debug, cfg.Verbose, logger.IsService())
	logger.Debug().Msg("Config loaded")
}

func main() {
	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Error().Err(err).Msg("failed to remove PID file")
		}
	}()

	master, err := bus.Open(cfg.Adapter, cfg.Controllers)
	if err != nil {
		logger.Fatal().Err(err).Msgf("failed to open adapter %s", cfg.Adapter)
	}

	store = telemetry.NewStore(cfg.Controllers, cfg.HistoryPoints)

	manager = session.NewManager(master, session.Config{
		Adapter:        cfg.Adapter,
		Controllers:    cfg.Controllers,
		CycleTime:      time.Duration(cfg.CycleTime) * time.Millisecond,
		ReceiveTimeout: time.Duration(cfg.ReceiveTimeout) * time.Microsecond,
		StateTimeout:   time.Duration(cfg.StateTimeout) * time.Microsecond,
		SettleTime:     time.Duration(cfg.SettleTime) * time.Millisecond,
	})
	manager.OnBatch(store.Update)
	manager.OnError(func(err error) {
		logger.Warn().Err(err).Msg("Cyclic exchange error")
	})

	msg, err := manager.Connect()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect")
	}
	logger.Info().Msg(msg)

	for i := 0; i < cfg.Controllers; i++ {
		logger.Info().
			Str("name", manager.ControllerName(i)).
			Float64("full_scale_sccm", manager.FullScale(i)).
			Msgf("Controller %d ready", i+1)
	}

	applySetpoints()

	rec = recorder.New(cfg.RecordBuffer)
	if cfg.RecordPath != "" {
		if err := rec.Start(cfg.RecordPath, cfg.Controllers); err != nil {
			logger.Error().Err(err).Msgf("failed to start recording to %s", cfg.RecordPath)
		} else {
			logger.Info().Msgf("Recording telemetry to %s", cfg.RecordPath)
		}
	}

	metricsCfg := metrics.DefaultConfig()
	metricsCfg.Enabled = cfg.Metrics
	if cfg.MetricsDB != "" {
		metricsCfg.DBPath = cfg.MetricsDB
	}
	collector, err = metrics.NewService(metricsCfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize sample archive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if err := loop(ctx); err != nil {
		logger.Error().Err(err).Msg("error in main loop")
	}
	cleanup()
}

// applySetpoints commands the configured startup setpoints, one value
// per channel in order.
func applySetpoints() {
	for i, sp := range cfg.Setpoints {
		if i >= cfg.Controllers {
			break
		}
		if err := manager.SetSetpoint(i, sp); err != nil {
			logger.Error().Err(err).Msgf("failed to set setpoint %.2f on controller %d", sp, i+1)
			continue
		}
		logger.Info().Msgf("Controller %d setpoint set to %.2f SCCM", i+1, manager.Setpoint(i))
	}
}

func loop(ctx context.Context) error {
	interval := time.Duration(cfg.RecordInterval) * time.Millisecond
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			batch := store.SnapshotCurrent()

			rec.Record(batch)

			if err := collector.Record(ctx, time.Now(), batch); err != nil {
				logger.Debug().Err(err).Msg("Sample archive record failed")
			}

			logTelemetry(batch)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func cleanup() {
	rec.Stop()
	if err := collector.Close(); err != nil {
		logger.Error().Err(err).Msg("failed to close sample archive")
	}
	manager.Disconnect()
	logger.Info().Msg("Exiting...")
}

func logTelemetry(batch []*mfc.Sample) {
	if !cfg.Debug && !cfg.Verbose {
		return
	}

	for i, sample := range batch {
		if sample == nil {
			continue
		}
		logger.Info().
			Int("controller", i+1).
			Float64("flow_sccm", sample.Flow).
			Float64("pressure_psi", sample.Pressure).
			Float64("temperature_c", sample.Temperature).
			Float64("setpoint_sccm", sample.Setpoint).
			Msg("")
	}
}
