package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"codeberg.org/benchkit/dmmlogd/internal/acquisition"
	"codeberg.org/benchkit/dmmlogd/internal/api"
	"codeberg.org/benchkit/dmmlogd/internal/archive"
	"codeberg.org/benchkit/dmmlogd/internal/config"
	"codeberg.org/benchkit/dmmlogd/internal/event"
	"codeberg.org/benchkit/dmmlogd/internal/logger"
	"codeberg.org/benchkit/dmmlogd/internal/measurement"
	"codeberg.org/benchkit/dmmlogd/internal/mqttpub"
	"codeberg.org/benchkit/dmmlogd/internal/observability"
	"codeberg.org/benchkit/dmmlogd/internal/registry"
	"codeberg.org/benchkit/dmmlogd/internal/store"
	"codeberg.org/benchkit/dmmlogd/internal/transport"
)

const eventBuffer = 1024

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the acquisition daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cmd.Flags())
			if err != nil {
				return err
			}

			logger.Init(cfg.LogLevel, logger.IsService())
			logger.Debug().Msg("Config loaded")

			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.Int("interval_ms", config.DefaultIntervalMS, "Polling interval in milliseconds")
	flags.Int("query_timeout_s", config.DefaultTimeoutS, "Per-query timeout in seconds")
	flags.Int("max_points", config.DefaultMaxPoints, "Recent-history cache capacity per device")
	flags.Int("time_window_s", config.DefaultTimeWindowS, "Default display time window in seconds")
	flags.String("log_level", config.DefaultLogLevel, "Log level (debug, info, warning, error)")
	flags.Bool("archive", false, "Persist measurements to the SQLite archive")
	flags.String("archive_db", config.DefaultArchiveDB, "Archive database path")
	flags.Bool("http_enabled", false, "Serve the HTTP query API")
	flags.String("http_listen", config.DefaultHTTPListen, "HTTP API listen address")
	flags.Bool("mqtt_enabled", false, "Publish events to MQTT")
	flags.String("mqtt_broker", config.DefaultMQTTBroker, "MQTT broker URL")
	flags.String("mqtt_topic", config.DefaultMQTTTopic, "MQTT topic prefix")

	return cmd
}

func run(cfg *config.Config) error {
	log := logger.Default()
	bus := event.NewBus()

	addresses := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		addresses = append(addresses, d.Address)
	}
	sim := transport.NewSim(addresses...)
	reg := registry.New(sim, bus, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, d := range cfg.Devices {
		devCfg := registry.FromConfig(d)
		if err := reg.AddOrUpdate(devCfg); err != nil {
			logger.Error().Str("device", d.Name).Err(err).Msg("Rejected device config")
			continue
		}
		if !devCfg.Enabled {
			continue
		}
		if _, err := reg.Connect(ctx, d.Name, d.Address); err != nil {
			logger.Error().Str("device", d.Name).Err(err).Msg("Failed to connect instrument")
		}
	}
	defer reg.CloseAll()

	st := store.New(cfg.MaxPoints)
	// The store is the authoritative log; its subscription never drops.
	storeDone := pump(bus.SubscribeUnbounded(), st.Record)

	var repo archive.Repository
	var archiveDone <-chan struct{}
	if cfg.Archive {
		var err error
		repo, err = archive.NewRepository(archive.Config{
			DBPath:       cfg.ArchiveDB,
			BatchSize:    64,
			BatchTimeout: 5,
			Enabled:      true,
		}, log)
		if err != nil {
			return err
		}
		archiveDone = pump(bus.Subscribe(eventBuffer), func(m measurement.Measurement) {
			if err := repo.Record(m); err != nil {
				logger.Error().Err(err).Msg("Failed to archive measurement")
			}
		})
	}

	var publisher *mqttpub.Publisher
	if cfg.MQTTEnabled {
		var err error
		publisher, err = mqttpub.New(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, log)
		if err != nil {
			return err
		}
		go publisher.Run(bus.Subscribe(eventBuffer))
	}

	obs := observability.NewMetrics()
	sched := acquisition.New(reg, bus, obs, log, cfg.QueryTimeout())
	if err := sched.Start(cfg.Interval()); err != nil {
		return err
	}

	var srv *api.Server
	var srvErr <-chan error
	if cfg.HTTPEnabled {
		srv = api.New(cfg.HTTPListen, st, reg, cfg.TimeWindow(), log)
		srvErr = srv.Start()
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Info().Msg("Received termination signal.")
	case err, ok := <-srvErr:
		if ok && err != nil {
			logger.Error().Err(err).Msg("HTTP API failed")
		}
	}

	sched.Stop()
	if srv != nil {
		if err := srv.Shutdown(); err != nil {
			logger.Error().Err(err).Msg("HTTP shutdown failed")
		}
	}
	if publisher != nil {
		publisher.Close()
	}
	reg.CloseAll()
	bus.Close()
	<-storeDone
	if archiveDone != nil {
		// The archive consumer must finish draining before the
		// repository's final flush runs.
		<-archiveDone
	}
	if repo != nil {
		if err := repo.Close(); err != nil {
			logger.Error().Err(err).Msg("Archive close failed")
		}
	}

	summarize(st)
	logger.Info().Msg("Exiting...")

	return nil
}

// pump forwards measurement events to sink until the bus closes. The
// returned channel closes only once the subscription is fully drained.
func pump(events <-chan event.Event, sink func(measurement.Measurement)) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if ev.Type == event.TypeMeasurementRecorded {
				sink(ev.Measurement)
			}
		}
	}()

	return done
}

func summarize(st *store.Store) {
	records := st.Query("", 0)
	ok := 0
	for _, m := range records {
		if m.Status == measurement.StatusOK {
			ok++
		}
	}
	logger.Info().
		Int("measurements", len(records)).
		Int("ok", ok).
		Msg("Session summary")
}
