package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"

	"pvsim104/api"
	"pvsim104/config"
	"pvsim104/iec_server"
	"pvsim104/metrics"
	"pvsim104/mirror"
	"pvsim104/plant"
	"pvsim104/ui"
)

func main() {
	configPath := flag.String("config", os.Getenv("PVSIM_CONFIG"), "path to a YAML configuration file")
	withUI := flag.Bool("ui", false, "run the operator console")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logrus.WithError(err).Fatal("config errors")
	}
	if *withUI {
		cfg.UI.Enabled = true
	}
	if err := iec_server.CheckBatchSize(cfg.Reporting.BatchSize); err != nil {
		logrus.WithError(err).Fatal("config errors")
	}

	logger := newLogger(cfg.Logging)
	logger.WithFields(logrus.Fields{
		"version": versioninfo.Short(),
		"config":  cfg.Redacted(),
	}).Info("PV plant IEC 60870-5-104 simulator starting")
	for _, line := range plant.Banner() {
		logger.Info(line)
	}

	station := plant.NewStation(stationOptions(cfg, logger))

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector()
	if err := collector.Register(registry); err != nil {
		logger.WithError(err).Fatal("register metrics")
	}
	station.AddObserver(collector)

	srv := iec_server.NewIEC104Server(station, cfg.Server.CommonAddress, logger)
	if err := srv.Start(cfg.Server.Address()); err != nil {
		logger.WithError(err).Fatal("start IEC 104 server")
	}
	station.AddPublisher(srv)

	if cfg.MQTT.Enabled {
		m := mirror.New(cfg.MQTT, mirror.OptsFromConfig(cfg.MQTT), logger)
		m.Connect()
		station.AddPublisher(m)
		defer m.Close()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var httpServer *http.Server
	if cfg.HTTP.Enabled {
		httpServer = api.NewServer(cfg.HTTP.Listen, station, srv, registry, logger, logger.IsLevelEnabled(logrus.DebugLevel))
		go func() {
			logger.WithField("addr", cfg.HTTP.Listen).Info("diagnostics HTTP server listening")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.WithError(err).Error("diagnostics HTTP server")
			}
		}()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = station.Run(ctx)
	}()

	if cfg.UI.Enabled {
		runConsole(ctx, stop, cfg, station, srv, logger)
	}

	<-ctx.Done()
	logger.Info("shutting down")
	<-done

	if httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Warn("diagnostics HTTP server forced to shutdown")
		}
	}
	if err := srv.Close(); err != nil {
		logger.WithError(err).Warn("close IEC 104 server")
	}
	logger.Info("stopped")
}

// runConsole blocks while the operator console is open. Log output moves
// into the console's log pane for that time.
func runConsole(ctx context.Context, stop func(), cfg *config.Config, station *plant.Station, srv *iec_server.IEC104Server, logger *logrus.Logger) {
	console := ui.NewApp(cfg, station, srv, stop)
	console.Logger().Level = logger.GetLevel()
	logger.AddHook(console.Logger())
	logger.SetOutput(io.Discard)
	station.AddObserver(console)

	go func() {
		<-ctx.Done()
		console.Stop()
	}()

	if err := console.Run(); err != nil {
		logger.SetOutput(os.Stderr)
		logger.WithError(err).Error("console")
	}
	logger.ReplaceHooks(make(logrus.LevelHooks))
	logger.SetOutput(os.Stderr)
	stop()
}

func newLogger(cfg config.LoggingConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func stationOptions(cfg *config.Config, logger *logrus.Logger) plant.Options {
	return plant.Options{
		Simulator: plant.SimulatorConfig{
			Window: plant.Daylight{
				Start: cfg.Simulation.DaylightStart,
				End:   cfg.Simulation.DaylightEnd,
			},
			CloudNoise: cfg.Simulation.CloudNoise,
			Efficiency: cfg.Simulation.Efficiency,
		},
		TickInterval: cfg.Simulation.TickInterval,
		Cooldown:     cfg.Reporting.Cooldown,
		BatchSize:    cfg.Reporting.BatchSize,
		Seed:         cfg.Simulation.Seed,
		Logger:       logger,
	}
}
