package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/afroash/weatherwd/internal/adapters"
	"github.com/afroash/weatherwd/internal/augment"
	"github.com/afroash/weatherwd/internal/calc"
	"github.com/afroash/weatherwd/internal/config"
	"github.com/afroash/weatherwd/internal/host"
	"github.com/afroash/weatherwd/internal/models"
	"github.com/afroash/weatherwd/internal/observability"
	"github.com/afroash/weatherwd/internal/server"
	"github.com/afroash/weatherwd/internal/stats"
	"github.com/afroash/weatherwd/internal/storage"
	"github.com/afroash/weatherwd/internal/tags"
)

const version = "v0.1.0"

func main() {
	configPath := flag.String("config", "configs/weatherwd.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := newLogger(cfg.Logging)
	logger.Info().
		Str("version", version).
		Str("station", cfg.Station.Name).
		Int("port", cfg.Server.Port).
		Msg("Starting weatherwd")

	dayStart, weekStart, loc := cfg.BoundaryRuleValues()
	bounds := models.BoundaryRule{
		DayStartHour: dayStart,
		WeekStart:    weekStart,
		Location:     loc,
	}

	metrics := observability.NewMetrics()
	clock := clockwork.NewRealClock()

	// Supplementary store
	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}
	store, err := storage.NewSQLiteStore(cfg.Database.Path, logger)
	if err != nil {
		if errors.Is(err, models.ErrSchemaVersion) {
			log.Fatalf("Schema mismatch, refusing to touch %s: %v", cfg.Database.Path, err)
		}
		log.Fatalf("Failed to open supplementary store: %v", err)
	}

	maintainer, err := storage.NewMaintainer(store, storage.MaintainerConfig{
		RetentionDays: cfg.Database.RetentionDays,
		CleanupPeriod: cfg.Database.CleanupPeriod,
		VacuumPeriod:  cfg.Database.VacuumPeriod,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to start store maintainer: %v", err)
	}

	// Host archive day summaries, read-only
	var hostClient host.Client
	if cfg.Host.SummaryDBPath != "" {
		hostClient, err = host.NewSQLiteClient(cfg.Host.SummaryDBPath, logger)
		if err != nil {
			log.Fatalf("Failed to open host archive: %v", err)
		}
	} else {
		logger.Warn().Msg("No host archive configured, host-backed statistics disabled")
		hostClient = host.Unavailable()
	}

	// Optional third-party observation sources
	sources, stopSources := buildSources(cfg.Adapters, clock, metrics, logger)
	merger := adapters.NewMerger(sources, logger)

	calculator := calc.New(calc.Params{
		Latitude:             cfg.Station.Latitude,
		Longitude:            cfg.Station.Longitude,
		AltitudeM:            cfg.Station.AltitudeM,
		Bounds:               bounds,
		SunshineThresholdWm2: cfg.Calc.SunshineThresholdWm2,
		RainRateWindow:       cfg.Calc.RainRateWindow,
		MissingWind:          calc.MissingWindPolicy(cfg.Calc.MissingWind),
	}, logger)

	queue := host.NewNotificationQueue(cfg.Host.QueueSize)
	service := augment.New(store, queue, calculator, merger, hostClient, augment.Config{
		ColdStartDays:  cfg.Database.ColdStartDays,
		RainRateWindow: cfg.Calc.RainRateWindow,
		Bounds:         bounds,
	}, clock, metrics, logger)

	if err := service.ColdStart(); err != nil {
		log.Fatalf("Cold start failed: %v", err)
	}

	bridge := host.NewBridge(cfg.Host.AuthToken, queue, logger, cfg.Server.AllowedOrigins...)
	if latest, err := store.Latest(); err == nil && latest != nil {
		bridge.SeedLastTimestamp(latest.Time)
	}

	engine := stats.New(store, hostClient, stats.Params{
		Bounds:            bounds,
		WetDayThresholdMm: cfg.Calc.WetDayThresholdMm,
		GrowingBaseC:      cfg.Calc.GrowingBaseC,
		HeatingBaseC:      cfg.Calc.HeatingBaseC,
		CoolingBaseC:      cfg.Calc.CoolingBaseC,
	}, logger)
	resolver := tags.New(store, engine, bounds, tags.UnitSystem(cfg.Station.UnitSystem),
		clock, metrics, logger)

	apiHandler := server.NewAPIHandler(store, resolver, service, bridge, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", bridge.ServeHTTP)
	mux.HandleFunc("/api/tags", apiHandler.HandleTags)
	mux.HandleFunc("/api/tag", apiHandler.HandleTag)
	mux.HandleFunc("/api/latest", apiHandler.HandleLatest)
	mux.HandleFunc("/api/history", apiHandler.HandleHistory)
	mux.HandleFunc("/api/status", apiHandler.HandleStatus)
	mux.HandleFunc("/health", apiHandler.HandleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	runCtx, cancelRun := context.WithCancel(context.Background())
	go service.Run(runCtx)

	go func() {
		logger.Info().Str("addr", httpServer.Addr).Msg("Server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Wait for shutdown signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("Server shutdown error")
	}

	cancelRun()
	stopSources()
	maintainer.Stop()
	logger.Info().Msg("Maintainer stopped")

	if err := hostClient.Close(); err != nil {
		logger.Error().Err(err).Msg("Host archive close error")
	}
	if err := store.Close(); err != nil {
		logger.Error().Err(err).Msg("Store close error")
	}

	logger.Info().Msg("Stopped")
}

func newLogger(cfg config.LoggingConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if cfg.Format == "text" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

// buildSources constructs and starts the enabled adapter sources. The
// returned stop function halts their schedulers.
func buildSources(cfgs []config.AdapterConfig, clock clockwork.Clock, metrics *observability.Metrics, logger zerolog.Logger) ([]adapters.Source, func()) {
	var sources []adapters.Source
	var pollers []*adapters.PollSource

	for _, ac := range cfgs {
		if !ac.Enabled {
			continue
		}
		switch ac.Type {
		case "poll":
			p := adapters.NewPollSource(adapters.PollConfig{
				Name:         ac.Name,
				URL:          ac.URL,
				PollInterval: ac.PollInterval,
				Timeout:      ac.Timeout,
				MaxAge:       ac.MaxAge,
			}, clock, metrics, logger)
			if err := p.Start(ac.PollInterval); err != nil {
				logger.Error().Err(err).Str("source", ac.Name).Msg("Failed to start adapter")
				continue
			}
			sources = append(sources, p)
			pollers = append(pollers, p)
		case "filedrop":
			sources = append(sources, adapters.NewFileDropSource(adapters.FileDropConfig{
				Name:   ac.Name,
				Path:   ac.Path,
				MaxAge: ac.MaxAge,
			}, clock, logger))
		}
	}

	return sources, func() {
		for _, p := range pollers {
			p.Stop()
		}
	}
}
