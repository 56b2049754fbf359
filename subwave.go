package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/subwave-io/subwave/admin"
	"github.com/subwave-io/subwave/cfg"
	"github.com/subwave-io/subwave/feed"
	"github.com/subwave-io/subwave/filters"
	"github.com/subwave-io/subwave/notify"
	"github.com/subwave-io/subwave/rooms"
	"github.com/subwave-io/subwave/telemetry"
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("Subwave - Realtime Subscription Registry")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	// Filter compiler with compiled-filter cache
	compiler, err := filters.NewCompiler(
		cfg.Config.Compiler.CacheSize,
		time.Duration(cfg.Config.Compiler.TimeoutMS)*time.Millisecond,
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize filter compiler")
		return
	}

	// Subscription service: room registry, customer registry, filter index
	service := rooms.NewService(compiler)

	// Delivery hub between the match path and connected transports
	hub := notify.NewHub(cfg.Config.Notify.BufferSize)

	// Change-event feed driving the match path
	var worker *feed.Worker
	if cfg.Config.Feed.Enabled {
		log.Info().
			Str("source", string(cfg.Config.Feed.Source)).
			Str("encoding", cfg.Config.Feed.Encoding).
			Msg("Initializing change-event feed")

		source, err := feed.NewSource(cfg.Config.Feed)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize feed source")
			return
		}
		decoder, err := feed.NewDecoder(cfg.Config.Feed.Encoding)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize feed decoder")
			return
		}

		worker, err = feed.NewWorker(feed.WorkerConfig{
			Source:          source,
			Decoder:         decoder,
			Service:         service,
			Hub:             hub,
			RetryInitial:    time.Duration(cfg.Config.Feed.RetryInitialMS) * time.Millisecond,
			RetryMax:        time.Duration(cfg.Config.Feed.RetryMaxMS) * time.Millisecond,
			RetryMultiplier: cfg.Config.Feed.RetryMultiplier,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize feed worker")
			return
		}
		worker.Start()
		defer worker.Stop()
	} else {
		log.Warn().Msg("Change-event feed disabled - match path is idle")
	}

	// Periodic gauge collection from the registries
	collector := telemetry.NewMetricsCollector(service, 10*time.Second)
	collector.Start()
	defer collector.Stop()

	// Status API
	mux := http.NewServeMux()
	admin.RegisterRoutes(mux, admin.NewHandlers(service))

	httpAddr := fmt.Sprintf("%s:%d", cfg.Config.HTTP.BindAddress, cfg.Config.HTTP.Port)
	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		log.Info().Str("address", httpAddr).Msg("Status API listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("Status API server failed")
		}
	}()
	defer httpServer.Close()

	log.Info().
		Uint64("node_id", cfg.Config.NodeID).
		Int("http_port", cfg.Config.HTTP.Port).
		Msg("Subwave started successfully")

	// Run until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")
}
