package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/pvpstats/killfeed-ingest/internal/api"
	"github.com/pvpstats/killfeed-ingest/internal/config"
	"github.com/pvpstats/killfeed-ingest/internal/locate"
	"github.com/pvpstats/killfeed-ingest/internal/observability"
	"github.com/pvpstats/killfeed-ingest/internal/orchestrator"
	"github.com/pvpstats/killfeed-ingest/internal/pipeline"
	"github.com/pvpstats/killfeed-ingest/internal/remote"
	"github.com/pvpstats/killfeed-ingest/internal/retry"
	"github.com/pvpstats/killfeed-ingest/internal/sink"
	"github.com/pvpstats/killfeed-ingest/internal/state"
	"github.com/pvpstats/killfeed-ingest/internal/targets"
)

const version = "0.1.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFile)

	log.Info().
		Str("version", version).
		Msg("Starting kill-feed ingestion service")

	shutdown, err := observability.InitTracer(observability.TracerConfig{
		ServiceName:    "killfeed-ingest",
		ServiceVersion: version,
		Endpoint:       cfg.OTLPEndpoint,
		Protocol:       cfg.OTLPProtocol,
		Enabled:        cfg.TracingEnabled,
	})
	if err != nil {
		log.Error().Err(err).Msg("Failed to initialize tracer")
	} else {
		defer shutdown(context.Background())
	}

	states, err := state.NewBoltDBStore(cfg.StateDBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open state store")
	}
	defer states.Close()

	chClient, err := sink.NewClient(cfg.ClickHouseHost, cfg.ClickHousePort, cfg.ClickHouseDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to ClickHouse")
	}
	eventSink := sink.NewClickHouseSink(chClient)
	defer eventSink.Close()

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.ConnectMaxAttempts
	sessions := remote.NewManager(retryCfg)
	defer sessions.CloseAll()

	runner := pipeline.NewRunner(
		locate.NewLocator(cfg.MaxFilesPerRun),
		sessions,
		states,
		state.NewKeyLocks(),
		eventSink,
		pipeline.RunnerConfig{
			Guard:              state.GuardConfigFromDays(cfg.StaleAfterDays, cfg.StaleResetDays),
			BatchSize:          cfg.EventBatchSize,
			FirstContactWindow: time.Duration(cfg.FirstContactHours) * time.Hour,
		},
	)

	orch, err := orchestrator.New(cfg, targets.NewFileResolver(cfg.ServersPath), runner)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create orchestrator")
	}

	orch.Start()

	var apiServer *api.Server
	if cfg.APIAddr != "" {
		apiServer = api.NewServer(cfg.APIAddr, chClient, orch)
		go func() {
			if err := apiServer.Start(); err != nil {
				log.Error().Err(err).Msg("API server error")
			}
		}()
	}

	log.Info().Msg("Ingestion service started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Received shutdown signal")

	if apiServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := apiServer.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping API server")
		}
		cancel()
	}
	if err := orch.Stop(); err != nil {
		log.Error().Err(err).Msg("Error during shutdown")
	}

	log.Info().Msg("Ingestion service stopped")
}
