package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/couchcryptid/flood-atlas-service/internal/adapter/chatcompletion"
	"github.com/couchcryptid/flood-atlas-service/internal/adapter/gemini"
	httpadapter "github.com/couchcryptid/flood-atlas-service/internal/adapter/http"
	kafkaadapter "github.com/couchcryptid/flood-atlas-service/internal/adapter/kafka"
	"github.com/couchcryptid/flood-atlas-service/internal/adapter/mapbox"
	"github.com/couchcryptid/flood-atlas-service/internal/adapter/sqlite"
	"github.com/couchcryptid/flood-atlas-service/internal/config"
	"github.com/couchcryptid/flood-atlas-service/internal/domain"
	"github.com/couchcryptid/flood-atlas-service/internal/globe"
	"github.com/couchcryptid/flood-atlas-service/internal/narrative"
	"github.com/couchcryptid/flood-atlas-service/internal/observability"
	"github.com/couchcryptid/flood-atlas-service/internal/panel"
	"github.com/couchcryptid/flood-atlas-service/internal/simulation"
	"github.com/joho/godotenv"
)

// breakerCoolDown is how long an open narrative breaker waits before probing.
const breakerCoolDown = 30 * time.Second

func main() {
	// A missing .env is fine; the environment may already be populated.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg)
	metrics := observability.NewMetrics()

	narrativeSvc := narrative.NewService(newCompleter(cfg, logger), cfg.NarrativeTimeout, logger, metrics)
	logger.Info("narrative provider selected", "provider", cfg.NarrativeProvider, "available", narrativeSvc.Available())

	// Initialize geocoder (feature-flagged via MAPBOX_ENABLED / MAPBOX_TOKEN).
	var geocoder domain.Geocoder
	if cfg.MapboxEnabled {
		client := mapbox.NewClient(cfg.MapboxToken, cfg.MapboxTimeout, metrics, logger)
		geocoder = mapbox.NewCachedGeocoder(client, cfg.MapboxCacheSize, metrics)
		metrics.GeocodeEnabled.Set(1)
		logger.Info("mapbox geocoding enabled", "cache_size", cfg.MapboxCacheSize, "timeout", cfg.MapboxTimeout)
	} else {
		logger.Info("mapbox geocoding disabled")
	}

	if dir := filepath.Dir(cfg.DBPath); cfg.DBPath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logger.Error("failed to create database directory", "dir", dir, "error", err)
			os.Exit(1)
		}
	}
	store, err := sqlite.NewStore(cfg.DBPath, logger)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.DBPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	commands := globe.NewCommandLog(globe.DefaultCommandLogCapacity, nil)
	view := globe.NewView(commands, logger)
	view.Load(ctx, globe.IonTilesetLoader{Token: cfg.CesiumIonToken})

	builder := simulation.NewSnapshotBuilder(cfg.Projection, narrativeSvc, geocoder, logger, metrics)
	coord := simulation.New(builder, cfg.DebounceDelay, nil, logger, metrics)

	ticker := panel.NewTicker(narrativeSvc, cfg.NarrativeTimeout, logger, metrics)
	chat := panel.NewChat(narrativeSvc, store, func() domain.ClimateData {
		snap, _ := coord.Current()
		return snap.Climate
	}, cfg.OfflineReplyDelay, nil, logger, metrics)

	coord.Subscribe(view)
	coord.Subscribe(store)
	coord.Subscribe(ticker)

	var publisher *kafkaadapter.Publisher
	if cfg.KafkaEnabled {
		publisher = kafkaadapter.NewPublisher(cfg.KafkaBrokers, cfg.KafkaSceneTopic, logger, metrics)
		coord.Subscribe(publisher)
		go func() {
			if err := publisher.Run(ctx); err != nil {
				logger.Error("scene publisher error", "error", err)
			}
		}()
	}

	if err := ticker.Start(cfg.HeadlineRefreshInterval); err != nil {
		logger.Error("failed to schedule headline refresh", "error", err)
	}

	srv := httpadapter.NewServer(cfg.HTTPAddr, httpadapter.Deps{
		Simulator:    coord,
		History:      store,
		Chat:         chat,
		News:         ticker,
		Scene:        commands,
		View:         view,
		IonToken:     cfg.CesiumIonToken,
		Ready:        httpadapter.AllReady(coord, store),
		RateLimitRPS: cfg.RateLimitRPS,
	}, logger)

	// Start HTTP server.
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	// Render the initial scene.
	go func() {
		if _, err := coord.RunNow(ctx, domain.DefaultInputs()); err != nil {
			logger.Warn("initial simulation not applied", "error", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
	coord.Close()
	ticker.Stop()
	if publisher != nil {
		if err := publisher.Close(); err != nil {
			logger.Error("kafka writer close error", "error", err)
		}
	}
	if err := store.Close(); err != nil {
		logger.Error("database close error", "error", err)
	}

	logger.Info("shutdown complete")
}

// newCompleter builds the configured narrative backend behind a circuit
// breaker. The offline provider returns nil, which the service reports as
// unavailable on every call.
func newCompleter(cfg *config.Config, logger *slog.Logger) narrative.Completer {
	switch cfg.NarrativeProvider {
	case config.ProviderChat:
		client := chatcompletion.NewClient(cfg.ChatAPIURL, cfg.ChatAPIKey, cfg.ChatModel, cfg.NarrativeTimeout, logger)
		return narrative.NewBreakerCompleter(config.ProviderChat, client, breakerCoolDown)
	case config.ProviderGemini:
		client := gemini.NewClient(cfg.GeminiAPIKey, cfg.GeminiModel, logger)
		return narrative.NewBreakerCompleter(config.ProviderGemini, client, breakerCoolDown)
	default:
		return nil
	}
}
