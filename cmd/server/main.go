// Command server runs the event chat backend: the append-only message store,
// the REST + WebSocket API, and the WhatsApp bulk sender.
//
// Startup order:
//  1. Load .env (best effort) and the environment configuration.
//  2. Configure zerolog and OpenTelemetry.
//  3. Open the Pebble message store and the SQLite sidecar database.
//  4. Wire the Gin router and serve until SIGINT/SIGTERM.
//
// Shutdown drains in-flight HTTP requests, then closes the store so every
// stream subscriber sees a clean close instead of a dropped connection.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/geniality/event-chat-backend/internal/config"
	httpapi "github.com/geniality/event-chat-backend/internal/http"
	"github.com/geniality/event-chat-backend/internal/observability"
	"github.com/geniality/event-chat-backend/internal/repo"
	"github.com/geniality/event-chat-backend/internal/store"
	"github.com/geniality/event-chat-backend/internal/sysutil"
)

// version is stamped at build time via -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	gin.SetMode(cfg.GinMode)

	ctx := context.Background()
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		log.Fatal().Err(err).Msg("otel setup failed")
	}

	st, err := store.Open(cfg.StorePath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.StorePath).Msg("message store open failed")
	}
	st.LikeMaxAttempts = cfg.LikeMaxAttempts

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", cfg.DBPath).Msg("sqlite open failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		log.Fatal().Err(err).Msg("automigrate failed")
	}

	r := gin.New()
	httpapi.RegisterRoutes(r, st, db, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	// Closing the store closes every stream subscriber channel.
	if err := st.Close(); err != nil {
		log.Error().Err(err).Msg("store close")
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("otel shutdown")
	}
	log.Info().Msg("bye")
}
