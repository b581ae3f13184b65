// Command server runs the COT-Reasoning Chat HTTP API.
//
//	@title                      COT-Reasoning Chat API
//	@version                    1.0
//	@description                Chat sessions backed by a chain-of-thought reasoning model.
//	@BasePath                   /api/v1
//	@securityDefinitions.apikey BearerAuth
//	@in                         header
//	@name                       Authorization
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

	"github.com/tbourn/cot-chat/internal/config"
	httpapi "github.com/tbourn/cot-chat/internal/http"
	"github.com/tbourn/cot-chat/internal/inference"
	"github.com/tbourn/cot-chat/internal/observability"
	"github.com/tbourn/cot-chat/internal/repo"
	"github.com/tbourn/cot-chat/internal/services"
	"github.com/tbourn/cot-chat/internal/sysutil"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	sysutil.SetLogLevel(cfg.LogLevel)
	log.Logger = sysutil.NewLogger(os.Stdout, cfg.LogPretty, cfg.OTEL.ServiceName)
	zerolog.DefaultContextLogger = &log.Logger
	ver := sysutil.FirstNonEmpty(os.Getenv("APP_VERSION"), version)

	if err := run(cfg, ver); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}

func run(cfg config.Config, ver string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupOTel(ctx, cfg.OTEL, ver)
	if err != nil {
		return err
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			log.Warn().Err(err).Msg("trace shutdown")
		}
	}()

	db, err := repo.OpenSQLite(cfg.DBPath)
	if err != nil {
		return err
	}
	if cfg.OTEL.Enabled {
		if err := repo.EnableTracing(db); err != nil {
			return err
		}
	}
	if err := repo.AutoMigrate(db); err != nil {
		return err
	}

	gw, err := inference.New(cfg.Inference)
	if err != nil {
		return err
	}
	if cfg.Auth.Ephemeral {
		log.Warn().Msg("AUTH_SECRET not set; tokens will not survive a restart")
	}

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	store := services.NewSessionStore(cfg.SessionIdleTTL, cfg.Inference.DefaultModel)
	httpapi.RegisterRoutes(r, db, gw, store, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", srv.Addr).
			Str("version", ver).
			Str("backend", cfg.Inference.Backend).
			Str("model", cfg.Inference.DefaultModel).
			Msg("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	// Let in-flight sends finish their model call before closing.
	sctx, cancel := context.WithTimeout(context.Background(), cfg.Inference.Timeout+5*time.Second)
	defer cancel()
	if err := srv.Shutdown(sctx); err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	return nil
}
