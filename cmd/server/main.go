package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	router "github.com/nkov/broadcast/internal/adapters/http"
	"github.com/nkov/broadcast/internal/adapters/media"
	signalws "github.com/nkov/broadcast/internal/adapters/signal"
	"github.com/nkov/broadcast/internal/app"
	"github.com/nkov/broadcast/internal/config"
	"github.com/nkov/broadcast/internal/core"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load config")
	}

	// The media worker is mandatory: abort startup when it cannot spawn.
	engine, err := media.NewEngine(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to start media worker")
	}
	defer engine.Close()

	orch := &app.Orchestrator{
		Registry: app.NewRegistry(),
		Rooms:    core.NewRegistry(ctx),
		Gateway:  engine,
	}
	ctrl := signalws.NewController(orch)

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		var err error
		if cfg.TLS.Enabled() {
			log.Info().Str("addr", addr).Msg("Broadcast server started (TLS)")
			err = srv.ListenAndServeTLS(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		} else {
			log.Info().Str("addr", addr).Msg("Broadcast server started")
			err = srv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
