package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pairpad/pairpad/internal/api"
	"github.com/pairpad/pairpad/internal/config"
	"github.com/pairpad/pairpad/internal/logging"
	"github.com/pairpad/pairpad/internal/persist"
	"github.com/pairpad/pairpad/internal/registry"
	"github.com/pairpad/pairpad/internal/store"
	"github.com/pairpad/pairpad/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()

	logging.Init(logging.Config{
		Level:  logging.ParseLevel(cfg.LogLevel),
		Pretty: cfg.LogPretty,
	})

	st, err := store.New(cfg.DBPath)
	if err != nil {
		logging.Fatal().Err(err).Str("path", cfg.DBPath).Msg("failed to initialize store")
	}
	defer st.Close()

	// Refuse to serve traffic without a reachable store.
	if err := st.Ping(); err != nil {
		logging.Fatal().Err(err).Msg("store unreachable at startup")
	}

	reg := registry.New(st, cfg.EvictGrace)

	writer := persist.New(st, cfg.PersistQueueSize)
	writer.Start()

	hub := ws.NewHub(reg, writer)
	reg.SetConnCounter(hub)
	go hub.Run()

	handler := api.New(hub, reg, st, cfg).Router()

	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     handler,
		ReadTimeout: 30 * time.Second,
		// No write timeout: websocket connections are long-lived.
	}

	go func() {
		logging.Info().Str("port", cfg.Port).Str("db", cfg.DBPath).Msg("pairpad server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Fatal().Err(err).Msg("http server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logging.Error().Err(err).Msg("http server shutdown error")
	}

	// Close every live connection, then flush pending persistence work.
	hub.Shutdown(shutdownTimeout)
	writer.Stop()

	logging.Info().Msg("server stopped")
}
