package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/subcool-seeds/cultivai-orders/internal/catalog"
	"github.com/subcool-seeds/cultivai-orders/internal/config"
	"github.com/subcool-seeds/cultivai-orders/internal/db"
	"github.com/subcool-seeds/cultivai-orders/internal/order"
	"github.com/subcool-seeds/cultivai-orders/internal/transport"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	log.Logger = log.With().Str("service", "order-service").Logger()

	log.Info().Msg("Order service starting...")

	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	var (
		repo  order.Repository
		stock catalog.StockReserver
	)
	switch cfg.App.Storage {
	case config.StoragePostgres:
		pg, err := db.New(cfg.Postgres)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer pg.Close()
		repo = order.NewPostgresRepository(pg.Pool)
		stock = catalog.NewPostgresStore(pg.Pool)
	case config.StorageMemory:
		log.Warn().Msg("Using in-memory storage, all data is lost on shutdown")
		repo = order.NewMemoryRepository()
		stock = catalog.NewMemoryStore()
	}

	svc := order.NewService(repo, stock)

	sweepCtx, stopSweeper := context.WithCancel(context.Background())
	defer stopSweeper()
	go order.NewSweeper(svc, cfg.App.SweepInterval).Run(sweepCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      transport.NewRouter(svc),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Info().Msg("Shutting down...")

	stopSweeper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Shutdown failed")
	}
	log.Info().Msg("Server stopped")
}
