package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"options-signal-engine/internal/journal"
	"options-signal-engine/internal/logger"
	"options-signal-engine/internal/server"
	"options-signal-engine/internal/trace"
)

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	must(initializeSystem())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := loadConfig(ctx)
	must(err)

	jnl, err := journal.New(cfg.Journal.Dir, cfg.LotSize)
	must(err)
	compressOldJournals(ctx, jnl)

	chainCache := initializeChain(ctx, cfg)
	provider := initializeProvider(ctx, cfg, chainCache)
	scorers := initializeScorers(ctx, cfg)
	notifier := initializeNotifier(cfg)
	gate := initializeGate(cfg, jnl, notifier)
	pipe := initializePipeline(cfg, provider, scorers, chainCache, gate, notifier)

	srv := server.New(cfg, pipe, jnl, gate, notifier)

	errc := make(chan error, 1)
	go func() {
		errc <- srv.Start()
	}()

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	logger.Info(ctx, "Signal engine started", "mode", cfg.Mode, "data_source", cfg.DataSource, "port", cfg.Server.Port)

	select {
	case err := <-errc:
		if err != nil {
			logger.ErrorWithErr(ctx, "HTTP server failed", err)
		}
	case <-sigc:
		logger.Info(ctx, "Shutting down...")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn(ctx, "HTTP shutdown incomplete", "error", err)
	}
	_ = trace.Shutdown(shutdownCtx)
	_ = logger.Shutdown(shutdownCtx)
}
