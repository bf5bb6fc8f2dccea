package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"DeepTrader/internal/collector"
	"DeepTrader/internal/config"
	"DeepTrader/internal/logging"
	"DeepTrader/internal/monitor"
	"DeepTrader/internal/recorder"
)

func main() {
	_ = godotenv.Load()

	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "config validation: %v\n", err)
		os.Exit(1)
	}

	log := logging.New(logging.Config{
		Level:      cfg.Logging.Level,
		Pretty:     cfg.Logging.Pretty,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
		Compress:   cfg.Logging.Compress,
	})
	log.Info().Str("config", cfgPath).Str("addr", cfg.Server.ListenAddr).
		Msg("DeepTrader monitor starting")

	// The monitor reads the same database the trainer writes; WAL mode
	// lets both processes use it at once.
	rec, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("History database unavailable")
	}
	defer rec.Close()

	var wallet monitor.WalletFetcher
	if cfg.Exchange.BaseURL != "" {
		wallet = collector.NewBybitClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey,
			cfg.Exchange.APISecret, cfg.Proxy, log)
	}

	srv := monitor.New(cfg, rec, wallet, log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Monitor server failed")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("DeepTrader monitor stopped")
}
