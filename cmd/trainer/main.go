package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"DeepTrader/internal/checkpoint"
	"DeepTrader/internal/collector"
	"DeepTrader/internal/config"
	"DeepTrader/internal/logging"
	"DeepTrader/internal/notifier"
	"DeepTrader/internal/recorder"
	"DeepTrader/internal/status"
	"DeepTrader/internal/trainer"
)

func main() {
	_ = godotenv.Load()

	mode := flag.String("mode", "train", "run mode: train, live or eval")
	flag.Parse()

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
	log.Info().Str("mode", *mode).Str("config", cfgPath).Msg("DeepTrader trainer starting")

	// An empty base URL selects the deterministic mock feed.
	var fetcher collector.Fetcher
	if cfg.Exchange.BaseURL != "" {
		fetcher = collector.NewBybitClient(cfg.Exchange.BaseURL, cfg.Exchange.APIKey,
			cfg.Exchange.APISecret, cfg.Proxy, log)
	} else {
		fetcher = &collector.MockFetcher{}
	}
	log.Info().Str("data_source", fetcher.Name()).Str("symbol", cfg.Exchange.Symbol).
		Str("interval", cfg.Exchange.Interval).Msg("Data source selected")

	col := collector.New(fetcher, cfg.Exchange.Symbol, cfg.Exchange.Interval, cfg.Data.CacheFile, log)

	var rec recorder.Recorder = recorder.NewNoopRecorder()
	var reader recorder.Reader
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, log)
		if err != nil {
			log.Warn().Err(err).Msg("History database unavailable, recording disabled")
		} else {
			rec = sr
			reader = sr
			defer sr.Close()
		}
	}

	store, err := checkpoint.NewFileStore(cfg.Training.CheckpointDir)
	if err != nil {
		log.Fatal().Err(err).Msg("Checkpoint store init failed")
	}
	sw, err := status.NewWriter(cfg.Training.StatusFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Status writer init failed")
	}

	tn := notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy, log)
	if tn.Enabled() {
		log.Info().Msg("Telegram notifications enabled")
	}

	svc, err := trainer.New(cfg, trainer.Deps{
		Collector: col,
		Recorder:  rec,
		Reader:    reader,
		Store:     store,
		Status:    sw,
		Notifier:  tn,
		Log:       log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Trainer init failed")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch *mode {
	case "train":
		err = svc.Train(ctx)
	case "live":
		err = svc.Live(ctx)
	case "eval":
		err = svc.Eval(ctx)
	default:
		log.Fatal().Str("mode", *mode).Msg("Unknown mode, use train, live or eval")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Run failed")
	}
	log.Info().Msg("DeepTrader trainer stopped")
}
