package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Target network synchronization modes.
const (
	SyncHard = "hard"
	SyncSoft = "soft"
)

// Config holds all application configuration.
type Config struct {
	Exchange struct {
		BaseURL   string `yaml:"base_url"` // empty selects the mock data source
		APIKey    string `yaml:"api_key"`
		APISecret string `yaml:"api_secret"`
		Symbol    string `yaml:"symbol"`
		Interval  string `yaml:"interval"` // Bybit kline interval: 1,5,15,60,240,D,...
	} `yaml:"exchange"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Trading struct {
		InitialCapital float64 `yaml:"initial_capital"`
		PositionSize   float64 `yaml:"position_size"` // fraction of cash committed per BUY
		StopLoss       float64 `yaml:"stop_loss"`     // 0.02 = exit at -2% from entry
		TakeProfit     float64 `yaml:"take_profit"`   // 0 disables
		RuinFloor      float64 `yaml:"ruin_floor"`    // fraction of initial capital
		MaxSteps       int     `yaml:"max_steps"`     // 0 = run to the end of the series
		RewardScale    float64 `yaml:"reward_scale"`
		RewardClip     float64 `yaml:"reward_clip"` // 0 disables
	} `yaml:"trading"`
	Model struct {
		LearningRate    float64 `yaml:"learning_rate"`
		Gamma           float64 `yaml:"gamma"`
		Epsilon         float64 `yaml:"epsilon"`
		EpsilonMin      float64 `yaml:"epsilon_min"`
		EpsilonDecay    float64 `yaml:"epsilon_decay"`
		BatchSize       int     `yaml:"batch_size"`
		MemorySize      int     `yaml:"memory_size"`
		TargetSyncEvery int     `yaml:"target_sync_every"` // learning steps between hard syncs
		TargetSyncMode  string  `yaml:"target_sync_mode"`  // "hard" or "soft"
		Tau             float64 `yaml:"tau"`               // soft sync blend coefficient
		Seed            int64   `yaml:"seed"`              // 0 derives from the clock
	} `yaml:"model"`
	Data struct {
		Dir         string  `yaml:"dir"`
		HistoryDays int     `yaml:"history_days"`
		TrainSplit  float64 `yaml:"train_split"`
		CacheFile   string  `yaml:"cache_file"`
	} `yaml:"data"`
	Training struct {
		Episodes         int    `yaml:"episodes"`
		EpisodesPerCycle int    `yaml:"episodes_per_cycle"` // live mode
		CycleCron        string `yaml:"cycle_cron"`
		NotifyEvery      int    `yaml:"notify_every"` // episodes between progress messages
		CheckpointDir    string `yaml:"checkpoint_dir"`
		StatusFile       string `yaml:"status_file"`
	} `yaml:"training"`
	Database struct {
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"database"`
	Server struct {
		ListenAddr  string   `yaml:"listen_addr"`
		CORSOrigins []string `yaml:"cors_origins"`
	} `yaml:"server"`
	Logging struct {
		Level      string `yaml:"level"`
		Pretty     bool   `yaml:"pretty"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
		MaxAgeDays int    `yaml:"max_age_days"`
		Compress   bool   `yaml:"compress"`
	} `yaml:"logging"`
	Proxy string `yaml:"proxy"`
}

// Load reads config from a YAML file, then applies environment variable
// overrides and defaults. A missing file is not an error: defaults plus
// environment variables form a complete configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("BYBIT_BASE_URL"); v != "" {
		cfg.Exchange.BaseURL = v
	}
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("SYMBOL"); v != "" {
		cfg.Exchange.Symbol = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("SEED"); v != "" {
		var seed int64
		if _, err := fmt.Sscanf(v, "%d", &seed); err == nil {
			cfg.Model.Seed = seed
		}
	}
	if v := os.Getenv("EPISODES"); v != "" {
		var n int
		if _, err := fmt.Sscanf(v, "%d", &n); err == nil {
			cfg.Training.Episodes = n
		}
	}

	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Exchange.Symbol == "" {
		cfg.Exchange.Symbol = "BTCUSDT"
	}
	if cfg.Exchange.Interval == "" {
		cfg.Exchange.Interval = "60"
	}

	if cfg.Trading.InitialCapital == 0 {
		cfg.Trading.InitialCapital = 10000
	}
	if cfg.Trading.PositionSize == 0 {
		cfg.Trading.PositionSize = 0.5
	}
	if cfg.Trading.StopLoss == 0 {
		cfg.Trading.StopLoss = 0.02
	}
	if cfg.Trading.TakeProfit == 0 {
		cfg.Trading.TakeProfit = 0.04
	}
	if cfg.Trading.RuinFloor == 0 {
		cfg.Trading.RuinFloor = 0.5
	}

	if cfg.Model.LearningRate == 0 {
		cfg.Model.LearningRate = 0.001
	}
	if cfg.Model.Gamma == 0 {
		cfg.Model.Gamma = 0.95
	}
	if cfg.Model.Epsilon == 0 {
		cfg.Model.Epsilon = 1.0
	}
	if cfg.Model.EpsilonMin == 0 {
		cfg.Model.EpsilonMin = 0.01
	}
	if cfg.Model.EpsilonDecay == 0 {
		cfg.Model.EpsilonDecay = 0.995
	}
	if cfg.Model.BatchSize == 0 {
		cfg.Model.BatchSize = 32
	}
	if cfg.Model.MemorySize == 0 {
		cfg.Model.MemorySize = 10000
	}
	if cfg.Model.TargetSyncEvery == 0 {
		cfg.Model.TargetSyncEvery = 100
	}
	if cfg.Model.TargetSyncMode == "" {
		cfg.Model.TargetSyncMode = SyncHard
	}
	if cfg.Model.Tau == 0 {
		cfg.Model.Tau = 0.01
	}
	if cfg.Model.Seed == 0 {
		cfg.Model.Seed = 42
	}

	if cfg.Data.Dir == "" {
		cfg.Data.Dir = "data"
	}
	if cfg.Data.HistoryDays == 0 {
		cfg.Data.HistoryDays = 60
	}
	if cfg.Data.TrainSplit == 0 {
		cfg.Data.TrainSplit = 0.8
	}
	if cfg.Data.CacheFile == "" {
		cfg.Data.CacheFile = "data/klines.csv"
	}

	if cfg.Training.Episodes == 0 {
		cfg.Training.Episodes = 50
	}
	if cfg.Training.EpisodesPerCycle == 0 {
		cfg.Training.EpisodesPerCycle = 10
	}
	if cfg.Training.CycleCron == "" {
		cfg.Training.CycleCron = "0 5 * * * *"
	}
	if cfg.Training.NotifyEvery == 0 {
		cfg.Training.NotifyEvery = 10
	}
	if cfg.Training.CheckpointDir == "" {
		cfg.Training.CheckpointDir = "data/models"
	}
	if cfg.Training.StatusFile == "" {
		cfg.Training.StatusFile = "data/status.json"
	}

	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/deeptrader.db"
	}

	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = []string{"*"}
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.MaxSizeMB == 0 {
		cfg.Logging.MaxSizeMB = 20
	}
	if cfg.Logging.MaxBackups == 0 {
		cfg.Logging.MaxBackups = 5
	}
	if cfg.Logging.MaxAgeDays == 0 {
		cfg.Logging.MaxAgeDays = 30
	}
}

// Validate checks every field the training loop depends on. A failure here
// must prevent the loop from starting.
func (c *Config) Validate() error {
	if c.Exchange.Symbol == "" {
		return fmt.Errorf("exchange.symbol is required")
	}
	switch c.Exchange.Interval {
	case "1", "3", "5", "15", "30", "60", "120", "240", "360", "720", "D", "W":
	default:
		return fmt.Errorf("exchange.interval %q is not a valid kline interval", c.Exchange.Interval)
	}

	if c.Trading.InitialCapital <= 0 {
		return fmt.Errorf("trading.initial_capital must be positive")
	}
	if c.Trading.PositionSize <= 0 || c.Trading.PositionSize > 1 {
		return fmt.Errorf("trading.position_size must be in (0, 1]")
	}
	if c.Trading.StopLoss < 0 || c.Trading.StopLoss >= 1 {
		return fmt.Errorf("trading.stop_loss must be in [0, 1)")
	}
	if c.Trading.TakeProfit < 0 {
		return fmt.Errorf("trading.take_profit must be non-negative")
	}
	if c.Trading.RuinFloor < 0 || c.Trading.RuinFloor >= 1 {
		return fmt.Errorf("trading.ruin_floor must be in [0, 1)")
	}
	if c.Trading.MaxSteps < 0 {
		return fmt.Errorf("trading.max_steps must be non-negative")
	}
	if c.Trading.RewardClip < 0 {
		return fmt.Errorf("trading.reward_clip must be non-negative")
	}

	if c.Model.LearningRate <= 0 {
		return fmt.Errorf("model.learning_rate must be positive")
	}
	if c.Model.Gamma <= 0 || c.Model.Gamma > 1 {
		return fmt.Errorf("model.gamma must be in (0, 1]")
	}
	if c.Model.Epsilon < 0 || c.Model.Epsilon > 1 {
		return fmt.Errorf("model.epsilon must be in [0, 1]")
	}
	if c.Model.EpsilonMin < 0 || c.Model.EpsilonMin > c.Model.Epsilon {
		return fmt.Errorf("model.epsilon_min must be in [0, epsilon]")
	}
	if c.Model.EpsilonDecay <= 0 || c.Model.EpsilonDecay > 1 {
		return fmt.Errorf("model.epsilon_decay must be in (0, 1]")
	}
	if c.Model.BatchSize <= 0 {
		return fmt.Errorf("model.batch_size must be positive")
	}
	if c.Model.MemorySize < c.Model.BatchSize {
		return fmt.Errorf("model.memory_size must be at least batch_size")
	}
	if c.Model.TargetSyncEvery <= 0 {
		return fmt.Errorf("model.target_sync_every must be positive")
	}
	if c.Model.TargetSyncMode != SyncHard && c.Model.TargetSyncMode != SyncSoft {
		return fmt.Errorf("model.target_sync_mode must be %q or %q", SyncHard, SyncSoft)
	}
	if c.Model.TargetSyncMode == SyncSoft && (c.Model.Tau <= 0 || c.Model.Tau > 1) {
		return fmt.Errorf("model.tau must be in (0, 1] for soft sync")
	}

	if c.Data.HistoryDays <= 0 {
		return fmt.Errorf("data.history_days must be positive")
	}
	if c.Data.TrainSplit <= 0 || c.Data.TrainSplit >= 1 {
		return fmt.Errorf("data.train_split must be in (0, 1)")
	}

	if c.Training.Episodes <= 0 {
		return fmt.Errorf("training.episodes must be positive")
	}
	if c.Training.EpisodesPerCycle <= 0 {
		return fmt.Errorf("training.episodes_per_cycle must be positive")
	}
	if c.Training.CheckpointDir == "" {
		return fmt.Errorf("training.checkpoint_dir is required")
	}
	if c.Training.StatusFile == "" {
		return fmt.Errorf("training.status_file is required")
	}

	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}

	return nil
}
