package collector

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"DeepTrader/internal/model"
)

// Collector orchestrates market data acquisition: cache first, then the
// configured fetcher, validating everything it hands out.
type Collector struct {
	fetcher   Fetcher
	symbol    string
	interval  string
	cachePath string
	log       zerolog.Logger
}

// New creates a Collector. An empty cachePath disables the CSV cache.
func New(fetcher Fetcher, symbol, interval, cachePath string, log zerolog.Logger) *Collector {
	return &Collector{
		fetcher:   fetcher,
		symbol:    symbol,
		interval:  interval,
		cachePath: cachePath,
		log:       log.With().Str("component", "collector").Logger(),
	}
}

// LoadOrFetch returns bars from the CSV cache when one is present and
// valid, otherwise fetches the requested days of history and fills the
// cache for the next run.
func (c *Collector) LoadOrFetch(ctx context.Context, days int) ([]model.Bar, error) {
	if c.cachePath != "" {
		bars, err := LoadCSV(c.cachePath)
		switch {
		case err == nil:
			if verr := model.ValidateBars(bars); verr != nil {
				c.log.Warn().Err(verr).Str("path", c.cachePath).Msg("Cached bars invalid, refetching")
			} else {
				c.log.Info().Int("bars", len(bars)).Str("path", c.cachePath).Msg("Loaded bars from cache")
				return bars, nil
			}
		case !os.IsNotExist(err):
			c.log.Warn().Err(err).Str("path", c.cachePath).Msg("Cache unreadable, refetching")
		}
	}
	return c.Refresh(ctx, days)
}

// Refresh always fetches, bypassing any cached file, and rewrites the
// cache afterwards. Live cycles use this to pick up new bars.
func (c *Collector) Refresh(ctx context.Context, days int) ([]model.Bar, error) {
	bars, err := c.fetcher.FetchHistory(ctx, c.symbol, c.interval, days)
	if err != nil {
		return nil, fmt.Errorf("fetch history via %s: %w", c.fetcher.Name(), err)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s returned invalid bars: %w", c.fetcher.Name(), err)
	}
	if c.cachePath != "" {
		if err := SaveCSV(c.cachePath, bars); err != nil {
			c.log.Warn().Err(err).Str("path", c.cachePath).Msg("Failed to write bar cache")
		}
	}
	c.log.Info().Int("bars", len(bars)).Str("source", c.fetcher.Name()).Msg("Market data refreshed")
	return bars, nil
}

// Latest fetches the most recent bars without touching the cache.
func (c *Collector) Latest(ctx context.Context, limit int) ([]model.Bar, error) {
	bars, err := c.fetcher.FetchKlines(ctx, c.symbol, c.interval, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch klines via %s: %w", c.fetcher.Name(), err)
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("%s returned invalid bars: %w", c.fetcher.Name(), err)
	}
	return bars, nil
}

// Symbol is the instrument this collector serves.
func (c *Collector) Symbol() string { return c.symbol }
