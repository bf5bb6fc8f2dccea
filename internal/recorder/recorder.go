package recorder

import "DeepTrader/internal/model"

// Recorder persists training history for later analysis. The trainer is
// the only writer; failures are recoverable and must not stop a run.
type Recorder interface {
	StartRun(info model.RunInfo) error
	RecordEpisode(stats model.EpisodeStats) error
	RecordTrades(trades []model.TradeEvent) error
	RecordIndicators(snap *model.IndicatorSnapshot) error
	FinishRun(runID, state string, finalValue, bestValue float64) error
	Close() error
}

// Reader serves the monitor's queries against the same database. All
// methods tolerate an empty database by returning empty results.
type Reader interface {
	LatestRun() (*model.RunInfo, error)
	RecentEpisodes(limit int) ([]model.EpisodeStats, error)
	RecentTrades(limit int) ([]model.TradeEvent, error)
	LatestIndicators() (*model.IndicatorSnapshot, error)
	// EpisodeValues returns the per-episode final portfolio values of one
	// run in episode order, for performance metrics.
	EpisodeValues(runID string) ([]float64, error)
}
