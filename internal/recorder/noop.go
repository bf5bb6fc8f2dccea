package recorder

import "DeepTrader/internal/model"

// NoopRecorder is a no-op implementation used when SQLite is not configured.
type NoopRecorder struct{}

func NewNoopRecorder() *NoopRecorder { return &NoopRecorder{} }

func (n *NoopRecorder) StartRun(model.RunInfo) error                    { return nil }
func (n *NoopRecorder) RecordEpisode(model.EpisodeStats) error          { return nil }
func (n *NoopRecorder) RecordTrades([]model.TradeEvent) error           { return nil }
func (n *NoopRecorder) RecordIndicators(*model.IndicatorSnapshot) error { return nil }
func (n *NoopRecorder) FinishRun(string, string, float64, float64) error {
	return nil
}
func (n *NoopRecorder) Close() error { return nil }
