package model

import "time"

// EpisodeStats is the per-episode telemetry record emitted by the agent.
type EpisodeStats struct {
	RunID       string    `json:"run_id"`
	Episode     int       `json:"episode"`
	Steps       int       `json:"steps"`
	TotalReward float64   `json:"total_reward"`
	FinalValue  float64   `json:"final_value"`
	PeakValue   float64   `json:"peak_value"`
	Epsilon     float64   `json:"epsilon"`
	AvgLoss     float64   `json:"avg_loss"`
	Trades      int       `json:"trades"`
	ForcedExits int       `json:"forced_exits"`
	FinishedAt  time.Time `json:"finished_at"`
}

// StatusSnapshot is the single machine-parseable status record shared
// with the monitor process through the status file.
type StatusSnapshot struct {
	RunID          string    `json:"run_id"`
	Mode           string    `json:"mode"`
	State          string    `json:"state"` // "running", "finished", "failed"
	Symbol         string    `json:"symbol"`
	Episode        int       `json:"episode"`
	TotalEpisodes  int       `json:"total_episodes"`
	TotalReward    float64   `json:"total_reward"`
	PortfolioValue float64   `json:"portfolio_value"`
	BestValue      float64   `json:"best_value"`
	Epsilon        float64   `json:"epsilon"`
	Loss           float64   `json:"loss"`
	UpdatedAt      time.Time `json:"updated_at"`
}
