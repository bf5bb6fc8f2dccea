package model

import "time"

// Run states persisted in the history database and the status file.
const (
	RunRunning  = "running"
	RunFinished = "finished"
	RunFailed   = "failed"
)

// RunInfo describes one training/eval run.
type RunInfo struct {
	RunID      string    `json:"run_id"`
	Mode       string    `json:"mode"` // "train", "live", "eval"
	Symbol     string    `json:"symbol"`
	Interval   string    `json:"interval"`
	StateSize  int       `json:"state_size"`
	Episodes   int       `json:"episodes"`
	State      string    `json:"state"`
	FinalValue float64   `json:"final_value"`
	BestValue  float64   `json:"best_value"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}
