package model

import "time"

// TradeEvent records one executed position change inside an episode.
// Forced marks liquidations triggered by the risk override rather than
// by the agent's own decision.
type TradeEvent struct {
	RunID       string    `json:"run_id"`
	Episode     int       `json:"episode"`
	Step        int       `json:"step"`
	Time        time.Time `json:"time"`
	Action      Action    `json:"-"`
	ActionName  string    `json:"action"`
	Forced      bool      `json:"forced"`
	Price       float64   `json:"price"`
	Units       float64   `json:"units"`
	CashAfter   float64   `json:"cash_after"`
	ValueAfter  float64   `json:"value_after"`
	RealizedPnL float64   `json:"realized_pnl"`
}

// Intent is the order the engine would place for its latest decision.
// Execution is an external collaborator; fills come back only as
// portfolio-state deltas, never as calls into the learning loop.
type Intent struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol"`
	Action Action    `json:"-"`
	Name   string    `json:"action"`
	Units  float64   `json:"units"`
	Price  float64   `json:"price"`
}
