package model

// PortfolioState is a snapshot of the environment's simulated account.
// EntryPrice is meaningful only while Units > 0.
type PortfolioState struct {
	Cash        float64 `json:"cash"`
	Units       float64 `json:"units"`
	EntryPrice  float64 `json:"entry_price"`
	Value       float64 `json:"value"`
	PeakValue   float64 `json:"peak_value"`
	RealizedPnL float64 `json:"realized_pnl"`
	Step        int     `json:"step"`
}

// Exposure returns the fraction of portfolio value held in the position.
func (p PortfolioState) Exposure() float64 {
	if p.Value <= 0 {
		return 0
	}
	return (p.Value - p.Cash) / p.Value
}
