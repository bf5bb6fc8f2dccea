package model

import (
	"fmt"
	"time"
)

// Bar represents a single OHLCV candlestick.
type Bar struct {
	Time   time.Time `json:"time"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume float64   `json:"volume"`
}

// ValidateBars checks the contract required of any market data source:
// non-empty series, strictly increasing timestamps, positive prices.
func ValidateBars(bars []Bar) error {
	if len(bars) == 0 {
		return fmt.Errorf("empty bar series")
	}
	for i, b := range bars {
		if b.Close <= 0 || b.Open <= 0 || b.High <= 0 || b.Low <= 0 {
			return fmt.Errorf("bar %d (%s): non-positive price", i, b.Time.Format(time.RFC3339))
		}
		if b.Volume < 0 {
			return fmt.Errorf("bar %d (%s): negative volume", i, b.Time.Format(time.RFC3339))
		}
		if i > 0 && !bars[i-1].Time.Before(b.Time) {
			return fmt.Errorf("bar %d (%s): timestamp not increasing", i, b.Time.Format(time.RFC3339))
		}
	}
	return nil
}

// Closes extracts the close column from a bar series.
func Closes(bars []Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}
