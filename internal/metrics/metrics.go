// Package metrics computes trading performance statistics over a
// portfolio-value series.
package metrics

import (
	"errors"
	"math"
	"strconv"

	"gonum.org/v1/gonum/stat"
)

// ErrInsufficientSeries is returned when the value series is too short to
// produce a single return.
var ErrInsufficientSeries = errors.New("metrics: need at least two portfolio values")

// Performance summarizes one episode or run.
type Performance struct {
	InitialValue float64 `json:"initial_value"`
	FinalValue   float64 `json:"final_value"`
	PeakValue    float64 `json:"peak_value"`
	TotalReturn  float64 `json:"total_return"`
	AvgReturn    float64 `json:"avg_return"`
	Volatility   float64 `json:"volatility"`
	MaxDrawdown  float64 `json:"max_drawdown"`
	Sharpe       float64 `json:"sharpe_ratio"`
	Periods      int     `json:"periods"`
}

// Evaluate computes performance over per-step portfolio values. Returns are
// simple one-step percentage changes; volatility is their population
// standard deviation; the Sharpe ratio is annualized by sqrt(periodsPerYear)
// and zero when volatility is zero. Drawdown is the largest peak-to-trough
// loss as a positive fraction.
func Evaluate(values []float64, initial float64, periodsPerYear float64) (Performance, error) {
	if len(values) < 2 {
		return Performance{}, ErrInsufficientSeries
	}
	if initial <= 0 {
		return Performance{}, errors.New("metrics: initial capital must be positive")
	}
	if periodsPerYear <= 0 {
		periodsPerYear = 1
	}

	returns := make([]float64, 0, len(values)-1)
	for i := 1; i < len(values); i++ {
		if values[i-1] != 0 {
			returns = append(returns, (values[i]-values[i-1])/values[i-1])
		}
	}

	p := Performance{
		InitialValue: initial,
		FinalValue:   values[len(values)-1],
		TotalReturn:  (values[len(values)-1] - initial) / initial,
		Periods:      len(returns),
	}
	if len(returns) > 0 {
		p.AvgReturn = stat.Mean(returns, nil)
		p.Volatility = stat.PopStdDev(returns, nil)
	}
	if p.Volatility > 0 {
		p.Sharpe = p.AvgReturn / p.Volatility * math.Sqrt(periodsPerYear)
	}

	peak := values[0]
	for _, v := range values {
		if v > peak {
			peak = v
		}
		if peak > 0 {
			if dd := (peak - v) / peak; dd > p.MaxDrawdown {
				p.MaxDrawdown = dd
			}
		}
	}
	p.PeakValue = peak
	return p, nil
}

// PeriodsPerYear maps a Bybit kline interval to the number of bars in a
// year, for annualization. Numeric intervals are minutes; unknown values
// fall back to hourly.
func PeriodsPerYear(interval string) float64 {
	const minutesPerYear = 365 * 24 * 60
	switch interval {
	case "D":
		return 365
	case "W":
		return 52
	case "M":
		return 12
	}
	if m, err := strconv.ParseFloat(interval, 64); err == nil && m > 0 {
		return minutesPerYear / m
	}
	return minutesPerYear / 60
}
