package features

import (
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"gonum.org/v1/gonum/stat"

	"DeepTrader/internal/model"
)

// NumColumns is the width of one raw indicator row.
const NumColumns = 21

// Warmup is the number of leading bars with no defined indicator values.
// The widest trailing window is the 50-bar SMA, so the first 49 bars are
// dropped rather than zero-filled.
const Warmup = 49

// MinBars is the shortest series the pipeline accepts: enough for the
// widest window plus one usable row.
const MinBars = Warmup + 2

// Column order of a raw indicator row. Tests and the scaler rely on this
// order staying fixed.
var columnNames = []string{
	"close", "volume",
	"sma_20", "sma_50", "ema_12", "ema_26",
	"rsi_14", "macd", "macd_signal", "macd_hist",
	"bb_upper", "bb_middle", "bb_lower", "bb_position",
	"stoch_k", "stoch_d", "atr_14", "obv",
	"momentum_5", "volume_ratio_20", "volatility_20",
}

// computeIndicators turns a validated OHLCV series into raw indicator rows,
// one per usable bar. Row i corresponds to bars[Warmup+i]. Division-prone
// columns use documented fallbacks: bb_position is 0.5 when the band width
// is zero, volume_ratio is 1.0 when the volume SMA is zero. Any other
// non-finite value is a data error.
func computeIndicators(bars []model.Bar) ([][]float64, error) {
	if len(bars) < MinBars {
		return nil, fmt.Errorf("%w: need at least %d bars, got %d", ErrInsufficientHistory, MinBars, len(bars))
	}

	n := len(bars)
	closes := make([]float64, n)
	highs := make([]float64, n)
	lows := make([]float64, n)
	volumes := make([]float64, n)
	for i, b := range bars {
		closes[i] = b.Close
		highs[i] = b.High
		lows[i] = b.Low
		volumes[i] = b.Volume
	}

	sma20 := talib.Sma(closes, 20)
	sma50 := talib.Sma(closes, 50)
	ema12 := talib.Ema(closes, 12)
	ema26 := talib.Ema(closes, 26)
	rsi14 := talib.Rsi(closes, 14)
	macd, macdSignal, macdHist := talib.Macd(closes, 12, 26, 9)
	bbUpper, bbMiddle, bbLower := talib.BBands(closes, 20, 2.0, 2.0, 0)
	stochK, stochD := talib.Stoch(highs, lows, closes, 14, 3, 0, 3, 0)
	atr14 := talib.Atr(highs, lows, closes, 14)
	obv := talib.Obv(closes, volumes)
	volSMA20 := talib.Sma(volumes, 20)

	momentum5 := pctChange(closes, 5)
	volatility20 := rollingReturnStd(closes, 20)

	rows := make([][]float64, 0, n-Warmup)
	for i := Warmup; i < n; i++ {
		bbPos := 0.5
		if width := bbUpper[i] - bbLower[i]; width > 0 {
			bbPos = (closes[i] - bbLower[i]) / width
		}
		volRatio := 1.0
		if volSMA20[i] > 0 {
			volRatio = volumes[i] / volSMA20[i]
		}

		row := []float64{
			closes[i], volumes[i],
			sma20[i], sma50[i], ema12[i], ema26[i],
			rsi14[i], macd[i], macdSignal[i], macdHist[i],
			bbUpper[i], bbMiddle[i], bbLower[i], bbPos,
			stochK[i], stochD[i], atr14[i], obv[i],
			momentum5[i], volRatio, volatility20[i],
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: column %s at bar %d (%s)",
					ErrNonFiniteFeature, columnNames[j], i, bars[i].Time.Format("2006-01-02 15:04"))
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// pctChange returns the percent change over the given lag, zero for the
// first lag entries. Prices are validated positive upstream.
func pctChange(closes []float64, lag int) []float64 {
	out := make([]float64, len(closes))
	for i := lag; i < len(closes); i++ {
		out[i] = closes[i]/closes[i-lag] - 1
	}
	return out
}

// rollingReturnStd computes the sample standard deviation of one-bar
// returns over a trailing window. Defined from index `window` onward.
func rollingReturnStd(closes []float64, window int) []float64 {
	n := len(closes)
	returns := make([]float64, n)
	for i := 1; i < n; i++ {
		returns[i] = closes[i]/closes[i-1] - 1
	}
	out := make([]float64, n)
	for i := window; i < n; i++ {
		out[i] = stat.StdDev(returns[i-window+1:i+1], nil)
	}
	return out
}

// Snapshot computes the latest raw (unnormalized) indicator values for a
// series, for recording and display. The series must be long enough for
// every window.
func Snapshot(symbol string, bars []model.Bar) (*model.IndicatorSnapshot, error) {
	rows, err := computeIndicators(bars)
	if err != nil {
		return nil, err
	}
	last := rows[len(rows)-1]
	bar := bars[len(bars)-1]
	return &model.IndicatorSnapshot{
		Time:          bar.Time,
		Symbol:        symbol,
		Close:         last[0],
		Volume:        last[1],
		SMA20:         last[2],
		SMA50:         last[3],
		EMA12:         last[4],
		EMA26:         last[5],
		RSI14:         last[6],
		MACD:          last[7],
		MACDSignal:    last[8],
		MACDHist:      last[9],
		BBUpper:       last[10],
		BBMiddle:      last[11],
		BBLower:       last[12],
		BBPosition:    last[13],
		StochK:        last[14],
		StochD:        last[15],
		ATR14:         last[16],
		OBV:           last[17],
		Momentum5:     last[18],
		VolumeRatio20: last[19],
		Volatility20:  last[20],
	}, nil
}
