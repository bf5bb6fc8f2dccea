package model

import "time"

// IndicatorSnapshot holds the raw (unnormalized) technical indicators
// computed for one bar. The feature pipeline produces one for the latest
// bar of a series; the recorder persists it for the monitor's API.
type IndicatorSnapshot struct {
	Time          time.Time `json:"time"`
	Symbol        string    `json:"symbol"`
	Close         float64   `json:"close"`
	Volume        float64   `json:"volume"`
	SMA20         float64   `json:"sma_20"`
	SMA50         float64   `json:"sma_50"`
	EMA12         float64   `json:"ema_12"`
	EMA26         float64   `json:"ema_26"`
	RSI14         float64   `json:"rsi_14"`
	MACD          float64   `json:"macd"`
	MACDSignal    float64   `json:"macd_signal"`
	MACDHist      float64   `json:"macd_hist"`
	BBUpper       float64   `json:"bb_upper"`
	BBMiddle      float64   `json:"bb_middle"`
	BBLower       float64   `json:"bb_lower"`
	BBPosition    float64   `json:"bb_position"` // 0.0 ~ 1.0 within the bands
	StochK        float64   `json:"stoch_k"`
	StochD        float64   `json:"stoch_d"`
	ATR14         float64   `json:"atr_14"`
	OBV           float64   `json:"obv"`
	Momentum5     float64   `json:"momentum_5"`
	VolumeRatio20 float64   `json:"volume_ratio_20"`
	Volatility20  float64   `json:"volatility_20"`
}
