package features

import (
	"errors"
	"fmt"
	"time"

	"DeepTrader/internal/model"
)

var (
	// ErrInsufficientHistory means the series is too short for the widest
	// indicator window.
	ErrInsufficientHistory = errors.New("insufficient history for indicator windows")
	// ErrNonFiniteFeature means an indicator produced NaN or Inf outside
	// the documented fallbacks.
	ErrNonFiniteFeature = errors.New("non-finite feature value")
	// ErrNotFitted means Transform was called before Fit.
	ErrNotFitted = errors.New("pipeline is not fitted")
)

// Frame pairs one usable bar with its normalized feature vector. Close is
// the raw close, kept for portfolio arithmetic in the environment.
type Frame struct {
	Time  time.Time
	Close float64
	Vec   []float64
}

// Pipeline turns OHLCV series into normalized feature frames. Scaling
// bounds are computed once, by Fit on the training series, and reused for
// every later Transform. Refitting on evaluation data would leak future
// information into the state representation.
type Pipeline struct {
	scaler *MinMaxScaler
}

// NewPipeline returns an unfitted pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{scaler: NewMinMaxScaler()}
}

// Fit computes indicators over the training series, fits the scaler on
// them, and returns the normalized frames.
func (p *Pipeline) Fit(bars []model.Bar) ([]Frame, error) {
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("fit: %w", err)
	}
	rows, err := computeIndicators(bars)
	if err != nil {
		return nil, err
	}
	if err := p.scaler.Fit(rows); err != nil {
		return nil, err
	}
	return p.frames(bars, rows), nil
}

// Transform computes indicators over any series and scales them with the
// bounds fixed at Fit time.
func (p *Pipeline) Transform(bars []model.Bar) ([]Frame, error) {
	if !p.scaler.Fitted() {
		return nil, ErrNotFitted
	}
	if err := model.ValidateBars(bars); err != nil {
		return nil, fmt.Errorf("transform: %w", err)
	}
	rows, err := computeIndicators(bars)
	if err != nil {
		return nil, err
	}
	return p.frames(bars, rows), nil
}

// Scaler exposes the fitted bounds for persistence alongside checkpoints.
func (p *Pipeline) Scaler() *MinMaxScaler {
	return p.scaler
}

func (p *Pipeline) frames(bars []model.Bar, rows [][]float64) []Frame {
	frames := make([]Frame, len(rows))
	for i, row := range rows {
		bar := bars[Warmup+i]
		frames[i] = Frame{
			Time:  bar.Time,
			Close: bar.Close,
			Vec:   p.scaler.Transform(row),
		}
	}
	return frames
}
