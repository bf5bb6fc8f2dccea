package features

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

func wavyBars(n int, start, slope float64) []model.Bar {
	bars := make([]model.Bar, n)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		px := start + slope*float64(i) + 3*math.Sin(float64(i)/4)
		bars[i] = model.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   px - 0.5,
			High:   px + 1,
			Low:    px - 1,
			Close:  px,
			Volume: 1000 + 10*float64(i%7),
		}
	}
	return bars
}

func flatBars(n int, price, volume float64) []model.Bar {
	bars := make([]model.Bar, n)
	t0 := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		bars[i] = model.Bar{
			Time:   t0.Add(time.Duration(i) * time.Hour),
			Open:   price,
			High:   price,
			Low:    price,
			Close:  price,
			Volume: volume,
		}
	}
	return bars
}

func TestFit_DropsWarmupBars(t *testing.T) {
	bars := wavyBars(60, 100, 0.2)
	frames, err := NewPipeline().Fit(bars)
	require.NoError(t, err)

	assert.Len(t, frames, 60-Warmup)
	assert.Equal(t, bars[Warmup].Time, frames[0].Time)
	for i, f := range frames {
		assert.Len(t, f.Vec, NumColumns)
		assert.Equal(t, bars[Warmup+i].Close, f.Close)
	}
}

func TestFit_TrainingValuesWithinUnitRange(t *testing.T) {
	frames, err := NewPipeline().Fit(wavyBars(120, 100, 0.3))
	require.NoError(t, err)
	for _, f := range frames {
		for j, v := range f.Vec {
			assert.GreaterOrEqual(t, v, 0.0, "column %s", columnNames[j])
			assert.LessOrEqual(t, v, 1.0, "column %s", columnNames[j])
		}
	}
}

func TestFit_InsufficientHistory(t *testing.T) {
	_, err := NewPipeline().Fit(wavyBars(MinBars-1, 100, 0.2))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}

func TestTransform_BeforeFit(t *testing.T) {
	_, err := NewPipeline().Transform(wavyBars(60, 100, 0.2))
	assert.True(t, errors.Is(err, ErrNotFitted))
}

// Evaluation data must be scaled with the bounds fitted on training data.
// A series beyond the training range then lands outside [0, 1]; a refit
// pipeline would squeeze it back in, which is the lookahead bug this
// pins down.
func TestTransform_ReusesTrainingBounds(t *testing.T) {
	train := wavyBars(120, 100, 0.3)
	eval := wavyBars(120, 200, 0.5)

	p := NewPipeline()
	_, err := p.Fit(train)
	require.NoError(t, err)

	evalFrames, err := p.Transform(eval)
	require.NoError(t, err)
	last := evalFrames[len(evalFrames)-1]
	assert.Greater(t, last.Vec[0], 1.0, "close beyond training max must exceed 1")

	refit, err := NewPipeline().Fit(eval)
	require.NoError(t, err)
	refitLast := refit[len(refit)-1]
	assert.LessOrEqual(t, refitLast.Vec[0], 1.0)
	assert.NotEqual(t, last.Vec[0], refitLast.Vec[0], "refit on eval data must be detectable")
}

func TestComputeIndicators_FlatSeriesFallbacks(t *testing.T) {
	rows, err := computeIndicators(flatBars(70, 100, 0))
	require.NoError(t, err)

	// Zero band width falls back to the band midpoint, zero volume SMA to
	// a neutral ratio.
	for _, row := range rows {
		assert.Equal(t, 0.5, row[13], "bb_position")
		assert.Equal(t, 1.0, row[19], "volume_ratio_20")
	}
}

func TestFit_ConstantColumnScalesToZero(t *testing.T) {
	frames, err := NewPipeline().Fit(flatBars(70, 100, 500))
	require.NoError(t, err)
	for _, f := range frames {
		// Every column is constant on a flat series, so min == max.
		for j, v := range f.Vec {
			assert.Equal(t, 0.0, v, "column %s", columnNames[j])
		}
	}
}

func TestSnapshot_LatestRawValues(t *testing.T) {
	bars := wavyBars(80, 100, 0.2)
	snap, err := Snapshot("BTCUSDT", bars)
	require.NoError(t, err)

	assert.Equal(t, "BTCUSDT", snap.Symbol)
	assert.Equal(t, bars[79].Time, snap.Time)
	assert.Equal(t, bars[79].Close, snap.Close)
	assert.Greater(t, snap.SMA50, 0.0)
	assert.GreaterOrEqual(t, snap.BBPosition, 0.0)
	assert.LessOrEqual(t, snap.RSI14, 100.0)
}

func TestScaler_FitRejectsEmpty(t *testing.T) {
	err := NewMinMaxScaler().Fit(nil)
	assert.True(t, errors.Is(err, ErrInsufficientHistory))
}
