package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

func TestMockFetcherDeterministicBySeed(t *testing.T) {
	start := time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)
	a := &MockFetcher{BasePrice: 40000, Seed: 7, Start: start}
	b := &MockFetcher{BasePrice: 40000, Seed: 7, Start: start}
	other := &MockFetcher{BasePrice: 40000, Seed: 8, Start: start}

	ctx := context.Background()
	barsA, err := a.FetchKlines(ctx, "BTCUSDT", "60", 100)
	require.NoError(t, err)
	barsB, err := b.FetchKlines(ctx, "BTCUSDT", "60", 100)
	require.NoError(t, err)
	barsC, err := other.FetchKlines(ctx, "BTCUSDT", "60", 100)
	require.NoError(t, err)

	assert.Equal(t, barsA, barsB)
	assert.NotEqual(t, barsA, barsC)
}

func TestMockFetcherProducesValidBars(t *testing.T) {
	m := &MockFetcher{Seed: 42, Start: time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC)}
	bars, err := m.FetchHistory(context.Background(), "BTCUSDT", "60", 3)
	require.NoError(t, err)

	assert.Len(t, bars, 72)
	assert.NoError(t, model.ValidateBars(bars))
	for i, b := range bars {
		assert.GreaterOrEqual(t, b.High, b.Low, "bar %d", i)
	}
}

func TestMockFetcherFixedDataRespectsLimit(t *testing.T) {
	fixed := cacheBars(10)
	m := &MockFetcher{Bars: fixed}

	bars, err := m.FetchKlines(context.Background(), "BTCUSDT", "60", 4)
	require.NoError(t, err)
	assert.Equal(t, fixed[6:], bars)

	all, err := m.FetchHistory(context.Background(), "BTCUSDT", "60", 1)
	require.NoError(t, err)
	assert.Equal(t, fixed, all)
}
