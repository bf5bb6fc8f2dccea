package collector

import (
	"context"
	"math/rand"
	"time"

	"DeepTrader/internal/model"
)

// MockFetcher returns a deterministic synthetic walk for development and
// testing. Fixed data takes precedence when set.
type MockFetcher struct {
	Bars      []model.Bar
	BasePrice float64
	Seed      int64
	Start     time.Time // zero aligns the series to end now
}

func (m *MockFetcher) Name() string { return "mock" }

func (m *MockFetcher) FetchKlines(_ context.Context, _, interval string, limit int) ([]model.Bar, error) {
	if m.Bars != nil {
		bars := m.Bars
		if limit > 0 && len(bars) > limit {
			bars = bars[len(bars)-limit:]
		}
		return append([]model.Bar(nil), bars...), nil
	}
	return m.generate(interval, limit), nil
}

func (m *MockFetcher) FetchHistory(_ context.Context, _, interval string, days int) ([]model.Bar, error) {
	if m.Bars != nil {
		return append([]model.Bar(nil), m.Bars...), nil
	}
	step := intervalStep(interval)
	count := int(time.Duration(days) * 24 * time.Hour / step)
	return m.generate(interval, count), nil
}

func (m *MockFetcher) generate(interval string, count int) []model.Bar {
	if count <= 0 {
		count = 1
	}
	step := intervalStep(interval)
	start := m.Start
	if start.IsZero() {
		start = time.Now().Add(-time.Duration(count) * step).Truncate(time.Minute)
	}
	price := m.BasePrice
	if price <= 0 {
		price = 50000
	}

	rng := rand.New(rand.NewSource(m.Seed))
	bars := make([]model.Bar, count)
	for i := range bars {
		change := 0.002 * rng.NormFloat64()
		if change > 0.05 {
			change = 0.05
		} else if change < -0.05 {
			change = -0.05
		}
		open := price
		price *= 1 + change
		hi, lo := open, price
		if hi < lo {
			hi, lo = lo, hi
		}
		bars[i] = model.Bar{
			Time:   start.Add(time.Duration(i) * step),
			Open:   open,
			High:   hi * (1 + 0.002*rng.Float64()),
			Low:    lo * (1 - 0.002*rng.Float64()),
			Close:  price,
			Volume: 1000000 * (0.5 + rng.Float64()),
		}
	}
	return bars
}
