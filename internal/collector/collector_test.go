package collector

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

type stubFetcher struct {
	bars  []model.Bar
	err   error
	calls int
}

func (s *stubFetcher) Name() string { return "stub" }

func (s *stubFetcher) FetchKlines(_ context.Context, _, _ string, limit int) ([]model.Bar, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	bars := s.bars
	if limit > 0 && len(bars) > limit {
		bars = bars[len(bars)-limit:]
	}
	return bars, nil
}

func (s *stubFetcher) FetchHistory(context.Context, string, string, int) ([]model.Bar, error) {
	s.calls++
	return s.bars, s.err
}

func TestLoadOrFetchFetchesAndFillsCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	want := cacheBars(6)
	stub := &stubFetcher{bars: want}
	c := New(stub, "BTCUSDT", "60", path, zerolog.Nop())

	got, err := c.LoadOrFetch(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, stub.calls)

	cached, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, want, cached)
}

func TestLoadOrFetchPrefersCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	want := cacheBars(6)
	require.NoError(t, SaveCSV(path, want))

	// A fetcher that always fails proves the network is never touched.
	stub := &stubFetcher{err: errors.New("offline")}
	c := New(stub, "BTCUSDT", "60", path, zerolog.Nop())

	got, err := c.LoadOrFetch(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Zero(t, stub.calls)
}

func TestLoadOrFetchRefetchesOnCorruptCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("garbage"), 0o644))

	want := cacheBars(4)
	stub := &stubFetcher{bars: want}
	c := New(stub, "BTCUSDT", "60", path, zerolog.Nop())

	got, err := c.LoadOrFetch(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, stub.calls)
}

func TestRefreshBypassesCache(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, SaveCSV(path, cacheBars(3)))

	want := cacheBars(8)
	stub := &stubFetcher{bars: want}
	c := New(stub, "BTCUSDT", "60", path, zerolog.Nop())

	got, err := c.Refresh(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, 1, stub.calls)

	cached, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, want, cached, "refresh must rewrite the cache")
}

func TestRefreshRejectsInvalidBars(t *testing.T) {
	bad := cacheBars(3)
	bad[2].Time = bad[0].Time // non-increasing
	c := New(&stubFetcher{bars: bad}, "BTCUSDT", "60", "", zerolog.Nop())

	_, err := c.Refresh(context.Background(), 30)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid bars")
}

func TestLatestValidates(t *testing.T) {
	good := cacheBars(5)
	c := New(&stubFetcher{bars: good}, "BTCUSDT", "60", "", zerolog.Nop())

	bars, err := c.Latest(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, good[2:], bars)

	bad := cacheBars(3)
	bad[1].Close = -1
	c = New(&stubFetcher{bars: bad}, "BTCUSDT", "60", "", zerolog.Nop())
	_, err = c.Latest(context.Background(), 3)
	assert.Error(t, err)
}

func TestPaperExecutorAcknowledges(t *testing.T) {
	e := NewPaperExecutor(zerolog.Nop())
	assert.Equal(t, "paper", e.Name())

	intent := model.Intent{
		Time:   time.Now(),
		Symbol: "BTCUSDT",
		Action: model.ActionBuy,
		Name:   model.ActionBuy.String(),
		Units:  0.25,
		Price:  43000,
	}
	assert.NoError(t, e.Execute(context.Background(), intent))

	intent.Action = model.ActionHold
	assert.NoError(t, e.Execute(context.Background(), intent))
}
