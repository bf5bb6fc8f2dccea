package recorder

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

func openTestDB(t *testing.T) *SQLiteRecorder {
	t.Helper()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "history.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })
	return r
}

func TestSQLiteRunLifecycle(t *testing.T) {
	r := openTestDB(t)
	started := time.Date(2024, 7, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, r.StartRun(model.RunInfo{
		RunID:     "run-1",
		Mode:      "train",
		Symbol:    "BTCUSDT",
		Interval:  "60",
		StateSize: 25,
		Episodes:  50,
		StartedAt: started,
	}))

	info, err := r.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, "run-1", info.RunID)
	assert.Equal(t, model.RunRunning, info.State)
	assert.True(t, info.StartedAt.Equal(started))
	assert.True(t, info.FinishedAt.IsZero())

	require.NoError(t, r.FinishRun("run-1", model.RunFinished, 10800, 11200))

	info, err = r.LatestRun()
	require.NoError(t, err)
	require.NotNil(t, info)
	assert.Equal(t, model.RunFinished, info.State)
	assert.Equal(t, 10800.0, info.FinalValue)
	assert.Equal(t, 11200.0, info.BestValue)
	assert.False(t, info.FinishedAt.IsZero())
}

func TestSQLiteEpisodesRoundTrip(t *testing.T) {
	r := openTestDB(t)
	finished := time.Date(2024, 7, 1, 9, 0, 0, 0, time.UTC)

	for i := 1; i <= 3; i++ {
		require.NoError(t, r.RecordEpisode(model.EpisodeStats{
			RunID:       "run-1",
			Episode:     i,
			Steps:       100 + i,
			TotalReward: float64(i) * 10,
			FinalValue:  10000 + float64(i)*100,
			PeakValue:   10500,
			Epsilon:     1.0 / float64(i),
			AvgLoss:     0.5,
			Trades:      i,
			ForcedExits: i - 1,
			FinishedAt:  finished.Add(time.Duration(i) * time.Minute),
		}))
	}

	eps, err := r.RecentEpisodes(2)
	require.NoError(t, err)
	require.Len(t, eps, 2)
	assert.Equal(t, 3, eps[0].Episode, "newest first")
	assert.Equal(t, 2, eps[1].Episode)
	assert.Equal(t, 10300.0, eps[0].FinalValue)
	assert.Equal(t, 103, eps[0].Steps)
	assert.Equal(t, 2, eps[0].ForcedExits)

	values, err := r.EpisodeValues("run-1")
	require.NoError(t, err)
	assert.Equal(t, []float64{10100, 10200, 10300}, values)
}

func TestSQLiteTradesRoundTrip(t *testing.T) {
	r := openTestDB(t)
	at := time.Date(2024, 7, 1, 10, 30, 0, 0, time.UTC)

	require.NoError(t, r.RecordTrades([]model.TradeEvent{
		{
			RunID: "run-1", Episode: 1, Step: 5, Time: at,
			Action: model.ActionBuy, ActionName: "BUY",
			Price: 43000, Units: 0.1, CashAfter: 5700, ValueAfter: 10000,
		},
		{
			RunID: "run-1", Episode: 1, Step: 9, Time: at.Add(4 * time.Hour),
			Action: model.ActionSell, ActionName: "SELL", Forced: true,
			Price: 42000, Units: 0.1, CashAfter: 9900, ValueAfter: 9900, RealizedPnL: -100,
		},
	}))
	require.NoError(t, r.RecordTrades(nil), "empty batch is a no-op")

	trades, err := r.RecentTrades(10)
	require.NoError(t, err)
	require.Len(t, trades, 2)

	// Newest first.
	assert.Equal(t, model.ActionSell, trades[0].Action)
	assert.True(t, trades[0].Forced)
	assert.Equal(t, -100.0, trades[0].RealizedPnL)
	assert.True(t, trades[0].Time.Equal(at.Add(4*time.Hour)))
	assert.Equal(t, model.ActionBuy, trades[1].Action)
	assert.False(t, trades[1].Forced)
}

func TestSQLiteIndicatorsLatestWins(t *testing.T) {
	r := openTestDB(t)
	at := time.Date(2024, 7, 2, 0, 0, 0, 0, time.UTC)

	first := &model.IndicatorSnapshot{Time: at, Symbol: "BTCUSDT", Close: 43000, RSI14: 55}
	second := &model.IndicatorSnapshot{Time: at.Add(time.Hour), Symbol: "BTCUSDT", Close: 43500, RSI14: 61.5, BBPosition: 0.8}

	require.NoError(t, r.RecordIndicators(first))
	require.NoError(t, r.RecordIndicators(second))
	require.NoError(t, r.RecordIndicators(nil), "nil snapshot is a no-op")

	snap, err := r.LatestIndicators()
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, 43500.0, snap.Close)
	assert.Equal(t, 61.5, snap.RSI14)
	assert.Equal(t, 0.8, snap.BBPosition)
	assert.True(t, snap.Time.Equal(at.Add(time.Hour)))
}

func TestSQLiteEmptyDatabase(t *testing.T) {
	r := openTestDB(t)

	info, err := r.LatestRun()
	require.NoError(t, err)
	assert.Nil(t, info)

	snap, err := r.LatestIndicators()
	require.NoError(t, err)
	assert.Nil(t, snap)

	eps, err := r.RecentEpisodes(10)
	require.NoError(t, err)
	assert.Empty(t, eps)

	trades, err := r.RecentTrades(10)
	require.NoError(t, err)
	assert.Empty(t, trades)

	values, err := r.EpisodeValues("missing")
	require.NoError(t, err)
	assert.Empty(t, values)
}

func TestNoopRecorder(t *testing.T) {
	n := NewNoopRecorder()
	assert.NoError(t, n.StartRun(model.RunInfo{}))
	assert.NoError(t, n.RecordEpisode(model.EpisodeStats{}))
	assert.NoError(t, n.RecordTrades(nil))
	assert.NoError(t, n.RecordIndicators(nil))
	assert.NoError(t, n.FinishRun("x", model.RunFailed, 0, 0))
	assert.NoError(t, n.Close())
}
