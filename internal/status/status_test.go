package status

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

func TestWriteRead_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "status.json")
	w, err := NewWriter(path)
	require.NoError(t, err)

	snap := model.StatusSnapshot{
		RunID:          "run-7",
		Mode:           "train",
		State:          model.RunRunning,
		Symbol:         "BTCUSDT",
		Episode:        12,
		TotalEpisodes:  50,
		TotalReward:    314.5,
		PortfolioValue: 10100,
		BestValue:      10400,
		Epsilon:        0.42,
		Loss:           0.003,
	}
	require.NoError(t, w.Write(snap))

	got, err := Read(path)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "run-7", got.RunID)
	assert.Equal(t, model.RunRunning, got.State)
	assert.Equal(t, 12, got.Episode)
	assert.Equal(t, 10400.0, got.BestValue)
	assert.False(t, got.UpdatedAt.IsZero(), "Write must stamp UpdatedAt")
}

func TestWrite_OverwritesPrevious(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	w, err := NewWriter(path)
	require.NoError(t, err)

	require.NoError(t, w.Write(model.StatusSnapshot{Episode: 1}))
	require.NoError(t, w.Write(model.StatusSnapshot{Episode: 2}))

	got, err := Read(path)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Episode)
}

func TestRead_MissingFile(t *testing.T) {
	got, err := Read(filepath.Join(t.TempDir(), "absent.json"))
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestNewWriter_RequiresPath(t *testing.T) {
	_, err := NewWriter("")
	assert.Error(t, err)
}
