package checkpoint

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/network"
)

func TestFileStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(filepath.Join(dir, "models"))
	require.NoError(t, err)

	net, err := network.New(8, 3, 0.001, 42)
	require.NoError(t, err)
	snap := net.Snapshot()

	meta := Meta{ModelID: "BTCUSDT-60", RunID: "run-1", Episode: 17, PortfolioValue: 12345.6, StateSize: 8}
	require.NoError(t, store.SaveBest(snap, meta))

	w, m, err := store.LoadBest()
	require.NoError(t, err)
	require.NotNil(t, w)
	require.NotNil(t, m)
	assert.Equal(t, snap, w)
	assert.Equal(t, "BTCUSDT-60", m.ModelID)
	assert.Equal(t, 17, m.Episode)
	assert.Equal(t, 12345.6, m.PortfolioValue)
	assert.False(t, m.SavedAt.IsZero())
}

func TestFileStore_MissingCheckpointIsNotAnError(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	w, m, err := store.LoadBest()
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Nil(t, m)
}

func TestFileStore_OverwriteKeepsLatest(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	net, err := network.New(4, 3, 0.001, 1)
	require.NoError(t, err)

	require.NoError(t, store.SaveBest(net.Snapshot(), Meta{Episode: 1, PortfolioValue: 100}))
	require.NoError(t, store.SaveBest(net.Snapshot(), Meta{Episode: 9, PortfolioValue: 900}))

	_, m, err := store.LoadBest()
	require.NoError(t, err)
	assert.Equal(t, 9, m.Episode)
	assert.Equal(t, 900.0, m.PortfolioValue)
}

func TestFileStore_NoLeftoverTempFiles(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	net, err := network.New(4, 3, 0.001, 1)
	require.NoError(t, err)
	require.NoError(t, store.SaveBest(net.Snapshot(), Meta{}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp")
	}
}

func TestFileStore_RejectsNilWeights(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, store.SaveBest(nil, Meta{}))
}

func TestNoopStore(t *testing.T) {
	var s NoopStore
	require.NoError(t, s.SaveBest(&network.Weights{}, Meta{}))
	w, m, err := s.LoadBest()
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Nil(t, m)
}
