package collector

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"DeepTrader/internal/model"
)

func cacheBars(n int) []model.Bar {
	base := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	bars := make([]model.Bar, n)
	for i := range bars {
		px := 30000 + 12.5*float64(i)
		bars[i] = model.Bar{
			Time:   base.Add(time.Duration(i) * time.Hour),
			Open:   px - 5,
			High:   px + 10,
			Low:    px - 10,
			Close:  px,
			Volume: 1000 + float64(i),
		}
	}
	return bars
}

func TestCacheRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	want := cacheBars(10)

	require.NoError(t, SaveCSV(path, want))
	got, err := LoadCSV(path)
	require.NoError(t, err)

	assert.Equal(t, want, got)

	// No temp file left behind.
	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCacheLoadMissingFile(t *testing.T) {
	_, err := LoadCSV(filepath.Join(t.TempDir(), "nope.csv"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCacheLoadRejectsBadHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, os.WriteFile(path, []byte("a,b,c\n1,2,3\n"), 0o644))

	_, err := LoadCSV(path)
	assert.ErrorContains(t, err, "unexpected header")
}

func TestCacheLoadRejectsMalformedRow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	data := "timestamp,open,high,low,close,volume\nnot-a-number,1,2,3,4,5\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	_, err := LoadCSV(path)
	assert.ErrorContains(t, err, "parse timestamp")
}

func TestCacheLoadRejectsEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, SaveCSV(path, nil))

	_, err := LoadCSV(path)
	assert.ErrorContains(t, err, "no data rows")
}

func TestCacheOverwriteKeepsLatest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bars.csv")
	require.NoError(t, SaveCSV(path, cacheBars(5)))

	want := cacheBars(3)
	require.NoError(t, SaveCSV(path, want))

	got, err := LoadCSV(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
