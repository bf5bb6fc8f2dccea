package collector

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"DeepTrader/internal/model"
)

var cacheHeader = []string{"timestamp", "open", "high", "low", "close", "volume"}

// SaveCSV writes bars to a cache file, temp-then-rename so a concurrent
// reader never sees a partial file. Timestamps are unix seconds.
func SaveCSV(path string, bars []model.Bar) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cache dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("cache create: %w", err)
	}

	w := csv.NewWriter(f)
	_ = w.Write(cacheHeader)
	for _, b := range bars {
		_ = w.Write([]string{
			strconv.FormatInt(b.Time.Unix(), 10),
			strconv.FormatFloat(b.Open, 'g', -1, 64),
			strconv.FormatFloat(b.High, 'g', -1, 64),
			strconv.FormatFloat(b.Low, 'g', -1, 64),
			strconv.FormatFloat(b.Close, 'g', -1, 64),
			strconv.FormatFloat(b.Volume, 'g', -1, 64),
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("cache write: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("cache close: %w", err)
	}
	return os.Rename(tmp, path)
}

// LoadCSV reads a bar cache written by SaveCSV.
func LoadCSV(path string) ([]model.Bar, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cache read %s: %w", path, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("cache %s has no data rows", path)
	}
	if len(rows[0]) != len(cacheHeader) || rows[0][0] != "timestamp" {
		return nil, fmt.Errorf("cache %s has unexpected header %v", path, rows[0])
	}

	bars := make([]model.Bar, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		sec, err := strconv.ParseInt(rec[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("cache row %d: parse timestamp: %w", i+1, err)
		}
		vals := make([]float64, 5)
		for j := 0; j < 5; j++ {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("cache row %d: parse %s: %w", i+1, cacheHeader[j+1], err)
			}
			vals[j] = v
		}
		bars = append(bars, model.Bar{
			Time:   time.Unix(sec, 0).UTC(),
			Open:   vals[0],
			High:   vals[1],
			Low:    vals[2],
			Close:  vals[3],
			Volume: vals[4],
		})
	}
	return bars, nil
}
