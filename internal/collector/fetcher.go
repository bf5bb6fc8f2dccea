package collector

import (
	"context"

	"DeepTrader/internal/model"
)

// Fetcher defines the interface for fetching market data. Implementations
// return bars oldest first.
type Fetcher interface {
	// FetchKlines returns the most recent bars, at most limit of them.
	FetchKlines(ctx context.Context, symbol, interval string, limit int) ([]model.Bar, error)
	// FetchHistory returns bars covering the past days, paginating as
	// needed.
	FetchHistory(ctx context.Context, symbol, interval string, days int) ([]model.Bar, error)
	Name() string
}
