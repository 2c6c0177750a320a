// Package interfaces defines service contracts for questfolio
package interfaces

import (
	"context"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// MarketDataStore is the durable cache behind the price and FX fetchers.
// Per-computation caches remain in-memory objects owned by each series
// computation; this store only avoids refetching history across requests.
type MarketDataStore interface {
	// GetPriceHistory returns the stored candle history for a symbol, or an
	// error when none exists.
	GetPriceHistory(ctx context.Context, symbol string) (*models.PriceSeries, error)

	// PutPriceHistory stores (replaces) the candle history for a symbol.
	PutPriceHistory(ctx context.Context, series *models.PriceSeries) error

	// GetFxRates returns stored FX observations covering [from, to], or an
	// error when the stored range does not cover it.
	GetFxRates(ctx context.Context, pair string, from, to time.Time) (*models.FxRateSeries, error)

	// PutFxRates merges observations into the stored series for a pair.
	PutFxRates(ctx context.Context, series *models.FxRateSeries) error
}

// StorageManager owns the storage areas and their lifecycle.
type StorageManager interface {
	MarketDataStore() MarketDataStore
	Close() error
}
