// Package interfaces defines service contracts for questfolio
package interfaces

import (
	"context"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// PriceHistoryClient fetches closing-price history for a symbol. The engine
// never fetches network data itself; implementations live at the I/O
// boundary and handle their own timeouts and cancellation.
type PriceHistoryClient interface {
	// GetCandles retrieves daily candles for a symbol over a date range.
	GetCandles(ctx context.Context, symbol string, from, to time.Time) (*models.PriceSeries, error)
}

// FxRateClient fetches published USD-to-base exchange-rate observations.
type FxRateClient interface {
	// GetRates retrieves daily rate observations over a date range.
	GetRates(ctx context.Context, from, to time.Time) (*models.FxRateSeries, error)
}

// ActivityFetcher retrieves raw broker activity records for an account.
// Implemented by the Questrade client; the engine consumes the result only
// through an ActivityContext built by the caller.
type ActivityFetcher interface {
	// GetActivities retrieves activities for an account over a date range.
	GetActivities(ctx context.Context, accountID string, from, to time.Time) ([]models.RawActivity, error)

	// GetBalances retrieves the broker-reported balance snapshot.
	GetBalances(ctx context.Context, accountID string) (*models.BalanceSnapshot, error)
}
