// Package interfaces defines service contracts for questfolio
package interfaces

import (
	"context"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// SeriesOptions configures a Total P&L series computation.
type SeriesOptions struct {
	// ApplyAccountCagrStartDate restricts the series to the configured
	// display start date for CAGR views.
	ApplyAccountCagrStartDate bool

	// DisplayStartKey is the configured start date; zero means full history.
	DisplayStartKey time.Time

	// ManualAdjustment is a single user-entered correction (e.g. off-platform
	// basis), injected as one cash flow on the earliest effective date.
	ManualAdjustment float64

	// Prices and FxRates override the default fetchers; used for test
	// doubles. Nil means use the service's configured clients.
	Prices  PriceHistoryClient
	FxRates FxRateClient
}

// PnlService is the reconstruction engine's public surface. Every operation
// is side-effect-free apart from reads through the cached market-data
// providers; partial failures surface as issues on the result, never errors,
// and only a completely empty or unparseable activity context yields an
// empty series.
type PnlService interface {
	// ComputeTotalPnlSeries replays an account's activity history into the
	// daily Total P&L series, reconciled against the broker balance snapshot.
	ComputeTotalPnlSeries(ctx context.Context, actx *models.ActivityContext, snapshot *models.BalanceSnapshot, opts SeriesOptions) (*models.SeriesResult, error)

	// ComputeNetDeposits produces the funding summary: net deposits, total
	// P&L, annualized return, and return breakdown.
	ComputeNetDeposits(ctx context.Context, actx *models.ActivityContext, snapshot *models.BalanceSnapshot, opts SeriesOptions) (*models.FundingSummary, error)

	// ComputeTotalPnlBySymbol attributes the aggregate P&L across symbols.
	ComputeTotalPnlBySymbol(ctx context.Context, actx *models.ActivityContext, opts SeriesOptions) (*models.SymbolBreakdown, error)

	// ComputeGroupSeries computes several account series concurrently and
	// reduces them into one date-bucketed aggregate.
	ComputeGroupSeries(ctx context.Context, actxs []*models.ActivityContext, snapshots map[string]*models.BalanceSnapshot, opts SeriesOptions) (*models.GroupSeriesResult, error)
}
