package marketdata

import (
	"context"
	"sync"
	"time"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
)

// defaultFetchConcurrency bounds how many price-history fetches run at once.
// Fetches happen once per series request for the full symbol set, never per
// day.
const defaultFetchConcurrency = 4

// Prefetcher populates in-memory price and FX series for one computation,
// consulting the durable market store before going to the fetchers. All I/O
// happens here, before the ledger replay starts; the replay then runs purely
// against the returned data.
type Prefetcher struct {
	prices      interfaces.PriceHistoryClient
	fx          interfaces.FxRateClient
	store       interfaces.MarketDataStore
	logger      *common.Logger
	concurrency int
}

// NewPrefetcher creates a prefetcher. store may be nil (no durable cache),
// as may either client (that data source is then simply absent and lookups
// degrade to hints/backfill).
func NewPrefetcher(prices interfaces.PriceHistoryClient, fx interfaces.FxRateClient, store interfaces.MarketDataStore, logger *common.Logger) *Prefetcher {
	return &Prefetcher{
		prices:      prices,
		fx:          fx,
		store:       store,
		logger:      logger,
		concurrency: defaultFetchConcurrency,
	}
}

// FetchPrices loads candle history for every symbol in the set with bounded
// parallelism. Individual fetch failures become issues; the symbol is left
// out of the result and later valuation degrades per the resolver's rules.
func (p *Prefetcher) FetchPrices(ctx context.Context, symbols []string, from, to time.Time) (map[string]*models.PriceSeries, []models.Issue) {
	result := make(map[string]*models.PriceSeries, len(symbols))
	var issues []models.Issue

	if p.prices == nil || len(symbols) == 0 {
		return result, issues
	}

	start := time.Now()
	var mu sync.Mutex
	var wg sync.WaitGroup
	sem := make(chan struct{}, p.concurrency)

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			series, err := p.fetchSymbol(ctx, symbol, from, to)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				issues = append(issues, models.Issue{
					Code:   models.IssueFetchFailed,
					Symbol: symbol,
					Detail: err.Error(),
				})
				return
			}
			result[symbol] = series
		}(symbol)
	}
	wg.Wait()

	p.logger.Debug().
		Int("symbols", len(symbols)).
		Int("fetched", len(result)).
		Dur("elapsed", time.Since(start)).
		Msg("Price prefetch complete")

	return result, issues
}

// fetchSymbol resolves one symbol's history: fresh store copy first, then
// the client, writing back on success.
func (p *Prefetcher) fetchSymbol(ctx context.Context, symbol string, from, to time.Time) (*models.PriceSeries, error) {
	if p.store != nil {
		if stored, err := p.store.GetPriceHistory(ctx, symbol); err == nil {
			if common.IsFresh(stored.FetchedAt, common.FreshnessCandles) && coversRange(stored, from) {
				return stored, nil
			}
		}
	}

	series, err := p.prices.GetCandles(ctx, symbol, from, to)
	if err != nil {
		return nil, err
	}
	series.SortCandles()
	series.FetchedAt = time.Now()

	if p.store != nil {
		if err := p.store.PutPriceHistory(ctx, series); err != nil {
			p.logger.Warn().Err(err).Str("symbol", symbol).Msg("Failed to store price history")
		}
	}
	return series, nil
}

// coversRange reports whether stored history reaches back to the requested
// start. History that starts later is refetched in full.
func coversRange(series *models.PriceSeries, from time.Time) bool {
	if len(series.Candles) == 0 {
		return false
	}
	return !series.Candles[0].Date.After(from.AddDate(0, 0, 7))
}

// FetchRates loads USD-to-base observations for the period.
func (p *Prefetcher) FetchRates(ctx context.Context, pair string, from, to time.Time) (*models.FxRateSeries, *models.Issue) {
	if p.fx == nil {
		return nil, nil
	}

	if p.store != nil {
		if stored, err := p.store.GetFxRates(ctx, pair, from, to); err == nil {
			if common.IsFresh(stored.FetchedAt, common.FreshnessFxRates) {
				return stored, nil
			}
		}
	}

	series, err := p.fx.GetRates(ctx, from, to)
	if err != nil {
		return nil, &models.Issue{
			Code:   models.IssueMissingFxRate,
			Detail: err.Error(),
		}
	}
	series.SortObservations()
	series.FetchedAt = time.Now()

	if p.store != nil {
		if err := p.store.PutFxRates(ctx, series); err != nil {
			p.logger.Warn().Err(err).Str("pair", pair).Msg("Failed to store fx rates")
		}
	}
	return series, nil
}
