// Package marketdb provides the BadgerHold-backed durable cache for candle
// history and FX observations.
package marketdb

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/timshannon/badgerhold/v4"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
)

// Store wraps a BadgerHold database holding one record per symbol and one per
// FX pair.
type Store struct {
	db     *badgerhold.Store
	logger *common.Logger
}

// NewStore creates a new BadgerHold store at the given directory path.
func NewStore(logger *common.Logger, path string) (*Store, error) {
	if err := os.MkdirAll(path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create badger directory %s: %w", path, err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil // Disable default badger logger

	db, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	logger.Debug().Str("path", path).Msg("BadgerHold market store opened")

	return &Store{
		db:     db,
		logger: logger,
	}, nil
}

// Close closes the BadgerHold database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetPriceHistory returns the stored candle history for a symbol.
func (s *Store) GetPriceHistory(ctx context.Context, symbol string) (*models.PriceSeries, error) {
	var series models.PriceSeries
	if err := s.db.Get(priceKey(symbol), &series); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no price history stored for %s", symbol)
		}
		return nil, fmt.Errorf("failed to read price history for %s: %w", symbol, err)
	}
	return &series, nil
}

// PutPriceHistory stores (replaces) the candle history for a symbol.
func (s *Store) PutPriceHistory(ctx context.Context, series *models.PriceSeries) error {
	if series == nil || series.Symbol == "" {
		return fmt.Errorf("price series requires a symbol")
	}
	if err := s.db.Upsert(priceKey(series.Symbol), series); err != nil {
		return fmt.Errorf("failed to store price history for %s: %w", series.Symbol, err)
	}
	return nil
}

// GetFxRates returns stored observations for a pair when they cover the
// requested range. Coverage allows a one-week grace on each end since
// weekends and holidays publish no rate.
func (s *Store) GetFxRates(ctx context.Context, pair string, from, to time.Time) (*models.FxRateSeries, error) {
	var series models.FxRateSeries
	if err := s.db.Get(fxKey(pair), &series); err != nil {
		if err == badgerhold.ErrNotFound {
			return nil, fmt.Errorf("no fx rates stored for %s", pair)
		}
		return nil, fmt.Errorf("failed to read fx rates for %s: %w", pair, err)
	}

	if len(series.Observations) == 0 {
		return nil, fmt.Errorf("empty fx series stored for %s", pair)
	}
	first := series.Observations[0].Date
	last := series.Observations[len(series.Observations)-1].Date
	if first.After(from.AddDate(0, 0, 7)) || last.Before(to.AddDate(0, 0, -7)) {
		return nil, fmt.Errorf("stored fx range for %s does not cover %s to %s",
			pair, from.Format("2006-01-02"), to.Format("2006-01-02"))
	}

	return &series, nil
}

// PutFxRates merges observations into the stored series for a pair, keeping
// one observation per date with the newest write winning.
func (s *Store) PutFxRates(ctx context.Context, series *models.FxRateSeries) error {
	if series == nil || series.Pair == "" {
		return fmt.Errorf("fx series requires a pair")
	}

	merged := *series
	var existing models.FxRateSeries
	if err := s.db.Get(fxKey(series.Pair), &existing); err == nil {
		byDate := make(map[string]models.FxObservation, len(existing.Observations)+len(series.Observations))
		for _, obs := range existing.Observations {
			byDate[obs.Date.Format("2006-01-02")] = obs
		}
		for _, obs := range series.Observations {
			byDate[obs.Date.Format("2006-01-02")] = obs
		}
		merged.Observations = make([]models.FxObservation, 0, len(byDate))
		for _, obs := range byDate {
			merged.Observations = append(merged.Observations, obs)
		}
		merged.SortObservations()
	}

	if err := s.db.Upsert(fxKey(series.Pair), &merged); err != nil {
		return fmt.Errorf("failed to store fx rates for %s: %w", series.Pair, err)
	}
	return nil
}

func priceKey(symbol string) string {
	return "prices:" + symbol
}

func fxKey(pair string) string {
	return "fx:" + pair
}

// Ensure Store implements MarketDataStore
var _ interfaces.MarketDataStore = (*Store)(nil)
