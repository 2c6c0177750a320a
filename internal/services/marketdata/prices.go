package marketdata

import (
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// pricePoint is an activity-embedded trade price, used as a fallback hint
// when no stored history covers a symbol.
type pricePoint struct {
	date  time.Time
	price float64
}

// Resolver answers priceOnDate lookups against prefetched history. Missing
// trading days forward-fill from the last known close; a price required
// before any observation exists is unresolved (never back-filled from the
// future) unless an activity-embedded trade price at or before that date
// exists as a hint. Unresolved symbols are recorded for diagnostics.
type Resolver struct {
	series  map[string]*models.PriceSeries
	hints   map[string][]pricePoint // ascending by date
	missing map[string]bool
}

// NewResolver builds a resolver over prefetched price series.
func NewResolver(series map[string]*models.PriceSeries) *Resolver {
	if series == nil {
		series = make(map[string]*models.PriceSeries)
	}
	return &Resolver{
		series:  series,
		hints:   make(map[string][]pricePoint),
		missing: make(map[string]bool),
	}
}

// AddHint records an activity-embedded trade price for a symbol.
func (r *Resolver) AddHint(symbol string, date time.Time, price float64) {
	if symbol == "" || price <= 0 {
		return
	}
	r.hints[symbol] = append(r.hints[symbol], pricePoint{date: date.Truncate(24 * time.Hour), price: price})
	sort.Slice(r.hints[symbol], func(i, j int) bool {
		return r.hints[symbol][i].date.Before(r.hints[symbol][j].date)
	})
}

// Currency returns the native currency of a symbol's price history,
// defaulting to CAD when unknown.
func (r *Resolver) Currency(symbol string) string {
	if s := r.series[symbol]; s != nil && s.Currency != "" {
		return s.Currency
	}
	return "CAD"
}

// PriceOnDate resolves a closing price for a symbol on a date.
// Resolution order: stored history forward-filled from the most recent
// earlier close; then the nearest activity-embedded trade price at or before
// the date; otherwise unresolved, and the symbol is recorded as missing.
func (r *Resolver) PriceOnDate(symbol string, date time.Time) (float64, bool) {
	if s := r.series[symbol]; s != nil {
		if price, _, found := s.CloseAsOf(date); found {
			return price, true
		}
	}

	if price, found := r.hintAsOf(symbol, date); found {
		return price, true
	}

	r.missing[symbol] = true
	return 0, false
}

// hintAsOf returns the latest hint at or before the date.
func (r *Resolver) hintAsOf(symbol string, date time.Time) (float64, bool) {
	hints := r.hints[symbol]
	if len(hints) == 0 {
		return 0, false
	}
	target := date.Truncate(24 * time.Hour)
	idx := sort.Search(len(hints), func(i int) bool {
		return hints[i].date.After(target)
	})
	if idx == 0 {
		return 0, false
	}
	return hints[idx-1].price, true
}

// MissingSymbols returns the symbols that had at least one unresolved
// lookup, sorted for deterministic output.
func (r *Resolver) MissingSymbols() []string {
	if len(r.missing) == 0 {
		return nil
	}
	out := make([]string, 0, len(r.missing))
	for sym := range r.missing {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}
