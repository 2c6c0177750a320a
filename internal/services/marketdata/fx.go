// Package marketdata resolves per-date prices and exchange rates for the
// ledger replay. Converters and resolvers are constructed per computation
// and own their caches; nothing here is shared across accounts.
package marketdata

import (
	"fmt"
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// ErrUnsupportedCurrency is returned when a conversion cannot proceed.
// Callers treat it as a recoverable per-event failure, not an abort.
var ErrUnsupportedCurrency = fmt.Errorf("unsupported currency")

// Converter resolves a base-currency rate for any date, with backfill. Rates
// are cached per date for the lifetime of one series computation; build a
// fresh Converter per account to avoid cross-account staleness.
type Converter struct {
	base         string
	observations []models.FxObservation // ascending by date
	cache        map[string]float64     // date key -> resolved rate
}

// NewConverter builds a converter for the given base currency over a set of
// published USD-to-base observations.
func NewConverter(base string, series *models.FxRateSeries) *Converter {
	c := &Converter{
		base:  base,
		cache: make(map[string]float64),
	}
	if series != nil {
		obs := make([]models.FxObservation, len(series.Observations))
		copy(obs, series.Observations)
		sort.Slice(obs, func(i, j int) bool { return obs[i].Date.Before(obs[j].Date) })
		c.observations = obs
	}
	return c
}

// Base returns the converter's base currency.
func (c *Converter) Base() string {
	return c.base
}

// RateForDate returns the backfilled USD-to-base rate for a date: the
// nearest earlier published rate, or, when no rate precedes the date, the
// earliest published rate held constant going backward. ok is false only when no
// observations exist at all.
func (c *Converter) RateForDate(date time.Time) (float64, bool) {
	if len(c.observations) == 0 {
		return 0, false
	}

	key := date.Format("2006-01-02")
	if rate, hit := c.cache[key]; hit {
		return rate, true
	}

	target := date.Truncate(24 * time.Hour)
	idx := sort.Search(len(c.observations), func(i int) bool {
		return c.observations[i].Date.Truncate(24 * time.Hour).After(target)
	})

	var rate float64
	if idx > 0 {
		rate = c.observations[idx-1].Rate
	} else {
		// Nothing precedes the date: hold the earliest published rate
		// constant going backward.
		rate = c.observations[0].Rate
	}

	c.cache[key] = rate
	return rate, true
}

// ConvertToBase converts an amount from its currency into the base currency
// at the given date's rate. Identity when the currency is already the base.
func (c *Converter) ConvertToBase(amount float64, currency string, date time.Time) (float64, error) {
	if currency == c.base || currency == "" {
		return amount, nil
	}

	rate, ok := c.RateForDate(date)
	if !ok {
		return 0, fmt.Errorf("no fx observations for %s on %s", currency, date.Format("2006-01-02"))
	}

	// Observations are base-per-USD, so USD multiplies and the reverse
	// direction divides.
	switch {
	case currency == "USD" && c.base == "CAD":
		return amount * rate, nil
	case currency == "CAD" && c.base == "USD":
		return amount / rate, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCurrency, currency)
	}
}
