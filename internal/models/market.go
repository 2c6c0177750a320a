// Package models defines data structures for questfolio
package models

import (
	"sort"
	"time"
)

// Candle represents a single day's price data for a symbol.
type Candle struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}

// PriceSeries holds closing-price history for one symbol in its native
// currency. Candles are kept ascending by date.
type PriceSeries struct {
	Symbol    string    `json:"symbol"`
	Currency  string    `json:"currency"`
	Candles   []Candle  `json:"candles"`
	FetchedAt time.Time `json:"fetched_at"`
}

// SortCandles orders candles ascending by date.
func (p *PriceSeries) SortCandles() {
	sort.Slice(p.Candles, func(i, j int) bool {
		return p.Candles[i].Date.Before(p.Candles[j].Date)
	})
}

// CloseAsOf returns the most recent close at or before the target date
// (forward-fill). Returns found=false when no candle precedes the date.
func (p *PriceSeries) CloseAsOf(asOf time.Time) (closePrice float64, barDate time.Time, found bool) {
	if p == nil || len(p.Candles) == 0 {
		return 0, time.Time{}, false
	}

	target := asOf.Truncate(24 * time.Hour)

	// Candles are ascending; find the first index strictly after target,
	// then step back one.
	idx := sort.Search(len(p.Candles), func(i int) bool {
		return p.Candles[i].Date.Truncate(24 * time.Hour).After(target)
	})
	if idx == 0 {
		return 0, time.Time{}, false
	}

	bar := p.Candles[idx-1]
	return bar.Close, bar.Date.Truncate(24 * time.Hour), true
}

// FxObservation is one published USD-to-base exchange rate.
type FxObservation struct {
	Date time.Time `json:"date"`
	Rate float64   `json:"rate"` // base-currency units per 1 USD
}

// FxRateSeries holds the published exchange-rate observations for one pair,
// ascending by date. A date with no published rate (weekend, holiday) is
// resolved by backfill from the nearest earlier observation.
type FxRateSeries struct {
	Pair         string          `json:"pair"` // e.g. "USDCAD"
	Observations []FxObservation `json:"observations"`
	FetchedAt    time.Time       `json:"fetched_at"`
}

// SortObservations orders observations ascending by date.
func (f *FxRateSeries) SortObservations() {
	sort.Slice(f.Observations, func(i, j int) bool {
		return f.Observations[i].Date.Before(f.Observations[j].Date)
	})
}

// BalanceDetail is one per-currency slice of a broker balance snapshot.
type BalanceDetail struct {
	Currency    string  `json:"currency"`
	Cash        float64 `json:"cash"`
	MarketValue float64 `json:"marketValue"`
	TotalEquity float64 `json:"totalEquity"`
}

// BalanceSnapshot is the broker's authoritative reported balance, supplied by
// the caller and used only for terminal reconciliation.
type BalanceSnapshot struct {
	Combined map[string]BalanceDetail `json:"combined"` // keyed by currency code
	AsOf     time.Time                `json:"asOf"`
}
