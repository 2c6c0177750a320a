// Package pnl reconstructs, from an account's activity history, the daily
// Total P&L series: a sequential ledger replay producing equity and
// net-deposits series, terminal reconciliation against the broker-reported
// balance, an XIRR calculator, and a per-symbol decomposition.
package pnl

import (
	"math"
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/activity"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

// ledgerState is the mutable per-day book: cash per currency and shares per
// symbol. Owned exclusively by one replay and discarded after the series is
// produced.
type ledgerState struct {
	cash   map[string]float64
	shares map[string]float64
}

func newLedgerState() *ledgerState {
	return &ledgerState{
		cash:   make(map[string]float64),
		shares: make(map[string]float64),
	}
}

// dayEquity is one day-close valuation of the book in base currency.
type dayEquity struct {
	date   time.Time
	equity float64
}

// sortEvents orders events by effective date, stable on original activity
// order for same-day ties.
func sortEvents(events []models.NormalizedEvent) {
	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Date.Equal(events[j].Date) {
			return events[i].Date.Before(events[j].Date)
		}
		return events[i].SourceIndex < events[j].SourceIndex
	})
}

// apply mutates the ledger state for one event. Corporate actions without a
// parseable ratio are skipped and reported via the returned issue.
func (s *ledgerState) apply(ev *models.NormalizedEvent) *models.Issue {
	switch ev.Kind {
	case models.KindTrade:
		if ev.Symbol != "" {
			s.shares[ev.Symbol] += ev.QuantityDelta
		}
		s.cash[ev.Currency] += ev.Amount

	case models.KindIncome, models.KindFunding, models.KindOther:
		s.cash[ev.Currency] += ev.Amount

	case models.KindInternalJournal:
		// Share journals move listings with no cash effect; cash legs (FX
		// conversions) move cash between currencies with no share effect.
		if ev.QuantityDelta != 0 && ev.Symbol != "" {
			s.shares[ev.Symbol] += ev.QuantityDelta
		} else {
			s.cash[ev.Currency] += ev.Amount
		}

	case models.KindCorporateAction:
		newShares, oldShares, ok := activity.ParseActionRatio(ev.Description)
		if !ok {
			return &models.Issue{
				Code:   models.IssueCorporateActionSkipped,
				Symbol: ev.Symbol,
				Date:   ev.Date.Format("2006-01-02"),
				Detail: "unparseable corporate action ratio",
			}
		}
		if ev.Symbol != "" {
			s.shares[ev.Symbol] = s.shares[ev.Symbol] * float64(newShares) / float64(oldShares)
		}
	}
	return nil
}

// valueAt computes EquityBase at day close: every nonzero position at its
// resolved close converted to base, plus converted cash balances. A position
// with no resolvable price contributes zero (never NaN) and is flagged
// through the resolver's missing set; weekends and holidays reuse the most
// recent close via forward-fill, never interpolation.
func (s *ledgerState) valueAt(day time.Time, resolver *marketdata.Resolver, conv *marketdata.Converter, issues *issueSet) float64 {
	total := 0.0

	for symbol, qty := range s.shares {
		if math.Abs(qty) < 1e-9 {
			continue
		}
		price, ok := resolver.PriceOnDate(symbol, day)
		if !ok {
			continue
		}
		value, err := conv.ConvertToBase(qty*price, resolver.Currency(symbol), day)
		if err != nil {
			issues.add(models.Issue{
				Code:   models.IssueUnsupportedCurrency,
				Symbol: symbol,
				Detail: err.Error(),
			})
			continue
		}
		total += value
	}

	for currency, balance := range s.cash {
		if math.Abs(balance) < 1e-9 {
			continue
		}
		value, err := conv.ConvertToBase(balance, currency, day)
		if err != nil {
			issues.add(models.Issue{
				Code:   models.IssueUnsupportedCurrency,
				Detail: err.Error(),
			})
			continue
		}
		total += value
	}

	return total
}

// replayDaily walks calendar days from the first date to the last, applying
// all events effective each day and valuing the book at day close. One state
// transition per day in the range, not per activity; recomputed from scratch
// per request.
func replayDaily(events []models.NormalizedEvent, dates []time.Time, resolver *marketdata.Resolver, conv *marketdata.Converter) ([]dayEquity, []models.Issue) {
	sortEvents(events)

	state := newLedgerState()
	issues := newIssueSet()
	cursor := 0

	// Events dated before the window (possible when a display start date
	// trims the range) are applied up front so the opening book is right.
	if len(dates) > 0 {
		for cursor < len(events) && events[cursor].Date.Before(dates[0]) {
			if issue := state.apply(&events[cursor]); issue != nil {
				issues.add(*issue)
			}
			cursor++
		}
	}

	days := make([]dayEquity, 0, len(dates))
	for _, day := range dates {
		for cursor < len(events) && !events[cursor].Date.After(day) {
			if issue := state.apply(&events[cursor]); issue != nil {
				issues.add(*issue)
			}
			cursor++
		}
		days = append(days, dayEquity{date: day, equity: state.valueAt(day, resolver, conv, issues)})
	}

	return days, issues.list()
}

// generateCalendarDates produces one UTC date per day from start to end
// (inclusive).
func generateCalendarDates(start, end time.Time) []time.Time {
	start = start.Truncate(24 * time.Hour)
	end = end.Truncate(24 * time.Hour)

	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// issueSet deduplicates issues by (code, symbol, date) so a symbol missing
// prices for a year does not produce 250 identical entries.
type issueSet struct {
	seen map[string]bool
	out  []models.Issue
}

func newIssueSet() *issueSet {
	return &issueSet{seen: make(map[string]bool)}
}

func (s *issueSet) add(issue models.Issue) {
	key := string(issue.Code) + "|" + issue.Symbol + "|" + issue.Date
	if s.seen[key] {
		return
	}
	s.seen[key] = true
	s.out = append(s.out, issue)
}

func (s *issueSet) list() []models.Issue {
	return s.out
}
