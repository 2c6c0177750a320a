package pnl

import (
	"testing"

	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

func cadConverter() *marketdata.Converter {
	return marketdata.NewConverter("CAD", nil)
}

func usdCadConverter(rate float64) *marketdata.Converter {
	return marketdata.NewConverter("CAD", &models.FxRateSeries{
		Pair: "USDCAD",
		Observations: []models.FxObservation{
			{Date: day(2020, 1, 1), Rate: rate},
		},
	})
}

func priceResolver(symbol, currency string, candles ...models.Candle) *marketdata.Resolver {
	return marketdata.NewResolver(map[string]*models.PriceSeries{
		symbol: {Symbol: symbol, Currency: currency, Candles: candles},
	})
}

func TestReplayDaily_CashOnly(t *testing.T) {
	events := []models.NormalizedEvent{
		{Date: day(2025, 1, 2), Kind: models.KindFunding, Currency: "CAD", Amount: 1000},
	}
	dates := generateCalendarDates(day(2025, 1, 2), day(2025, 1, 5))

	days, issues := replayDaily(events, dates, marketdata.NewResolver(nil), cadConverter())
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
	if len(days) != 4 {
		t.Fatalf("got %d days, want 4", len(days))
	}
	for _, d := range days {
		if !approxEqual(d.equity, 1000, 1e-9) {
			t.Errorf("equity on %s = %.2f, want 1000", d.date.Format("2006-01-02"), d.equity)
		}
	}
}

func TestReplayDaily_TradeValuation(t *testing.T) {
	// Deposit 1000, buy 10 ABC at 60 the next day. Equity stays 1000 on the
	// trade day (cash 400 + position 600) and follows the close afterwards.
	events := []models.NormalizedEvent{
		{Date: day(2025, 1, 2), Kind: models.KindFunding, Currency: "CAD", Amount: 1000, SourceIndex: 0},
		{Date: day(2025, 1, 3), Kind: models.KindTrade, Symbol: "ABC", Currency: "CAD", Amount: -600, QuantityDelta: 10, SourceIndex: 1},
	}
	resolver := priceResolver("ABC", "CAD",
		models.Candle{Date: day(2025, 1, 3), Close: 60},
		models.Candle{Date: day(2025, 1, 6), Close: 67.5},
	)
	dates := generateCalendarDates(day(2025, 1, 2), day(2025, 1, 7))

	days, issues := replayDaily(events, dates, resolver, cadConverter())
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}

	want := map[string]float64{
		"2025-01-02": 1000,
		"2025-01-03": 1000,
		"2025-01-04": 1000, // weekend forward-fills Friday's close
		"2025-01-05": 1000,
		"2025-01-06": 1075,
		"2025-01-07": 1075,
	}
	for _, d := range days {
		key := d.date.Format("2006-01-02")
		if !approxEqual(d.equity, want[key], 1e-9) {
			t.Errorf("equity on %s = %.2f, want %.2f", key, d.equity, want[key])
		}
	}
}

func TestReplayDaily_PreWindowEventsApplied(t *testing.T) {
	// An event before the window must still shape the opening book.
	events := []models.NormalizedEvent{
		{Date: day(2024, 12, 1), Kind: models.KindFunding, Currency: "CAD", Amount: 500},
		{Date: day(2025, 1, 3), Kind: models.KindFunding, Currency: "CAD", Amount: 100},
	}
	dates := generateCalendarDates(day(2025, 1, 2), day(2025, 1, 3))

	days, _ := replayDaily(events, dates, marketdata.NewResolver(nil), cadConverter())
	if !approxEqual(days[0].equity, 500, 1e-9) {
		t.Errorf("opening equity = %.2f, want 500", days[0].equity)
	}
	if !approxEqual(days[1].equity, 600, 1e-9) {
		t.Errorf("final equity = %.2f, want 600", days[1].equity)
	}
}

func TestLedgerApply_InternalJournalLegs(t *testing.T) {
	state := newLedgerState()

	// Share leg moves listings with no cash effect.
	state.apply(&models.NormalizedEvent{
		Date: day(2025, 1, 6), Kind: models.KindInternalJournal,
		Symbol: "DLR.TO", QuantityDelta: -100, Currency: "CAD",
	})
	state.apply(&models.NormalizedEvent{
		Date: day(2025, 1, 6), Kind: models.KindInternalJournal,
		Symbol: "DLR.U.TO", QuantityDelta: 100, Currency: "USD",
	})
	if state.shares["DLR.TO"] != -100 || state.shares["DLR.U.TO"] != 100 {
		t.Errorf("share legs not applied: %v", state.shares)
	}
	if state.cash["CAD"] != 0 || state.cash["USD"] != 0 {
		t.Errorf("share journal moved cash: %v", state.cash)
	}

	// Cash leg (FX conversion) moves cash between currencies.
	state.apply(&models.NormalizedEvent{
		Date: day(2025, 1, 7), Kind: models.KindInternalJournal,
		Currency: "CAD", Amount: -1360,
	})
	state.apply(&models.NormalizedEvent{
		Date: day(2025, 1, 7), Kind: models.KindInternalJournal,
		Currency: "USD", Amount: 1000,
	})
	if !approxEqual(state.cash["CAD"], -1360, 1e-9) || !approxEqual(state.cash["USD"], 1000, 1e-9) {
		t.Errorf("cash legs not applied: %v", state.cash)
	}
}

func TestLedgerApply_CorporateAction(t *testing.T) {
	state := newLedgerState()
	state.shares["XYZ"] = 100

	issue := state.apply(&models.NormalizedEvent{
		Date: day(2025, 3, 1), Kind: models.KindCorporateAction,
		Symbol: "XYZ", Description: "SPLIT 2 FOR 1",
	})
	if issue != nil {
		t.Fatalf("unexpected issue: %v", issue)
	}
	if !approxEqual(state.shares["XYZ"], 200, 1e-9) {
		t.Errorf("shares after 2-for-1 split = %.2f, want 200", state.shares["XYZ"])
	}

	issue = state.apply(&models.NormalizedEvent{
		Date: day(2025, 4, 1), Kind: models.KindCorporateAction,
		Symbol: "XYZ", Description: "PLAN OF ARRANGEMENT",
	})
	if issue == nil {
		t.Fatal("expected corporate-action-skipped issue for unparseable ratio")
	}
	if issue.Code != models.IssueCorporateActionSkipped {
		t.Errorf("issue code = %s, want %s", issue.Code, models.IssueCorporateActionSkipped)
	}
	if !approxEqual(state.shares["XYZ"], 200, 1e-9) {
		t.Errorf("unparseable action changed shares: %.2f", state.shares["XYZ"])
	}
}

func TestValueAt_MissingPriceContributesZero(t *testing.T) {
	state := newLedgerState()
	state.shares["GHOST"] = 50
	state.cash["CAD"] = 100

	resolver := marketdata.NewResolver(nil)
	issues := newIssueSet()

	equity := state.valueAt(day(2025, 1, 10), resolver, cadConverter(), issues)
	if !approxEqual(equity, 100, 1e-9) {
		t.Errorf("equity = %.2f, want 100 (missing price contributes zero)", equity)
	}
	missing := resolver.MissingSymbols()
	if len(missing) != 1 || missing[0] != "GHOST" {
		t.Errorf("MissingSymbols = %v, want [GHOST]", missing)
	}
}

func TestValueAt_UsdPositionConverted(t *testing.T) {
	state := newLedgerState()
	state.shares["SPY"] = 10
	state.cash["USD"] = 100

	resolver := priceResolver("SPY", "USD", models.Candle{Date: day(2025, 1, 2), Close: 500})
	issues := newIssueSet()

	equity := state.valueAt(day(2025, 1, 3), resolver, usdCadConverter(1.35), issues)
	want := (10*500 + 100) * 1.35
	if !approxEqual(equity, want, 1e-6) {
		t.Errorf("equity = %.2f, want %.2f", equity, want)
	}
}

func TestGenerateCalendarDates(t *testing.T) {
	dates := generateCalendarDates(day(2025, 1, 30), day(2025, 2, 2))
	if len(dates) != 4 {
		t.Fatalf("got %d dates, want 4", len(dates))
	}
	if !dates[0].Equal(day(2025, 1, 30)) || !dates[3].Equal(day(2025, 2, 2)) {
		t.Errorf("range = %v..%v, want inclusive 01-30..02-02", dates[0], dates[3])
	}

	if got := generateCalendarDates(day(2025, 2, 2), day(2025, 1, 30)); got != nil {
		t.Errorf("reversed range = %v, want nil", got)
	}

	single := generateCalendarDates(day(2025, 1, 1), day(2025, 1, 1))
	if len(single) != 1 {
		t.Errorf("single-day range has %d dates, want 1", len(single))
	}
}

func TestIssueSet_Dedup(t *testing.T) {
	set := newIssueSet()
	for i := 0; i < 5; i++ {
		set.add(models.Issue{Code: models.IssueMissingPriceData, Symbol: "ABC", Date: "2025-01-02"})
	}
	set.add(models.Issue{Code: models.IssueMissingPriceData, Symbol: "ABC", Date: "2025-01-03"})

	if got := len(set.list()); got != 2 {
		t.Errorf("issue count = %d, want 2", got)
	}
}

func TestSortEvents_StableSameDay(t *testing.T) {
	events := []models.NormalizedEvent{
		{Date: day(2025, 1, 2), SourceIndex: 1, Description: "second"},
		{Date: day(2025, 1, 2), SourceIndex: 0, Description: "first"},
		{Date: day(2025, 1, 1), SourceIndex: 5, Description: "earlier"},
	}
	sortEvents(events)

	if events[0].Description != "earlier" || events[1].Description != "first" || events[2].Description != "second" {
		t.Errorf("sort order wrong: %v", []string{events[0].Description, events[1].Description, events[2].Description})
	}
}
