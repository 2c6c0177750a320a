package pnl

import (
	"testing"

	"github.com/mfehr/questfolio/internal/models"
)

func TestAssembleSeries_BaselineFoldsPreWindowEquity(t *testing.T) {
	// Opening equity of 500 with no in-window funding: the baseline folds it
	// into reported net deposits so the first point reads 0.
	days := []dayEquity{
		{date: day(2025, 1, 10), equity: 500},
		{date: day(2025, 1, 11), equity: 520},
	}

	result := assembleSeries("A1", days, nil, nil, cadConverter())
	if result.Points[0].TotalPnl != 0 {
		t.Errorf("first pnl = %.4f, want 0", result.Points[0].TotalPnl)
	}
	if !approxEqual(result.Points[0].NetDeposits, 500, 1e-9) {
		t.Errorf("first net deposits = %.2f, want 500 (baseline)", result.Points[0].NetDeposits)
	}
	if !approxEqual(result.Points[1].TotalPnl, 20, 1e-9) {
		t.Errorf("second pnl = %.2f, want 20", result.Points[1].TotalPnl)
	}
	if !result.Summary.Reconciled {
		t.Error("no snapshot supplied, summary should be marked reconciled")
	}
}

func TestAssembleSeries_FlowCursorAccumulates(t *testing.T) {
	days := []dayEquity{
		{date: day(2025, 1, 2), equity: 1000},
		{date: day(2025, 1, 3), equity: 1000},
		{date: day(2025, 1, 4), equity: 1600},
	}
	flows := []models.CashFlow{
		{Date: day(2025, 1, 2), Amount: 1000},
		{Date: day(2025, 1, 4), Amount: 500},
	}

	result := assembleSeries("A1", days, flows, nil, cadConverter())
	if !approxEqual(result.Points[2].NetDeposits, 1500, 1e-9) {
		t.Errorf("day 3 net deposits = %.2f, want 1500", result.Points[2].NetDeposits)
	}
	if !approxEqual(result.Points[2].TotalPnl, 100, 1e-9) {
		t.Errorf("day 3 pnl = %.2f, want 100", result.Points[2].TotalPnl)
	}
	if !result.PeriodStartDate.Equal(day(2025, 1, 2)) || !result.PeriodEndDate.Equal(day(2025, 1, 4)) {
		t.Errorf("period = %v..%v", result.PeriodStartDate, result.PeriodEndDate)
	}
}

func TestAssembleSeries_Empty(t *testing.T) {
	result := assembleSeries("A1", nil, nil, nil, cadConverter())
	if len(result.Points) != 0 {
		t.Errorf("points = %v, want empty", result.Points)
	}
	if result.AccountID != "A1" {
		t.Errorf("AccountID = %q", result.AccountID)
	}
}

func TestAssembleSeries_ToleranceBoundary(t *testing.T) {
	days := []dayEquity{
		{date: day(2025, 1, 2), equity: 1000},
	}
	flows := []models.CashFlow{{Date: day(2025, 1, 2), Amount: 1000}}

	// Inside tolerance: still reconciled.
	within := &models.BalanceSnapshot{Combined: map[string]models.BalanceDetail{
		"CAD": {Currency: "CAD", TotalEquity: 1000.005},
	}}
	result := assembleSeries("A1", days, flows, within, cadConverter())
	if !result.Summary.Reconciled {
		t.Error("sub-cent discrepancy should reconcile")
	}

	beyond := &models.BalanceSnapshot{Combined: map[string]models.BalanceDetail{
		"CAD": {Currency: "CAD", TotalEquity: 1000.02},
	}}
	result = assembleSeries("A1", days, flows, beyond, cadConverter())
	if result.Summary.Reconciled {
		t.Error("discrepancy beyond 0.01 should not reconcile")
	}
	if len(result.Issues) != 1 || result.Issues[0].Code != models.IssueAggregatePartialData {
		t.Errorf("issues = %v, want one aggregate-partial-data", result.Issues)
	}
}

func TestSnapshotEquityBase_MultiCurrency(t *testing.T) {
	snapshot := &models.BalanceSnapshot{Combined: map[string]models.BalanceDetail{
		"CAD": {Currency: "CAD", TotalEquity: 1000},
		"USD": {Currency: "USD", TotalEquity: 100},
	}}

	total, ok, skipped := snapshotEquityBase(snapshot, usdCadConverter(1.35), day(2025, 1, 16))
	if !ok {
		t.Fatal("snapshotEquityBase returned ok=false")
	}
	if !approxEqual(total, 1135, 1e-9) {
		t.Errorf("total = %.2f, want 1135", total)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped = %v, want none", skipped)
	}

	if _, ok, _ := snapshotEquityBase(nil, cadConverter(), day(2025, 1, 16)); ok {
		t.Error("nil snapshot should return ok=false")
	}
}

func TestSnapshotEquityBase_ReportsUnconvertibleSlices(t *testing.T) {
	snapshot := &models.BalanceSnapshot{Combined: map[string]models.BalanceDetail{
		"CAD": {Currency: "CAD", TotalEquity: 1000},
		"EUR": {Currency: "EUR", TotalEquity: 250},
	}}

	total, ok, skipped := snapshotEquityBase(snapshot, cadConverter(), day(2025, 1, 16))
	if !ok {
		t.Fatal("CAD slice alone should still anchor")
	}
	if !approxEqual(total, 1000, 1e-9) {
		t.Errorf("total = %.2f, want the CAD slice only", total)
	}
	if len(skipped) != 1 || skipped[0] != "EUR" {
		t.Errorf("skipped = %v, want [EUR]", skipped)
	}
}

func TestAssembleSeries_PartialSnapshotFlagged(t *testing.T) {
	days := []dayEquity{
		{date: day(2025, 1, 2), equity: 1000},
	}
	flows := []models.CashFlow{{Date: day(2025, 1, 2), Amount: 1000}}
	snapshot := &models.BalanceSnapshot{Combined: map[string]models.BalanceDetail{
		"CAD": {Currency: "CAD", TotalEquity: 1000},
		"EUR": {Currency: "EUR", TotalEquity: 250},
	}}

	result := assembleSeries("A1", days, flows, snapshot, cadConverter())
	// The anchor silently losing a currency slice must be visible to the
	// caller even when the convertible remainder reconciles.
	var found bool
	for _, issue := range result.Issues {
		if issue.Code == models.IssueUnsupportedCurrency {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %v, want an unsupported-currency entry for the EUR slice", result.Issues)
	}
	if !approxEqual(result.Summary.BrokerEquity, 1000, 1e-9) {
		t.Errorf("broker equity = %.2f, want the convertible slice", result.Summary.BrokerEquity)
	}
}

func TestDownsampleToWeekly(t *testing.T) {
	var points []models.TotalPnlPoint
	for d := day(2025, 1, 1); d.Before(day(2025, 1, 22)); d = d.AddDate(0, 0, 1) {
		points = append(points, models.TotalPnlPoint{Date: d})
	}

	weekly := DownsampleToWeekly(points)
	// Sundays 01-05, 01-12, 01-19 plus the final point 01-21.
	if len(weekly) != 4 {
		t.Fatalf("got %d weekly points, want 4", len(weekly))
	}
	if !weekly[len(weekly)-1].Date.Equal(day(2025, 1, 21)) {
		t.Errorf("last weekly point = %v, want the series end", weekly[len(weekly)-1].Date)
	}

	if DownsampleToWeekly(nil) != nil {
		t.Error("empty input should return nil")
	}
}

func TestDownsampleToMonthly(t *testing.T) {
	var points []models.TotalPnlPoint
	for d := day(2025, 1, 15); d.Before(day(2025, 3, 10)); d = d.AddDate(0, 0, 1) {
		points = append(points, models.TotalPnlPoint{Date: d})
	}

	monthly := DownsampleToMonthly(points)
	if len(monthly) != 3 {
		t.Fatalf("got %d monthly points, want 3 (Jan, Feb, series end)", len(monthly))
	}
	if !monthly[0].Date.Equal(day(2025, 1, 31)) || !monthly[1].Date.Equal(day(2025, 2, 28)) {
		t.Errorf("month closes = %v, %v", monthly[0].Date, monthly[1].Date)
	}
	if !monthly[2].Date.Equal(day(2025, 3, 9)) {
		t.Errorf("last point = %v, want series end", monthly[2].Date)
	}
}
