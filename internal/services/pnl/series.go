package pnl

import (
	"math"
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

// reconcileTolerance is the maximum base-currency discrepancy between the
// ledger-implied terminal value and the broker-reported balance before the
// series is annotated as partial.
const reconcileTolerance = 0.01

// assembleSeries merges the ledger equity series and the funding flows into
// the public Total P&L series. The first point is forced to exactly 0, which
// defines the reporting baseline, and every point satisfies
// TotalPnl == Equity - NetDeposits. On the final day the ledger-implied
// value is compared against the broker-reported snapshot; a discrepancy
// beyond tolerance annotates the result rather than rejecting it.
func assembleSeries(accountID string, days []dayEquity, flows []models.CashFlow, snapshot *models.BalanceSnapshot, conv *marketdata.Converter) *models.SeriesResult {
	result := &models.SeriesResult{AccountID: accountID}
	if len(days) == 0 {
		return result
	}

	result.PeriodStartDate = days[0].date
	result.PeriodEndDate = days[len(days)-1].date

	// Single-pass merge: advance the flow cursor as dates progress.
	flowCursor := 0
	cumulative := 0.0
	points := make([]models.TotalPnlPoint, 0, len(days))
	baseline := 0.0

	for i, day := range days {
		endOfDay := day.date.AddDate(0, 0, 1)
		for flowCursor < len(flows) && flows[flowCursor].Date.Before(endOfDay) {
			cumulative += flows[flowCursor].Amount
			flowCursor++
		}

		if i == 0 {
			// Pre-window equity not explained by in-window funding becomes
			// part of contributed capital, pinning the first point to zero.
			baseline = day.equity - cumulative
		}

		netDeposits := cumulative + baseline
		points = append(points, models.TotalPnlPoint{
			Date:        day.date,
			Equity:      day.equity,
			NetDeposits: netDeposits,
			TotalPnl:    day.equity - netDeposits,
		})
	}
	points[0].TotalPnl = 0

	result.Points = points

	last := points[len(points)-1]
	result.Summary = models.SeriesSummary{
		Equity:      last.Equity,
		NetDeposits: last.NetDeposits,
		TotalPnl:    last.TotalPnl,
		Reconciled:  true,
	}

	if snapshot != nil {
		brokerEquity, ok, skipped := snapshotEquityBase(snapshot, conv, result.PeriodEndDate)
		for _, currency := range skipped {
			result.Issues = append(result.Issues, models.Issue{
				Code:   models.IssueUnsupportedCurrency,
				Date:   result.PeriodEndDate.Format("2006-01-02"),
				Detail: "broker balance in " + currency + " excluded from reported equity: no conversion rate to base",
			})
		}
		if ok {
			// The broker's reported balance is authoritative for the
			// summary; the per-day points stay ledger-derived.
			result.Summary.BrokerEquity = brokerEquity
			result.Summary.Equity = brokerEquity
			result.Summary.TotalPnl = brokerEquity - last.NetDeposits

			if math.Abs(brokerEquity-last.Equity) > reconcileTolerance {
				result.Summary.Reconciled = false
				result.Issues = append(result.Issues, models.Issue{
					Code: models.IssueAggregatePartialData,
					Date: result.PeriodEndDate.Format("2006-01-02"),
					Detail: "ledger equity diverges from broker-reported balance beyond tolerance; " +
						"series values are best-effort",
				})
			}
		}
	}

	return result
}

// snapshotEquityBase converts a broker balance snapshot's per-currency total
// equity into base currency at the period-end rate. Currency slices the
// converter has no rate for are excluded from the total and returned in
// skipped so callers can flag the partial anchor.
func snapshotEquityBase(snapshot *models.BalanceSnapshot, conv *marketdata.Converter, asOf time.Time) (total float64, ok bool, skipped []string) {
	if snapshot == nil || len(snapshot.Combined) == 0 {
		return 0, false, nil
	}

	for currency, detail := range snapshot.Combined {
		value, err := conv.ConvertToBase(detail.TotalEquity, currency, asOf)
		if err != nil {
			skipped = append(skipped, currency)
			continue
		}
		total += value
		ok = true
	}
	sort.Strings(skipped)
	return total, ok, skipped
}

// DownsampleToWeekly keeps the last point per ISO week.
func DownsampleToWeekly(points []models.TotalPnlPoint) []models.TotalPnlPoint {
	if len(points) == 0 {
		return nil
	}

	weekly := make([]models.TotalPnlPoint, 0)
	for i, p := range points {
		if i == len(points)-1 {
			weekly = append(weekly, p)
			continue
		}
		y1, w1 := p.Date.ISOWeek()
		y2, w2 := points[i+1].Date.ISOWeek()
		if w1 != w2 || y1 != y2 {
			weekly = append(weekly, p)
		}
	}

	return weekly
}

// DownsampleToMonthly keeps the last point per calendar month.
func DownsampleToMonthly(points []models.TotalPnlPoint) []models.TotalPnlPoint {
	if len(points) == 0 {
		return nil
	}

	monthly := make([]models.TotalPnlPoint, 0)
	for i, p := range points {
		if i == len(points)-1 || points[i+1].Date.Month() != p.Date.Month() || points[i+1].Date.Year() != p.Date.Year() {
			monthly = append(monthly, p)
		}
	}

	return monthly
}
