package pnl

import (
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

// accumulateDeposits filters the event stream to funding events, converts
// each to base currency, and groups them into one cash flow per day. The
// returned flows are ascending by date and feed both the cumulative
// net-deposits series and the XIRR schedule.
//
// manualAdjustment is a single user-entered correction (e.g. off-platform
// basis); when nonzero it is injected as one additional flow on the earliest
// effective date, never re-applied per day.
func accumulateDeposits(events []models.NormalizedEvent, conv *marketdata.Converter, manualAdjustment float64) ([]models.CashFlow, []models.Issue) {
	issues := newIssueSet()
	byDay := make(map[time.Time]float64)
	var earliest time.Time

	for _, ev := range events {
		if earliest.IsZero() || ev.Date.Before(earliest) {
			earliest = ev.Date
		}
		if ev.Kind != models.KindFunding {
			continue
		}

		amount, err := conv.ConvertToBase(ev.Amount, ev.Currency, ev.Date)
		if err != nil {
			issues.add(models.Issue{
				Code:   models.IssueUnsupportedCurrency,
				Date:   ev.Date.Format("2006-01-02"),
				Detail: err.Error(),
			})
			continue
		}
		byDay[ev.Date] = byDay[ev.Date] + amount
	}

	if manualAdjustment != 0 && !earliest.IsZero() {
		byDay[earliest] += manualAdjustment
	}

	flows := make([]models.CashFlow, 0, len(byDay))
	for date, amount := range byDay {
		if amount == 0 {
			continue
		}
		flows = append(flows, models.CashFlow{Date: date, Amount: amount})
	}
	sort.Slice(flows, func(i, j int) bool { return flows[i].Date.Before(flows[j].Date) })

	return flows, issues.list()
}

// totalDeposits sums a flow schedule.
func totalDeposits(flows []models.CashFlow) float64 {
	total := 0.0
	for _, f := range flows {
		total += f.Amount
	}
	return total
}
