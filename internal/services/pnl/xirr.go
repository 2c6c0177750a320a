package pnl

import (
	"math"
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// SolveXirr finds the annualized internal rate of return for a complete cash
// flow schedule: the funding flows plus one synthetic final positive flow
// equal to current equity on the as-of date (appended by the caller).
//
// It solves for r in Σ flow_i / (1+r)^(days_i/365) = 0 with bisection
// bounded by [-0.9999, +10], refined by Newton steps where the derivative is
// well-behaved. Returns nil rather than panicking when fewer than two flows
// exist, when all flows share a sign, or when no root is found within the
// iteration budget.
func SolveXirr(flows []models.CashFlow, asOf time.Time) *models.XirrResult {
	if len(flows) < 2 {
		return nil
	}

	sorted := make([]models.CashFlow, len(flows))
	copy(sorted, flows)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	hasNeg, hasPos := false, false
	for _, f := range sorted {
		if f.Amount < 0 {
			hasNeg = true
		}
		if f.Amount > 0 {
			hasPos = true
		}
	}
	if !hasNeg || !hasPos {
		return nil
	}

	baseDate := sorted[0].Date
	years := make([]float64, len(sorted))
	for i, f := range sorted {
		years[i] = f.Date.Sub(baseDate).Hours() / 24 / 365
	}

	rate, ok := solveRate(sorted, years)
	if !ok || math.IsNaN(rate) || math.IsInf(rate, 0) {
		return nil
	}

	return &models.XirrResult{
		Rate:          rate,
		StartDate:     baseDate,
		AsOf:          asOf,
		CashFlowCount: len(sorted),
	}
}

const (
	xirrLoBound  = -0.9999
	xirrHiBound  = 10.0
	xirrTol      = 1e-7
	xirrMaxIters = 200
)

// solveRate brackets the root with bisection and polishes each midpoint with
// a Newton step when the derivative is usable.
func solveRate(flows []models.CashFlow, years []float64) (float64, bool) {
	npv := func(rate float64) (value, derivative float64) {
		for i, f := range flows {
			base := 1 + rate
			discount := math.Pow(base, years[i])
			if discount == 0 {
				continue
			}
			value += f.Amount / discount
			if years[i] != 0 {
				derivative -= years[i] * f.Amount / (discount * base)
			}
		}
		return value, derivative
	}

	lo, hi := xirrLoBound, xirrHiBound
	npvLo, _ := npv(lo)
	npvHi, _ := npv(hi)
	if math.IsNaN(npvLo) || math.IsNaN(npvHi) || npvLo*npvHi > 0 {
		return 0, false
	}

	for iter := 0; iter < xirrMaxIters; iter++ {
		mid := (lo + hi) / 2
		npvMid, dMid := npv(mid)

		// Newton refinement: accept the step only when it stays inside the
		// current bracket.
		if dMid != 0 {
			refined := mid - npvMid/dMid
			if refined > lo && refined < hi {
				if v, _ := npv(refined); math.Abs(v) < xirrTol {
					return refined, true
				}
			}
		}

		if math.Abs(npvMid) < xirrTol {
			return mid, true
		}
		if npvMid*npvLo < 0 {
			hi = mid
		} else {
			lo = mid
			npvLo = npvMid
		}
		if hi-lo < xirrTol {
			return (lo + hi) / 2, true
		}
	}

	return 0, false
}
