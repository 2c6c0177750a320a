package pnl

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
)

// ComputeGroupSeries computes each account's series concurrently and reduces
// them into one aggregate. The reduction is a pure per-date sum with
// carry-forward: a date present in any account's series gets a bucket, and an
// account without a point on that date contributes its most recent earlier
// point.
func (s *Service) ComputeGroupSeries(ctx context.Context, actxs []*models.ActivityContext, snapshots map[string]*models.BalanceSnapshot, opts interfaces.SeriesOptions) (*models.GroupSeriesResult, error) {
	result := &models.GroupSeriesResult{}
	if len(actxs) == 0 {
		return result, nil
	}

	series := make([]*models.SeriesResult, len(actxs))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for i, actx := range actxs {
		wg.Add(1)
		go func(i int, actx *models.ActivityContext) {
			defer wg.Done()

			var snapshot *models.BalanceSnapshot
			if actx != nil {
				snapshot = snapshots[actx.AccountID]
			}
			res, err := s.ComputeTotalPnlSeries(ctx, actx, snapshot, opts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil || res == nil {
				return
			}
			series[i] = res
		}(i, actx)
	}
	wg.Wait()

	issues := newIssueSet()
	perAccount := make([][]models.TotalPnlPoint, 0, len(series))
	for _, res := range series {
		if res == nil {
			continue
		}
		result.AccountIDs = append(result.AccountIDs, res.AccountID)
		for _, issue := range res.Issues {
			issues.add(issue)
		}
		if len(res.Points) > 0 {
			perAccount = append(perAccount, res.Points)
		}
	}
	sort.Strings(result.AccountIDs)

	result.Points = reduceGroupPoints(perAccount)
	result.Issues = issues.list()

	s.logger.Info().
		Int("accounts", len(actxs)).
		Int("points", len(result.Points)).
		Msg("Group series computed")

	return result, nil
}

// reduceGroupPoints sums per-account series into one series over the union of
// their dates. Before an account's first point it contributes nothing; after
// its last point the final values carry forward.
func reduceGroupPoints(perAccount [][]models.TotalPnlPoint) []models.TotalPnlPoint {
	dateSet := make(map[time.Time]bool)
	for _, points := range perAccount {
		for _, p := range points {
			dateSet[p.Date] = true
		}
	}
	if len(dateSet) == 0 {
		return nil
	}

	dates := make([]time.Time, 0, len(dateSet))
	for d := range dateSet {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })

	cursors := make([]int, len(perAccount))
	out := make([]models.TotalPnlPoint, 0, len(dates))

	for _, date := range dates {
		point := models.TotalPnlPoint{Date: date}
		for i, points := range perAccount {
			for cursors[i] < len(points) && !points[cursors[i]].Date.After(date) {
				cursors[i]++
			}
			if cursors[i] == 0 {
				continue
			}
			last := points[cursors[i]-1]
			point.Equity += last.Equity
			point.NetDeposits += last.NetDeposits
		}
		point.TotalPnl = point.Equity - point.NetDeposits
		out = append(out, point)
	}

	return out
}
