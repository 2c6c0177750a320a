package pnl

import (
	"context"
	"time"

	"github.com/mfehr/questfolio/internal/common"
	"github.com/mfehr/questfolio/internal/interfaces"
	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/activity"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

// Service implements the Total P&L reconstruction engine.
type Service struct {
	prices       interfaces.PriceHistoryClient
	fx           interfaces.FxRateClient
	store        interfaces.MarketDataStore
	baseCurrency string
	logger       *common.Logger
}

var _ interfaces.PnlService = (*Service)(nil)

// NewService creates the P&L service. prices, fx, and store may each be nil;
// resolution then degrades to activity-embedded hints per the resolver's
// rules.
func NewService(prices interfaces.PriceHistoryClient, fx interfaces.FxRateClient, store interfaces.MarketDataStore, baseCurrency string, logger *common.Logger) *Service {
	if baseCurrency == "" {
		baseCurrency = "CAD"
	}
	return &Service{
		prices:       prices,
		fx:           fx,
		store:        store,
		baseCurrency: baseCurrency,
		logger:       logger,
	}
}

// computation is the shared prepared state every engine operation starts
// from: normalized events, a price resolver, a currency converter, and the
// calendar window.
type computation struct {
	events   []models.NormalizedEvent
	resolver *marketdata.Resolver
	conv     *marketdata.Converter
	dates    []time.Time
	start    time.Time
	end      time.Time
	issues   []models.Issue
}

// prepare normalizes the activity context and prefetches all market data the
// window needs. Returns nil when the context holds no usable events; the
// accompanying issues still describe why.
func (s *Service) prepare(ctx context.Context, actx *models.ActivityContext, opts interfaces.SeriesOptions) (*computation, []models.Issue) {
	if actx == nil || len(actx.Activities) == 0 {
		return nil, nil
	}

	events, issues := activity.NormalizeAll(actx.Activities)
	if len(events) == 0 {
		return nil, issues
	}
	sortEvents(events)

	start := actx.EarliestFunding
	if start.IsZero() {
		start = events[0].Date
	}
	if opts.ApplyAccountCagrStartDate && !opts.DisplayStartKey.IsZero() && opts.DisplayStartKey.After(start) {
		start = opts.DisplayStartKey
	}

	end := actx.Now
	if end.IsZero() {
		end = time.Now()
	}
	end = end.UTC().Truncate(24 * time.Hour)
	if end.Before(start) {
		end = start
	}

	symbolSet := make(map[string]bool)
	for _, ev := range events {
		if ev.Symbol != "" && ev.QuantityDelta != 0 {
			symbolSet[ev.Symbol] = true
		}
	}
	symbols := make([]string, 0, len(symbolSet))
	for sym := range symbolSet {
		symbols = append(symbols, sym)
	}

	prices := s.prices
	if opts.Prices != nil {
		prices = opts.Prices
	}
	fx := s.fx
	if opts.FxRates != nil {
		fx = opts.FxRates
	}

	fetchFrom := events[0].Date
	prefetcher := marketdata.NewPrefetcher(prices, fx, s.store, s.logger)
	priceSeries, fetchIssues := prefetcher.FetchPrices(ctx, symbols, fetchFrom, end)
	issues = append(issues, fetchIssues...)

	fxSeries, fxIssue := prefetcher.FetchRates(ctx, "USD"+s.baseCurrency, fetchFrom, end)
	if fxIssue != nil {
		issues = append(issues, *fxIssue)
	}

	resolver := marketdata.NewResolver(priceSeries)
	for _, ev := range events {
		if ev.Kind == models.KindTrade && ev.Price > 0 {
			resolver.AddHint(ev.Symbol, ev.Date, ev.Price)
		}
	}

	return &computation{
		events:   events,
		resolver: resolver,
		conv:     marketdata.NewConverter(s.baseCurrency, fxSeries),
		dates:    generateCalendarDates(start, end),
		start:    start,
		end:      end,
		issues:   issues,
	}, issues
}

// ComputeTotalPnlSeries replays an account's activity history into the daily
// Total P&L series.
func (s *Service) ComputeTotalPnlSeries(ctx context.Context, actx *models.ActivityContext, snapshot *models.BalanceSnapshot, opts interfaces.SeriesOptions) (*models.SeriesResult, error) {
	comp, issues := s.prepare(ctx, actx, opts)
	if comp == nil {
		result := &models.SeriesResult{Issues: issues}
		if actx != nil {
			result.AccountID = actx.AccountID
		}
		return result, nil
	}

	days, replayIssues := replayDaily(comp.events, comp.dates, comp.resolver, comp.conv)
	flows, depositIssues := accumulateDeposits(comp.events, comp.conv, opts.ManualAdjustment)

	result := assembleSeries(actx.AccountID, days, flows, snapshot, comp.conv)
	result.Issues = append(result.Issues, comp.issues...)
	result.Issues = append(result.Issues, replayIssues...)
	result.Issues = append(result.Issues, depositIssues...)

	for _, symbol := range comp.resolver.MissingSymbols() {
		result.MissingPriceSymbols = append(result.MissingPriceSymbols, symbol)
		result.Issues = append(result.Issues, models.Issue{
			Code:   models.IssueMissingPriceData,
			Symbol: symbol,
			Detail: "no price history or embedded trade price resolved for one or more days",
		})
	}

	s.logger.Info().
		Str("account", actx.AccountID).
		Int("activities", len(actx.Activities)).
		Int("points", len(result.Points)).
		Int("issues", len(result.Issues)).
		Bool("reconciled", result.Summary.Reconciled).
		Msg("Total P&L series computed")

	return result, nil
}

// ComputeNetDeposits produces the funding summary: net contributed capital,
// total P&L against it, and the annualized return from the full funding
// schedule.
func (s *Service) ComputeNetDeposits(ctx context.Context, actx *models.ActivityContext, snapshot *models.BalanceSnapshot, opts interfaces.SeriesOptions) (*models.FundingSummary, error) {
	summary := &models.FundingSummary{}
	if actx != nil {
		summary.AccountID = actx.AccountID
	}

	comp, issues := s.prepare(ctx, actx, opts)
	if comp == nil {
		summary.Issues = issues
		return summary, nil
	}

	flows, depositIssues := accumulateDeposits(comp.events, comp.conv, opts.ManualAdjustment)
	summary.Issues = append(summary.Issues, comp.issues...)
	summary.Issues = append(summary.Issues, depositIssues...)
	summary.NetDeposits = totalDeposits(flows)

	totalEquity, ok, skippedCurrencies := snapshotEquityBase(snapshot, comp.conv, comp.end)
	for _, currency := range skippedCurrencies {
		summary.Issues = append(summary.Issues, models.Issue{
			Code:   models.IssueUnsupportedCurrency,
			Date:   comp.end.Format("2006-01-02"),
			Detail: "broker balance in " + currency + " excluded from total equity: no conversion rate to base",
		})
	}
	if !ok {
		days, replayIssues := replayDaily(comp.events, comp.dates, comp.resolver, comp.conv)
		summary.Issues = append(summary.Issues, replayIssues...)
		if len(days) > 0 {
			totalEquity = days[len(days)-1].equity
		}
	}
	summary.TotalEquity = totalEquity
	summary.TotalPnl = totalEquity - summary.NetDeposits

	if summary.NetDeposits != 0 {
		summary.Breakdown.SimpleReturnPct = summary.TotalPnl / summary.NetDeposits * 100
	}

	// XIRR runs on the investor-perspective schedule: deposits out of pocket
	// are negative, the terminal equity is one synthetic positive flow.
	schedule := make([]models.CashFlow, 0, len(flows)+1)
	for _, f := range flows {
		schedule = append(schedule, models.CashFlow{Date: f.Date, Amount: -f.Amount})
	}
	schedule = append(schedule, models.CashFlow{Date: comp.end, Amount: totalEquity})
	summary.CashFlowCount = len(schedule)

	if xirr := SolveXirr(schedule, comp.end); xirr != nil {
		summary.Xirr = xirr
		annualized := xirr.Rate * 100
		summary.Breakdown.AnnualizedReturnPct = &annualized
	}

	s.logger.Info().
		Str("account", summary.AccountID).
		Float64("netDeposits", summary.NetDeposits).
		Float64("totalPnl", summary.TotalPnl).
		Bool("xirrConverged", summary.Xirr != nil).
		Msg("Net deposits computed")

	return summary, nil
}

// ComputeTotalPnlBySymbol attributes the aggregate P&L across symbols held
// over the account's history.
func (s *Service) ComputeTotalPnlBySymbol(ctx context.Context, actx *models.ActivityContext, opts interfaces.SeriesOptions) (*models.SymbolBreakdown, error) {
	comp, issues := s.prepare(ctx, actx, opts)
	if comp == nil {
		return &models.SymbolBreakdown{Issues: issues}, nil
	}

	breakdown := decomposeBySymbol(comp.events, comp.resolver, comp.conv, comp.end)
	breakdown.Issues = append(breakdown.Issues, comp.issues...)

	s.logger.Info().
		Str("account", actx.AccountID).
		Int("symbols", len(breakdown.Entries)).
		Msg("Per-symbol P&L computed")

	return breakdown, nil
}
