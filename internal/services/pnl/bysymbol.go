package pnl

import (
	"math"
	"sort"
	"time"

	"github.com/mfehr/questfolio/internal/models"
	"github.com/mfehr/questfolio/internal/services/activity"
	"github.com/mfehr/questfolio/internal/services/marketdata"
)

// symbolBook accumulates one symbol's invested capital, income, and position
// across the full replay.
type symbolBook struct {
	invested float64
	income   float64
	shares   float64
}

// decomposeBySymbol attributes the aggregate P&L across symbols. For each
// symbol: invested is net cash paid into the position (buys minus sells, in
// base currency), market value is the position priced at the end date, and
// P&L = market value + income - invested. Matched journal pairs alias the
// destination listing back to the origin so an internal conversion nets to
// zero instead of showing as a phantom loss on one side and gain on the
// other.
func decomposeBySymbol(events []models.NormalizedEvent, resolver *marketdata.Resolver, conv *marketdata.Converter, endDate time.Time) *models.SymbolBreakdown {
	sortEvents(events)

	alias := make(map[string]string)
	for _, pair := range activity.MatchJournalPairs(events) {
		alias[pair.ToSymbol] = pair.FromSymbol
	}
	canonical := func(symbol string) string {
		seen := map[string]bool{symbol: true}
		for {
			next, ok := alias[symbol]
			if !ok || seen[next] {
				return symbol
			}
			seen[next] = true
			symbol = next
		}
	}

	issues := newIssueSet()
	books := make(map[string]*symbolBook)
	book := func(symbol string) *symbolBook {
		b, ok := books[symbol]
		if !ok {
			b = &symbolBook{}
			books[symbol] = b
		}
		return b
	}

	for _, ev := range events {
		if ev.Symbol == "" {
			continue
		}
		symbol := canonical(ev.Symbol)

		switch ev.Kind {
		case models.KindTrade:
			amount, err := conv.ConvertToBase(ev.Amount, ev.Currency, ev.Date)
			if err != nil {
				issues.add(models.Issue{
					Code:   models.IssueUnsupportedCurrency,
					Symbol: ev.Symbol,
					Date:   ev.Date.Format("2006-01-02"),
					Detail: err.Error(),
				})
				continue
			}
			b := book(symbol)
			b.invested -= amount
			b.shares += ev.QuantityDelta

		case models.KindIncome:
			amount, err := conv.ConvertToBase(ev.Amount, ev.Currency, ev.Date)
			if err != nil {
				issues.add(models.Issue{
					Code:   models.IssueUnsupportedCurrency,
					Symbol: ev.Symbol,
					Date:   ev.Date.Format("2006-01-02"),
					Detail: err.Error(),
				})
				continue
			}
			book(symbol).income += amount

		case models.KindInternalJournal:
			if ev.QuantityDelta != 0 {
				book(symbol).shares += ev.QuantityDelta
			}

		case models.KindCorporateAction:
			newShares, oldShares, ok := activity.ParseActionRatio(ev.Description)
			if !ok {
				issues.add(models.Issue{
					Code:   models.IssueCorporateActionSkipped,
					Symbol: ev.Symbol,
					Date:   ev.Date.Format("2006-01-02"),
					Detail: "unparseable corporate action ratio",
				})
				continue
			}
			b := book(symbol)
			b.shares = b.shares * float64(newShares) / float64(oldShares)
		}
	}

	entries := make([]models.SymbolPnl, 0, len(books))
	for symbol, b := range books {
		marketValue := 0.0
		if math.Abs(b.shares) > 1e-9 {
			// Price against the listing actually held at the end, which is
			// the aliased destination when a journal moved the position.
			priceSymbol := symbol
			for to, from := range alias {
				if from == symbol {
					priceSymbol = to
				}
			}
			price, ok := resolver.PriceOnDate(priceSymbol, endDate)
			if ok {
				value, err := conv.ConvertToBase(b.shares*price, resolver.Currency(priceSymbol), endDate)
				if err == nil {
					marketValue = value
				} else {
					issues.add(models.Issue{
						Code:   models.IssueUnsupportedCurrency,
						Symbol: priceSymbol,
						Detail: err.Error(),
					})
				}
			}
		}

		entries = append(entries, models.SymbolPnl{
			Symbol:      symbol,
			Invested:    b.invested,
			MarketValue: marketValue,
			TotalPnl:    marketValue + b.income - b.invested,
		})
	}

	// Largest P&L first; ties break alphabetically for stable output.
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPnl != entries[j].TotalPnl {
			return entries[i].TotalPnl > entries[j].TotalPnl
		}
		return entries[i].Symbol < entries[j].Symbol
	})

	return &models.SymbolBreakdown{
		Entries: entries,
		EndDate: endDate,
		Issues:  issues.list(),
	}
}
