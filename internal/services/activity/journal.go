package activity

import (
	"math"
	"sort"
	"strings"

	"github.com/mfehr/questfolio/internal/models"
)

// journalPairMaxGapDays bounds how far apart the two legs of a journal pair
// may land. Brokers book both legs on the same day, occasionally rolling one
// to the next business day.
const journalPairMaxGapDays = 1

// rootSymbol returns the listing-independent root of a ticker: "DLR.TO" and
// "DLR.U.TO" both root to "DLR".
func rootSymbol(symbol string) string {
	if idx := strings.IndexByte(symbol, '.'); idx > 0 {
		return symbol[:idx]
	}
	return symbol
}

// isUSDListing reports whether a ticker names the USD-denominated listing of
// a cross-listed instrument (".U" segment convention on the TSX).
func isUSDListing(symbol string) bool {
	for _, seg := range strings.Split(symbol, ".") {
		if seg == "U" {
			return true
		}
	}
	return false
}

// DetectNorbertJournalCompletion scans the full ordered activity list for a
// matched pair of internal journal transfers: two legs on the same or
// adjacent dates, opposite-signed equal-magnitude quantities, across two
// listings of the same underlying (the mechanics of a Norbert's gambit).
//
// A pair is stale once a later trade on the destination symbol exists: the
// position has since been actively traded and the journal no longer
// represents an open conversion. The most recent valid pair wins; nil means
// no valid pair.
func DetectNorbertJournalCompletion(activities []models.RawActivity) *models.JournalPair {
	events, _ := NormalizeAll(activities)

	var journals []models.NormalizedEvent
	var trades []models.NormalizedEvent
	for _, ev := range events {
		switch ev.Kind {
		case models.KindInternalJournal:
			if ev.Symbol != "" && ev.QuantityDelta != 0 {
				journals = append(journals, ev)
			}
		case models.KindTrade:
			trades = append(trades, ev)
		}
	}
	if len(journals) < 2 {
		return nil
	}

	pairs := matchJournalLegs(journals)

	// Newest first so the most recent valid pair wins.
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].JournalDate.After(pairs[j].JournalDate)
	})

	for i := range pairs {
		if !pairStale(&pairs[i], trades) {
			return &pairs[i]
		}
	}
	return nil
}

// MatchJournalPairs pairs journal legs across an already-normalized event
// stream, without applying the staleness rule. The per-symbol decomposer
// uses these to net internal conversions to zero.
func MatchJournalPairs(events []models.NormalizedEvent) []models.JournalPair {
	var journals []models.NormalizedEvent
	for _, ev := range events {
		if ev.Kind == models.KindInternalJournal && ev.Symbol != "" && ev.QuantityDelta != 0 {
			journals = append(journals, ev)
		}
	}
	return matchJournalLegs(journals)
}

// matchJournalLegs pairs outgoing legs with incoming legs of equal magnitude
// on the same or adjacent dates across listings of the same root. Each leg
// is consumed at most once.
func matchJournalLegs(journals []models.NormalizedEvent) []models.JournalPair {
	used := make([]bool, len(journals))
	var pairs []models.JournalPair

	for i, out := range journals {
		if used[i] || out.QuantityDelta >= 0 {
			continue
		}
		for j, in := range journals {
			if used[j] || j == i || in.QuantityDelta <= 0 {
				continue
			}
			if math.Abs(in.QuantityDelta) != math.Abs(out.QuantityDelta) {
				continue
			}
			if in.Symbol == out.Symbol || rootSymbol(in.Symbol) != rootSymbol(out.Symbol) {
				continue
			}
			gap := in.Date.Sub(out.Date).Hours() / 24
			if math.Abs(gap) > journalPairMaxGapDays {
				continue
			}

			journalDate := out.Date
			if in.Date.After(journalDate) {
				journalDate = in.Date
			}
			direction := "to_cad"
			if isUSDListing(in.Symbol) {
				direction = "to_usd"
			}

			pairs = append(pairs, models.JournalPair{
				FromSymbol:  out.Symbol,
				ToSymbol:    in.Symbol,
				Quantity:    math.Abs(in.QuantityDelta),
				JournalDate: journalDate,
				Direction:   direction,
			})
			used[i] = true
			used[j] = true
			break
		}
	}
	return pairs
}

// pairStale reports whether a later trade on the destination symbol
// invalidates the pair. Same-day trades keep the pair; the gambit's sell
// leg commonly settles the same day as the journal.
func pairStale(pair *models.JournalPair, trades []models.NormalizedEvent) bool {
	for _, t := range trades {
		if t.Symbol == pair.ToSymbol && t.Date.After(pair.JournalDate) {
			return true
		}
	}
	return false
}
