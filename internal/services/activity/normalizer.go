package activity

import (
	"fmt"
	"strings"
	"time"

	"github.com/mfehr/questfolio/internal/models"
)

// timestampLayouts are tried in order against each candidate date field.
// Questrade mixes full RFC3339 timestamps with bare dates depending on the
// endpoint and account age.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05.000000-07:00",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// parseTimestamp parses a candidate date field timezone-aware and floors it
// to a UTC date key. Returns ok=false when the field is empty or
// unparseable.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

// resolveEffectiveDate picks the activity's single effective date.
// Priority: trade date, then transaction date, then settlement date.
func resolveEffectiveDate(raw *models.RawActivity) (time.Time, bool) {
	for _, candidate := range []string{raw.TradeDate, raw.TransactionDate, raw.SettlementDate} {
		if d, ok := parseTimestamp(candidate); ok {
			return d, true
		}
	}
	return time.Time{}, false
}

// Normalize turns one raw activity into its canonical event, or nil for
// zero-effect noise records. It is a pure function: failures never panic,
// they yield a nil event plus a structured issue. index is the activity's
// position in the original list and is carried for stable tie-breaking.
func Normalize(raw *models.RawActivity, index int) (*models.NormalizedEvent, *models.Issue) {
	date, ok := resolveEffectiveDate(raw)
	if !ok {
		return nil, &models.Issue{
			Code:   models.IssueUnparseableTimestamp,
			Symbol: raw.Symbol,
			Detail: fmt.Sprintf("activity %d (%s) has no parseable timestamp", index, strings.TrimSpace(raw.Type)),
		}
	}

	amount := raw.NetAmount
	if amount == 0 {
		amount = raw.GrossAmount
	}

	kind := classify(raw)

	// Zero-effect noise: no cash and no share movement (option expiry
	// notices, informational entries). Corporate actions are exempt: a
	// split carries its whole effect in the description ratio and moves
	// neither cash nor a signed quantity.
	if amount == 0 && raw.Quantity == 0 && kind != models.KindCorporateAction {
		return nil, nil
	}

	currency := strings.ToUpper(strings.TrimSpace(raw.Currency))
	if currency == "" {
		currency = "CAD"
	}

	return &models.NormalizedEvent{
		Date:          date,
		Kind:          kind,
		Symbol:        strings.TrimSpace(raw.Symbol),
		Currency:      currency,
		Amount:        amount,
		QuantityDelta: raw.Quantity,
		Price:         raw.Price,
		Description:   strings.TrimSpace(raw.Description),
		SourceIndex:   index,
	}, nil
}

// NormalizeAll normalizes an ordered activity list, preserving original
// order for same-day ties. Unparseable activities are dropped and surfaced
// as issues; noise records are dropped silently.
func NormalizeAll(activities []models.RawActivity) ([]models.NormalizedEvent, []models.Issue) {
	events := make([]models.NormalizedEvent, 0, len(activities))
	var issues []models.Issue

	for i := range activities {
		ev, issue := Normalize(&activities[i], i)
		if issue != nil {
			issues = append(issues, *issue)
			continue
		}
		if ev != nil {
			events = append(events, *ev)
		}
	}

	return events, issues
}
