// Package activity normalizes raw broker activity records into a canonical
// typed event stream and detects matched internal currency-conversion
// journal pairs.
package activity

import (
	"regexp"
	"strings"

	"github.com/mfehr/questfolio/internal/models"
)

// Broker vocabulary is a fixture-driven contract: classification works off
// the activity type/action first and falls back to a conservative pass over
// the description. Keep every pattern here, not scattered across call sites.
var (
	reDividend   = regexp.MustCompile(`(?i)\b(dividend|dist(ribution)?|return of capital)\b`)
	reInterest   = regexp.MustCompile(`(?i)\b(interest|int\.?\s+(paid|earned))\b`)
	reFee        = regexp.MustCompile(`(?i)\b(fee|rebate|commission adj)\b`)
	reFunding    = regexp.MustCompile(`(?i)\b(deposit|withdraw(al)?|contribution|eft|e-transfer|bill payment)\b`)
	reJournal    = regexp.MustCompile(`(?i)\b(journal(ed|led)?|jnl)\b`)
	reCorpAction = regexp.MustCompile(`(?i)\b(split|consolidat(ion|ed)|merger|acquisition|name change|exchange(d)? for)\b`)

	// Corporate-action ratios appear as "2 FOR 1", "1:10", or "3-FOR-2".
	reRatio = regexp.MustCompile(`(?i)\b(\d+)\s*(?:for|:|-for-)\s*(\d+)\b`)
)

// externalTransferActions mark transfers crossing the account boundary.
// Internal symbol journals use BRW; everything else named here counts as
// funding when it moves cash. In-kind legs carrying a symbol and quantity
// are position movements, not contributed capital.
var externalTransferActions = map[string]bool{
	"tfi": true, // transfer in
	"tfo": true, // transfer out
	"eft": true,
	"con": true, // contribution
	"dep": true,
	"wdl": true,
}

// classify maps a raw activity to its event kind. Funding is identified
// narrowly: deposits, withdrawals, and external transfers only. Internal
// symbol journals and trades are never funding regardless of wording.
func classify(raw *models.RawActivity) models.EventKind {
	typ := strings.ToLower(strings.TrimSpace(raw.Type))
	act := strings.ToLower(strings.TrimSpace(raw.Action))

	switch typ {
	case "deposits", "withdrawals":
		return models.KindFunding
	case "trades":
		return models.KindTrade
	case "dividends", "interest":
		return models.KindIncome
	case "fees and rebates":
		return models.KindIncome
	case "fx conversion":
		// Cash leg of an in-account currency conversion: no funding effect.
		return models.KindInternalJournal
	case "corporate actions":
		return models.KindCorporateAction
	case "transfers":
		return classifyTransfer(raw, act)
	}

	switch act {
	case "buy", "sell":
		return models.KindTrade
	case "div":
		return models.KindIncome
	case "brw":
		return models.KindInternalJournal
	}
	if externalTransferActions[act] && (raw.Symbol == "" || raw.Quantity == 0) {
		return models.KindFunding
	}

	return classifyByDescription(raw)
}

// classifyTransfer separates external cash transfers (funding) from share
// movements. A transfer that moves shares between listings of the same
// instrument is a journal; an in-kind transfer from another institution
// moves a position, not contributed capital, so it never counts as funding.
func classifyTransfer(raw *models.RawActivity, act string) models.EventKind {
	if act == "brw" {
		return models.KindInternalJournal
	}
	if raw.Symbol != "" && raw.Quantity != 0 {
		if reJournal.MatchString(raw.Description) {
			return models.KindInternalJournal
		}
		return models.KindOther
	}
	return models.KindFunding
}

// classifyByDescription is the conservative fallback for records whose
// type/action carry no signal. Unrecognized wording stays KindOther rather
// than being guessed into a cash-affecting kind.
func classifyByDescription(raw *models.RawActivity) models.EventKind {
	desc := raw.Description
	switch {
	case reDividend.MatchString(desc), reInterest.MatchString(desc), reFee.MatchString(desc):
		return models.KindIncome
	case reJournal.MatchString(desc) && raw.Symbol != "" && raw.Quantity != 0:
		return models.KindInternalJournal
	case reCorpAction.MatchString(desc) && raw.Symbol != "":
		return models.KindCorporateAction
	case reFunding.MatchString(desc) && raw.Symbol == "":
		return models.KindFunding
	default:
		return models.KindOther
	}
}

// ParseActionRatio extracts an "N FOR M" style ratio from a corporate-action
// description. Returns ok=false when no ratio is present; callers skip the
// action and flag it rather than guessing.
func ParseActionRatio(description string) (newShares, oldShares int, ok bool) {
	m := reRatio.FindStringSubmatch(description)
	if m == nil {
		return 0, 0, false
	}
	n := atoiSafe(m[1])
	o := atoiSafe(m[2])
	if n <= 0 || o <= 0 {
		return 0, 0, false
	}
	return n, o, true
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return -1
		}
		n = n*10 + int(r-'0')
		if n > 1<<30 {
			return -1
		}
	}
	return n
}
