package models

import "time"

// RawActivity is a broker activity record exactly as the fetch layer returned
// it. Questrade emits these with loosely-typed fields and up to three
// candidate timestamps; nothing downstream mutates one.
type RawActivity struct {
	Type            string  `json:"type"`
	Action          string  `json:"action"`
	Symbol          string  `json:"symbol"`
	Description     string  `json:"description"`
	Currency        string  `json:"currency"`
	Quantity        float64 `json:"quantity"`
	Price           float64 `json:"price"`
	GrossAmount     float64 `json:"grossAmount"`
	Commission      float64 `json:"commission"`
	NetAmount       float64 `json:"netAmount"`
	TradeDate       string  `json:"tradeDate"`
	TransactionDate string  `json:"transactionDate"`
	SettlementDate  string  `json:"settlementDate"`
}

// EventKind is the closed classification of a normalized activity.
type EventKind string

const (
	KindFunding         EventKind = "funding"
	KindTrade           EventKind = "trade"
	KindIncome          EventKind = "income"
	KindInternalJournal EventKind = "internal_journal"
	KindCorporateAction EventKind = "corporate_action"
	KindOther           EventKind = "other"
)

// NormalizedEvent is the canonical form of one RawActivity: a single
// effective date (date-only, UTC), a kind, and a signed amount in the
// activity's original currency. All downstream logic operates on these,
// never on raw field guessing.
type NormalizedEvent struct {
	Date          time.Time `json:"date"` // date-only, UTC midnight
	Kind          EventKind `json:"kind"`
	Symbol        string    `json:"symbol,omitempty"`
	Currency      string    `json:"currency"`
	Amount        float64   `json:"amount"` // signed: positive into the account
	QuantityDelta float64   `json:"quantityDelta"`
	Price         float64   `json:"price,omitempty"` // activity-embedded trade price, if any
	Description   string    `json:"description,omitempty"`
	SourceIndex   int       `json:"-"` // position in the original activity list, for stable ordering
}

// ActivityContext is the per-account unit of work consumed by the engine.
// It is built by the fetch layer and read-only from the engine's perspective.
type ActivityContext struct {
	AccountID       string        `json:"accountId"`
	EarliestFunding time.Time     `json:"earliestFunding"`
	CrawlStart      time.Time     `json:"crawlStart"`
	Activities      []RawActivity `json:"activities"`
	Now             time.Time     `json:"now"`
	Fingerprint     string        `json:"fingerprint"` // cache key for derived series
}

// JournalPair is a detected matched pair of internal currency-conversion
// transfers (a completed Norbert's gambit). Consumed by the per-symbol
// decomposer and the normalizer to suppress false P&L; never persisted.
type JournalPair struct {
	FromSymbol  string    `json:"fromSymbol"`
	ToSymbol    string    `json:"toSymbol"`
	Quantity    float64   `json:"quantity"`
	JournalDate time.Time `json:"journalDate"`
	Direction   string    `json:"direction"` // "to_usd" or "to_cad"
}

// IssueCode identifies a class of partial-failure condition surfaced on a
// computed result. Nothing in the engine is fatal; these carry the details.
type IssueCode string

const (
	IssueUnparseableTimestamp   IssueCode = "unparseable-timestamp"
	IssueMissingPriceData       IssueCode = "missing-price-data"
	IssueMissingFxRate          IssueCode = "missing-fx-rate"
	IssueUnsupportedCurrency    IssueCode = "unsupported-currency"
	IssueCorporateActionSkipped IssueCode = "corporate-action-skipped"
	IssueAggregatePartialData   IssueCode = "aggregate-partial-data"
	IssueFetchFailed            IssueCode = "fetch-failed"
)

// Issue is a structured note attached to a result when part of the
// computation proceeded on incomplete data.
type Issue struct {
	Code   IssueCode `json:"code"`
	Symbol string    `json:"symbol,omitempty"`
	Date   string    `json:"date,omitempty"` // YYYY-MM-DD when date-specific
	Detail string    `json:"detail,omitempty"`
}
