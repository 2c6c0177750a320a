package models

import "time"

// CashFlow is a single funding-only flow in base currency. Sign is positive
// for money entering the account from outside (deposits), negative for money
// leaving to the owner (withdrawals). Trades and internal journals never
// appear here.
type CashFlow struct {
	Date   time.Time `json:"date"`
	Amount float64   `json:"amountCad"`
}

// TotalPnlPoint is one day of the public Total P&L series.
// Invariant: TotalPnl == Equity - NetDeposits at every point, and the first
// point's TotalPnl is exactly 0 by construction.
type TotalPnlPoint struct {
	Date        time.Time `json:"date"`
	Equity      float64   `json:"equityCad"`
	NetDeposits float64   `json:"cumulativeNetDepositsCad"`
	TotalPnl    float64   `json:"totalPnlCad"`
}

// SeriesSummary carries the terminal values of a Total P&L series.
type SeriesSummary struct {
	Equity       float64 `json:"equityCad"`
	NetDeposits  float64 `json:"cumulativeNetDepositsCad"`
	TotalPnl     float64 `json:"totalPnlCad"`
	BrokerEquity float64 `json:"brokerEquityCad,omitempty"` // from the balance snapshot, when supplied
	Reconciled   bool    `json:"reconciled"`
}

// SeriesResult is the full output of one Total P&L computation.
type SeriesResult struct {
	AccountID           string          `json:"accountId"`
	PeriodStartDate     time.Time       `json:"periodStartDate"`
	PeriodEndDate       time.Time       `json:"periodEndDate"`
	Points              []TotalPnlPoint `json:"points"`
	Summary             SeriesSummary   `json:"summary"`
	Issues              []Issue         `json:"issues,omitempty"`
	MissingPriceSymbols []string        `json:"missingPriceSymbols,omitempty"`
}

// XirrResult is the solved internal rate of return for a funding schedule.
type XirrResult struct {
	Rate          float64   `json:"rate"` // decimal: 0.10 means 10% annualized
	StartDate     time.Time `json:"startDate"`
	AsOf          time.Time `json:"asOf"`
	CashFlowCount int       `json:"cashFlowCount"`
}

// ReturnBreakdown decomposes the total return for display.
type ReturnBreakdown struct {
	SimpleReturnPct     float64  `json:"simpleReturnPct"`
	AnnualizedReturnPct *float64 `json:"annualizedReturnPct,omitempty"` // nil when XIRR did not converge
}

// FundingSummary is the output of a net-deposits computation: contributed
// capital, total P&L against it, and the annualized return.
type FundingSummary struct {
	AccountID     string          `json:"accountId"`
	NetDeposits   float64         `json:"netDepositsCad"`
	TotalEquity   float64         `json:"totalEquityCad"`
	TotalPnl      float64         `json:"totalPnlCad"`
	Breakdown     ReturnBreakdown `json:"returnBreakdown"`
	Xirr          *XirrResult     `json:"xirr,omitempty"`
	CashFlowCount int             `json:"cashFlowCount"`
	Issues        []Issue         `json:"issues,omitempty"`
}

// SymbolPnl is one symbol's slice of the aggregate P&L.
type SymbolPnl struct {
	Symbol      string  `json:"symbol"`
	Invested    float64 `json:"investedCad"`
	MarketValue float64 `json:"marketValueCad"`
	TotalPnl    float64 `json:"totalPnlCad"`
}

// SymbolBreakdown attributes the aggregate P&L across symbols.
type SymbolBreakdown struct {
	Entries []SymbolPnl `json:"entries"`
	EndDate time.Time   `json:"endDate"`
	Issues  []Issue     `json:"issues,omitempty"`
}

// GroupSeriesResult is the pure per-date reduction of several account series.
type GroupSeriesResult struct {
	AccountIDs []string        `json:"accountIds"`
	Points     []TotalPnlPoint `json:"points"`
	Issues     []Issue         `json:"issues,omitempty"`
}
