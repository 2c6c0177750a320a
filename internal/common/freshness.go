// Package common provides shared utilities for questfolio
package common

import "time"

// Freshness TTLs for cached market data
const (
	FreshnessCandles = 12 * time.Hour     // daily bars refresh at most twice a day
	FreshnessFxRates = 12 * time.Hour     // BoC publishes one observation per business day
	FreshnessSeries  = 15 * time.Minute   // derived P&L series keyed by activity fingerprint
	FreshnessBalance = 5 * time.Minute    // broker balance snapshots age quickly
	FreshnessSymbols = 7 * 24 * time.Hour // symbol metadata rarely changes
)

// IsFresh returns true if the given timestamp is within the TTL
func IsFresh(updated time.Time, ttl time.Duration) bool {
	if updated.IsZero() {
		return false
	}
	return time.Since(updated) < ttl
}
