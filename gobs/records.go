// Copyright (c) 2025 Dmitry Vats

// Package gobs holds the gob-encoded record types persisted in the datastore.
//
// Records in this package must stay backward compatible; fields are only ever
// added. Decimal values are stored as exact-precision strings so the string
// form in the datastore is the canonical representation.
package gobs

// OrderRecord is the durable state of one configured trade position. It is
// created when the observed order is first placed and updated after every
// successful or partial settlement.
type OrderRecord struct {
	// TradeID is the stable identifier correlating this record to a
	// configured position across restarts. It is also the record key
	// suffix in the datastore.
	TradeID string

	PairID int64

	// Side is "buy" or "sell".
	Side string

	// Price and Amount are the configured values at creation time, as
	// exact-precision decimal strings. A mismatch against the current
	// configuration invalidates the record.
	Price  string
	Amount string

	// Remaining is the unfilled quantity left on the observed order, as an
	// exact-precision decimal string. It never increases.
	Remaining string

	// AppliedIDs holds counter-offer ids that were already settled against
	// this position, in application order. The set only grows; an id
	// present here is never settled again.
	AppliedIDs []int64
}

// HasApplied returns true if the given counter-offer id was already settled.
func (r *OrderRecord) HasApplied(id int64) bool {
	for _, v := range r.AppliedIDs {
		if v == id {
			return true
		}
	}
	return false
}
