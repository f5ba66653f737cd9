package models

import "time"

// PriceSize is one rung of a back or lay ladder.
type PriceSize struct {
	Odds   float64 `json:"odds"`
	Amount float64 `json:"amount"`
}

// Runner is one outcome within a market. Identity is scoped to the parent
// market; SelectionID is kept in canonical string form regardless of how
// the wire emitted it.
type Runner struct {
	SelectionID string      `json:"selection_id"`
	Name        string      `json:"name"`
	Back        []PriceSize `json:"back"`
	Lay         []PriceSize `json:"lay"`
}

// MarketSnapshot is the consolidated state of one bettable market.
// A later update for the same MarketID replaces the whole snapshot;
// merging is last-write-wins at market granularity, never per field.
type MarketSnapshot struct {
	MarketID       string   `json:"market_id"`
	MarketIDString string   `json:"market_id_string,omitempty"`
	Status         string   `json:"status"`
	InPlay         bool     `json:"in_play"`
	TotalMatched   float64  `json:"total_matched"`
	TotalAvailable float64  `json:"total_available"`
	Runners        []Runner `json:"runners"`
}

// MarketBatch is one coalescer flush: the latest snapshot per market key
// observed during the flush window.
type MarketBatch struct {
	BatchID   string           `json:"batch_id"`
	Markets   []MarketSnapshot `json:"markets"`
	FlushedAt time.Time        `json:"flushed_at"`
}
