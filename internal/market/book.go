// Package market holds the in-memory odds book: the latest snapshot of
// every market seen since the last reset, keyed by market identifier.
package market

import (
	"sync"

	"betflow/internal/normalize"
	"betflow/models"
)

// Book accumulates market snapshots with last-write-wins semantics. Each
// update replaces the stored snapshot for its market wholesale; updates
// are never merged field-by-field, so a market absent from an update
// simply keeps its previous snapshot. All access is serialized by an
// internal mutex and reads return copies, never interior references.
type Book struct {
	mu      sync.RWMutex
	markets map[string]models.MarketSnapshot
	order   []string
}

func NewBook() *Book {
	return &Book{
		markets: make(map[string]models.MarketSnapshot),
	}
}

// Apply parses a raw odds update and folds every market it contains into
// the book. Returns the markets applied, in payload order, for downstream
// coalescing. Records without a market identifier were already dropped by
// the parser.
func (b *Book) Apply(data []byte) []models.MarketSnapshot {
	parsed := normalize.ParseMarkets(data)
	if len(parsed) == 0 {
		return nil
	}

	b.mu.Lock()
	for _, m := range parsed {
		if _, seen := b.markets[m.MarketID]; !seen {
			b.order = append(b.order, m.MarketID)
		}
		b.markets[m.MarketID] = m
	}
	b.mu.Unlock()
	return parsed
}

// Get returns the stored snapshot for one market.
func (b *Book) Get(marketID string) (models.MarketSnapshot, bool) {
	b.mu.RLock()
	m, ok := b.markets[marketID]
	b.mu.RUnlock()
	return m, ok
}

// Snapshot returns every stored market in first-seen order.
func (b *Book) Snapshot() []models.MarketSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.MarketSnapshot, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.markets[id])
	}
	return out
}

// Len returns the number of distinct markets held.
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.markets)
}

// Reset drops every stored market, typically on a context switch.
func (b *Book) Reset() {
	b.mu.Lock()
	b.markets = make(map[string]models.MarketSnapshot)
	b.order = nil
	b.mu.Unlock()
}
