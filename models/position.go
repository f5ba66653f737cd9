package models

// PositionCategory enumerates the three kinds of net positions the backend
// computes.
type PositionCategory string

const (
	CategoryMatchOdds PositionCategory = "matchOdds"
	CategoryBookmaker PositionCategory = "bookmaker"
	CategoryFancy     PositionCategory = "fancy"
)

// Fancy outcome labels.
const (
	FancyYes = "YES"
	FancyNo  = "NO"
)

// PositionCategories is a set of per-category net-position maps, either as
// delivered by the position endpoint or as materialized by the reconciler.
// MatchOdds and Bookmaker map normalized selection keys to signed net
// values (profit if that runner wins). Fancy is keyed by fancy-market key,
// then by outcome label.
type PositionCategories struct {
	MatchOdds map[string]float64            `json:"matchOdds"`
	Bookmaker map[string]float64            `json:"bookmaker"`
	Fancy     map[string]map[string]float64 `json:"fancy"`
}

// Empty reports whether no category carries any key.
func (p PositionCategories) Empty() bool {
	return len(p.MatchOdds) == 0 && len(p.Bookmaker) == 0 && len(p.Fancy) == 0
}
