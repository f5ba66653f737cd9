package models

// TextPlaceholder is substituted for absent textual fields so display
// layers never have to branch on empty strings.
const TextPlaceholder = "-"

// InPlayState is a tri-state flag: some payload shapes simply do not say
// whether a match is in play, and "unknown" must stay distinguishable from
// "not in play".
type InPlayState int

const (
	InPlayUnknown InPlayState = iota
	InPlayNo
	InPlayYes
)

func (s InPlayState) String() string {
	switch s {
	case InPlayYes:
		return "yes"
	case InPlayNo:
		return "no"
	default:
		return "unknown"
	}
}

// MatchSummary is the canonical record for one in-progress or upcoming
// match. MatchID is the dedup key across both the push and poll sources;
// every other field is display material.
type MatchSummary struct {
	MatchID    string      `json:"match_id"`
	Title      string      `json:"title"`
	Home       string      `json:"home"`
	Away       string      `json:"away"`
	HomeShort  string      `json:"home_short"`
	AwayShort  string      `json:"away_short"`
	HomeScore  string      `json:"home_score"`
	AwayScore  string      `json:"away_score"`
	StatusCode string      `json:"status"`
	InPlay     InPlayState `json:"in_play"`
}

// Overlay returns a copy of m with every carrying field of fresher applied
// on top. The push source is fresher for volatile fields (scores, status)
// but omits fields only the poll source carries, so placeholder values in
// fresher never clobber real values in m.
func (m MatchSummary) Overlay(fresher MatchSummary) MatchSummary {
	out := m
	overlay := func(dst *string, src string) {
		if src != "" && src != TextPlaceholder {
			*dst = src
		}
	}
	overlay(&out.Title, fresher.Title)
	overlay(&out.Home, fresher.Home)
	overlay(&out.Away, fresher.Away)
	overlay(&out.HomeShort, fresher.HomeShort)
	overlay(&out.AwayShort, fresher.AwayShort)
	overlay(&out.HomeScore, fresher.HomeScore)
	overlay(&out.AwayScore, fresher.AwayScore)
	overlay(&out.StatusCode, fresher.StatusCode)
	if fresher.InPlay != InPlayUnknown {
		out.InPlay = fresher.InPlay
	}
	return out
}

// FeedView is the consumer-facing projection of the match feed store.
// Slices are materialized copies; mutating them cannot touch store state.
type FeedView struct {
	Live       []MatchSummary `json:"live"`
	Upcoming   []MatchSummary `json:"upcoming"`
	LiveIDs    []string       `json:"live_ids"`
	TotalItems int            `json:"total_items"`
}
