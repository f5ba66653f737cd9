package normalize

import (
	"betflow/models"
)

// Aliases tried per field, most specific first. Textual fields degrade to
// the "-" placeholder; identity fields never do.
var (
	matchIDAliases   = []string{"match_id", "matchId", "id"}
	titleAliases     = []string{"title", "name"}
	homeAliases      = []string{"home_team", "team1", "home"}
	awayAliases      = []string{"away_team", "team2", "away"}
	homeShortAliases = []string{"home_short_name", "home_short"}
	awayShortAliases = []string{"away_short_name", "away_short"}
	homeScoreAliases = []string{"home_score", "score_home"}
	awayScoreAliases = []string{"away_score", "score_away"}
	statusAliases    = []string{"status_str", "match_status", "status"}
	inPlayAliases    = []string{"in_play", "inplay", "is_live"}
)

// ParseMatch normalizes one raw match record of any known historical shape
// into a MatchSummary. It is pure: same input, same output, no side
// effects. A record that lacks a match identifier after all unwrapping is
// rejected — a partial record with undefined identity is worse than none.
func ParseMatch(data []byte) (models.MatchSummary, bool) {
	return parseMatchNode(decode(data))
}

func parseMatchNode(node interface{}) (models.MatchSummary, bool) {
	node = firstElement(node)
	obj, ok := asObject(node)
	if !ok {
		return models.MatchSummary{}, false
	}

	// A nested match_info substructure holds the real record; the outer
	// envelope may still be the only carrier of the identifier.
	body := obj
	if mi, ok := asObject(obj["match_info"]); ok {
		body = mi
	}

	id := idField(body, matchIDAliases...)
	if id == "" {
		id = idField(obj, matchIDAliases...)
	}
	if id == "" {
		return models.MatchSummary{}, false
	}

	m := models.MatchSummary{
		MatchID:    id,
		Title:      textField(body, titleAliases...),
		Home:       textField(body, homeAliases...),
		Away:       textField(body, awayAliases...),
		HomeShort:  textField(body, homeShortAliases...),
		AwayShort:  textField(body, awayShortAliases...),
		HomeScore:  textField(body, homeScoreAliases...),
		AwayScore:  textField(body, awayScoreAliases...),
		StatusCode: textField(body, statusAliases...),
		InPlay:     boolState(body, inPlayAliases...),
	}

	// live.live_score scores win over whatever the top level carried.
	if ls, ok := objectField(body, "live", "live_score"); ok {
		if scores, ok := asObject(ls); ok {
			if s := idField(scores, "home"); s != "" {
				m.HomeScore = s
			}
			if s := idField(scores, "away"); s != "" {
				m.AwayScore = s
			}
		}
	}

	return m, true
}

// ParseRealtime extracts the match record from a realtime-update frame.
// The record has been observed nested under [0].data.response,
// data.response, data.data.response, response, data.data, data — or bare.
// Paths are probed in that order; the first hit is taken.
func ParseRealtime(data []byte) (models.MatchSummary, bool) {
	root := decode(data)
	if root == nil {
		return models.MatchSummary{}, false
	}

	for _, candidate := range nestedCandidates(root) {
		if m, ok := parseMatchNode(candidate); ok {
			return m, true
		}
	}
	return models.MatchSummary{}, false
}

// nestedCandidates enumerates the historical nesting paths in priority
// order, ending with the bare payload.
func nestedCandidates(root interface{}) []interface{} {
	var out []interface{}

	if arr, ok := root.([]interface{}); ok && len(arr) > 0 {
		if obj, ok := asObject(arr[0]); ok {
			if v, ok := objectField(obj, "data", "response"); ok {
				out = append(out, v)
			}
		}
	}
	if obj, ok := asObject(root); ok {
		if v, ok := objectField(obj, "data", "response"); ok {
			out = append(out, v)
		}
		if v, ok := objectField(obj, "data", "data", "response"); ok {
			out = append(out, v)
		}
		if v, ok := objectField(obj, "response"); ok {
			out = append(out, v)
		}
		if v, ok := objectField(obj, "data", "data"); ok {
			out = append(out, v)
		}
		if v, ok := objectField(obj, "data"); ok {
			out = append(out, v)
		}
	}
	out = append(out, root)
	return out
}

// ParseLiveList extracts the list of live matches from a live-list frame.
// The current producer sends {success, data: {t1: [...], t2: [...]}}; the
// two groups are concatenated. Older producers send the array under
// data.matches or data.response.items.
func ParseLiveList(data []byte) ([]models.MatchSummary, bool) {
	root := decode(data)
	obj, ok := asObject(root)
	if !ok {
		return nil, false
	}

	var rawItems []interface{}
	if t1, ok := objectField(obj, "data", "t1"); ok {
		if arr, ok := t1.([]interface{}); ok {
			rawItems = append(rawItems, arr...)
		}
		if t2, ok := objectField(obj, "data", "t2"); ok {
			if arr, ok := t2.([]interface{}); ok {
				rawItems = append(rawItems, arr...)
			}
		}
	} else if matches, ok := objectField(obj, "data", "matches"); ok {
		rawItems, _ = matches.([]interface{})
	} else if items, ok := objectField(obj, "data", "response", "items"); ok {
		rawItems, _ = items.([]interface{})
	} else {
		return nil, false
	}

	out := make([]models.MatchSummary, 0, len(rawItems))
	for _, item := range rawItems {
		if m, ok := parseMatchNode(item); ok {
			out = append(out, m)
		}
	}
	return out, true
}
