package normalize

import (
	"betflow/models"
)

// ParseMarkets locates every market object inside a raw odds update. The
// update may be a single market object, an array of market objects, or an
// object wrapping an array under a data field; the shape is detected by
// probing for a marketId field, then array-ness, then a nested data array,
// in that order. Records without a market identifier are dropped, the rest
// of the batch continues.
func ParseMarkets(data []byte) []models.MarketSnapshot {
	root := decode(data)
	if root == nil {
		return nil
	}

	var rawMarkets []interface{}
	switch node := root.(type) {
	case map[string]interface{}:
		if idField(node, marketIDAliases...) != "" {
			rawMarkets = []interface{}{node}
		} else if inner, ok := node["data"].([]interface{}); ok {
			rawMarkets = inner
		}
	case []interface{}:
		rawMarkets = node
	}

	out := make([]models.MarketSnapshot, 0, len(rawMarkets))
	for _, raw := range rawMarkets {
		if m, ok := parseMarketNode(raw); ok {
			out = append(out, m)
		}
	}
	return out
}

var (
	marketIDAliases  = []string{"marketId", "market_id"}
	marketStrAliases = []string{"marketIdString", "market_id_string", "marketIdStr"}
	selectionAliases = []string{"selectionId", "selection_id", "runnerId"}
	runnerAliases    = []string{"runnerName", "team", "name"}
)

func parseMarketNode(node interface{}) (models.MarketSnapshot, bool) {
	obj, ok := asObject(node)
	if !ok {
		return models.MarketSnapshot{}, false
	}
	id := idField(obj, marketIDAliases...)
	if id == "" {
		return models.MarketSnapshot{}, false
	}

	m := models.MarketSnapshot{
		MarketID:       id,
		MarketIDString: idField(obj, marketStrAliases...),
		Status:         textField(obj, "status", "marketStatus"),
		InPlay:         plainBool(obj, "inplay", "in_play"),
		TotalMatched:   floatField(obj, "totalMatched", "total_matched"),
		TotalAvailable: floatField(obj, "totalAvailable", "total_available"),
	}

	runners, _ := obj["runners"].([]interface{})
	m.Runners = make([]models.Runner, 0, len(runners))
	for _, raw := range runners {
		if r, ok := parseRunner(raw); ok {
			m.Runners = append(m.Runners, r)
		}
	}
	return m, true
}

func parseRunner(node interface{}) (models.Runner, bool) {
	obj, ok := asObject(node)
	if !ok {
		return models.Runner{}, false
	}
	id := idField(obj, selectionAliases...)
	if id == "" {
		return models.Runner{}, false
	}
	r := models.Runner{
		SelectionID: id,
		Name:        textField(obj, runnerAliases...),
	}

	// Ladders arrive either betfair-style under ex.availableToBack /
	// ex.availableToLay or directly under back/lay (with backOffers /
	// layOffers as older aliases).
	if ex, ok := asObject(obj["ex"]); ok {
		r.Back = parseLadder(ex["availableToBack"])
		r.Lay = parseLadder(ex["availableToLay"])
	} else {
		r.Back = parseLadder(firstPresent(obj, "back", "backOffers"))
		r.Lay = parseLadder(firstPresent(obj, "lay", "layOffers"))
	}
	return r, true
}

func firstPresent(obj map[string]interface{}, aliases ...string) interface{} {
	for _, key := range aliases {
		if v, ok := obj[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

func parseLadder(node interface{}) []models.PriceSize {
	arr, ok := node.([]interface{})
	if !ok {
		return nil
	}
	out := make([]models.PriceSize, 0, len(arr))
	for _, raw := range arr {
		rung, ok := asObject(raw)
		if !ok {
			continue
		}
		ps := models.PriceSize{
			Odds:   floatField(rung, "odds", "price"),
			Amount: floatField(rung, "amount", "size"),
		}
		if ps.Odds == 0 && ps.Amount == 0 {
			continue
		}
		out = append(out, ps)
	}
	return out
}
