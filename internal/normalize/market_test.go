package normalize

import (
	"testing"
)

func TestParseMarketsSingleObject(t *testing.T) {
	data := []byte(`{
		"marketId": 9001,
		"marketIdString": "1.2345",
		"status": "OPEN",
		"inplay": true,
		"totalMatched": 1500.5,
		"runners": [
			{"selectionId": 11, "runnerName": "Team A", "ex": {
				"availableToBack": [{"price": 1.85, "size": 200}],
				"availableToLay": [{"price": 1.9, "size": 150}]
			}},
			{"selectionId": 12, "runnerName": "Team B", "back": [{"odds": 2.1, "amount": 90}]}
		]
	}`)
	out := ParseMarkets(data)
	if len(out) != 1 {
		t.Fatalf("expected one market, got %d", len(out))
	}
	m := out[0]
	if m.MarketID != "9001" || m.MarketIDString != "1.2345" || m.Status != "OPEN" || !m.InPlay {
		t.Errorf("unexpected market: %+v", m)
	}
	if len(m.Runners) != 2 {
		t.Fatalf("expected two runners, got %d", len(m.Runners))
	}
	a := m.Runners[0]
	if a.SelectionID != "11" || len(a.Back) != 1 || a.Back[0].Odds != 1.85 || a.Back[0].Amount != 200 {
		t.Errorf("betfair-style ladder not parsed: %+v", a)
	}
	if len(a.Lay) != 1 || a.Lay[0].Odds != 1.9 {
		t.Errorf("lay ladder not parsed: %+v", a)
	}
	b := m.Runners[1]
	if len(b.Back) != 1 || b.Back[0].Odds != 2.1 || b.Back[0].Amount != 90 {
		t.Errorf("flat ladder not parsed: %+v", b)
	}
}

func TestParseMarketsArray(t *testing.T) {
	data := []byte(`[{"marketId": "1"}, {"marketId": "2"}, {"status": "no id, dropped"}]`)
	out := ParseMarkets(data)
	if len(out) != 2 || out[0].MarketID != "1" || out[1].MarketID != "2" {
		t.Fatalf("unexpected markets: %+v", out)
	}
}

func TestParseMarketsDataWrapper(t *testing.T) {
	data := []byte(`{"data": [{"market_id": 3, "market_id_string": "1.3"}]}`)
	out := ParseMarkets(data)
	if len(out) != 1 || out[0].MarketID != "3" || out[0].MarketIDString != "1.3" {
		t.Fatalf("data wrapper not handled: %+v", out)
	}
}

func TestParseMarketsZeroRungsSkipped(t *testing.T) {
	data := []byte(`{"marketId": 1, "runners": [{"selectionId": 5, "back": [{"odds": 0, "amount": 0}, {"odds": 3, "amount": 10}]}]}`)
	out := ParseMarkets(data)
	if len(out) != 1 || len(out[0].Runners) != 1 {
		t.Fatalf("unexpected parse: %+v", out)
	}
	back := out[0].Runners[0].Back
	if len(back) != 1 || back[0].Odds != 3 {
		t.Errorf("zero rung should be skipped: %+v", back)
	}
}

func TestParseMarketsGarbage(t *testing.T) {
	for _, data := range [][]byte{
		[]byte(`{bad json`),
		[]byte(`"string"`),
		[]byte(`{"data": {"not": "an array"}}`),
	} {
		if out := ParseMarkets(data); len(out) != 0 {
			t.Errorf("expected no markets for %s, got %+v", data, out)
		}
	}
}
