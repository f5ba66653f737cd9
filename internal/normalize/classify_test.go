package normalize

import (
	"testing"

	"betflow/config"
)

func TestClassifierDefaults(t *testing.T) {
	c := NewClassifier(config.StreamEvents{})
	cases := map[string]FrameKind{
		"liveMatchList":       KindLiveList,
		"getLiveMatches":      KindLiveList,
		"realTimeMatchUpdate": KindRealtime,
		"liveMatchUpdated":    KindRealtime,
		"matchUpdate":         KindRealtime,
		"oddsUpdate":          KindOdds,
		"marketOddsUpdate":    KindOdds,
		"updateodds":          KindOdds,
		"somethingElse":       KindUnknown,
		"":                    KindUnknown,
	}
	for event, want := range cases {
		if got := c.Kind(event); got != want {
			t.Errorf("Kind(%q): got %v want %v", event, got, want)
		}
	}
}

func TestClassifierConfigured(t *testing.T) {
	c := NewClassifier(config.StreamEvents{
		Odds: []string{"customOdds"},
	})
	if c.Kind("customOdds") != KindOdds {
		t.Errorf("configured event not classified")
	}
	// Overriding one kind retires its defaults but not the others.
	if c.Kind("oddsUpdate") != KindUnknown {
		t.Errorf("overridden default should no longer classify")
	}
	if c.Kind("liveMatchList") != KindLiveList {
		t.Errorf("untouched kind should keep its defaults")
	}
}

func TestClassifierEventNames(t *testing.T) {
	c := NewClassifier(config.StreamEvents{
		LiveList: []string{"a"},
		Realtime: []string{"b"},
		Odds:     []string{"c", "d"},
	})
	names := c.EventNames()
	if len(names) != 4 {
		t.Fatalf("expected 4 names, got %v", names)
	}
	seen := make(map[string]bool)
	for _, n := range names {
		seen[n] = true
	}
	for _, want := range []string{"a", "b", "c", "d"} {
		if !seen[want] {
			t.Errorf("missing event name %q", want)
		}
	}
}

func TestFrameKindString(t *testing.T) {
	if KindOdds.String() != "odds" || KindUnknown.String() != "unknown" {
		t.Errorf("unexpected kind strings")
	}
}
