package normalize

import "betflow/config"

// FrameKind is the closed set of push-frame classifications. Handling is a
// switch over this tagged value rather than a string-keyed callback table;
// unknown events fall through to KindUnknown and are dropped by the
// dispatcher.
type FrameKind int

const (
	KindUnknown FrameKind = iota
	KindLiveList
	KindRealtime
	KindOdds
)

func (k FrameKind) String() string {
	switch k {
	case KindLiveList:
		return "live_list"
	case KindRealtime:
		return "realtime"
	case KindOdds:
		return "odds"
	default:
		return "unknown"
	}
}

// Default event-name aliases; deployments rename events without retiring
// the old names, so all of them stay routed.
var (
	defaultLiveListEvents = []string{"liveMatchList", "getLiveMatches"}
	defaultRealtimeEvents = []string{"realTimeMatchUpdate", "liveMatchUpdated", "matchUpdate"}
	defaultOddsEvents     = []string{"oddsUpdate", "marketOddsUpdate", "updateodds"}
)

// Classifier maps wire event names onto FrameKind values.
type Classifier struct {
	liveList map[string]struct{}
	realtime map[string]struct{}
	odds     map[string]struct{}
}

func NewClassifier(events config.StreamEvents) *Classifier {
	c := &Classifier{
		liveList: toSet(events.LiveList, defaultLiveListEvents),
		realtime: toSet(events.Realtime, defaultRealtimeEvents),
		odds:     toSet(events.Odds, defaultOddsEvents),
	}
	return c
}

func toSet(names, fallback []string) map[string]struct{} {
	if len(names) == 0 {
		names = fallback
	}
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return set
}

func (c *Classifier) Kind(event string) FrameKind {
	if _, ok := c.liveList[event]; ok {
		return KindLiveList
	}
	if _, ok := c.realtime[event]; ok {
		return KindRealtime
	}
	if _, ok := c.odds[event]; ok {
		return KindOdds
	}
	return KindUnknown
}

// EventNames returns every subscribed event name, used by the stream
// manager when issuing channel subscriptions.
func (c *Classifier) EventNames() []string {
	out := make([]string, 0, len(c.liveList)+len(c.realtime)+len(c.odds))
	for n := range c.liveList {
		out = append(out, n)
	}
	for n := range c.realtime {
		out = append(out, n)
	}
	for n := range c.odds {
		out = append(out, n)
	}
	return out
}
