package processor

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"betflow/config"
	"betflow/internal/coalesce"
	"betflow/internal/feed"
	"betflow/internal/market"
	"betflow/internal/normalize"
	"betflow/internal/position"
	"betflow/models"
)

type fixture struct {
	frames     chan models.RawFrame
	feed       *feed.Store
	book       *market.Book
	positions  *position.Reconciler
	coalescer  *coalesce.Coalescer
	dispatcher *Dispatcher
	flushed    chan models.MarketBatch
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		frames:    make(chan models.RawFrame, 16),
		feed:      feed.NewStore(),
		book:      market.NewBook(),
		positions: position.NewReconciler(),
		flushed:   make(chan models.MarketBatch, 16),
	}
	f.coalescer = coalesce.NewCoalescer(time.Hour, func(b models.MarketBatch) {
		f.flushed <- b
	})
	classifier := normalize.NewClassifier(config.StreamEvents{})
	f.dispatcher = NewDispatcher(f.frames, classifier, f.feed, f.book, f.positions, f.coalescer)
	return f
}

// run pushes frames through a started dispatcher and waits until every one
// has been folded in.
func (f *fixture) run(t *testing.T, frames ...models.RawFrame) {
	t.Helper()
	if err := f.dispatcher.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	for _, fr := range frames {
		f.frames <- fr
	}
	close(f.frames)
	f.dispatcher.Stop()
}

func frame(event, payload string) models.RawFrame {
	return models.RawFrame{
		Event:      event,
		Source:     models.SourcePush,
		Data:       json.RawMessage(payload),
		ReceivedAt: time.Now(),
	}
}

func TestDispatcherRoutesFrames(t *testing.T) {
	f := newFixture(t)
	f.run(t,
		frame("liveMatchList", `{"data":{"t1":[{"match_id":7001,"title":"A vs B","inplay":true}],"t2":[]}}`),
		frame("realTimeMatchUpdate", `{"data":{"response":{"match_id":"7001","home_score":"2"}}}`),
		frame("oddsUpdate", `{"marketId":"1.10","status":"OPEN","runners":[{"selectionId":"55","runnerName":"A","back":[{"odds":1.9,"amount":40}]}]}`),
		frame("somethingNew", `{"ignored":true}`),
		frame("oddsUpdate", `not json at all`),
	)

	m, ok := f.feed.Get("7001")
	if !ok {
		t.Fatalf("live list match never reached the store")
	}
	if m.Title != "A vs B" || m.HomeScore != "2" {
		t.Errorf("realtime overlay not applied: %+v", m)
	}

	mk, ok := f.book.Get("1.10")
	if !ok {
		t.Fatalf("odds frame never reached the book")
	}
	if len(mk.Runners) != 1 || mk.Runners[0].Back[0].Odds != 1.9 {
		t.Errorf("unexpected market: %+v", mk)
	}
}

func TestDispatcherOffersAppliedMarkets(t *testing.T) {
	f := newFixture(t)
	if err := f.coalescer.Start(context.Background()); err != nil {
		t.Fatalf("coalescer start failed: %v", err)
	}
	f.run(t,
		frame("oddsUpdate", `[{"market_id":"1.10","runners":[{"selection_id":"5","back":[{"odds":2.0,"amount":10}]}]},{"market_id":"1.11","runners":[]}]`),
	)

	f.coalescer.Stop() // drains the queue through the flush callback

	select {
	case batch := <-f.flushed:
		if len(batch.Markets) != 2 {
			t.Fatalf("expected both markets coalesced, got %d", len(batch.Markets))
		}
		if batch.Markets[0].MarketID != "1.10" || batch.Markets[1].MarketID != "1.11" {
			t.Errorf("batch lost arrival order: %+v", batch.Markets)
		}
	default:
		t.Fatalf("no batch flushed")
	}
}

func TestDispatcherContextSwitch(t *testing.T) {
	f := newFixture(t)
	f.positions.RecordOptimistic(models.CategoryMatchOdds, "123", -50)
	f.run(t,
		frame("oddsUpdate", `{"marketId":"1.10","runners":[]}`),
		frame("liveMatchList", `{"data":{"t1":[{"match_id":"7002"}],"t2":[]}}`),
	)

	f.dispatcher.SetContext("acct-2")

	if f.book.Len() != 0 {
		t.Errorf("book survived context switch")
	}
	if _, ok := f.feed.Get("7002"); ok {
		t.Errorf("feed survived context switch")
	}
	if _, ok := f.positions.Lookup(models.CategoryMatchOdds, "123"); ok {
		t.Errorf("positions survived context switch")
	}
	if f.positions.ContextID() != "acct-2" {
		t.Errorf("context id not recorded: %q", f.positions.ContextID())
	}

	// Switching to the already-active context is a no-op.
	f.positions.RecordOptimistic(models.CategoryMatchOdds, "456", 20)
	f.dispatcher.SetContext("acct-2")
	if _, ok := f.positions.Lookup(models.CategoryMatchOdds, "456"); !ok {
		t.Errorf("same-context switch wiped state")
	}
}
