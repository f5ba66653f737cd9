package coalesce

import (
	"context"
	"sync"
	"testing"
	"time"

	"betflow/models"
)

type batchSink struct {
	mu      sync.Mutex
	batches []models.MarketBatch
}

func (s *batchSink) collect(b models.MarketBatch) {
	s.mu.Lock()
	s.batches = append(s.batches, b)
	s.mu.Unlock()
}

func (s *batchSink) snapshot() []models.MarketBatch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.MarketBatch(nil), s.batches...)
}

func TestCoalescerLatestValueWins(t *testing.T) {
	sink := &batchSink{}
	c := NewCoalescer(30*time.Millisecond, sink.collect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := c.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer c.Stop()

	c.Offer(models.MarketSnapshot{MarketID: "1", Status: "OPEN"})
	c.Offer(models.MarketSnapshot{MarketID: "2", Status: "OPEN"})
	c.Offer(models.MarketSnapshot{MarketID: "1", Status: "SUSPENDED"})

	deadline := time.After(2 * time.Second)
	for len(sink.snapshot()) == 0 {
		select {
		case <-deadline:
			t.Fatalf("no flush happened")
		case <-time.After(5 * time.Millisecond):
		}
	}

	batch := sink.snapshot()[0]
	if batch.BatchID == "" {
		t.Errorf("batch must carry an id")
	}
	if len(batch.Markets) != 2 {
		t.Fatalf("expected two coalesced markets, got %+v", batch.Markets)
	}
	if batch.Markets[0].MarketID != "1" || batch.Markets[0].Status != "SUSPENDED" {
		t.Errorf("latest value for a market must win: %+v", batch.Markets[0])
	}
	if batch.Markets[1].MarketID != "2" {
		t.Errorf("first-offer order not kept: %+v", batch.Markets)
	}
}

func TestCoalescerEmptyTicksFlushNothing(t *testing.T) {
	sink := &batchSink{}
	c := NewCoalescer(10*time.Millisecond, sink.collect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)
	time.Sleep(60 * time.Millisecond)
	c.Stop()

	if n := len(sink.snapshot()); n != 0 {
		t.Errorf("expected no batches from empty ticks, got %d", n)
	}
}

func TestCoalescerStopDrains(t *testing.T) {
	sink := &batchSink{}
	// Long interval: the tick never fires during the test.
	c := NewCoalescer(time.Hour, sink.collect)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	c.Start(ctx)

	c.Offer(models.MarketSnapshot{MarketID: "9"})
	c.Stop()

	batches := sink.snapshot()
	if len(batches) != 1 || len(batches[0].Markets) != 1 || batches[0].Markets[0].MarketID != "9" {
		t.Fatalf("stop must flush the queue: %+v", batches)
	}

	// Stop again is a no-op.
	c.Stop()
	if len(sink.snapshot()) != 1 {
		t.Errorf("repeated stop must not flush again")
	}
}
