package publisher

import (
	"encoding/json"
	"testing"

	"betflow/config"
	"betflow/models"
)

func testPublisher(stream string) *StreamPublisher {
	cfg := &config.Config{}
	cfg.Publisher.RedisAddr = "localhost:6379"
	cfg.Publisher.Stream = stream
	return NewStreamPublisher(cfg)
}

func TestBatchArgs(t *testing.T) {
	p := testPublisher("")
	batch := models.MarketBatch{
		BatchID: "b-1",
		Markets: []models.MarketSnapshot{
			{MarketID: "7", Status: "OPEN", InPlay: true},
			{MarketID: "8", Status: "SUSPENDED"},
		},
	}

	args, err := p.batchArgs(batch)
	if err != nil {
		t.Fatalf("batchArgs failed: %v", err)
	}
	if args.Stream != defaultStream {
		t.Errorf("empty config must fall back to %q, got %q", defaultStream, args.Stream)
	}
	vals := args.Values.(map[string]interface{})
	if vals["batch_id"] != "b-1" || vals["markets"] != "2" {
		t.Errorf("unexpected entry values: %+v", args.Values)
	}

	var decoded models.MarketBatch
	if err := json.Unmarshal([]byte(vals["data"].(string)), &decoded); err != nil {
		t.Fatalf("data field not valid JSON: %v", err)
	}
	if len(decoded.Markets) != 2 || decoded.Markets[0].MarketID != "7" {
		t.Errorf("batch payload mangled: %+v", decoded)
	}
}

func TestFeedArgs(t *testing.T) {
	p := testPublisher("custom.stream")
	view := models.FeedView{
		Live:       []models.MatchSummary{{MatchID: "10", Title: "A v B"}},
		TotalItems: 4,
	}

	args, err := p.feedArgs(view)
	if err != nil {
		t.Fatalf("feedArgs failed: %v", err)
	}
	if args.Stream != "custom.stream.feed" {
		t.Errorf("feed view must publish to its own stream, got %q", args.Stream)
	}
	// Only the newest view matters to a subscriber; the stream keeps one.
	if args.MaxLen != 1 || !args.Approx {
		t.Errorf("feed stream must be trimmed to the latest entry: %+v", args)
	}
	vals := args.Values.(map[string]interface{})
	if vals["live"] != "1" || vals["total"] != "4" {
		t.Errorf("unexpected entry values: %+v", args.Values)
	}

	var decoded models.FeedView
	if err := json.Unmarshal([]byte(vals["data"].(string)), &decoded); err != nil {
		t.Fatalf("data field not valid JSON: %v", err)
	}
	if len(decoded.Live) != 1 || decoded.Live[0].Title != "A v B" {
		t.Errorf("feed payload mangled: %+v", decoded)
	}
}
