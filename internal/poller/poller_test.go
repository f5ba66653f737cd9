package poller

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"betflow/config"
	"betflow/internal/feed"
	"betflow/internal/position"
	"betflow/models"
)

func pollConfig(matchURL, positionURL string) *config.Config {
	cfg := &config.Config{}
	cfg.Poll.URL = matchURL
	cfg.Poll.Interval = 50 * time.Millisecond
	cfg.Poll.Timeout = time.Second
	cfg.Poll.RequestsPerSecond = 100
	cfg.Poll.BurstSize = 10
	cfg.Positions.URL = positionURL
	cfg.Positions.Interval = 50 * time.Millisecond
	cfg.Positions.Timeout = time.Second
	return cfg
}

func TestMatchPollerAppliesResponses(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Write([]byte(`{"success": true, "live": [{"match_id": 10, "title": "A v B"}], "upcoming": [], "total": 1}`))
	}))
	defer srv.Close()

	store := feed.NewStore()
	p := NewMatchPoller(pollConfig(srv.URL, ""), store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(store.View().Live) == 0 {
		select {
		case <-deadline:
			t.Fatalf("poll never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if m, ok := store.Get("10"); !ok || m.Title != "A v B" {
		t.Errorf("unexpected stored match: %+v ok=%v", m, ok)
	}
	if p.LastError() != "" {
		t.Errorf("successful poll must clear the error flag: %q", p.LastError())
	}
}

func TestMatchPollerFailureKeepsData(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if fail.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"success": true, "live": [{"match_id": 1}], "upcoming": []}`))
	}))
	defer srv.Close()

	store := feed.NewStore()
	p := NewMatchPoller(pollConfig(srv.URL, ""), store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(store.View().Live) == 0 {
		select {
		case <-deadline:
			t.Fatalf("first poll never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	fail.Store(true)
	deadline = time.After(2 * time.Second)
	for p.LastError() == "" {
		select {
		case <-deadline:
			t.Fatalf("error flag never raised")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if len(store.View().Live) != 1 {
		t.Errorf("failed poll must not clear known matches")
	}
}

func TestMatchPollerReportsBackendDecline(t *testing.T) {
	var decline atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if decline.Load() {
			w.Write([]byte(`{"success": false}`))
			return
		}
		w.Write([]byte(`{"success": true, "live": [{"match_id": 1}], "upcoming": []}`))
	}))
	defer srv.Close()

	store := feed.NewStore()
	p := NewMatchPoller(pollConfig(srv.URL, ""), store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for len(store.View().Live) == 0 {
		select {
		case <-deadline:
			t.Fatalf("first poll never applied")
		case <-time.After(10 * time.Millisecond):
		}
	}

	decline.Store(true)
	deadline = time.After(2 * time.Second)
	for p.LastError() == "" {
		select {
		case <-deadline:
			t.Fatalf("declined poll never raised the error flag")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := p.LastError(); got != feed.ErrPollDeclined.Error() {
		t.Errorf("decline must be named as such, got %q", got)
	}
	if len(store.View().Live) != 1 {
		t.Errorf("declined poll must not clear known matches")
	}
}

func TestPositionPollerMergesAndAbsorbsQuietCycles(t *testing.T) {
	var payload atomic.Value
	payload.Store(`{"success": true, "data": {"matchOdds": {"55": 95}}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload.Load().(string)))
	}))
	defer srv.Close()

	rec := position.NewReconciler()
	p := NewPositionPoller(pollConfig("", srv.URL), rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if v, ok := rec.Lookup(models.CategoryMatchOdds, "55"); ok && v == 95 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("position never ingested")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// Quiet cycles carry no update and must not clear anything.
	payload.Store(`{"success": false}`)
	time.Sleep(150 * time.Millisecond)
	if v, ok := rec.Lookup(models.CategoryMatchOdds, "55"); !ok || v != 95 {
		t.Errorf("quiet cycle cleared positions: %v ok=%v", v, ok)
	}
	if p.LastError() != "" {
		t.Errorf("quiet cycle is not an error: %q", p.LastError())
	}
}

func TestPositionPollerFlagsUnparseableBody(t *testing.T) {
	var payload atomic.Value
	payload.Store(`{"success": true, "data": {"matchOdds": {"55": 95}}}`)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(payload.Load().(string)))
	}))
	defer srv.Close()

	rec := position.NewReconciler()
	p := NewPositionPoller(pollConfig("", srv.URL), rec)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	deadline := time.After(2 * time.Second)
	for {
		if v, ok := rec.Lookup(models.CategoryMatchOdds, "55"); ok && v == 95 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("position never ingested")
		case <-time.After(10 * time.Millisecond):
		}
	}

	// A body that does not parse is a poll failure, unlike a quiet
	// cycle, and must raise the error flag without touching positions.
	payload.Store(`not json at all{{`)
	deadline = time.After(2 * time.Second)
	for p.LastError() == "" {
		select {
		case <-deadline:
			t.Fatalf("unparseable body never raised the error flag")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if v, ok := rec.Lookup(models.CategoryMatchOdds, "55"); !ok || v != 95 {
		t.Errorf("poll failure cleared positions: %v ok=%v", v, ok)
	}

	// Recovery clears the flag again.
	payload.Store(`{"success": false}`)
	deadline = time.After(2 * time.Second)
	for p.LastError() != "" {
		select {
		case <-deadline:
			t.Fatalf("error flag never cleared after recovery")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestPollerStopIsDeterministic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"success": true, "live": [], "upcoming": []}`))
	}))
	defer srv.Close()

	p := NewMatchPoller(pollConfig(srv.URL, ""), feed.NewStore())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	if err := p.Start(ctx); err == nil {
		t.Errorf("double start must fail")
	}
	cancel()
	done := make(chan struct{})
	go func() {
		p.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("stop did not return after cancellation")
	}
}
