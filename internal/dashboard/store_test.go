package dashboard

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"betflow/internal/metrics"
)

func TestRingWrapsAround(t *testing.T) {
	r := newRing[int](3)
	for i := 1; i <= 5; i++ {
		r.push(i)
	}

	got := r.snapshot()
	if len(got) != 3 {
		t.Fatalf("expected 3 retained entries, got %d", len(got))
	}
	for i, want := range []int{3, 4, 5} {
		if got[i] != want {
			t.Fatalf("snapshot not oldest-first: %v", got)
		}
	}

	// A partially filled ring returns only what was pushed.
	r2 := newRing[string](4)
	r2.push("a")
	if s := r2.snapshot(); len(s) != 1 || s[0] != "a" {
		t.Fatalf("unexpected partial snapshot: %v", s)
	}
}

func TestMetricStoreKeepsNewest(t *testing.T) {
	store := newMetricStore(2)
	for i := 0; i < 5; i++ {
		store.handle(metrics.Metric{Timestamp: time.Unix(int64(i), 0), Name: "frames", Value: i})
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 metrics in snapshot, got %d", len(snapshot))
	}
	if snapshot[0].Value != 3 || snapshot[1].Value != 4 {
		t.Fatalf("unexpected metrics retained: %#v", snapshot)
	}
}

func TestLogStoreCapturesEntries(t *testing.T) {
	store := newLogStore(3)
	entry := logrus.NewEntry(logrus.New())
	entry.Time = time.Unix(10, 0)
	entry.Level = logrus.WarnLevel
	entry.Message = "poll failed"
	entry.Data = logrus.Fields{"component": "match_poller", "url": "https://api.test"}

	if err := store.Fire(entry); err != nil {
		t.Fatalf("store.Fire returned error: %v", err)
	}

	snapshot := store.snapshot()
	if len(snapshot) != 1 {
		t.Fatalf("expected 1 log entry, got %d", len(snapshot))
	}
	if snapshot[0].Component != "match_poller" || snapshot[0].Fields["url"] != "https://api.test" {
		t.Fatalf("unexpected snapshot data: %#v", snapshot[0])
	}
	if _, ok := snapshot[0].Fields["component"]; ok {
		t.Fatalf("component must be lifted out of fields")
	}
}

func TestLogStoreRespectsLimitAndClose(t *testing.T) {
	store := newLogStore(2)
	for i := 0; i < 4; i++ {
		entry := logrus.NewEntry(logrus.New())
		entry.Message = "msg"
		entry.Level = logrus.InfoLevel
		entry.Data = logrus.Fields{"index": i}
		if err := store.Fire(entry); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	snapshot := store.snapshot()
	if len(snapshot) != 2 {
		t.Fatalf("expected 2 entries after pruning, got %d", len(snapshot))
	}

	store.close()
	entry := logrus.NewEntry(logrus.New())
	entry.Message = "ignored"
	if err := store.Fire(entry); err != nil {
		t.Fatalf("unexpected error after close: %v", err)
	}
	if len(store.snapshot()) != 2 {
		t.Fatalf("store accepted entries after close")
	}
}
