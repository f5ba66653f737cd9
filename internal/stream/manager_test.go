package stream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"betflow/config"
	"betflow/internal/channel"
	"betflow/internal/metrics"
	"betflow/models"
)

var upgrader = websocket.Upgrader{}

func streamConfig(url string) *config.Config {
	cfg := &config.Config{}
	cfg.Stream.URL = url
	cfg.Stream.ConnectTimeout = time.Second
	cfg.Stream.ReconnectDelay = 50 * time.Millisecond
	cfg.Stream.PingInterval = time.Second
	return cfg
}

// startServer runs a websocket endpoint that pushes frames after the
// subscribe request arrives.
func startServer(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var sub struct {
			Action string   `json:"action"`
			Events []string `json:"events"`
		}
		if err := conn.ReadJSON(&sub); err != nil || sub.Action != "subscribe" {
			t.Errorf("expected subscribe request, got %+v err=%v", sub, err)
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	return srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestManagerForwardsFrames(t *testing.T) {
	srv := startServer(t, []string{
		`{"event": "oddsUpdate", "data": {"marketId": 1}}`,
		`not a frame`,
		`{"event": "liveMatchList", "data": {"success": true}}`,
	})
	defer srv.Close()

	channels := channel.NewChannels(16, 16)
	defer channels.Close()

	m := NewManager(streamConfig(wsURL(srv)), []string{"oddsUpdate", "liveMatchList"}, channels)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	var got []models.RawFrame
	timeout := time.After(2 * time.Second)
	for len(got) < 2 {
		select {
		case f := <-channels.Frames:
			got = append(got, f)
		case <-timeout:
			t.Fatalf("timed out, frames so far: %+v", got)
		}
	}

	if got[0].Event != "oddsUpdate" || got[1].Event != "liveMatchList" {
		t.Errorf("unexpected frames: %+v", got)
	}
	if got[0].Source != models.SourcePush {
		t.Errorf("frames must be tagged as push: %+v", got[0])
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(got[0].Data, &payload); err != nil || payload["marketId"] != float64(1) {
		t.Errorf("payload not forwarded intact: %s", got[0].Data)
	}

	if st := m.Status(); st.State != models.StateConnected {
		t.Errorf("expected connected status, got %+v", st)
	}
}

func TestManagerEmitsDropMetricWhenFrameChannelFull(t *testing.T) {
	channels := channel.NewChannels(1, 1)
	defer channels.Close()

	m := NewManager(streamConfig("ws://unused"), nil, channels)
	m.ctx = context.Background()

	var drops []metrics.Metric
	id := metrics.RegisterMetricHandler(func(metric metrics.Metric) {
		if metric.Name == string(metrics.DropMetricFrame) {
			drops = append(drops, metric)
		}
	})
	defer metrics.UnregisterMetricHandler(id)

	// First frame fits the buffer, second hits a full channel.
	m.handleMessage([]byte(`{"event": "oddsUpdate", "data": {"marketId": 1}}`))
	m.handleMessage([]byte(`{"event": "oddsUpdate", "data": {"marketId": 2}}`))

	if len(drops) != 1 {
		t.Fatalf("expected one drop metric, got %d", len(drops))
	}
	if drops[0].Fields["event"] != "oddsUpdate" || drops[0].Fields["stage"] != "dispatch" {
		t.Errorf("unexpected drop metric fields: %+v", drops[0].Fields)
	}
	if channels.GetStats().FramesDropped != 1 {
		t.Errorf("drop counter out of step: %+v", channels.GetStats())
	}
}

func TestManagerReconnects(t *testing.T) {
	var attempts int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		// Drop the first connection right after the handshake.
		if attempts == 1 {
			conn.Close()
			return
		}
		defer conn.Close()
		var sub map[string]interface{}
		conn.ReadJSON(&sub)
		conn.WriteMessage(websocket.TextMessage, []byte(`{"event": "oddsUpdate", "data": {}}`))
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	channels := channel.NewChannels(4, 4)
	defer channels.Close()

	m := NewManager(streamConfig(wsURL(srv)), []string{"oddsUpdate"}, channels)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer m.Stop()

	select {
	case f := <-channels.Frames:
		if f.Event != "oddsUpdate" {
			t.Errorf("unexpected frame after reconnect: %+v", f)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no frame after reconnect")
	}
	if attempts < 2 {
		t.Errorf("expected a reconnect, attempts=%d", attempts)
	}
	if st := m.Status(); st.Reconnects < 1 {
		t.Errorf("reconnect count not tracked: %+v", st)
	}
}

func TestManagerStopIsTerminal(t *testing.T) {
	srv := startServer(t, nil)
	defer srv.Close()

	channels := channel.NewChannels(4, 4)
	defer channels.Close()

	m := NewManager(streamConfig(wsURL(srv)), nil, channels)
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if err := m.Start(context.Background()); err == nil {
		t.Errorf("double start must fail")
	}

	m.Stop()
	if st := m.Status(); st.State != models.StateDisconnected {
		t.Errorf("expected disconnected after stop, got %+v", st)
	}
	// Stop is idempotent and does not resume on its own.
	m.Stop()

	if err := m.Start(context.Background()); err != nil {
		t.Errorf("restart after stop must work: %v", err)
	}
	m.Stop()
}
