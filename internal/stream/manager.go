// Package stream owns the lifecycle of the push channel: connect,
// subscribe, reconnect after a fixed delay, tear down.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"betflow/config"
	"betflow/internal/channel"
	"betflow/internal/metrics"
	"betflow/logger"
	"betflow/models"
)

const (
	defaultConnectTimeout = 10 * time.Second
	defaultReconnectDelay = 5 * time.Second
	defaultPingInterval   = 20 * time.Second
)

// frameEnvelope is the wire shape of one push frame: an event name and an
// opaque payload the normalizer reshapes later.
type frameEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// Manager holds no business state of its own; its only side effects are
// the one external connection and the frames it forwards onto the frame
// channel. When the connection drops for any reason other than Stop, it
// retries forever after a fixed delay — no backoff growth, no give-up
// condition, because consumers have no other live source once the push
// channel is down.
type Manager struct {
	config   *config.Config
	events   []string
	channels *channel.Channels
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	running  bool
	status   models.ConnectionStatus
	log      *logger.Log
}

// NewManager creates a stream manager that subscribes to the given event
// names on connect.
func NewManager(cfg *config.Config, events []string, channels *channel.Channels) *Manager {
	return &Manager{
		config:   cfg,
		events:   events,
		channels: channels,
		status:   models.ConnectionStatus{State: models.StateDisconnected},
		log:      logger.GetLogger(),
	}
}

// Start opens the connection loop. Calling Start on a running manager is
// an error; restarting requires Stop first.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("stream manager already running")
	}
	m.running = true
	m.ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	log := m.log.WithComponent("stream_manager").WithFields(logger.Fields{
		"url":    m.config.Stream.URL,
		"events": m.events,
	})
	log.Info("starting stream manager")

	m.wg.Add(1)
	go m.connectionLoop()
	return nil
}

// Stop is the explicit terminal transition: it cancels any pending
// reconnect wait, closes the connection, and blocks until the loop has
// fully exited. The manager does not resume until Start is called again.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.wg.Wait()

	m.setState(models.StateDisconnected, nil)
	m.log.WithComponent("stream_manager").Info("stream manager stopped")
}

// Status returns a copy of the connection status. The status struct is
// owned exclusively by the manager; readers never see interior state.
func (m *Manager) Status() models.ConnectionStatus {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

func (m *Manager) connectionLoop() {
	defer m.wg.Done()

	log := m.log.WithComponent("stream_manager")

	connectTimeout := m.config.Stream.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = defaultConnectTimeout
	}
	reconnectDelay := m.config.Stream.ReconnectDelay
	if reconnectDelay <= 0 {
		reconnectDelay = defaultReconnectDelay
	}
	dialer := &websocket.Dialer{HandshakeTimeout: connectTimeout}

	for {
		if m.ctx.Err() != nil {
			return
		}

		m.setState(models.StateConnecting, nil)
		conn, _, err := dialer.DialContext(m.ctx, m.config.Stream.URL, nil)
		if err != nil {
			log.WithError(err).Warn("failed to connect to stream")
			m.setState(models.StateDisconnected, err)
			if m.waitForReconnect(reconnectDelay) {
				return
			}
			continue
		}

		if err := m.subscribe(conn); err != nil {
			log.WithError(err).Warn("failed to subscribe to stream events")
			conn.Close()
			m.setState(models.StateDisconnected, err)
			if m.waitForReconnect(reconnectDelay) {
				return
			}
			continue
		}

		m.setState(models.StateConnected, nil)
		log.Info("stream connected and subscribed")

		pingCancel := m.startPingLoop(conn)

		err = m.readFrames(conn)
		pingCancel()
		conn.Close()

		if m.ctx.Err() != nil {
			return
		}
		if err != nil {
			log.WithError(err).Warn("stream read loop ended")
		}
		m.setState(models.StateDisconnected, err)
		if m.waitForReconnect(reconnectDelay) {
			return
		}
	}
}

func (m *Manager) subscribe(conn *websocket.Conn) error {
	req := struct {
		Action string   `json:"action"`
		Events []string `json:"events"`
	}{
		Action: "subscribe",
		Events: m.events,
	}
	return conn.WriteJSON(req)
}

func (m *Manager) readFrames(conn *websocket.Conn) error {
	for {
		if m.ctx.Err() != nil {
			return m.ctx.Err()
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		m.handleMessage(msg)
	}
}

// handleMessage decodes the envelope and forwards the frame. A malformed
// frame is logged and dropped; it never ends the connection.
func (m *Manager) handleMessage(msg []byte) {
	log := m.log.WithComponent("stream_manager")

	var env frameEnvelope
	if err := json.Unmarshal(msg, &env); err != nil || env.Event == "" {
		log.WithFields(logger.Fields{"size": len(msg)}).Warn("dropping malformed stream frame")
		return
	}

	m.mu.Lock()
	m.status.LastUpdate = time.Now()
	m.mu.Unlock()

	logger.IncrementFrameRead(len(msg))
	frame := models.RawFrame{
		Event:      env.Event,
		Source:     models.SourcePush,
		Data:       env.Data,
		ReceivedAt: time.Now(),
	}
	if !m.channels.SendFrame(m.ctx, frame) {
		log.WithFields(logger.Fields{"event": env.Event}).Warn("frame channel full, frame dropped")
		metrics.EmitDropMetric(m.log, metrics.DropMetricFrame, env.Event, string(models.SourcePush), "dispatch")
	}
}

func (m *Manager) startPingLoop(conn *websocket.Conn) context.CancelFunc {
	interval := m.config.Stream.PingInterval
	if interval <= 0 {
		interval = defaultPingInterval
	}
	pingCtx, cancel := context.WithCancel(m.ctx)
	ticker := time.NewTicker(interval)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-pingCtx.Done():
				return
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(time.Second))
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(time.Second)); err != nil {
					m.log.WithComponent("stream_manager").WithError(err).Warn("failed to send ping")
					cancel()
					return
				}
			}
		}
	}()
	return cancel
}

// waitForReconnect sleeps for the fixed delay. Returns true when the
// manager was stopped while waiting.
func (m *Manager) waitForReconnect(delay time.Duration) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-m.ctx.Done():
		return true
	case <-timer.C:
		m.mu.Lock()
		m.status.Reconnects++
		m.mu.Unlock()
		return false
	}
}

func (m *Manager) setState(state models.ConnectionState, err error) {
	m.mu.Lock()
	m.status.State = state
	if err != nil {
		m.status.LastError = err.Error()
	} else if state == models.StateConnected {
		m.status.LastError = ""
		m.status.LastUpdate = time.Now()
	}
	m.mu.Unlock()
}
