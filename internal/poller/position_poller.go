package poller

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"betflow/config"
	"betflow/internal/position"
	"betflow/logger"
)

// PositionPoller periodically fetches the position endpoint and merges
// the response into the reconciler. A response without success or data is
// "no update this cycle", never "clear positions". A body that fails to
// parse is a poll failure and raises the error flag without touching data.
type PositionPoller struct {
	config  *config.Config
	rec     *position.Reconciler
	client  *http.Client
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	lastErr string
	log     *logger.Log
}

func NewPositionPoller(cfg *config.Config, rec *position.Reconciler) *PositionPoller {
	timeout := cfg.Positions.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	return &PositionPoller{
		config: cfg,
		rec:    rec,
		client: &http.Client{Timeout: timeout},
		log:    logger.GetLogger(),
	}
}

func (p *PositionPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("position poller already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("position_poller").WithFields(logger.Fields{
		"url":      p.config.Positions.URL,
		"interval": p.config.Positions.Interval,
	}).Info("starting position poller")

	p.wg.Add(1)
	go p.pollWorker()
	return nil
}

func (p *PositionPoller) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
	p.log.WithComponent("position_poller").Info("position poller stopped")
}

func (p *PositionPoller) LastError() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *PositionPoller) pollWorker() {
	defer p.wg.Done()

	log := p.log.WithComponent("position_poller")
	interval := p.config.Positions.Interval
	if interval <= 0 {
		interval = defaultPollInterval
	}

	p.pollOnce()

	now := time.Now()
	nextTick := now.Truncate(interval).Add(interval)
	timer := time.NewTimer(nextTick.Sub(now))
	defer timer.Stop()

	for {
		select {
		case <-p.ctx.Done():
			log.Info("poll worker stopped due to context cancellation")
			return
		case <-timer.C:
			start := time.Now()
			p.pollOnce()
			nextTick = start.Truncate(interval).Add(interval)
			timer.Reset(time.Until(nextTick))
		}
	}
}

func (p *PositionPoller) pollOnce() {
	log := p.log.WithComponent("position_poller").WithFields(logger.Fields{"operation": "poll"})

	body, err := fetch(p.ctx, p.client, p.config.Positions.URL)
	if err != nil {
		log.WithError(err).Warn("position poll failed")
		p.setError(err.Error())
		return
	}
	logger.IncrementPollRead(len(body))

	merged, err := p.rec.IngestRaw(body)
	if err != nil {
		log.WithError(err).Warn("position poll returned unparseable body")
		p.setError(err.Error())
		return
	}
	if merged {
		log.Debug("position poll merged")
	} else {
		// The backend legitimately answers without a payload between
		// bets; that is a quiet cycle, not a failure.
		log.Debug("position poll carried no update")
	}
	p.setError("")
}

func (p *PositionPoller) setError(msg string) {
	p.mu.Lock()
	p.lastErr = msg
	p.mu.Unlock()
}
