// Package poller drives the REST fallback sources: the match feed poll
// and the position poll. Both run on tick-aligned timers and surface
// failures as error flags without ever clearing previously fetched data.
package poller

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"betflow/config"
	"betflow/internal/feed"
	"betflow/logger"
)

const (
	defaultPollInterval = 3 * time.Second
	defaultPollTimeout  = 10 * time.Second
)

// MatchPoller periodically fetches the match feed endpoint and folds the
// response into the feed store. A failed poll raises LastError for the
// consumer but leaves the store untouched; stale-but-present beats empty.
type MatchPoller struct {
	config  *config.Config
	store   *feed.Store
	client  *http.Client
	limiter *rate.Limiter
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.RWMutex
	running bool
	lastErr string
	log     *logger.Log
}

func NewMatchPoller(cfg *config.Config, store *feed.Store) *MatchPoller {
	timeout := cfg.Poll.Timeout
	if timeout <= 0 {
		timeout = defaultPollTimeout
	}
	rps := cfg.Poll.RequestsPerSecond
	if rps <= 0 {
		rps = 1
	}
	burst := cfg.Poll.BurstSize
	if burst <= 0 {
		burst = 1
	}
	return &MatchPoller{
		config:  cfg,
		store:   store,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		log:     logger.GetLogger(),
	}
}

// Start begins the poll loop. The first poll fires immediately and the
// timer is then aligned to the interval boundary.
func (p *MatchPoller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("match poller already running")
	}
	p.running = true
	p.ctx = ctx
	p.mu.Unlock()

	p.log.WithComponent("match_poller").WithFields(logger.Fields{
		"url":      p.config.Poll.URL,
		"interval": p.config.Poll.Interval,
	}).Info("starting match poller")

	p.wg.Add(1)
	go p.pollWorker()
	return nil
}

// Stop waits until the poll loop has fully exited; no detached timer can
// mutate the store afterwards.
func (p *MatchPoller) Stop() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	p.wg.Wait()
	p.log.WithComponent("match_poller").Info("match poller stopped")
}

// LastError returns the most recent poll failure, or "" after a
// successful poll.
func (p *MatchPoller) LastError() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lastErr
}

func (p *MatchPoller) pollWorker() {
	defer p.wg.Done()

	log := p.log.WithComponent("match_poller")
	interval := p.config.Poll.Interval
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

func (p *MatchPoller) pollOnce() {
	log := p.log.WithComponent("match_poller").WithFields(logger.Fields{"operation": "poll"})

	if err := p.limiter.Wait(p.ctx); err != nil {
		return
	}

	start := time.Now()
	body, err := fetch(p.ctx, p.client, p.config.Poll.URL)
	if err != nil {
		log.WithError(err).Warn("match poll failed")
		p.setError(err.Error())
		return
	}
	logger.IncrementPollRead(len(body))
	logger.LogPerformanceEntry(log, "match_poller", "poll_request", time.Since(start), nil)

	if err := p.store.ApplyPoll(body); err != nil {
		log.WithError(err).WithFields(logger.Fields{"size": len(body)}).Warn("match poll not applied")
		p.setError(err.Error())
		return
	}
	p.setError("")
}

func (p *MatchPoller) setError(msg string) {
	p.mu.Lock()
	p.lastErr = msg
	p.mu.Unlock()
}

// fetch issues one GET and returns the body for any 2xx status.
func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
