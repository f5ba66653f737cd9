// Package coalesce bounds the downstream commit rate when odds updates
// arrive faster than consumers can usefully redraw.
package coalesce

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"betflow/logger"
	"betflow/models"
)

const defaultFlushInterval = 250 * time.Millisecond

// Coalescer is a micro-batching queue with a fixed flush tick. Between
// ticks, offers for the same market collapse onto the latest snapshot, so
// a flush carries each market at most once and never loses any market's
// latest value. Flush order is first-offer order within the window.
type Coalescer struct {
	interval time.Duration
	flush    func(models.MarketBatch)
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
	pending  map[string]models.MarketSnapshot
	order    []string
	log      *logger.Log
}

// NewCoalescer creates a coalescer that invokes flush once per tick with
// whatever accumulated. flush runs on the coalescer's own goroutine.
func NewCoalescer(interval time.Duration, flush func(models.MarketBatch)) *Coalescer {
	if interval <= 0 {
		interval = defaultFlushInterval
	}
	return &Coalescer{
		interval: interval,
		flush:    flush,
		pending:  make(map[string]models.MarketSnapshot),
		log:      logger.GetLogger(),
	}
}

// Offer queues one market snapshot for the next flush, replacing any
// snapshot already queued for the same market.
func (c *Coalescer) Offer(m models.MarketSnapshot) {
	c.mu.Lock()
	if _, queued := c.pending[m.MarketID]; !queued {
		c.order = append(c.order, m.MarketID)
	}
	c.pending[m.MarketID] = m
	c.mu.Unlock()
}

// Reset discards everything queued without flushing it. Used on context
// switches, where the pending markets belong to the previous context.
func (c *Coalescer) Reset() {
	c.mu.Lock()
	c.pending = make(map[string]models.MarketSnapshot)
	c.order = nil
	c.mu.Unlock()
}

func (c *Coalescer) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("coalescer already running")
	}
	c.running = true
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.mu.Unlock()

	c.log.WithComponent("coalescer").WithFields(logger.Fields{
		"flush_interval": c.interval,
	}).Info("starting coalescer")

	c.wg.Add(1)
	go c.flushWorker()
	return nil
}

// Stop drains the queue with one final flush and waits for the worker to
// exit.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()
	c.flushPending()
	c.log.WithComponent("coalescer").Info("coalescer stopped")
}

func (c *Coalescer) flushWorker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.flushPending()
		}
	}
}

func (c *Coalescer) flushPending() {
	c.mu.Lock()
	if len(c.pending) == 0 {
		c.mu.Unlock()
		return
	}
	markets := make([]models.MarketSnapshot, 0, len(c.order))
	for _, id := range c.order {
		markets = append(markets, c.pending[id])
	}
	c.pending = make(map[string]models.MarketSnapshot)
	c.order = nil
	c.mu.Unlock()

	batch := models.MarketBatch{
		BatchID:   uuid.New().String(),
		Markets:   markets,
		FlushedAt: time.Now(),
	}
	if c.flush != nil {
		c.flush(batch)
	}
}
