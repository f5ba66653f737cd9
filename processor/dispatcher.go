package processor

import (
	"context"
	"fmt"
	"sync"

	"betflow/internal/coalesce"
	"betflow/internal/feed"
	"betflow/internal/market"
	"betflow/internal/metrics"
	"betflow/internal/normalize"
	"betflow/internal/position"
	"betflow/logger"
	"betflow/models"
)

// Dispatcher is the single consumer of the raw frame channel. It classifies
// each frame by event name, normalizes the payload, and folds the result
// into the feed store, odds book, or position state. A malformed payload is
// counted and dropped; it never stops the worker.
type Dispatcher struct {
	frames     <-chan models.RawFrame
	classifier *normalize.Classifier
	feed       *feed.Store
	book       *market.Book
	positions  *position.Reconciler
	coalescer  *coalesce.Coalescer

	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log

	// dispatchMu keeps context switches from interleaving with a frame that
	// is mid-fold, so a reset is always a clean cut between frames.
	dispatchMu sync.Mutex
}

// NewDispatcher creates a dispatcher wired to the shared engines.
func NewDispatcher(frames <-chan models.RawFrame, classifier *normalize.Classifier, fd *feed.Store, book *market.Book, positions *position.Reconciler, coalescer *coalesce.Coalescer) *Dispatcher {
	return &Dispatcher{
		frames:     frames,
		classifier: classifier,
		feed:       fd,
		book:       book,
		positions:  positions,
		coalescer:  coalescer,
		wg:         &sync.WaitGroup{},
		log:        logger.GetLogger(),
	}
}

// Start launches the frame worker. Frames are handled by one goroutine so
// updates fold in arrival order.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	if d.running {
		d.mu.Unlock()
		return fmt.Errorf("dispatcher already running")
	}
	d.running = true
	d.ctx = ctx
	d.mu.Unlock()

	d.log.WithComponent("dispatcher").Info("starting dispatcher")

	d.wg.Add(1)
	go d.worker()
	return nil
}

// Stop waits for the worker to exit.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.running {
		d.mu.Unlock()
		return
	}
	d.running = false
	d.mu.Unlock()

	d.wg.Wait()
	d.log.WithComponent("dispatcher").Info("dispatcher stopped")
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()

	for {
		select {
		case <-d.ctx.Done():
			return
		case f, ok := <-d.frames:
			if !ok {
				return
			}
			d.handleFrame(f)
		}
	}
}

func (d *Dispatcher) handleFrame(f models.RawFrame) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	kind := d.classifier.Kind(f.Event)
	metrics.IncrementFrame(kind.String())

	log := d.log.WithComponent("dispatcher").WithFields(logger.Fields{
		"event":  f.Event,
		"kind":   kind.String(),
		"source": string(f.Source),
	})

	switch kind {
	case normalize.KindLiveList:
		matches, ok := normalize.ParseLiveList(f.Data)
		if !ok {
			metrics.IncrementFrameError(kind.String())
			log.Warn("unrecognized live list payload")
			return
		}
		d.feed.ApplyPushList(matches)

	case normalize.KindRealtime:
		m, ok := normalize.ParseRealtime(f.Data)
		if !ok {
			metrics.IncrementFrameError(kind.String())
			log.Warn("realtime frame carried no usable match")
			return
		}
		d.feed.ApplyRealtime(m)

	case normalize.KindOdds:
		applied := d.book.Apply(f.Data)
		if len(applied) == 0 {
			metrics.IncrementFrameError(kind.String())
			log.Debug("odds frame carried no markets")
			return
		}
		for _, m := range applied {
			d.coalescer.Offer(m)
		}
		metrics.AddMarketsMerged(len(applied))

	default:
		metrics.IncrementFrameError(kind.String())
		log.Debug("dropping frame with unknown event")
	}
}

// SetContext switches the active account context. Everything keyed to the
// previous context is cleared wholesale; switching to the current context is
// a no-op so a tab refresh does not wipe live state.
func (d *Dispatcher) SetContext(contextID string) {
	d.dispatchMu.Lock()
	defer d.dispatchMu.Unlock()

	if contextID == d.positions.ContextID() {
		return
	}

	d.log.WithComponent("dispatcher").WithFields(logger.Fields{
		"context_id": contextID,
	}).Info("switching context")

	d.positions.ResetForContext(contextID)
	d.book.Reset()
	d.feed.Reset()
	d.coalescer.Reset()
}
