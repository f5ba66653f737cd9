package channel

import (
	"context"
	"sync"

	"betflow/logger"
	"betflow/models"
)

type ChannelStats struct {
	FramesSent    int64
	FramesDropped int64
	BatchesSent   int64
	BatchesDrop   int64
}

// Channels carries raw frames from the stream manager and the pollers into
// the dispatcher, and coalesced market batches from the coalescer into the
// archiver. Sends are non-blocking; a full buffer drops the message and
// bumps a counter rather than stalling a reader.
type Channels struct {
	Frames  chan models.RawFrame
	Batches chan models.MarketBatch

	stats      ChannelStats
	statsMutex sync.RWMutex
	log        *logger.Log
}

func NewChannels(frameBufferSize, batchBufferSize int) *Channels {
	log := logger.GetLogger()
	c := &Channels{
		Frames:  make(chan models.RawFrame, frameBufferSize),
		Batches: make(chan models.MarketBatch, batchBufferSize),
		log:     log,
	}

	log.WithComponent("channels").WithFields(logger.Fields{
		"frame_buffer_size": frameBufferSize,
		"batch_buffer_size": batchBufferSize,
	}).Info("channels initialized")

	return c
}

func (c *Channels) Close() {
	close(c.Frames)
	close(c.Batches)
	c.log.WithComponent("channels").Info("channels closed")
}

func (c *Channels) SendFrame(ctx context.Context, f models.RawFrame) bool {
	select {
	case c.Frames <- f:
		c.statsMutex.Lock()
		c.stats.FramesSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.FramesDropped++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) SendBatch(ctx context.Context, b models.MarketBatch) bool {
	select {
	case c.Batches <- b:
		c.statsMutex.Lock()
		c.stats.BatchesSent++
		c.statsMutex.Unlock()
		return true
	case <-ctx.Done():
		return false
	default:
		c.statsMutex.Lock()
		c.stats.BatchesDrop++
		c.statsMutex.Unlock()
		return false
	}
}

func (c *Channels) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}
