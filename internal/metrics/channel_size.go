package metrics

import (
	"context"
	"time"

	"betflow/internal/channel"
	"betflow/logger"
)

// StartChannelSizeMetrics emits occupancy gauges for the frame and batch
// channel buffers. Metrics are logged every interval until the context is
// cancelled. When interval <= 0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, channels *channel.Channels, interval time.Duration) {
	if !IsFeatureEnabled(FeatureChannelSize) {
		return
	}
	if channels == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)
	component := "channel_buffers"

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if channels.Frames != nil {
					EmitMetric(log, component, "frame_buffer_length", len(channels.Frames), "gauge", logger.Fields{
						"buffer":   "frames",
						"capacity": cap(channels.Frames),
					})
				}
				if channels.Batches != nil {
					EmitMetric(log, component, "batch_buffer_length", len(channels.Batches), "gauge", logger.Fields{
						"buffer":   "batches",
						"capacity": cap(channels.Batches),
					})
				}
			}
		}
	}()
}
