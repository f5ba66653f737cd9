package metrics

import "betflow/logger"

// DropMetric identifies the metric name emitted when channel messages are dropped.
type DropMetric string

const (
	// DropMetricFrame records dropped raw push frames before dispatch.
	DropMetricFrame DropMetric = "frame_messages_dropped"
	// DropMetricBatch records dropped coalesced batches after flush.
	DropMetricBatch DropMetric = "batch_messages_dropped"
)

// EmitDropMetric logs and emits a metric representing a dropped channel
// message. The value is always one, so callers invoke this helper per
// dropped message. Optional metadata (event, source, stage) is added to
// the metric fields when provided for downstream aggregation.
func EmitDropMetric(log *logger.Log, metric DropMetric, event, source, stage string) {
	if !IsFeatureEnabled(FeatureDrops) {
		return
	}

	fields := logger.Fields{}
	if event != "" {
		fields["event"] = event
	}
	if source != "" {
		fields["source"] = source
	}
	if stage != "" {
		fields["stage"] = stage
	}

	EmitMetric(log, "channel_drops", string(metric), 1, "counter", fields)
}
