package metrics

import (
	"betflow/logger"
)

// EmitMetric logs the metric, dispatches it to registered handlers, and
// mirrors numeric values into the generic Prometheus vectors.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	metricEvent, ok := recordMetric(log, component, metric, value, metricType, fields)
	if !ok {
		return
	}

	numericValue, ok := toFloat64(metricEvent.Value)
	if !ok {
		logger.GetLogger().WithComponent("metrics").WithFields(logger.Fields{"metric": metricEvent.Name}).Debug("non-numeric metric value; skipping publish")
		return
	}

	switch metricEvent.Type {
	case "gauge":
		if genericGauges != nil {
			genericGauges.WithLabelValues(metricEvent.Component, metricEvent.Name).Set(numericValue)
		}
	default:
		if genericCounts != nil && numericValue > 0 {
			genericCounts.WithLabelValues(metricEvent.Component, metricEvent.Name).Add(numericValue)
		}
	}
}

func toFloat64(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case float32:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}
