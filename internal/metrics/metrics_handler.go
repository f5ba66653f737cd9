package metrics

import (
	"sync"
	"time"

	"betflow/logger"
)

// Metric is one structured metric event as seen by in-process subscribers,
// independent of whatever Prometheus or the log stream records.
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler receives every metric emitted through EmitMetric. Handlers
// run on the emitting goroutine, so they must return quickly.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler for later removal.
type MetricHandlerID uint64

type handlerRegistry struct {
	mu       sync.RWMutex
	handlers map[MetricHandlerID]MetricHandler
	nextID   MetricHandlerID
}

var registry = handlerRegistry{handlers: make(map[MetricHandlerID]MetricHandler)}

// RegisterMetricHandler subscribes a handler to the metric stream. A nil
// handler returns the zero identifier and is never invoked.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}

	registry.mu.Lock()
	defer registry.mu.Unlock()

	registry.nextID++
	id := registry.nextID
	registry.handlers[id] = handler
	return id
}

// UnregisterMetricHandler drops a previously registered handler.
func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}

	registry.mu.Lock()
	delete(registry.handlers, id)
	registry.mu.Unlock()
}

// recordMetric logs the metric as a structured entry and fans it out to
// registered handlers. A metric without a name is silently discarded.
func recordMetric(log *logger.Log, component, name string, value interface{}, metricType string, fields logger.Fields) (Metric, bool) {
	if name == "" {
		return Metric{}, false
	}
	if metricType == "" {
		metricType = "counter"
	}
	if log == nil {
		log = logger.GetLogger()
	}

	userFields := cloneFields(fields)

	logFields := make(logger.Fields, len(userFields)+3)
	for k, v := range userFields {
		logFields[k] = v
	}
	logFields["metric"] = name
	logFields["metric_type"] = metricType
	logFields["value"] = value

	log.WithComponent(component).WithFields(logFields).Info("metric")

	metric := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    userFields,
	}

	dispatchMetric(metric)
	return metric, true
}

func dispatchMetric(metric Metric) {
	registry.mu.RLock()
	handlers := make([]MetricHandler, 0, len(registry.handlers))
	for _, handler := range registry.handlers {
		handlers = append(handlers, handler)
	}
	registry.mu.RUnlock()

	for _, handler := range handlers {
		handler(metric)
	}
}

// cloneFields copies the caller's fields so handlers never share storage
// with the emitting component.
func cloneFields(fields logger.Fields) logger.Fields {
	copied := make(logger.Fields, len(fields))
	for k, v := range fields {
		copied[k] = v
	}
	return copied
}
