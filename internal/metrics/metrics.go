// Registers:
//
//	#Betflow_frames_total
//	#Betflow_frame_errors_total
//	#Betflow_markets_merged_total
//	#Betflow_batches_flushed_total
//	#go_* and process_* system metrics
//
// Exposes them on the configured address (default :2112/metrics) using the
// Prometheus HTTP handler.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once           sync.Once
	framesTotal    *prometheus.CounterVec
	frameErrors    *prometheus.CounterVec
	marketsMerged  prometheus.Counter
	batchesFlushed prometheus.Counter
	genericGauges  *prometheus.GaugeVec
	genericCounts  *prometheus.CounterVec
)

func Init(addr string) {
	once.Do(func() {
		if addr == "" {
			addr = "0.0.0.0:2112"
		}

		framesTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "Betflow_frames_total",
				Help: "Number of push frames dispatched, by frame kind",
			},
			[]string{"kind"},
		)
		frameErrors = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "Betflow_frame_errors_total",
				Help: "Number of frames dropped for schema mismatch or unknown event",
			},
			[]string{"kind"},
		)
		marketsMerged = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "Betflow_markets_merged_total",
			Help: "Number of market snapshots folded into the odds book",
		})
		batchesFlushed = prometheus.NewCounter(prometheus.CounterOpts{
			Name: "Betflow_batches_flushed_total",
			Help: "Number of coalesced market batches flushed downstream",
		})
		genericGauges = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "Betflow_gauge",
				Help: "Generic gauge metrics emitted through EmitMetric",
			},
			[]string{"component", "metric"},
		)
		genericCounts = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "Betflow_counter_total",
				Help: "Generic counter metrics emitted through EmitMetric",
			},
			[]string{"component", "metric"},
		)

		_ = prometheus.Register(framesTotal)
		_ = prometheus.Register(frameErrors)
		_ = prometheus.Register(marketsMerged)
		_ = prometheus.Register(batchesFlushed)
		_ = prometheus.Register(genericGauges)
		_ = prometheus.Register(genericCounts)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

		go func() {
			http.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(addr, nil); err != nil {
				panic("metrics server failed: " + err.Error())
			}
		}()
	})
}

// IncrementFrame increases the dispatched-frame counter for a frame kind.
func IncrementFrame(kind string) {
	if framesTotal != nil {
		framesTotal.WithLabelValues(kind).Inc()
	}
}

// IncrementFrameError increases the dropped-frame counter for a frame kind.
func IncrementFrameError(kind string) {
	if frameErrors != nil {
		frameErrors.WithLabelValues(kind).Inc()
	}
}

// AddMarketsMerged adds to the merged-market counter.
func AddMarketsMerged(n int) {
	if marketsMerged != nil && n > 0 {
		marketsMerged.Add(float64(n))
	}
}

// IncrementBatchFlushed increases the flushed-batch counter.
func IncrementBatchFlushed() {
	if batchesFlushed != nil {
		batchesFlushed.Inc()
	}
}
