package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	ormerrors "github.com/conduit-lang/objectserver/internal/orm/errors"
)

// Collector holds the Prometheus metrics of the engine. A nil collector
// records nothing.
type Collector struct {
	// Call metrics
	CallsTotal    *prometheus.CounterVec
	CallDuration  *prometheus.HistogramVec
	CallsInFlight prometheus.Gauge

	// Catalog metrics
	SyncWrites *prometheus.CounterVec
}

// NewCollector creates a collector registered with the default registry
func NewCollector() *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewCollectorWithRegistry creates a collector registered with reg
func NewCollectorWithRegistry(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		CallsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "objectserver",
				Name:      "calls_total",
				Help:      "Total number of service calls by outcome code",
			},
			[]string{"model", "method", "code"},
		),
		CallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "objectserver",
				Name:      "call_duration_seconds",
				Help:      "Service call duration in seconds, transaction included",
				Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"model", "method"},
		),
		CallsInFlight: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "objectserver",
				Name:      "calls_in_flight",
				Help:      "Number of service calls currently running",
			},
		),
		SyncWrites: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "objectserver",
				Name:      "catalog_writes_total",
				Help:      "Total number of catalog rows written by schema synchronization",
			},
			[]string{"model"},
		),
	}
}

func (c *Collector) begin() {
	if c == nil {
		return
	}
	c.CallsInFlight.Inc()
}

// observe records a finished call. Successful calls are coded "ok".
func (c *Collector) observe(model, method string, err error, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.CallsInFlight.Dec()
	code := "ok"
	if err != nil {
		code = string(ormerrors.CodeOf(err))
	}
	c.CallsTotal.WithLabelValues(model, method, code).Inc()
	c.CallDuration.WithLabelValues(model, method).Observe(elapsed.Seconds())
}

func (c *Collector) synced(model string, writes int) {
	if c == nil || writes == 0 {
		return
	}
	c.SyncWrites.WithLabelValues(model).Add(float64(writes))
}
