package metrics

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Sink is the write-only scalar time-series emitter the learner reports
// through: metric name, numeric value, train step index. Emit errors
// are transient observability failures and must never affect training.
type Sink interface {
	Emit(name string, value float64, step int) error
	Close() error
}

// NopSink discards every scalar. Used when no metrics address is
// configured.
type NopSink struct{}

func (NopSink) Emit(name string, value float64, step int) error { return nil }
func (NopSink) Close() error                                    { return nil }

// PromSink exposes emitted scalars as prometheus gauges on an HTTP
// endpoint. Gauges carry the latest value per metric name; the step
// index is exported as its own gauge so dashboards can correlate.
type PromSink struct {
	scalars *prometheus.GaugeVec
	step    prometheus.Gauge
	server  *http.Server
}

// NewPromSink registers the trainer gauges on a fresh registry and
// serves them at addr under /metrics.
func NewPromSink(addr string) *PromSink {
	registry := prometheus.NewRegistry()

	scalars := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "trainer_scalar",
		Help: "Latest value of a learner-reported training scalar.",
	}, []string{"metric"})
	step := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "trainer_step",
		Help: "Latest training step the learner reported scalars for.",
	})
	registry.MustRegister(scalars, step)

	srvMux := http.NewServeMux()
	srvMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	server := &http.Server{Addr: addr, Handler: srvMux}

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("[metrics] server stopped: %v", err)
		}
	}()

	return &PromSink{
		scalars: scalars,
		step:    step,
		server:  server,
	}
}

func (s *PromSink) Emit(name string, value float64, step int) error {
	gauge, err := s.scalars.GetMetricWithLabelValues(name)
	if err != nil {
		return err
	}
	gauge.Set(value)
	s.step.Set(float64(step))
	return nil
}

func (s *PromSink) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}
