package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func TestNopSink(t *testing.T) {
	var s Sink = NopSink{}
	if err := s.Emit("loss", 0.5, 1); err != nil {
		t.Errorf("NopSink.Emit returned %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("NopSink.Close returned %v", err)
	}
}

func TestPromSinkExposition(t *testing.T) {
	// Exercise the gauge wiring directly against a registry rather than
	// binding a listener port.
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

	sink := &PromSink{scalars: scalars, step: step}
	if err := sink.Emit("loss", 0.125, 7); err != nil {
		t.Fatalf("failed to emit: %v", err)
	}
	if err := sink.Emit("queue_depth", 3, 7); err != nil {
		t.Fatalf("failed to emit: %v", err)
	}

	srv := httptest.NewServer(promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("failed to scrape: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read exposition: %v", err)
	}

	text := string(body)
	for _, want := range []string{
		`trainer_scalar{metric="loss"} 0.125`,
		`trainer_scalar{metric="queue_depth"} 3`,
		`trainer_step 7`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("exposition missing %q:\n%s", want, text)
		}
	}
}
