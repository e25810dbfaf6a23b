// SPDX-License-Identifier: MIT
// Package metrics exposes pipeline counters in Prometheus format.
//
// All recording methods are safe on a nil *Metrics, so components can be
// built without metrics in tests. Counters used from the render callback are
// resolved once at construction; recording them is a single atomic add.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"fractalwave/internal/log"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fractalwave"

// Metrics contains the collectors for the playback pipeline.
type Metrics struct {
	registry *prometheus.Registry

	renderCycles prometheus.Counter
	analyses     *prometheus.CounterVec
	publishes    *prometheus.CounterVec
	chains       *prometheus.CounterVec
	trackLoads   *prometheus.CounterVec
	frames       *prometheus.CounterVec
	vizActive    prometheus.Gauge

	// Pre-resolved children for the render path.
	analysesRun     prometheus.Counter
	analysesSkipped prometheus.Counter
	publishesOK     prometheus.Counter
	publishesFailed prometheus.Counter

	collectors []prometheus.Collector
}

// New creates the collectors and registers them with registry. A nil
// registry gets a fresh one.
func New(registry *prometheus.Registry) (*Metrics, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("registering metrics: %w", err)
	}
	return m, nil
}

func (m *Metrics) initMetrics() {
	m.renderCycles = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "render_cycles_total",
		Help:      "Number of output blocks rendered by the audio callback",
	})
	m.analyses = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "analysis_total",
		Help:      "Spectral analysis attempts by result (run, skipped)",
	}, []string{"result"})
	m.publishes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "shm_publishes_total",
		Help:      "Shared memory band publishes by result (ok, failed)",
	}, []string{"result"})
	m.chains = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "task_chains_total",
		Help:      "Completed task chains by chain name and result (finished, failed)",
	}, []string{"chain", "result"})
	m.trackLoads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "track_loads_total",
		Help:      "Track load attempts by result (ok, failed)",
	}, []string{"result"})
	m.frames = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "transport_frames_total",
		Help:      "Band frames sent to network transports by transport and result",
	}, []string{"transport", "result"})
	m.vizActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "visualization_active",
		Help:      "1 while an external renderer is attached",
	})

	m.analysesRun = m.analyses.WithLabelValues("run")
	m.analysesSkipped = m.analyses.WithLabelValues("skipped")
	m.publishesOK = m.publishes.WithLabelValues("ok")
	m.publishesFailed = m.publishes.WithLabelValues("failed")

	m.collectors = []prometheus.Collector{
		m.renderCycles, m.analyses, m.publishes, m.chains, m.trackLoads, m.frames, m.vizActive,
	}
}

// Describe implements the Collector interface
func (m *Metrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the Collector interface
func (m *Metrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}

// Registry returns the registry the collectors are registered with.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// --- Render path ---

func (m *Metrics) RenderCycle() {
	if m != nil {
		m.renderCycles.Inc()
	}
}

// Analysis records whether an analysis consumed a window.
func (m *Metrics) Analysis(ran bool) {
	if m == nil {
		return
	}
	if ran {
		m.analysesRun.Inc()
	} else {
		m.analysesSkipped.Inc()
	}
}

func (m *Metrics) Publish(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.publishesOK.Inc()
	} else {
		m.publishesFailed.Inc()
	}
}

// --- Control and worker paths ---

func (m *Metrics) ChainFinished(chain string) {
	if m != nil {
		m.chains.WithLabelValues(chain, "finished").Inc()
	}
}

func (m *Metrics) ChainFailed(chain string) {
	if m != nil {
		m.chains.WithLabelValues(chain, "failed").Inc()
	}
}

func (m *Metrics) TrackLoad(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.trackLoads.WithLabelValues(result).Inc()
}

func (m *Metrics) FrameSent(transport string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.frames.WithLabelValues(transport, result).Inc()
}

func (m *Metrics) VisualizationActive(active bool) {
	if m == nil {
		return
	}
	if active {
		m.vizActive.Set(1)
	} else {
		m.vizActive.Set(0)
	}
}

// --- HTTP ---

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("Metrics: serving on http://%s/metrics", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}
