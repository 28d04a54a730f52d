// Package metrics exposes bridge process metrics on a private Prometheus
// registry. The registry is only reachable over the optional metrics
// listener; it never touches the stdio transport.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	reg *prometheus.Registry

	FramesDecoded   prometheus.Counter
	FramesEncoded   prometheus.Counter
	FramingErrors   prometheus.Counter
	ParseErrors     prometheus.Counter
	RequestsTotal   *prometheus.CounterVec
	InFlight        prometheus.Gauge
	ProbesTotal     *prometheus.CounterVec
	LaunchesTotal   prometheus.Counter
	ForwardDuration prometheus.Histogram
}

// New builds the bridge metric set on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		reg: reg,
		FramesDecoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_decoded_total",
			Help: "Complete frames decoded from the input stream.",
		}),
		FramesEncoded: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_frames_encoded_total",
			Help: "Frames written to the output stream.",
		}),
		FramingErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_framing_errors_total",
			Help: "Recoverable framing failures on the input stream.",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_parse_errors_total",
			Help: "Well-framed payloads that were not valid JSON-RPC.",
		}),
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_requests_total",
			Help: "Inbound requests by method and outcome.",
		}, []string{"method", "outcome"}),
		InFlight: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bridge_inflight_requests",
			Help: "Queries currently awaiting a backend-derived response.",
		}),
		ProbesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bridge_backend_probes_total",
			Help: "Health probes by result.",
		}, []string{"result"}),
		LaunchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "bridge_backend_launches_total",
			Help: "Orchestration start commands issued.",
		}),
		ForwardDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "bridge_forward_duration_seconds",
			Help:    "Latency of forwarded backend calls.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
	}
}

// Serve exposes /metrics on addr until ctx is done. It is a supporting
// surface only; failures are reported, never fatal to the bridge.
func (m *Metrics) Serve(ctx context.Context, addr string, log *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{}))

	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("metrics.listen", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Warn("metrics.listen.fail", slog.String("err", err.Error()))
	}
}
