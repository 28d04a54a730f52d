package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/asrgot/mcp-bridge/internal/metrics"
)

// Status is the result of a single health probe.
type Status int

const (
	StatusReady Status = iota
	StatusUnreachable
)

func (s Status) String() string {
	if s == StatusReady {
		return "ready"
	}
	return "unreachable"
}

const healthPath = "/health"

// Prober performs bounded single-shot health checks against the backend's
// health endpoint. It never returns an error: network failure and non-2xx
// status both map to StatusUnreachable.
type Prober struct {
	url     string
	timeout time.Duration
	hc      *http.Client
	log     *slog.Logger
	m       *metrics.Metrics
}

// NewProber builds a Prober for the backend at baseURL. Each probe is bounded
// by timeout regardless of the caller's context.
func NewProber(baseURL string, timeout time.Duration, m *metrics.Metrics, log *slog.Logger) *Prober {
	return &Prober{
		url:     baseURL + healthPath,
		timeout: timeout,
		hc:      &http.Client{Timeout: timeout},
		log:     log,
		m:       m,
	}
}

// Probe issues one bounded health check.
func (p *Prober) Probe(ctx context.Context) Status {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	status := p.probe(ctx)
	p.m.ProbesTotal.WithLabelValues(status.String()).Inc()
	p.log.Debug("backend.probe", slog.String("result", status.String()))
	return status
}

func (p *Prober) probe(ctx context.Context) Status {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return StatusUnreachable
	}
	resp, err := p.hc.Do(req)
	if err != nil {
		return StatusUnreachable
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusUnreachable
	}
	return StatusReady
}
