package backend

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/asrgot/mcp-bridge/internal/metrics"
)

var errNotReady = errors.New("backend not ready")

// Supervisor owns the detect → launch → poll → ready/failed lifecycle. It is
// safe for concurrent use; overlapping EnsureRunning calls coalesce into a
// single launch attempt.
type Supervisor struct {
	prober  *Prober
	orch    Orchestrator
	tracker *Tracker

	attempts int
	delay    time.Duration

	group singleflight.Group
	log   *slog.Logger
	m     *metrics.Metrics
}

// NewSupervisor wires a Supervisor over the given prober and orchestrator.
// attempts is the total post-launch poll budget; delay separates attempts.
func NewSupervisor(prober *Prober, orch Orchestrator, tracker *Tracker, attempts int, delay time.Duration, m *metrics.Metrics, log *slog.Logger) *Supervisor {
	return &Supervisor{
		prober:   prober,
		orch:     orch,
		tracker:  tracker,
		attempts: attempts,
		delay:    delay,
		log:      log,
		m:        m,
	}
}

// Tracker exposes the shared lifecycle state.
func (s *Supervisor) Tracker() *Tracker { return s.tracker }

// EnsureRunning probes the backend and, if it is not healthy, launches it
// once and polls until it is ready or the budget is exhausted. A healthy
// backend is never double-launched. Returns true once the backend is READY.
func (s *Supervisor) EnsureRunning(ctx context.Context) bool {
	v, _, _ := s.group.Do("ensure", func() (any, error) {
		return s.ensure(ctx), nil
	})
	ready, _ := v.(bool)
	return ready
}

func (s *Supervisor) ensure(ctx context.Context) bool {
	if s.tracker.Stopped() {
		return false
	}

	s.tracker.Set(StateChecking)
	if s.prober.Probe(ctx) == StatusReady {
		s.tracker.Set(StateReady)
		s.log.Info("backend.ready", slog.Bool("launched", false))
		return true
	}

	launchID := uuid.NewString()
	s.tracker.Set(StateLaunching)
	s.log.Info("backend.launch.start", slog.String("launch_id", launchID))
	s.m.LaunchesTotal.Inc()

	// The launch command returning, success or failure, leads back to
	// probing; a failed start may still race a backend that another party is
	// bringing up.
	if err := s.orch.Start(ctx); err != nil {
		s.log.Warn("backend.launch.cmd.fail",
			slog.String("launch_id", launchID),
			slog.String("err", err.Error()),
		)
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(s.delay), uint64(s.attempts-1)),
		ctx,
	)
	err := backoff.Retry(func() error {
		if s.tracker.Stopped() {
			return backoff.Permanent(errNotReady)
		}
		s.tracker.Set(StateChecking)
		if s.prober.Probe(ctx) == StatusReady {
			return nil
		}
		return errNotReady
	}, bo)

	if err != nil {
		s.tracker.Set(StateUnreachable)
		s.log.Error("backend.launch.exhausted",
			slog.String("launch_id", launchID),
			slog.Int("attempts", s.attempts),
		)
		return false
	}

	s.tracker.Set(StateReady)
	s.log.Info("backend.ready", slog.Bool("launched", true), slog.String("launch_id", launchID))
	return true
}

// Stop marks the backend STOPPED and issues the orchestration stop command.
// Teardown is best-effort: failures are logged, never escalated.
func (s *Supervisor) Stop(ctx context.Context) {
	s.tracker.Set(StateStopped)
	if err := s.orch.Stop(ctx); err != nil {
		s.log.Warn("backend.stop.fail", slog.String("err", err.Error()))
		return
	}
	s.log.Info("backend.stop.ok")
}
