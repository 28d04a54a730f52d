package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
)

// Orchestrator is the capability that brings the backend process group up
// and down. The bridge never hard-codes how that happens; the hosting
// environment supplies an implementation and both operations are expected to
// be idempotent.
type Orchestrator interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ComposeOrchestrator starts and stops the backend via an external
// docker-compose style command run in the project directory.
type ComposeOrchestrator struct {
	bin string
	dir string
	log *slog.Logger
}

var _ Orchestrator = (*ComposeOrchestrator)(nil)

// NewComposeOrchestrator builds an orchestrator invoking bin (for example
// "docker-compose") with dir as the working directory.
func NewComposeOrchestrator(bin, dir string, log *slog.Logger) *ComposeOrchestrator {
	return &ComposeOrchestrator{bin: bin, dir: dir, log: log}
}

// Start brings the backend containers up detached.
func (o *ComposeOrchestrator) Start(ctx context.Context) error {
	return o.run(ctx, "up", "--detach")
}

// Stop tears the backend containers down.
func (o *ComposeOrchestrator) Stop(ctx context.Context) error {
	return o.run(ctx, "down")
}

func (o *ComposeOrchestrator) run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, o.bin, args...)
	cmd.Dir = o.dir

	o.log.Info("orchestrator.run",
		slog.String("bin", o.bin),
		slog.String("args", fmt.Sprint(args)),
		slog.String("dir", o.dir),
	)

	out, err := cmd.CombinedOutput()
	if err != nil {
		o.log.Warn("orchestrator.run.fail",
			slog.String("bin", o.bin),
			slog.String("err", err.Error()),
			slog.String("output", string(out)),
		)
		return fmt.Errorf("run %s %v: %w", o.bin, args, err)
	}
	return nil
}
