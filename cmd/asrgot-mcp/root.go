package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/asrgot/mcp-bridge/backend"
	"github.com/asrgot/mcp-bridge/bridge"
	"github.com/asrgot/mcp-bridge/internal/config"
	"github.com/asrgot/mcp-bridge/internal/metrics"
)

// version is stamped at build time via -ldflags.
var version = "dev"

type serveFlags struct {
	configPath  string
	backendURL  string
	composeDir  string
	logFile     string
	logLevel    string
	metricsAddr string
}

func newRootCmd() *cobra.Command {
	flags := &serveFlags{}

	root := &cobra.Command{
		Use:   "asrgot-mcp",
		Short: "MCP stdio bridge for the ASR-GoT reasoning backend",
		Long: `asrgot-mcp speaks Content-Length framed JSON-RPC on stdin/stdout and
forwards reasoning queries to the ASR-GoT HTTP backend, bringing the
backend's containers up on demand.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "path to YAML config file (watched for reload)")
	pf.StringVar(&flags.backendURL, "backend-url", "", "base URL of the ASR-GoT backend")
	pf.StringVar(&flags.composeDir, "compose-dir", "", "docker-compose project directory for the backend")
	pf.StringVar(&flags.logFile, "log-file", "", "append-only diagnostics log file")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&flags.metricsAddr, "metrics-addr", "", "address to serve Prometheus metrics on (disabled when empty)")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, flags)
		},
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the bridge version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}

	root.AddCommand(serve, versionCmd)
	return root
}

func runServe(cmd *cobra.Command, flags *serveFlags) error {
	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	applyFlagOverrides(&cfg, flags)

	levelVar := new(slog.LevelVar)
	levelVar.Set(config.ParseLevel(cfg.LogLevel))

	log, closeLog, err := newLogger(cfg.LogFile, levelVar)
	if err != nil {
		return err
	}
	defer closeLog()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	if cfg.MetricsAddr != "" {
		go m.Serve(ctx, cfg.MetricsAddr, log)
	}

	tracker := backend.NewTracker()
	prober := backend.NewProber(cfg.BackendURL, cfg.ProbeTimeout, m, log)
	orch := backend.NewComposeOrchestrator(cfg.ComposeBin, cfg.ComposeDir, log)
	sup := backend.NewSupervisor(prober, orch, tracker, cfg.LaunchAttempts, cfg.LaunchDelay, m, log)

	session := bridge.NewSessionRef()
	client := backend.NewClient(cfg.BackendURL, log)
	fwd := bridge.NewForwarder(client, session, bridge.TimeoutLimits{
		Default: cfg.QueryTimeout,
		Min:     cfg.QueryTimeoutMin,
		Max:     cfg.QueryTimeoutMax,
	}, m, log)

	h := bridge.NewHandler(sup, fwd, session,
		bridge.WithLogger(log),
		bridge.WithMetrics(m),
	)

	if flags.configPath != "" {
		go func() {
			err := config.Watch(ctx, flags.configPath, log, func(next config.Config) {
				levelVar.Set(config.ParseLevel(next.LogLevel))
				fwd.SetDefaultTimeout(next.QueryTimeout)
			})
			if err != nil {
				log.Warn("config.watch.fail", slog.String("err", err.Error()))
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() { errCh <- h.Serve(ctx) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		// External signal: attempt best-effort backend teardown before exit.
		log.Info("signal.received")
		sup.Stop(context.Background())
		return nil
	}
}

func applyFlagOverrides(cfg *config.Config, flags *serveFlags) {
	if flags.backendURL != "" {
		cfg.BackendURL = flags.backendURL
	}
	if flags.composeDir != "" {
		cfg.ComposeDir = flags.composeDir
	}
	if flags.logFile != "" {
		cfg.LogFile = flags.logFile
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.metricsAddr != "" {
		cfg.MetricsAddr = flags.metricsAddr
	}
}

// newLogger builds the diagnostics sink: structured JSON to stderr, mirrored
// to an append-only file when configured. Stdout belongs to the transport
// and is never written to by the logger.
func newLogger(logFile string, level slog.Leveler) (*slog.Logger, func(), error) {
	var w io.Writer = os.Stderr
	closeLog := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		w = io.MultiWriter(os.Stderr, f)
		closeLog = func() { _ = f.Close() }
	}

	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(handler), closeLog, nil
}
