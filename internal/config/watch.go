package config

import (
	"context"
	"log/slog"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Watch monitors the YAML config file at path and invokes onReload with a
// freshly loaded Config on every change. Environment precedence is preserved
// on reload. Watch returns once ctx is done; a file that cannot be reloaded
// keeps the previous configuration in effect.
func Watch(ctx context.Context, path string, log *slog.Logger, onReload func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(path); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
				continue
			}
			cfg, err := Load(path)
			if err != nil {
				log.Warn("config.reload.fail", slog.String("err", err.Error()))
				continue
			}
			log.Info("config.reload.ok", slog.String("path", path))
			onReload(cfg)
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			log.Warn("config.watch.err", slog.String("err", err.Error()))
		}
	}
}

// ParseLevel maps a config log level string onto a slog.Level. Unknown values
// fall back to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
