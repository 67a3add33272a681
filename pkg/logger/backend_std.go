package logger

import "log/slog"

func newStdHandler(cfg Config) slog.Handler {
	level := cfg.Level
	if cfg.Debug && cfg.Level == 0 {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}
	if cfg.Env != EnvDev {
		return slog.NewJSONHandler(cfg.Output, opts)
	}
	return slog.NewTextHandler(cfg.Output, opts)
}
