package slogutil

import (
	"io"
	"log/slog"

	"unsafegraph/internal/config"
)

// Subsystem names used for per-subsystem level overrides.
const (
	SubsystemResolver  = "resolver"
	SubsystemScanner   = "scanner"
	SubsystemGraph     = "graph"
	SubsystemToolchain = "toolchain"
	SubsystemAudit     = "audit"
)

// LoggerFactory creates appropriately configured loggers for different subsystems.
// It respects the configuration precedence: CLI flags > subsystem config > global config.
type LoggerFactory struct {
	config   *config.Config
	cliLevel *slog.Level
	console  io.Writer
	file     slog.Handler
	closers  []io.Closer
}

// NewLoggerFactory creates a new logger factory writing to console, plus the
// configured log file if any. cliLevel is nil when no CLI override was given.
func NewLoggerFactory(cfg *config.Config, cliLevel *slog.Level, console io.Writer) *LoggerFactory {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	f := &LoggerFactory{
		config:   cfg,
		cliLevel: cliLevel,
		console:  console,
	}

	if cfg.Logging.File != "" {
		w := NewRotatingWriter(cfg.Logging.File, RotationOptions{
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		// The file always records at debug so a quiet console run still
		// leaves a complete trail.
		f.file = NewLineHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
		f.closers = append(f.closers, w)
	}

	return f
}

// Logger returns a logger for the named subsystem.
func (f *LoggerFactory) Logger(subsystem string) *slog.Logger {
	var handler slog.Handler
	if f.console != nil {
		handler = NewLineHandler(f.console, &slog.HandlerOptions{Level: f.effectiveLevel(subsystem)})
	}

	switch {
	case handler != nil && f.file != nil:
		handler = NewTeeHandler(handler, f.file)
	case handler == nil && f.file != nil:
		handler = f.file
	case handler == nil:
		return NewDiscardLogger()
	}

	if subsystem == "" {
		return slog.New(handler)
	}
	return slog.New(handler).With(SubsystemKey, subsystem)
}

// effectiveLevel returns the effective log level for a subsystem.
// Precedence: CLI flag > subsystem config > global config > default (warn)
func (f *LoggerFactory) effectiveLevel(subsystem string) slog.Level {
	if f.cliLevel != nil {
		return *f.cliLevel
	}
	if lvl, ok := f.config.Logging.Subsystems[subsystem]; ok && lvl != "" {
		return LevelFromString(lvl)
	}
	if f.config.Logging.Level != "" {
		return LevelFromString(f.config.Logging.Level)
	}
	return slog.LevelWarn
}

// Close closes all open log files.
func (f *LoggerFactory) Close() error {
	var firstErr error
	for _, c := range f.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.closers = nil
	return firstErr
}
