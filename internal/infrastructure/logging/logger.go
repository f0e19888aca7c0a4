package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/tiltlogic/tiltlogic-core/internal/infrastructure/config"
)

// Logger wraps slog.Logger for the show engine. Every record carries
// the service name and build version; subsystems derive child loggers
// with With so their records carry stable context (playlist name,
// instance id) without repeating it at each call site.
//
// Safe for concurrent use; the control loop and the API goroutines
// share one instance.
type Logger struct {
	*slog.Logger
}

// New builds a Logger from the logging section of config.yaml.
//
// Parameters:
//   - cfg: Output, format (json or text), and minimum level
//   - version: Build version, attached to every record
//
// Returns:
//   - *Logger: Configured logger ready for use
func New(cfg config.LoggingConfig, version string) *Logger {
	var output io.Writer = os.Stdout
	if strings.EqualFold(cfg.Output, "stderr") {
		output = os.Stderr
	}

	handler := newHandler(cfg, output).WithAttrs([]slog.Attr{
		slog.String("service", "tiltlogic"),
		slog.String("version", version),
	})

	return &Logger{Logger: slog.New(handler)}
}

// newHandler picks the record format: JSON in production, text when a
// human is watching the console.
func newHandler(cfg config.LoggingConfig, output io.Writer) slog.Handler {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(output, opts)
	}
	return slog.NewJSONHandler(output, opts)
}

// parseLevel maps a config level string to slog.Level. Unrecognised
// values fall back to info rather than failing startup.
func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// With returns a child Logger carrying additional default attributes.
//
// Example:
//
//	log := logger.With("show", in.Name(), "instance", in.ID())
//	log.Debug("step fired", "step", next) // carries show and instance
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// Default returns a JSON stdout logger at info level, for the window
// during startup before the configuration file has been read.
func Default() *Logger {
	return New(config.LoggingConfig{
		Level:  "info",
		Format: "json",
		Output: "stdout",
	}, "dev")
}
