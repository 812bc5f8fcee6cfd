package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileSink describes an optional rotating log file written alongside stdout.
type FileSink struct {
	Path       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

type options struct {
	level slog.Leveler
	out   io.Writer
	file  *FileSink
}

// Option customises Setup.
type Option func(*options)

// WithLevel sets the minimum level emitted by the handler.
func WithLevel(level slog.Leveler) Option {
	return func(o *options) { o.level = level }
}

// WithOutput replaces stdout as the primary destination.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithFile tees log lines into a rotating file.
func WithFile(sink FileSink) Option {
	return func(o *options) {
		if strings.TrimSpace(sink.Path) == "" {
			return
		}
		o.file = &sink
	}
}

// ParseLevel maps a textual level onto slog levels, defaulting to info.
func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
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

func newRotator(sink *FileSink) *lumberjack.Logger {
	maxSize := sink.MaxSizeMB
	if maxSize <= 0 {
		maxSize = 100
	}
	return &lumberjack.Logger{
		Filename:   sink.Path,
		MaxSize:    maxSize,
		MaxBackups: sink.MaxBackups,
		MaxAge:     sink.MaxAgeDays,
		Compress:   sink.Compress,
	}
}

// Setup configures the standard library logger to emit structured JSON and returns
// the underlying slog.Logger for richer logging within the service. All log lines
// include the service name and environment when provided.
func Setup(service, env string, opts ...Option) *slog.Logger {
	cfg := options{level: slog.LevelInfo, out: os.Stdout}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	out := cfg.out
	if cfg.file != nil {
		out = io.MultiWriter(out, newRotator(cfg.file))
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{
		AddSource: false,
		Level:     cfg.level,
		ReplaceAttr: func(groups []string, attr slog.Attr) slog.Attr {
			if attr.Key == slog.TimeKey {
				return slog.Attr{Key: "timestamp", Value: attr.Value}
			}
			if attr.Key == slog.LevelKey {
				level := strings.ToUpper(attr.Value.String())
				return slog.String("severity", level)
			}
			if attr.Key == slog.MessageKey {
				return slog.Attr{Key: "message", Value: attr.Value}
			}
			return attr
		},
	})

	attrs := []slog.Attr{
		slog.String("service", strings.TrimSpace(service)),
	}
	if env = strings.TrimSpace(env); env != "" {
		attrs = append(attrs, slog.String("env", env))
	}

	withArgs := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		withArgs = append(withArgs, attr)
	}

	base := slog.New(handler).With(withArgs...)
	slog.SetDefault(base)

	// Bridge the standard library logger so existing packages continue to work.
	stdBridge := slog.NewLogLogger(handler.WithAttrs(attrs), slog.LevelInfo)
	stdBridge.SetFlags(0)
	log.SetOutput(stdBridge.Writer())
	log.SetFlags(0)
	log.SetPrefix("")

	return base
}
