// Package observability provides structured logging, health checks and
// lightweight metrics for Saffron processes.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// LogFormat specifies the output format for logs.
type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

// LogConfig configures the logger.
type LogConfig struct {
	Level          string
	Format         LogFormat
	Output         io.Writer
	AddSource      bool
	ServiceName    string
	ServiceVersion string
}

// ConfigForEnvironment returns text logs for development and JSON logs
// with source locations everywhere else. An empty level keeps the default
// for the environment.
func ConfigForEnvironment(appEnv, level string) LogConfig {
	cfg := LogConfig{
		Level:          "info",
		Format:         LogFormatJSON,
		Output:         os.Stdout,
		AddSource:      true,
		ServiceName:    "saffron",
		ServiceVersion: os.Getenv("SAFFRON_VERSION"),
	}
	if appEnv == "" || appEnv == "development" {
		cfg.Level = "debug"
		cfg.Format = LogFormatText
		cfg.Output = os.Stderr
		cfg.AddSource = false
	}
	if level != "" {
		cfg.Level = level
	}
	return cfg
}

// NewLogger creates a structured logger that stamps the service name and
// any request or event ids carried by the context.
func NewLogger(cfg LogConfig) *slog.Logger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(cfg.Output, opts)
	default:
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	var attrs []slog.Attr
	if cfg.ServiceName != "" {
		attrs = append(attrs, slog.String("service", cfg.ServiceName))
	}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, slog.String("version", cfg.ServiceVersion))
	}

	return slog.New(&contextHandler{handler: handler.WithAttrs(attrs)})
}

// ParseLevel maps debug, warn and error to slog levels; anything else is info.
func ParseLevel(level string) slog.Level {
	switch level {
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

// contextHandler adds request and event ids from the record's context.
type contextHandler struct {
	handler slog.Handler
}

func (h *contextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *contextHandler) Handle(ctx context.Context, r slog.Record) error {
	if reqID := RequestIDFromContext(ctx); reqID != "" {
		r.AddAttrs(slog.String(RequestIDKey, reqID))
	}
	if eventID := EventIDFromContext(ctx); eventID != "" {
		r.AddAttrs(slog.String(EventIDKey, eventID))
	}
	return h.handler.Handle(ctx, r)
}

func (h *contextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &contextHandler{handler: h.handler.WithAttrs(attrs)}
}

func (h *contextHandler) WithGroup(name string) slog.Handler {
	return &contextHandler{handler: h.handler.WithGroup(name)}
}
