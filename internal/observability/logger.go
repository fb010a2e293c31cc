package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Logger is a structured logger with trace context support
type Logger struct {
	*logrus.Entry
}

var (
	defaultLogger *Logger
	loggerOnce    sync.Once
)

// NewLogger creates a logger writing to stdout with the given level and
// format ("json" or "text")
func NewLogger(serviceName, level, format string) *Logger {
	base := logrus.New()
	base.SetOutput(os.Stdout)

	if strings.ToLower(format) == "text" {
		base.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		base.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	base.SetLevel(lvl)

	return &Logger{Entry: base.WithField("service", serviceName)}
}

// GetLogger returns the default logger instance
func GetLogger() *Logger {
	loggerOnce.Do(func() {
		serviceName := os.Getenv("SERVICE_NAME")
		if serviceName == "" {
			serviceName = "linkshelf-server"
		}
		defaultLogger = NewLogger(serviceName, os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))
	})
	return defaultLogger
}

// Configure replaces the default logger settings once configuration is loaded
func Configure(level, format string) {
	l := GetLogger()
	if lvl, err := logrus.ParseLevel(level); err == nil {
		l.Logger.SetLevel(lvl)
	}
	if strings.ToLower(format) == "text" {
		l.Logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	}
}

// SetOutput sets the output destination for logs
func (l *Logger) SetOutput(w io.Writer) {
	l.Logger.SetOutput(w)
}

// WithField returns a new logger with the field added
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{Entry: l.Entry.WithField(key, value)}
}

// WithFields returns a new logger with the fields added
func (l *Logger) WithFields(fields logrus.Fields) *Logger {
	return &Logger{Entry: l.Entry.WithFields(fields)}
}

// WithError returns a new logger carrying err
func (l *Logger) WithError(err error) *Logger {
	return &Logger{Entry: l.Entry.WithError(err)}
}

// WithContext returns a new logger with trace context
func (l *Logger) WithContext(ctx context.Context) *Logger {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return l.WithFields(logrus.Fields{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}
	return l
}

// Component returns a logger tagged with the component name
func (l *Logger) Component(name string) *Logger {
	return l.WithField("component", name)
}

// WithContext returns a logger with trace context
func WithContext(ctx context.Context) *Logger {
	return GetLogger().WithContext(ctx)
}

// Span attribute helpers for common fields

func UserID(id string) attribute.KeyValue {
	return attribute.String("user_id", id)
}

func CollectionID(id string) attribute.KeyValue {
	return attribute.String("collection_id", id)
}

func ItemID(id string) attribute.KeyValue {
	return attribute.String("item_id", id)
}

func ItemDataID(id string) attribute.KeyValue {
	return attribute.String("item_data_id", id)
}

func Duration(d time.Duration) attribute.KeyValue {
	return attribute.Int64("duration_ms", d.Milliseconds())
}
