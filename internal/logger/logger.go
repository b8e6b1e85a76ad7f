package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Fields map[string]any

type contextKey string

const RequestIDKey contextKey = "request_id"

var base = newBase(os.Stdout)

func newBase(out io.Writer) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.JSONFormatter{
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime: "timestamp",
			logrus.FieldKeyMsg:  "message",
		},
	})
	return l
}

var service = "scribeit"

// Init names the service and applies the level from SCRIBEIT_LOG_LEVEL.
func Init(serviceName string) {
	if serviceName != "" {
		service = serviceName
	}
	if lvl, err := logrus.ParseLevel(strings.TrimSpace(os.Getenv("SCRIBEIT_LOG_LEVEL"))); err == nil {
		base.SetLevel(lvl)
	}
}

// SetOutput redirects log output, mostly for tests.
func SetOutput(w io.Writer) {
	base.SetOutput(w)
}

// SetLevel adjusts the minimum level that is written.
func SetLevel(level logrus.Level) {
	base.SetLevel(level)
}

func entry(ctx context.Context, fields Fields) *logrus.Entry {
	e := base.WithField("service", service)
	if ctx != nil {
		if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
			e = e.WithField("request_id", requestID)
		}
	}
	if len(fields) > 0 {
		e = e.WithFields(logrus.Fields(fields))
	}
	return e
}

func first(fields []Fields) Fields {
	if len(fields) > 0 {
		return fields[0]
	}
	return nil
}

func Info(ctx context.Context, message string, fields ...Fields) {
	entry(ctx, first(fields)).Info(message)
}

func Error(ctx context.Context, message string, err error, fields ...Fields) {
	e := entry(ctx, first(fields))
	if err != nil {
		e = e.WithError(err)
	}
	e.Error(message)
}

func Warn(ctx context.Context, message string, fields ...Fields) {
	entry(ctx, first(fields)).Warn(message)
}

func Debug(ctx context.Context, message string, fields ...Fields) {
	entry(ctx, first(fields)).Debug(message)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// RequestID returns the request id stored in ctx, if any.
func RequestID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(RequestIDKey).(string)
	return id
}
