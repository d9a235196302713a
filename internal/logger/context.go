package logger

import (
	"context"
	"os"
	"sync"
)

type ctxKey struct{}

var (
	defaultLogger   = New(Options{Level: "info", Format: "json", Output: os.Stderr, Service: "councilgen"})
	defaultLoggerMu sync.RWMutex
)

// GetDefault returns the logger used when a context carries none.
func GetDefault() *Logger {
	defaultLoggerMu.RLock()
	defer defaultLoggerMu.RUnlock()
	return defaultLogger
}

// SetDefaultLogger replaces the default logger. nil is ignored.
func SetDefaultLogger(l *Logger) {
	if l == nil {
		return
	}
	defaultLoggerMu.Lock()
	defaultLogger = l
	defaultLoggerMu.Unlock()
}

// WithContext returns ctx carrying l.
func (l *Logger) WithContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the logger carried by ctx, or the default logger.
func FromContext(ctx context.Context) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
			return l
		}
	}
	return GetDefault()
}

// ContextWithFields returns ctx whose logger carries fields.
func ContextWithFields(ctx context.Context, fields Fields) context.Context {
	return FromContext(ctx).WithFields(fields).WithContext(ctx)
}

// ContextWithField returns ctx whose logger carries key.
func ContextWithField(ctx context.Context, key string, value interface{}) context.Context {
	return FromContext(ctx).WithField(key, value).WithContext(ctx)
}

// SetRunID tags every later entry with the generation run.
func SetRunID(ctx context.Context, id string) context.Context {
	return ContextWithField(ctx, FieldRunID, id)
}

// SetPhase tags every later entry with the pipeline phase.
func SetPhase(ctx context.Context, phase string) context.Context {
	return ContextWithField(ctx, FieldPhase, phase)
}

// SetSpecID tags every later entry with the content specification.
func SetSpecID(ctx context.Context, specID string) context.Context {
	return ContextWithField(ctx, FieldSpecID, specID)
}

// GetFieldString returns a string field of the context logger, or "".
func GetFieldString(ctx context.Context, key string) string {
	s, _ := FromContext(ctx).Data[key].(string)
	return s
}

func GetRequestID(ctx context.Context) string { return GetFieldString(ctx, FieldRequestID) }

func GetRunID(ctx context.Context) string { return GetFieldString(ctx, FieldRunID) }

func GetSpecID(ctx context.Context) string { return GetFieldString(ctx, FieldSpecID) }
