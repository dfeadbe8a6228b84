package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger wraps a zap sugared logger behind the printf-style API used
// throughout the service.
type Logger struct {
	s *zap.SugaredLogger
}

// New creates a new Logger instance with the given level ("debug", "info",
// "warn", "error"). Unknown levels fall back to info.
func New(level string) *Logger {
	lvl := zapcore.InfoLevel
	if parsed, err := zapcore.ParseLevel(level); err == nil {
		lvl = parsed
	}

	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	zl, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		zl = zap.NewNop()
	}

	return &Logger{s: zl.Sugar()}
}

// NewNop returns a logger that discards everything. Intended for tests.
func NewNop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// Debug logs a formatted message at debug level
func (l *Logger) Debug(format string, args ...any) { l.s.Debugf(format, args...) }

// Info logs a formatted message at info level
func (l *Logger) Info(format string, args ...any) { l.s.Infof(format, args...) }

// Warn logs a formatted message at warn level
func (l *Logger) Warn(format string, args ...any) { l.s.Warnf(format, args...) }

// Error logs a formatted message at error level
func (l *Logger) Error(format string, args ...any) { l.s.Errorf(format, args...) }

// Debugw logs a message with key-value pairs at debug level
func (l *Logger) Debugw(msg string, keysAndValues ...any) { l.s.Debugw(msg, keysAndValues...) }

// Infow logs a message with key-value pairs at info level
func (l *Logger) Infow(msg string, keysAndValues ...any) { l.s.Infow(msg, keysAndValues...) }

// Warnw logs a message with key-value pairs at warn level
func (l *Logger) Warnw(msg string, keysAndValues ...any) { l.s.Warnw(msg, keysAndValues...) }

// Errorw logs a message with key-value pairs at error level
func (l *Logger) Errorw(msg string, keysAndValues ...any) { l.s.Errorw(msg, keysAndValues...) }

// Fatalw logs a message with key-value pairs and exits
func (l *Logger) Fatalw(msg string, keysAndValues ...any) { l.s.Fatalw(msg, keysAndValues...) }

// Sync flushes buffered log entries
func (l *Logger) Sync() {
	_ = l.s.Sync()
}
