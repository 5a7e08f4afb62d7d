package logger

// NoOpLogger discards everything.
type NoOpLogger struct{}

// NewNop returns a logger that does nothing.
func NewNop() Interface {
	return &NoOpLogger{}
}

func (l *NoOpLogger) Debug(msg string, fields ...any) {}
func (l *NoOpLogger) Info(msg string, fields ...any)  {}
func (l *NoOpLogger) Warn(msg string, fields ...any)  {}
func (l *NoOpLogger) Error(msg string, fields ...any) {}

// With returns the same no-op logger.
func (l *NoOpLogger) With(fields ...any) Interface { return l }

// Sync is a no-op.
func (l *NoOpLogger) Sync() error { return nil }
