package logger

// Logger is the structured logging surface used by the engine. Arguments
// after msg are alternating key/value pairs.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

// TraceIDFunc generates a correlation id for one evaluation.
// It must be safe for concurrent calls.
type TraceIDFunc func() string
