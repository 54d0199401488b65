package logger

import (
	"fmt"

	phlog "github.com/oarkflow/log"
)

type level uint8

const (
	levelDebug level = iota
	levelInfo
	levelWarn
	levelError
)

// PhusluLogger writes through the package-level oarkflow/log logger. It is
// the engine's default.
type PhusluLogger struct{}

func NewPhusluLogger() *PhusluLogger { return &PhusluLogger{} }

func (p *PhusluLogger) Debug(msg string, keyvals ...any) { p.emit(levelDebug, msg, keyvals) }
func (p *PhusluLogger) Info(msg string, keyvals ...any)  { p.emit(levelInfo, msg, keyvals) }
func (p *PhusluLogger) Warn(msg string, keyvals ...any)  { p.emit(levelWarn, msg, keyvals) }
func (p *PhusluLogger) Error(msg string, keyvals ...any) { p.emit(levelError, msg, keyvals) }

func (p *PhusluLogger) emit(lvl level, msg string, keyvals []any) {
	b := phlog.Info()
	switch lvl {
	case levelDebug:
		b = phlog.Debug()
	case levelWarn:
		b = phlog.Warn()
	case levelError:
		b = phlog.Error()
	}
	for i := 0; i < len(keyvals)-1; i += 2 {
		ks := fmt.Sprint(keyvals[i])
		switch v := keyvals[i+1].(type) {
		case string:
			b = b.Str(ks, v)
		case bool:
			b = b.Bool(ks, v)
		case int:
			b = b.Int(ks, v)
		case int64:
			b = b.Int64(ks, v)
		case error:
			b = b.Str(ks, v.Error())
		case fmt.Stringer:
			b = b.Str(ks, v.String())
		default:
			b = b.Any(ks, v)
		}
	}
	b.Msg(msg)
}
