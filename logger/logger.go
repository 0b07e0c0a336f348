// Package logger declares the logging interface and subsystem logger
// variables consumed throughout docsession. Package logger/zap supplies
// the concrete implementation and assigns these vars during Init, the same
// split the sibling codebase this package was trimmed from uses to avoid
// an import cycle between the interface and its zap-backed implementation.
package logger

import "go.uber.org/zap/zapcore"

// StandardLogger mirrors the printf/println-family methods most Go logging
// libraries expose.
type StandardLogger interface {
	Debug(args ...any)
	Info(args ...any)
	Warn(args ...any)
	Error(args ...any)
	Fatal(args ...any)

	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
	Fatalf(format string, args ...any)
}

// StructuredLogger mirrors zap's SugaredLogger keysAndValues methods.
type StructuredLogger interface {
	Debugw(msg string, keysValues ...any)
	Infow(msg string, keysValues ...any)
	Warnw(msg string, keysValues ...any)
	Errorw(msg string, keysValues ...any)
	Fatalw(msg string, keysValues ...any)
}

// Logger is the interface every docsession subsystem logs through.
type Logger interface {
	With(fields ...string) Logger
	WithObject(name string, obj zapcore.ObjectMarshaler) Logger
	WithArray(name string, arr zapcore.ArrayMarshaler) Logger

	StandardLogger
	StructuredLogger
}

// Subsystem loggers, assigned by logger/zap.Init. Each writes to its own
// rolling file (see config.Logger) so a flush storm in one subsystem
// doesn't drown out another's output. Until Init runs they discard
// everything, so library code may log unconditionally.
var (
	Session   Logger = nop{}
	Mapping   Logger = nop{}
	Persister Logger = nop{}
	Mongo     Logger = nop{}
	SQL       Logger = nop{}
)

type nop struct{}

var _ Logger = nop{}

func (nop) With(...string) Logger                             { return nop{} }
func (nop) WithObject(string, zapcore.ObjectMarshaler) Logger { return nop{} }
func (nop) WithArray(string, zapcore.ArrayMarshaler) Logger   { return nop{} }

func (nop) Debug(...any) {}
func (nop) Info(...any)  {}
func (nop) Warn(...any)  {}
func (nop) Error(...any) {}
func (nop) Fatal(...any) {}

func (nop) Debugf(string, ...any) {}
func (nop) Infof(string, ...any)  {}
func (nop) Warnf(string, ...any)  {}
func (nop) Errorf(string, ...any) {}
func (nop) Fatalf(string, ...any) {}

func (nop) Debugw(string, ...any) {}
func (nop) Infow(string, ...any)  {}
func (nop) Warnw(string, ...any)  {}
func (nop) Errorw(string, ...any) {}
func (nop) Fatalw(string, ...any) {}
