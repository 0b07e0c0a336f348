// Package zap implements logger.Logger on top of go.uber.org/zap, rolling
// non-console sinks through gopkg.in/natefinch/lumberjack.v2 the same way
// the codebase this package was trimmed from wires its subsystem loggers.
package zap

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/forbearing/docsession/config"
	"github.com/forbearing/docsession/logger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logDir        string
	logFile       string
	logLevel      string
	logFormat     string
	logMaxAge     int
	logMaxSize    int
	logMaxBackups int
)

// Init reads cfg and assigns the package-level subsystem loggers declared
// in package logger, one rolling file per subsystem so a flush storm in
// one doesn't drown out another's output.
func Init(cfg config.Logger) error {
	readConf(cfg)

	zap.ReplaceGlobals(zap.New(
		zapcore.NewCore(newLogEncoder(), newLogWriter(""), newLogLevel()),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.FatalLevel),
	))

	logger.Session = New("session.log")
	logger.Mapping = New("mapping.log")
	logger.Persister = New("persister.log")
	logger.Mongo = New("mongo.log")
	logger.SQL = New("sql.log")

	return nil
}

// Clean flushes every subsystem logger's buffered output.
func Clean() {
	_ = zap.L().Sync()
	for _, l := range []logger.Logger{
		logger.Session,
		logger.Mapping,
		logger.Persister,
		logger.Mongo,
		logger.SQL,
	} {
		if zl, ok := l.(*Logger); ok && zl != nil {
			_ = zl.zlog.Sync()
		}
	}
}

// New builds a logger.Logger writing to filename ("/dev/stdout"/
// "/dev/stderr" for the console, "" for the sink named by cfg.File,
// anything else rolled through lumberjack under cfg.Dir).
func New(filename string) *Logger {
	zlog := zap.New(
		zapcore.NewCore(newLogEncoder(), newLogWriter(filename), newLogLevel()),
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.FatalLevel),
	)
	return &Logger{zlog: zlog}
}

func newLogWriter(filename string) zapcore.WriteSyncer {
	if len(filename) == 0 {
		filename = logFile
	}
	switch strings.TrimSpace(filename) {
	case "/dev/stdout", "":
		return zapcore.AddSync(os.Stdout)
	case "/dev/stderr":
		return zapcore.AddSync(os.Stderr)
	default:
		return zapcore.AddSync(&lumberjack.Logger{
			Filename:   filepath.Join(logDir, filename),
			MaxAge:     logMaxAge,
			MaxSize:    logMaxSize,
			MaxBackups: logMaxBackups,
			LocalTime:  true,
		})
	}
}

func newLogLevel() zapcore.Level {
	if len(logLevel) == 0 {
		return zapcore.InfoLevel
	}
	level := new(zapcore.Level)
	if err := level.UnmarshalText([]byte(logLevel)); err != nil {
		return zapcore.InfoLevel
	}
	return *level
}

func newLogEncoder() zapcore.Encoder {
	encConfig := zap.NewProductionEncoderConfig()
	encConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	switch strings.ToLower(logFormat) {
	case "console", "text":
		return zapcore.NewConsoleEncoder(encConfig)
	default:
		return zapcore.NewJSONEncoder(encConfig)
	}
}

func readConf(cfg config.Logger) {
	logDir = cfg.Dir
	logFile = cfg.File
	logLevel = cfg.Level
	logFormat = cfg.Format
	logMaxAge = cfg.MaxAge
	logMaxSize = cfg.MaxSize
	logMaxBackups = cfg.MaxBackups
}
