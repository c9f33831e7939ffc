package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger is the logging capability handed to every component. Implementations
// must be safe for concurrent use.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warning(format string, args ...any)
	Error(format string, args ...any)
	IsDebug() bool
}

// Options configures New.
type Options struct {
	// Level is one of debug, info, warn/warning, error. Defaults to info.
	Level string
	// LogDir, when set, receives a timestamped log file in addition to the
	// console output.
	LogDir string
	// Console defaults to stderr.
	Console io.Writer
}

// New creates a zap-backed Logger. The returned closer flushes and closes the
// log file and should be closed when logging is no longer needed.
func New(opts Options) (Logger, io.Closer, error) {
	level := LevelFromString(opts.Level)
	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	encoderConfig := zapcore.EncoderConfig{
		MessageKey:    "msg",
		LevelKey:      "level",
		StacktraceKey: "stacktrace",
		LineEnding:    zapcore.DefaultLineEnding,
		EncodeLevel:   zapcore.CapitalLevelEncoder,
	}
	cores := []zapcore.Core{
		zapcore.NewCore(zapcore.NewConsoleEncoder(encoderConfig), zapcore.AddSync(console), level),
	}

	var file *os.File
	if opts.LogDir != "" {
		if err := os.MkdirAll(opts.LogDir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("ensure logs directory: %w", err)
		}
		filename := time.Now().Format("20060102-150405") + ".log"
		f, err := os.OpenFile(filepath.Join(opts.LogDir, filename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		file = f

		fileConfig := zap.NewProductionEncoderConfig()
		fileConfig.EncodeTime = zapcore.ISO8601TimeEncoder
		cores = append(cores, zapcore.NewCore(zapcore.NewJSONEncoder(fileConfig), zapcore.AddSync(file), zapcore.DebugLevel))
	}

	z := zap.New(zapcore.NewTee(cores...))
	return &zapLogger{sugar: z.Sugar(), level: level}, closerFunc(func() error {
		_ = z.Sync()
		if file != nil {
			return file.Close()
		}
		return nil
	}), nil
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return &zapLogger{sugar: zap.NewNop().Sugar(), level: zapcore.InfoLevel}
}

// LevelFromString maps a config value onto a zap level, defaulting to info.
func LevelFromString(raw string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

type zapLogger struct {
	sugar *zap.SugaredLogger
	level zapcore.Level
}

func (l *zapLogger) Debug(format string, args ...any)   { l.sugar.Debugf(format, args...) }
func (l *zapLogger) Info(format string, args ...any)    { l.sugar.Infof(format, args...) }
func (l *zapLogger) Warning(format string, args ...any) { l.sugar.Warnf(format, args...) }
func (l *zapLogger) Error(format string, args ...any)   { l.sugar.Errorf(format, args...) }
func (l *zapLogger) IsDebug() bool                      { return l.level <= zapcore.DebugLevel }

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
