// Package logger holds the process-wide zap logger. Before Init it is
// a no-op, so packages may log unconditionally during wiring.
package logger

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	base    = zap.NewNop()
	helpers = zap.NewNop()
)

// Init replaces the no-op logger. Format is "json" or "console";
// outputPath is "stdout", "stderr" or a file path opened for append.
func Init(level, format, outputPath string) error {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	enc := zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	if format == "console" {
		encoder = zapcore.NewConsoleEncoder(enc)
	} else {
		encoder = zapcore.NewJSONEncoder(enc)
	}

	var sink zapcore.WriteSyncer
	switch outputPath {
	case "", "stdout":
		sink = zapcore.Lock(os.Stdout)
	case "stderr":
		sink = zapcore.Lock(os.Stderr)
	default:
		file, err := os.OpenFile(outputPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file %q: %w", outputPath, err)
		}
		sink = zapcore.AddSync(file)
	}

	base = zap.New(zapcore.NewCore(encoder, sink, lvl),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
	// The package-level helpers add one frame; skip it so caller points
	// at the call site.
	helpers = base.WithOptions(zap.AddCallerSkip(1))

	return nil
}

// GetLogger returns the logger for callers that log through their own
// reference (middleware, retry). No caller skip is applied.
func GetLogger() *zap.Logger {
	return base
}

func Info(msg string, fields ...zap.Field) {
	helpers.Info(msg, fields...)
}

func Error(msg string, fields ...zap.Field) {
	helpers.Error(msg, fields...)
}

func Debug(msg string, fields ...zap.Field) {
	helpers.Debug(msg, fields...)
}

func Warn(msg string, fields ...zap.Field) {
	helpers.Warn(msg, fields...)
}

func Fatal(msg string, fields ...zap.Field) {
	helpers.Fatal(msg, fields...)
}

func Sync() {
	_ = base.Sync()
}
