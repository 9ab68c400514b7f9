// Package log configures structured logging for the object layer.
package log

import (
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

const timeFormat = "060102 15:04:05.000"

var logger atomic.Pointer[slog.Logger]

func init() {
	// Default to warnings only until Setup is called.
	logger.Store(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      slog.LevelWarn,
		TimeFormat: timeFormat,
		NoColor:    true,
	})))
}

// Setup replaces the package logger with a tint handler at the given level.
func Setup(level slog.Level) {
	logger.Store(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		AddSource:  true,
		Level:      level,
		TimeFormat: timeFormat,
		NoColor:    !isStdoutTerminal(),
	})))
}

// SetLogger sets a custom logger, eg. for silencing output in tests.
func SetLogger(l *slog.Logger) {
	if l != nil {
		logger.Store(l)
	}
}

func isStdoutTerminal() bool {
	info, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}

// Debugf logs a formatted debug message.
func Debugf(format string, args ...interface{}) {
	logger.Load().Debug(fmt.Sprintf(format, args...))
}

// Infof logs a formatted info message.
func Infof(format string, args ...interface{}) {
	logger.Load().Info(fmt.Sprintf(format, args...))
}

// Warningf logs a formatted warning message.
func Warningf(format string, args ...interface{}) {
	logger.Load().Warn(fmt.Sprintf(format, args...))
}

// Errorf logs a formatted error message.
func Errorf(format string, args ...interface{}) {
	logger.Load().Error(fmt.Sprintf(format, args...))
}

// Tracef logs a formatted message with timing information attached.
func Tracef(start time.Time, format string, args ...interface{}) {
	logger.Load().Debug(fmt.Sprintf(format, args...), "duration", time.Since(start))
}
