package logger

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger defines the sheetkeep logging contract.
// Messages are printf-style formats; implementations must be safe for concurrent use.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

// StdLogger writes leveled lines through Go's standard logger.
type StdLogger struct {
	logger *log.Logger
}

// NewStdLogger creates a StdLogger writing to stdout.
func NewStdLogger() *StdLogger {
	return &StdLogger{
		logger: log.New(os.Stdout, "", log.LstdFlags),
	}
}

func (l *StdLogger) Info(msg string, args ...any) {
	l.logger.Printf("[INFO] "+msg, args...)
}

func (l *StdLogger) Warn(msg string, args ...any) {
	l.logger.Printf("[WARN] "+msg, args...)
}

func (l *StdLogger) Error(msg string, args ...any) {
	l.logger.Printf("[ERROR] "+msg, args...)
}

func (l *StdLogger) Debug(msg string, args ...any) {
	l.logger.Printf("[DEBUG] "+msg, args...)
}

// ZeroLogger adapts a zerolog.Logger to the Logger contract.
type ZeroLogger struct {
	zl zerolog.Logger
}

// NewZeroLogger returns a ZeroLogger writing JSON lines to w, filtered at level.
// An unknown level falls back to info.
func NewZeroLogger(w io.Writer, level string) *ZeroLogger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return &ZeroLogger{
		zl: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}
}

// NewConsoleLogger returns a ZeroLogger with human-friendly output on stderr.
func NewConsoleLogger(level string) *ZeroLogger {
	return NewZeroLogger(zerolog.NewConsoleWriter(func(w *zerolog.ConsoleWriter) {
		w.Out = os.Stderr
	}), level)
}

// Zerolog exposes the wrapped logger for callers that want structured fields.
func (l *ZeroLogger) Zerolog() *zerolog.Logger {
	return &l.zl
}

func (l *ZeroLogger) Info(msg string, args ...any) {
	l.zl.Info().Msgf(msg, args...)
}

func (l *ZeroLogger) Warn(msg string, args ...any) {
	l.zl.Warn().Msgf(msg, args...)
}

func (l *ZeroLogger) Error(msg string, args ...any) {
	l.zl.Error().Msgf(msg, args...)
}

func (l *ZeroLogger) Debug(msg string, args ...any) {
	l.zl.Debug().Msgf(msg, args...)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Debug(string, ...any) {}

// Nop discards everything.
var Nop Logger = nopLogger{}

// Default is the process-wide fallback used when a component is built without a logger.
var Default Logger = NewStdLogger()

// OrDefault returns l, or Default when l is nil.
func OrDefault(l Logger) Logger {
	if l == nil {
		return Default
	}
	return l
}
