package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the application logger interface. Arguments after the
// message are alternating keys and values.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithContext(ctx context.Context) Logger
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level (debug, info, warn, error).
	Level string
	// Format is the output format (json, text).
	Format string
	// Output is the output writer (defaults to os.Stderr).
	Output io.Writer
	// AddSource adds the calling file and line to every entry.
	AddSource bool
	// Service is stamped on every entry when set.
	Service string
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  "info",
		Format: "json",
		Output: os.Stderr,
	}
}

func init() {
	zerolog.MessageFieldName = "msg"
	zerolog.TimeFieldFormat = time.RFC3339Nano
	zerolog.DurationFieldUnit = time.Millisecond

	l, _ := New(DefaultConfig())
	defaultLogger.Store(l.(*zlogger))
}

type zlogger struct {
	zl  zerolog.Logger
	ctx context.Context
}

// New creates a logger and sets the process-wide level from cfg.Level.
func New(cfg Config) (Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	switch strings.ToLower(cfg.Format) {
	case "", "json":
	case "text", "console":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	zctx := zerolog.New(out).Level(zerolog.TraceLevel).With().Timestamp()
	if cfg.Service != "" {
		zctx = zctx.Str("service", cfg.Service)
	}
	if cfg.AddSource {
		// Debug/Info and log sit between the caller and zerolog.
		zctx = zctx.CallerWithSkipFrameCount(zerolog.CallerSkipFrameCount + 2)
	}
	return &zlogger{zl: zctx.Logger(), ctx: context.Background()}, nil
}

// ParseLevel converts a level name to a zerolog level. An empty name is
// info.
func ParseLevel(level string) (zerolog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error":
		return zerolog.ErrorLevel, nil
	default:
		return zerolog.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

// SetLevel changes the process-wide level. Unknown names select info.
func SetLevel(level string) {
	l, _ := ParseLevel(level)
	zerolog.SetGlobalLevel(l)
}

// GetLevel returns the current level name.
func GetLevel() string {
	switch l := zerolog.GlobalLevel(); l {
	case zerolog.DebugLevel, zerolog.InfoLevel, zerolog.WarnLevel, zerolog.ErrorLevel:
		return l.String()
	}
	return "info"
}

func (l *zlogger) log(ev *zerolog.Event, msg string, args []any) {
	if ev == nil {
		return
	}
	ev.Ctx(l.ctx).Fields(fields(args)).Msg(msg)
}

func (l *zlogger) Debug(msg string, args ...any) { l.log(l.zl.Debug(), msg, args) }
func (l *zlogger) Info(msg string, args ...any)  { l.log(l.zl.Info(), msg, args) }
func (l *zlogger) Warn(msg string, args ...any)  { l.log(l.zl.Warn(), msg, args) }
func (l *zlogger) Error(msg string, args ...any) { l.log(l.zl.Error(), msg, args) }

func (l *zlogger) With(args ...any) Logger {
	return &zlogger{zl: l.zl.With().Fields(fields(args)).Logger(), ctx: l.ctx}
}

func (l *zlogger) WithContext(ctx context.Context) Logger {
	return &zlogger{zl: l.zl, ctx: ctx}
}

// fields turns alternating key/value arguments into a redacted zerolog
// field list. A dangling value is kept under "!BADKEY".
func fields(args []any) []any {
	out := make([]any, 0, len(args)+len(args)%2)
	for i := 0; i < len(args); i++ {
		key, ok := args[i].(string)
		if !ok || i+1 == len(args) {
			out = append(out, "!BADKEY", redactValue("", args[i]))
			continue
		}
		i++
		out = append(out, key, redactValue(key, args[i]))
	}
	return out
}

var defaultLogger atomic.Pointer[zlogger]

// SetDefault sets the default global logger.
func SetDefault(l Logger) {
	if zl, ok := l.(*zlogger); ok {
		defaultLogger.Store(zl)
	}
}

// Default returns the default global logger.
func Default() Logger {
	return defaultLogger.Load()
}

// Discard returns a logger that drops everything.
func Discard() Logger {
	return &zlogger{zl: zerolog.Nop(), ctx: context.Background()}
}

// Debug logs at debug level using the default logger.
func Debug(msg string, args ...any) {
	defaultLogger.Load().Debug(msg, args...)
}

// Info logs at info level using the default logger.
func Info(msg string, args ...any) {
	defaultLogger.Load().Info(msg, args...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, args ...any) {
	defaultLogger.Load().Warn(msg, args...)
}

// Error logs at error level using the default logger.
func Error(msg string, args ...any) {
	defaultLogger.Load().Error(msg, args...)
}
