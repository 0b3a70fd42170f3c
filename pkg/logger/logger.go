package logger

import (
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog with typed fields and an optional summary
// collector for repeated warn/error records.
type Logger struct {
	zl        zerolog.Logger
	collector *Collector
}

type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json or console
	Output     string // stdout, stderr, or file path
	TimeFormat string // timestamp layout, RFC3339Nano when empty
}

func New(cfg *Config) (*Logger, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	zerolog.SetGlobalLevel(level)

	var out io.Writer
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("could not open log file: %w", err)
		}
		out = f
	}

	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339Nano
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: cfg.TimeFormat,
			NoColor:    false,
		}
	}

	zl := zerolog.New(out).
		With().
		Timestamp().
		CallerWithSkipFrameCount(3).
		Logger()

	return &Logger{zl: zl}, nil
}

func (l *Logger) Debug(msg string, fields ...Field) {
	l.emit(l.zl.Debug(), msg, fields)
}

func (l *Logger) Info(msg string, fields ...Field) {
	l.emit(l.zl.Info(), msg, fields)
}

// Warn and Error also feed the summary collector when one is attached,
// so repeated records (reconnect storms, per-cycle fetch failures)
// reach the summary topic as one counted entry.
func (l *Logger) Warn(msg string, fields ...Field) {
	l.emit(l.zl.Warn(), msg, fields)
	l.summarize("warn", msg, fields)
}

func (l *Logger) Error(msg string, fields ...Field) {
	l.emit(l.zl.Error(), msg, fields)
	l.summarize("error", msg, fields)
}

func (l *Logger) emit(event *zerolog.Event, msg string, fields []Field) {
	for _, f := range fields {
		f.apply(event)
	}
	event.Msg(msg)
}

// AttachCollector starts aggregating warn/error records. An already
// attached collector is flushed and replaced.
func (l *Logger) AttachCollector(cfg *CollectorConfig) {
	if l.collector != nil {
		l.collector.Close()
	}
	l.collector = NewCollector(cfg)
}

// DetachCollector flushes and stops the collector, if any.
func (l *Logger) DetachCollector() {
	if l.collector != nil {
		l.collector.Close()
		l.collector = nil
	}
}

func (l *Logger) summarize(level, msg string, fields []Field) {
	if l.collector == nil {
		return
	}

	// skip frames: summarize -> Warn/Error -> caller
	_, file, line, ok := runtime.Caller(2)
	caller := "unknown"
	if ok {
		parts := strings.Split(file, "PivotScan")
		caller = fmt.Sprintf("%s:%d", parts[len(parts)-1], line)
	}

	kv := make(map[string]interface{}, len(fields))
	for _, f := range fields {
		kv[f.key] = f.value()
	}
	l.collector.Record(level, msg, kv, caller)
}

type fieldKind int

const (
	kindString fieldKind = iota
	kindInt64
	kindFloat64
	kindBool
	kindError
	kindAny
)

// Field is a typed key/value pair attached to a log record.
type Field struct {
	key  string
	kind fieldKind
	str  string
	i64  int64
	f64  float64
	b    bool
	err  error
	any  interface{}
}

func (f Field) apply(event *zerolog.Event) {
	switch f.kind {
	case kindString:
		event.Str(f.key, f.str)
	case kindInt64:
		event.Int64(f.key, f.i64)
	case kindFloat64:
		event.Float64(f.key, f.f64)
	case kindBool:
		event.Bool(f.key, f.b)
	case kindError:
		event.Err(f.err)
	default:
		event.Interface(f.key, f.any)
	}
}

func (f Field) value() interface{} {
	switch f.kind {
	case kindString:
		return f.str
	case kindInt64:
		return f.i64
	case kindFloat64:
		return f.f64
	case kindBool:
		return f.b
	case kindError:
		if f.err != nil {
			return f.err.Error()
		}
		return nil
	default:
		return f.any
	}
}

func String(key, value string) Field {
	return Field{key: key, kind: kindString, str: value}
}

// Strings joins the values into one comma separated field.
func Strings(key string, values []string) Field {
	return String(key, strings.Join(values, ", "))
}

func Int(key string, value int) Field {
	return Field{key: key, kind: kindInt64, i64: int64(value)}
}

func Int64(key string, value int64) Field {
	return Field{key: key, kind: kindInt64, i64: value}
}

func Float64(key string, value float64) Field {
	return Field{key: key, kind: kindFloat64, f64: value}
}

func Bool(key string, value bool) Field {
	return Field{key: key, kind: kindBool, b: value}
}

// Duration records the value as whole milliseconds.
func Duration(key string, value time.Duration) Field {
	return Field{key: key, kind: kindInt64, i64: value.Milliseconds()}
}

func Error(err error) Field {
	return Field{key: "error", kind: kindError, err: err}
}

func Any(key string, value interface{}) Field {
	return Field{key: key, kind: kindAny, any: value}
}
