package logging

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

type Level int8

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

type Field struct {
	Key   string
	Value any
}

func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
	With(fields ...Field) Logger
}

type logfmtLogger struct {
	mu    *sync.Mutex
	out   io.Writer
	level Level
	bound []Field
}

func New(out io.Writer, level Level) Logger {
	if out == nil {
		out = os.Stderr
	}
	return &logfmtLogger{mu: &sync.Mutex{}, out: out, level: level}
}

func Nop() Logger {
	return &logfmtLogger{mu: &sync.Mutex{}, out: io.Discard, level: LevelError + 1}
}

func (l *logfmtLogger) With(fields ...Field) Logger {
	if l == nil || len(fields) == 0 {
		return l
	}
	bound := make([]Field, 0, len(l.bound)+len(fields))
	bound = append(bound, l.bound...)
	bound = append(bound, fields...)
	return &logfmtLogger{mu: l.mu, out: l.out, level: l.level, bound: bound}
}

func (l *logfmtLogger) Debug(msg string, fields ...Field) { l.emit(LevelDebug, msg, fields) }
func (l *logfmtLogger) Info(msg string, fields ...Field)  { l.emit(LevelInfo, msg, fields) }
func (l *logfmtLogger) Warn(msg string, fields ...Field)  { l.emit(LevelWarn, msg, fields) }
func (l *logfmtLogger) Error(msg string, fields ...Field) { l.emit(LevelError, msg, fields) }

func (l *logfmtLogger) emit(level Level, msg string, fields []Field) {
	if l == nil || level < l.level {
		return
	}
	var b strings.Builder
	b.WriteString("ts=")
	b.WriteString(time.Now().UTC().Format(time.RFC3339Nano))
	b.WriteString(" level=")
	b.WriteString(level.String())
	b.WriteString(" msg=")
	b.WriteString(encodeValue(msg))
	for _, f := range l.bound {
		writeField(&b, f)
	}
	for _, f := range fields {
		writeField(&b, f)
	}
	b.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = io.WriteString(l.out, b.String())
}

func writeField(b *strings.Builder, f Field) {
	b.WriteByte(' ')
	b.WriteString(f.Key)
	b.WriteByte('=')
	b.WriteString(encodeValue(f.Value))
}

func encodeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return "null"
	case string:
		return quote(v)
	case error:
		return quote(v.Error())
	case time.Duration:
		return quote(v.String())
	case fmt.Stringer:
		return quote(v.String())
	case bool:
		return strconv.FormatBool(v)
	default:
		return quote(fmt.Sprintf("%v", v))
	}
}

func quote(v string) string {
	if v == "" {
		return `""`
	}
	if strings.ContainsAny(v, " \t\n\r\"=") {
		return strconv.Quote(v)
	}
	return v
}
