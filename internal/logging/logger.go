// Package logging provides leveled, structured logging for Meridian.
package logging

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Level represents log severity.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() string {
	switch l {
	case DEBUG:
		return "\033[36m" // cyan
	case INFO:
		return "\033[32m" // green
	case WARN:
		return "\033[33m" // yellow
	case ERROR:
		return "\033[31m" // red
	default:
		return "\033[0m"
	}
}

// Field is a single structured key/value pair. Fields keep insertion order
// so log lines are stable and greppable.
type Field struct {
	Key   string
	Value interface{}
}

// Logger is a leveled logger with attached fields.
type Logger struct {
	level  Level
	output io.Writer
	mu     *sync.Mutex
	fields []Field
}

// New creates a logger writing to w at the given level.
func New(level Level, w io.Writer) *Logger {
	return &Logger{
		level:  level,
		output: w,
		mu:     &sync.Mutex{},
	}
}

var defaultLogger = New(INFO, os.Stdout)

// SetLevel sets the default logger's level.
func SetLevel(level Level) {
	defaultLogger.level = level
}

// SetOutput sets the default logger's output writer.
func SetOutput(w io.Writer) {
	defaultLogger.output = w
}

// Default returns the process-wide default logger.
func Default() *Logger {
	return defaultLogger
}

// Named returns a child of the default logger tagged with a component name.
func Named(component string) *Logger {
	return defaultLogger.WithField("component", component)
}

// WithField returns a copy of the logger with one field appended.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make([]Field, 0, len(l.fields)+1)
	fields = append(fields, l.fields...)
	fields = append(fields, Field{Key: key, Value: value})
	return &Logger{
		level:  l.level,
		output: l.output,
		mu:     l.mu,
		fields: fields,
	}
}

// WithFields returns a copy of the logger with several fields appended.
func (l *Logger) WithFields(fields ...Field) *Logger {
	merged := make([]Field, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &Logger{
		level:  l.level,
		output: l.output,
		mu:     l.mu,
		fields: merged,
	}
}

func (l *Logger) log(level Level, msg string, args ...interface{}) {
	if level < l.level {
		return
	}

	formatted := msg
	if len(args) > 0 {
		formatted = fmt.Sprintf(msg, args...)
	}

	var fieldsStr string
	if len(l.fields) > 0 {
		fieldsStr = " |"
		for _, f := range l.fields {
			fieldsStr += fmt.Sprintf(" %s=%v", f.Key, f.Value)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	timestamp := time.Now().Format("15:04:05")
	fmt.Fprintf(l.output, "%s %s[%s]\033[0m %s%s\n",
		timestamp, level.color(), level.String(), formatted, fieldsStr)
}

func (l *Logger) Debug(msg string, args ...interface{}) { l.log(DEBUG, msg, args...) }
func (l *Logger) Info(msg string, args ...interface{})  { l.log(INFO, msg, args...) }
func (l *Logger) Warn(msg string, args ...interface{})  { l.log(WARN, msg, args...) }
func (l *Logger) Error(msg string, args ...interface{}) { l.log(ERROR, msg, args...) }

// Package-level helpers on the default logger.
func Debug(msg string, args ...interface{}) { defaultLogger.log(DEBUG, msg, args...) }
func Info(msg string, args ...interface{})  { defaultLogger.log(INFO, msg, args...) }
func Warn(msg string, args ...interface{})  { defaultLogger.log(WARN, msg, args...) }
func Error(msg string, args ...interface{}) { defaultLogger.log(ERROR, msg, args...) }
