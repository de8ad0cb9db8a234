package utils

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogLevel represents the severity level of a log message.
type LogLevel int

const (
	LevelDebug LogLevel = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LevelDebug || int(l) >= len(levelNames) {
		return "UNKNOWN"
	}
	return levelNames[l]
}

// ParseLogLevel parses a level name. Unknown names yield LevelInfo.
func ParseLogLevel(level string) LogLevel {
	name := strings.ToUpper(strings.TrimSpace(level))
	if name == "WARNING" {
		return LevelWarn
	}
	for i, n := range levelNames {
		if n == name {
			return LogLevel(i)
		}
	}
	return LevelInfo
}

// LogFormat selects how a record is rendered.
type LogFormat string

const (
	// LogFormatText renders "[time] [LEVEL] k=v message".
	LogFormatText LogFormat = "text"
	// LogFormatJSON renders one JSON object per line.
	LogFormatJSON LogFormat = "json"
)

// ParseLogFormat parses a format name. Anything but "json" is text.
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(strings.TrimSpace(format), string(LogFormatJSON)) {
		return LogFormatJSON
	}
	return LogFormatText
}

const timeLayout = "2006-01-02 15:04:05.000"

// Logger is the interface for logging. Messages are printf formats when
// args are given and literal text otherwise.
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
	WithField(key string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
}

// sink is shared by a logger and every logger derived from it.
type sink struct {
	mu     sync.Mutex
	out    io.Writer
	level  LogLevel
	format LogFormat
	now    func() time.Time
}

// DefaultLogger writes one line per record with fields sorted by key.
type DefaultLogger struct {
	sink   *sink
	fields map[string]interface{}
}

// NewDefaultLogger creates a text logger. A nil output discards logs.
func NewDefaultLogger(level LogLevel, output io.Writer) *DefaultLogger {
	return NewLogger(level, LogFormatText, output)
}

// NewLogger creates a logger with the given format.
func NewLogger(level LogLevel, format LogFormat, output io.Writer) *DefaultLogger {
	if output == nil {
		output = io.Discard
	}
	return &DefaultLogger{sink: &sink{out: output, level: level, format: format, now: time.Now}}
}

// RotationConfig bounds the size and number of rotated log files.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// NewRotatingFileLogger creates a logger writing to a lumberjack-rotated
// file. The returned closer releases the current file.
func NewRotatingFileLogger(level LogLevel, format LogFormat, logPath string, rotation RotationConfig) (*DefaultLogger, io.Closer, error) {
	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
		Compress:   rotation.Compress,
		LocalTime:  true,
	}
	return NewLogger(level, format, lj), lj, nil
}

// SetLevel changes the level of the logger and all loggers derived from it.
func (l *DefaultLogger) SetLevel(level LogLevel) {
	l.sink.mu.Lock()
	l.sink.level = level
	l.sink.mu.Unlock()
}

func (l *DefaultLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args) }
func (l *DefaultLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args) }
func (l *DefaultLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args) }
func (l *DefaultLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args) }

// WithField returns a derived logger carrying one more field.
func (l *DefaultLogger) WithField(key string, value interface{}) Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a derived logger carrying fields; later values win.
func (l *DefaultLogger) WithFields(fields map[string]interface{}) Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &DefaultLogger{sink: l.sink, fields: merged}
}

func (l *DefaultLogger) log(level LogLevel, msg string, args []interface{}) {
	s := l.sink
	s.mu.Lock()
	defer s.mu.Unlock()
	if level < s.level {
		return
	}
	if len(args) > 0 {
		msg = fmt.Sprintf(msg, args...)
	}

	var line string
	if s.format == LogFormatJSON {
		line = l.renderJSON(s.now(), level, msg)
	} else {
		line = l.renderText(s.now(), level, msg)
	}
	_, _ = io.WriteString(s.out, line)
}

func (l *DefaultLogger) sortedKeys() []string {
	keys := make([]string, 0, len(l.fields))
	for k := range l.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (l *DefaultLogger) renderText(ts time.Time, level LogLevel, msg string) string {
	var b strings.Builder
	b.WriteString("[" + ts.Format(timeLayout) + "] [" + level.String() + "]")
	for _, k := range l.sortedKeys() {
		fmt.Fprintf(&b, " %s=%v", k, l.fields[k])
	}
	b.WriteString(" " + msg + "\n")
	return b.String()
}

func (l *DefaultLogger) renderJSON(ts time.Time, level LogLevel, msg string) string {
	record := make(map[string]interface{}, len(l.fields)+3)
	for k, v := range l.fields {
		if err, ok := v.(error); ok {
			v = err.Error()
		}
		record[k] = v
	}
	record["time"] = ts.Format(time.RFC3339Nano)
	record["level"] = strings.ToLower(level.String())
	record["msg"] = msg

	data, err := json.Marshal(record)
	if err != nil {
		data, _ = json.Marshal(map[string]string{
			"time":  ts.Format(time.RFC3339Nano),
			"level": strings.ToLower(level.String()),
			"msg":   msg,
			"error": "unencodable fields: " + err.Error(),
		})
	}
	return string(data) + "\n"
}

var (
	globalMu     sync.RWMutex
	globalLogger Logger = NewDefaultLogger(LevelInfo, os.Stdout)
)

// SetGlobalLogger replaces the process-wide logger.
func SetGlobalLogger(logger Logger) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalLogger = OrNull(logger)
}

// GetGlobalLogger returns the process-wide logger.
func GetGlobalLogger() Logger {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalLogger
}

// NullLogger discards everything.
type NullLogger struct{}

func (l *NullLogger) Debug(string, ...interface{})             {}
func (l *NullLogger) Info(string, ...interface{})              {}
func (l *NullLogger) Warn(string, ...interface{})              {}
func (l *NullLogger) Error(string, ...interface{})             {}
func (l *NullLogger) WithField(string, interface{}) Logger     { return l }
func (l *NullLogger) WithFields(map[string]interface{}) Logger { return l }

// OrNull returns logger, or a NullLogger if logger is nil.
func OrNull(logger Logger) Logger {
	if logger == nil {
		return &NullLogger{}
	}
	return logger
}
