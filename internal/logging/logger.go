package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var levelRank = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// Logger writes one JSON object per line. A nil *Logger discards everything,
// so components can be constructed without one in tests.
type Logger struct {
	minLevel Level
	out      io.Writer
	mu       *sync.Mutex
	base     map[string]interface{}
}

type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     Level                  `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

func New(minLevel Level) *Logger {
	return NewWithWriter(minLevel, os.Stdout)
}

// NewWithWriter creates a logger that writes to w instead of stdout.
func NewWithWriter(minLevel Level, w io.Writer) *Logger {
	if _, ok := levelRank[minLevel]; !ok {
		minLevel = LevelInfo
	}
	return &Logger{minLevel: minLevel, out: w, mu: &sync.Mutex{}}
}

func Default() *Logger {
	return New(LevelInfo)
}

// ParseLevel maps a config string such as "debug" or "WARN" to a Level.
// Unknown values fall back to LevelInfo.
func ParseLevel(s string) Level {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRank[l]; ok {
		return l
	}
	return LevelInfo
}

// With returns a child logger that stamps fields onto every entry.
func (l *Logger) With(fields map[string]interface{}) *Logger {
	if l == nil {
		return nil
	}
	base := make(map[string]interface{}, len(l.base)+len(fields))
	for k, v := range l.base {
		base[k] = v
	}
	for k, v := range fields {
		base[k] = v
	}
	return &Logger{minLevel: l.minLevel, out: l.out, mu: l.mu, base: base}
}

func (l *Logger) shouldLog(level Level) bool {
	return levelRank[level] >= levelRank[l.minLevel]
}

func (l *Logger) log(level Level, msg string, fields map[string]interface{}) {
	if l == nil || !l.shouldLog(level) {
		return
	}

	var merged map[string]interface{}
	if len(l.base)+len(fields) > 0 {
		merged = make(map[string]interface{}, len(l.base)+len(fields))
		for k, v := range l.base {
			merged[k] = v
		}
		for k, v := range fields {
			// error values marshal to {} otherwise
			if err, ok := v.(error); ok && err != nil {
				v = err.Error()
			}
			merged[k] = v
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level,
		Message:   msg,
		Fields:    merged,
	}
	data, _ := json.Marshal(entry)

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.out, string(data))
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, mergeFields(fields))
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, mergeFields(fields))
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, mergeFields(fields))
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, mergeFields(fields))
}

func WithField(key string, value interface{}) map[string]interface{} {
	return map[string]interface{}{key: value}
}

func WithFields(fields map[string]interface{}) map[string]interface{} {
	return fields
}

func mergeFields(fields []map[string]interface{}) map[string]interface{} {
	if len(fields) == 0 {
		return nil
	}
	result := make(map[string]interface{})
	for _, f := range fields {
		for k, v := range f {
			result[k] = v
		}
	}
	return result
}
