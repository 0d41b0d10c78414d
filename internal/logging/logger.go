/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package logging

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/amtp-protocol/schemaresolver/internal/config"
)

// LogLevel represents the severity level of a log entry
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
	// LevelOff suppresses every entry.
	LevelOff LogLevel = "off"
)

var levelOrder = map[LogLevel]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
	LevelOff:   5,
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp  time.Time              `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Message    string                 `json:"message"`
	Component  string                 `json:"component,omitempty"`
	RequestID  string                 `json:"request_id,omitempty"`
	Schema     string                 `json:"schema,omitempty"`
	Repository string                 `json:"repository,omitempty"`
	Operation  string                 `json:"operation,omitempty"`
	Outcome    string                 `json:"outcome,omitempty"`
	Duration   *time.Duration         `json:"duration_ms,omitempty"`
	Error      string                 `json:"error,omitempty"`
	StatusCode *int                   `json:"status_code,omitempty"`
	Method     string                 `json:"method,omitempty"`
	Path       string                 `json:"path,omitempty"`
	RemoteAddr string                 `json:"remote_addr,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
	Caller     string                 `json:"caller,omitempty"`
}

// Logger provides structured logging functionality
type Logger struct {
	writer    io.Writer
	level     LogLevel
	format    string
	component string
	fields    map[string]interface{}
}

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	schemaKey    contextKey = "schema"
)

// NewLogger creates a new logger writing to stdout
func NewLogger(config config.LoggingConfig) *Logger {
	return NewLoggerWithWriter(config, os.Stdout)
}

// NewLoggerWithWriter creates a logger writing to w
func NewLoggerWithWriter(config config.LoggingConfig, w io.Writer) *Logger {
	level := LogLevel(strings.ToLower(config.Level))
	if _, ok := levelOrder[level]; !ok {
		level = LevelInfo
	}
	return &Logger{
		writer: w,
		level:  level,
		format: strings.ToLower(config.Format),
		fields: make(map[string]interface{}),
	}
}

// NewNopLogger returns a logger that discards everything.
func NewNopLogger() *Logger {
	return &Logger{
		writer: io.Discard,
		level:  LevelOff,
		fields: make(map[string]interface{}),
	}
}

func (l *Logger) clone(fields map[string]interface{}) *Logger {
	return &Logger{
		writer:    l.writer,
		level:     l.level,
		format:    l.format,
		component: l.component,
		fields:    fields,
	}
}

// WithComponent creates a new logger with a component name
func (l *Logger) WithComponent(component string) *Logger {
	logger := l.clone(copyFields(l.fields))
	logger.component = component
	return logger
}

// WithFields creates a new logger with additional fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := copyFields(l.fields)
	for k, v := range fields {
		newFields[k] = v
	}
	return l.clone(newFields)
}

// WithField creates a new logger with an additional field
func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := copyFields(l.fields)
	fields[key] = value
	return l.clone(fields)
}

// WithContext creates a new logger carrying the request and schema found in ctx
func (l *Logger) WithContext(ctx context.Context) *Logger {
	logger := l.clone(copyFields(l.fields))
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		logger.fields["request_id"] = requestID
	}
	if schema, ok := ctx.Value(schemaKey).(string); ok {
		logger.fields["schema"] = schema
	}
	return logger
}

// Debug logs a debug message
func (l *Logger) Debug(message string) {
	l.log(LevelDebug, message, nil)
}

// Info logs an info message
func (l *Logger) Info(message string) {
	l.log(LevelInfo, message, nil)
}

// Warn logs a warning message
func (l *Logger) Warn(message string) {
	l.log(LevelWarn, message, nil)
}

// Error logs an error message
func (l *Logger) Error(message string, err error) {
	l.log(LevelError, message, err)
}

// LogRequest logs an HTTP request
func (l *Logger) LogRequest(method, path, remoteAddr, userAgent string, statusCode int, duration time.Duration) {
	if !l.shouldLog(LevelInfo) {
		return
	}
	entry := l.createEntry(LevelInfo, "HTTP request", nil)
	entry.Method = method
	entry.Path = path
	entry.RemoteAddr = remoteAddr
	entry.UserAgent = userAgent
	entry.StatusCode = &statusCode
	entry.Duration = &duration
	entry.Operation = "http_request"

	l.writeEntry(entry)
}

// LogLookup logs a single repository lookup. Failed lookups are logged at
// warn level; hits and misses at debug.
func (l *Logger) LogLookup(repository, outcome string, duration time.Duration, err error) {
	level := LevelDebug
	message := fmt.Sprintf("Lookup in %s: %s", repository, outcome)
	if err != nil {
		level = LevelWarn
		message = fmt.Sprintf("Lookup in %s failed", repository)
	}
	if !l.shouldLog(level) {
		return
	}

	entry := l.createEntry(level, message, err)
	entry.Operation = "lookup"
	entry.Repository = repository
	entry.Outcome = outcome
	entry.Duration = &duration

	l.writeEntry(entry)
}

// LogValidation logs the result of validating one instance
func (l *Logger) LogValidation(schema, outcome string, duration time.Duration, err error) {
	level := LevelInfo
	message := fmt.Sprintf("Validation %s", outcome)
	if err != nil {
		level = LevelWarn
	}
	if !l.shouldLog(level) {
		return
	}

	entry := l.createEntry(level, message, err)
	entry.Operation = "validation"
	if schema != "" {
		entry.Schema = schema
	}
	entry.Outcome = outcome
	entry.Duration = &duration

	l.writeEntry(entry)
}

func (l *Logger) log(level LogLevel, message string, err error) {
	if !l.shouldLog(level) {
		return
	}

	entry := l.createEntry(level, message, err)
	l.writeEntry(entry)
}

func (l *Logger) createEntry(level LogLevel, message string, err error) *LogEntry {
	entry := &LogEntry{
		Timestamp: time.Now().UTC(),
		Level:     level,
		Message:   message,
		Component: l.component,
		Fields:    copyFields(l.fields),
	}

	if err != nil {
		entry.Error = err.Error()
	}

	// Caller information for errors and above
	if level == LevelError {
		if pc, file, line, ok := runtime.Caller(3); ok {
			if fn := runtime.FuncForPC(pc); fn != nil {
				entry.Caller = fmt.Sprintf("%s:%d %s", file, line, fn.Name())
			} else {
				entry.Caller = fmt.Sprintf("%s:%d", file, line)
			}
		}
	}

	if entry.Fields != nil {
		if requestID, ok := entry.Fields["request_id"].(string); ok {
			entry.RequestID = requestID
			delete(entry.Fields, "request_id")
		}
		if schema, ok := entry.Fields["schema"].(string); ok {
			entry.Schema = schema
			delete(entry.Fields, "schema")
		}
		if len(entry.Fields) == 0 {
			entry.Fields = nil
		}
	}

	return entry
}

func (l *Logger) writeEntry(entry *LogEntry) {
	if l.format == "text" {
		l.writeText(entry)
		return
	}

	data, err := gojson.Marshal(entry)
	if err != nil {
		l.writeText(entry)
		return
	}

	fmt.Fprintln(l.writer, string(data))
}

func (l *Logger) writeText(entry *LogEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s", entry.Timestamp.Format(time.RFC3339), strings.ToUpper(string(entry.Level)))
	if entry.Component != "" {
		fmt.Fprintf(&b, " %s:", entry.Component)
	}
	b.WriteString(" " + entry.Message)
	if entry.Schema != "" {
		b.WriteString(" schema=" + entry.Schema)
	}
	if entry.Repository != "" {
		b.WriteString(" repository=" + entry.Repository)
	}
	if entry.Duration != nil {
		fmt.Fprintf(&b, " duration=%s", *entry.Duration)
	}
	if entry.Error != "" {
		b.WriteString(" error=" + entry.Error)
	}
	fmt.Fprintln(l.writer, b.String())
}

func (l *Logger) shouldLog(level LogLevel) bool {
	if l.level == LevelOff {
		return false
	}
	return levelOrder[level] >= levelOrder[l.level]
}

func copyFields(fields map[string]interface{}) map[string]interface{} {
	copy := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		copy[k] = v
	}
	return copy
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithSchema adds a schema URI to the context
func WithSchema(ctx context.Context, schema string) context.Context {
	return context.WithValue(ctx, schemaKey, schema)
}

// GetRequestID extracts the request ID from context
func GetRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

// GetSchema extracts the schema URI from context
func GetSchema(ctx context.Context) string {
	if schema, ok := ctx.Value(schemaKey).(string); ok {
		return schema
	}
	return ""
}
