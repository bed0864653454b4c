// Copyright 2025 IntentFlow
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package logger

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"sync"
	"time"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var levelRank = map[LogLevel]int{
	DEBUG: 0,
	INFO:  1,
	WARN:  2,
	ERROR: 3,
}

// Logger provides structured logging with per-org correlation. Every entry
// carries the originating org and request so pipeline stages can be traced
// across a multi-tenant deployment.
type Logger struct {
	Component  string
	InstanceID string

	minLevel LogLevel
	out      io.Writer
	mu       sync.Mutex
}

// LogEntry is the JSON shape written for every log line.
type LogEntry struct {
	Timestamp  string                 `json:"timestamp"`
	Level      LogLevel               `json:"level"`
	Component  string                 `json:"component"`
	InstanceID string                 `json:"instance_id"`
	OrgID      string                 `json:"org_id"`
	RequestID  string                 `json:"request_id,omitempty"`
	Message    string                 `json:"message"`
	Fields     map[string]interface{} `json:"fields,omitempty"`
}

// Option configures a Logger.
type Option func(*Logger)

// WithOutput redirects log output (used by tests).
func WithOutput(w io.Writer) Option {
	return func(l *Logger) { l.out = w }
}

// WithMinLevel drops entries below the given level.
func WithMinLevel(level LogLevel) Option {
	return func(l *Logger) { l.minLevel = level }
}

// New creates a new Logger for the specified component.
func New(component string, opts ...Option) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		if host, err := os.Hostname(); err == nil {
			instanceID = host
		} else {
			instanceID = "unknown"
		}
	}

	l := &Logger{
		Component:  component,
		InstanceID: instanceID,
		minLevel:   DEBUG,
		out:        os.Stdout,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Log creates a structured log entry and writes it as one JSON line.
func (l *Logger) Log(level LogLevel, orgID, requestID, message string, fields map[string]interface{}) {
	if levelRank[level] < levelRank[l.minLevel] {
		return
	}

	entry := LogEntry{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		Level:      level,
		Component:  l.Component,
		InstanceID: l.InstanceID,
		OrgID:      orgID,
		RequestID:  requestID,
		Message:    message,
		Fields:     fields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		// Fallback to plain text if JSON marshaling fails
		log.Printf("ERROR: failed to marshal log entry: %v", err)
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.out.Write(append(jsonBytes, '\n'))
}

// Debug logs a debug message
func (l *Logger) Debug(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, orgID, requestID, message, fields)
}

// Info logs an informational message
func (l *Logger) Info(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, orgID, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, orgID, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(orgID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, orgID, requestID, message, fields)
}

// InfoWithDuration logs an info message with a duration_ms field.
func (l *Logger) InfoWithDuration(orgID, requestID, message string, durationMS float64, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = durationMS
	l.Info(orgID, requestID, message, fields)
}

// ErrorWithCause logs an error message with the underlying error attached.
func (l *Logger) ErrorWithCause(orgID, requestID, message string, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(orgID, requestID, message, fields)
}
