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
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerWritesStructuredEntry(t *testing.T) {
	var buf bytes.Buffer
	l := New("pipeline", WithOutput(&buf))

	l.Info("org-1", "req-42", "action executed", map[string]interface{}{
		"action": "summarize",
	})

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}

	if entry.Level != INFO {
		t.Errorf("Level = %v, want %v", entry.Level, INFO)
	}
	if entry.Component != "pipeline" {
		t.Errorf("Component = %q, want %q", entry.Component, "pipeline")
	}
	if entry.OrgID != "org-1" {
		t.Errorf("OrgID = %q, want %q", entry.OrgID, "org-1")
	}
	if entry.RequestID != "req-42" {
		t.Errorf("RequestID = %q, want %q", entry.RequestID, "req-42")
	}
	if entry.Fields["action"] != "summarize" {
		t.Errorf("Fields[action] = %v, want summarize", entry.Fields["action"])
	}
}

func TestLoggerMinLevelFiltersEntries(t *testing.T) {
	var buf bytes.Buffer
	l := New("pipeline", WithOutput(&buf), WithMinLevel(WARN))

	l.Debug("org-1", "", "dropped", nil)
	l.Info("org-1", "", "dropped too", nil)
	l.Warn("org-1", "", "kept", nil)
	l.Error("org-1", "", "kept too", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("got %d log lines, want 2: %q", len(lines), buf.String())
	}
}

func TestErrorWithCauseAttachesError(t *testing.T) {
	var buf bytes.Buffer
	l := New("llm", WithOutput(&buf))

	l.ErrorWithCause("org-1", "req-1", "provider call failed", errors.New("boom"), nil)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Fields["error"] != "boom" {
		t.Errorf("Fields[error] = %v, want boom", entry.Fields["error"])
	}
}

func TestInfoWithDurationAddsField(t *testing.T) {
	var buf bytes.Buffer
	l := New("llm", WithOutput(&buf))

	l.InfoWithDuration("org-1", "req-1", "completed", 125.5, nil)

	var entry LogEntry
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("log line is not valid JSON: %v", err)
	}
	if entry.Fields["duration_ms"] != 125.5 {
		t.Errorf("Fields[duration_ms] = %v, want 125.5", entry.Fields["duration_ms"])
	}
}
