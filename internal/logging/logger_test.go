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
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"

	"github.com/amtp-protocol/schemaresolver/internal/config"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []LogEntry {
	t.Helper()
	var entries []LogEntry
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var entry LogEntry
		if err := gojson.Unmarshal([]byte(line), &entry); err != nil {
			t.Fatalf("failed to decode log line %q: %v", line, err)
		}
		entries = append(entries, entry)
	}
	return entries
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name     string
		level    string
		expected int
	}{
		{"debug logs everything", "debug", 4},
		{"info skips debug", "info", 3},
		{"warn keeps warn and error", "warn", 2},
		{"error keeps error only", "error", 1},
		{"unknown level falls back to info", "verbose", 3},
		{"off suppresses everything", "off", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLoggerWithWriter(config.LoggingConfig{Level: tt.level, Format: "json"}, &buf)

			logger.Debug("d")
			logger.Info("i")
			logger.Warn("w")
			logger.Error("e", errors.New("boom"))

			entries := decodeLines(t, &buf)
			if len(entries) != tt.expected {
				t.Errorf("expected %d entries, got %d", tt.expected, len(entries))
			}
		})
	}
}

func TestNopLogger(t *testing.T) {
	logger := NewNopLogger().WithComponent("resolver")
	// Must not panic or write anywhere.
	logger.Error("ignored", errors.New("boom"))
	logger.LogLookup("Iglu Central", "failed", time.Millisecond, errors.New("timeout"))
	logger.LogValidation("iglu:com.acme/event/jsonschema/1-0-0", "valid", time.Millisecond, nil)
}

func TestLogLookup(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "debug"}, &buf).WithComponent("resolver")

	logger.LogLookup("Iglu Central", "found", 3*time.Millisecond, nil)
	logger.LogLookup("Mirror", "failed", time.Millisecond, errors.New("connection refused"))

	entries := decodeLines(t, &buf)
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}

	if entries[0].Level != LevelDebug || entries[0].Repository != "Iglu Central" || entries[0].Outcome != "found" {
		t.Errorf("unexpected hit entry: %+v", entries[0])
	}
	if entries[0].Component != "resolver" {
		t.Errorf("expected component resolver, got %q", entries[0].Component)
	}
	if entries[1].Level != LevelWarn || entries[1].Error != "connection refused" {
		t.Errorf("unexpected failure entry: %+v", entries[1])
	}
}

func TestLogValidationWithContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info"}, &buf)

	ctx := WithRequestID(context.Background(), "req-123")
	logger.WithContext(ctx).LogValidation("iglu:com.acme/event/jsonschema/1-0-0", "invalid", time.Millisecond, errors.New("bad"))

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.RequestID != "req-123" {
		t.Errorf("expected request id req-123, got %q", entry.RequestID)
	}
	if entry.Schema != "iglu:com.acme/event/jsonschema/1-0-0" {
		t.Errorf("unexpected schema %q", entry.Schema)
	}
	if entry.Level != LevelWarn {
		t.Errorf("expected warn level, got %s", entry.Level)
	}
}

func TestSchemaFromContext(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info"}, &buf)

	ctx := WithSchema(WithRequestID(context.Background(), "req-9"), "iglu:com.acme/event/jsonschema/1-0-0")
	logger.WithContext(ctx).WithField("repository", "Published Schemas").Info("Schema published")

	entries := decodeLines(t, &buf)
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Schema != "iglu:com.acme/event/jsonschema/1-0-0" || entry.RequestID != "req-9" {
		t.Errorf("context values not lifted: %+v", entry)
	}
	if _, ok := entry.Fields["schema"]; ok {
		t.Errorf("schema should not remain in fields: %v", entry.Fields)
	}
	if entry.Fields["repository"] != "Published Schemas" {
		t.Errorf("expected repository field, got %v", entry.Fields)
	}
}

func TestTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(config.LoggingConfig{Level: "info", Format: "text"}, &buf).WithComponent("server")

	logger.WithField("schema", "iglu:com.acme/event/jsonschema/1-0-0").Info("started")

	out := buf.String()
	if !strings.Contains(out, "INFO server: started") {
		t.Errorf("unexpected text output: %q", out)
	}
	if !strings.Contains(out, "schema=iglu:com.acme/event/jsonschema/1-0-0") {
		t.Errorf("expected schema in text output: %q", out)
	}
}

func TestContextHelpers(t *testing.T) {
	ctx := WithSchema(WithRequestID(context.Background(), "abc"), "iglu:a/b/jsonschema/1-0-0")
	if GetRequestID(ctx) != "abc" {
		t.Errorf("expected request id abc")
	}
	if GetSchema(ctx) != "iglu:a/b/jsonschema/1-0-0" {
		t.Errorf("unexpected schema from context")
	}
	if GetRequestID(context.Background()) != "" {
		t.Errorf("expected empty request id")
	}
}
