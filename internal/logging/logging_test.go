package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		configured Level
		emit       Level
		want       bool
	}{
		{InfoLevel, DebugLevel, false},
		{InfoLevel, InfoLevel, true},
		{InfoLevel, ErrorLevel, true},
		{WarnLevel, InfoLevel, false},
		{DebugLevel, DebugLevel, true},
		{ErrorLevel, WarnLevel, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.configured)+"/"+string(tt.emit), func(t *testing.T) {
			var buf bytes.Buffer
			l := NewLogger(Config{Format: HumanFormat, Level: tt.configured, Output: &buf})
			l.log(tt.emit, "msg", nil)
			got := buf.Len() > 0
			if got != tt.want {
				t.Errorf("logged = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})
	l.Info("indexed project", map[string]interface{}{"files": 42})

	var e struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
	}
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if e.Level != "info" {
		t.Errorf("level = %q, want info", e.Level)
	}
	if e.Message != "indexed project" {
		t.Errorf("message = %q", e.Message)
	}
	if e.Fields["files"] != float64(42) {
		t.Errorf("fields[files] = %v, want 42", e.Fields["files"])
	}
}

func TestHumanFormatFieldsSorted(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Format: HumanFormat, Level: InfoLevel, Output: &buf})
	l.Info("scan", map[string]interface{}{"b": 2, "a": 1})

	out := buf.String()
	if !strings.Contains(out, "a=1 b=2") {
		t.Errorf("fields not sorted in output: %q", out)
	}
}

func TestWithFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(Config{Format: JSONFormat, Level: InfoLevel, Output: &buf})
	scoped := l.With(map[string]interface{}{"project": "/tmp/x"})
	scoped.Info("touch", nil)

	if !strings.Contains(buf.String(), `"project":"/tmp/x"`) {
		t.Errorf("base field missing from output: %q", buf.String())
	}

	buf.Reset()
	l.Info("touch", nil)
	if strings.Contains(buf.String(), "project") {
		t.Errorf("parent logger picked up child fields: %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
	}{
		{"debug", DebugLevel},
		{"warning", WarnLevel},
		{"error", ErrorLevel},
		{"bogus", InfoLevel},
		{"", InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
