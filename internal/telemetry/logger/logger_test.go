package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func restoreLevel(t *testing.T) {
	t.Helper()
	prev := Level()
	t.Cleanup(func() { _ = SetLevel(prev) })
}

func TestNew(t *testing.T) {
	restoreLevel(t)

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"json", Config{Level: "info", Format: "json"}, false},
		{"text", Config{Level: "debug", Format: "text"}, false},
		{"console", Config{Level: "warn", Format: "console"}, false},
		{"empty", Config{}, false},
		{"bad format", Config{Format: "xml"}, true},
		{"bad level", Config{Level: "verbose"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.cfg.Output = &buf
			l, err := New(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && l == nil {
				t.Fatal("New() returned nil logger")
			}
		})
	}
}

func TestNew_JSONOutput(t *testing.T) {
	restoreLevel(t)

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "json", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("node ready", "node_id", "node-a", "state", "READY")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if rec["msg"] != "node ready" || rec["node_id"] != "node-a" || rec["level"] != "INFO" {
		t.Errorf("record = %v", rec)
	}
}

func TestNew_TextOutput(t *testing.T) {
	restoreLevel(t)

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Format: "text", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("peer bound", "peer", "node-b")
	if out := buf.String(); !strings.Contains(out, "msg=\"peer bound\"") || !strings.Contains(out, "peer=node-b") {
		t.Errorf("output = %q", out)
	}
}

func TestSetLevel(t *testing.T) {
	restoreLevel(t)

	var buf bytes.Buffer
	l, err := New(Config{Level: "info", Output: &buf})
	if err != nil {
		t.Fatal(err)
	}

	l.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %s", buf.String())
	}

	if err := SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if Level() != "debug" {
		t.Errorf("Level() = %q, want debug", Level())
	}
	l.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Error("SetLevel did not apply to an existing logger")
	}

	if err := SetLevel("loud"); err == nil {
		t.Error("SetLevel(loud) should fail")
	}
	if Level() != "debug" {
		t.Error("a failed SetLevel changed the level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if err != nil || got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, %v, want %v", tt.in, got, err, tt.want)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("ParseLevel(trace) should fail")
	}
}

func TestLevel_Names(t *testing.T) {
	restoreLevel(t)
	for _, name := range []string{"debug", "info", "warn", "error"} {
		if err := SetLevel(name); err != nil {
			t.Fatal(err)
		}
		if got := Level(); got != name {
			t.Errorf("Level() = %q after SetLevel(%q)", got, name)
		}
	}
}

func TestComponent(t *testing.T) {
	restoreLevel(t)

	var buf bytes.Buffer
	l, err := New(Config{Output: &buf, Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	Component(l, "cluster").Info("x")
	if !strings.Contains(buf.String(), "component=cluster") {
		t.Errorf("output = %q", buf.String())
	}
	if Component(nil, "rpc") == nil {
		t.Error("Component(nil) returned nil")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Error("dropped")
	if l.Enabled(context.Background(), slog.LevelError) {
		t.Error("Discard() logger should be disabled")
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != "info" || cfg.Format != "json" || cfg.Output == nil {
		t.Errorf("DefaultConfig() = %+v", cfg)
	}
}
