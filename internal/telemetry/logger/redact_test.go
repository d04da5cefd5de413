package logger

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestRedactSensitive_SecretValue(t *testing.T) {
	restoreLevel(t)

	var buf bytes.Buffer
	l, err := New(Config{Output: &buf, Format: "text"})
	if err != nil {
		t.Fatal(err)
	}
	l.Info("worker connecting", "service_id", "render", "value", "nmcs_abcdefghijklmnop")

	out := buf.String()
	if strings.Contains(out, "nmcs_abcdefghijklmnop") {
		t.Errorf("secret leaked: %s", out)
	}
	if !strings.Contains(out, "nmcs_abc...nop") {
		t.Errorf("secret not masked: %s", out)
	}
	if !strings.Contains(out, "service_id=render") {
		t.Errorf("plain value altered: %s", out)
	}
}

func TestRedactSensitive_KeyName(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"secret", "plain", redactedValue},
		{"secret_hash", "argon2id$x$y", redactedValue},
		{"db_password", "hunter2", redactedValue},
		{"token", "", ""},
		{"node_id", "node-a", "node-a"},
		{"key_file", "/etc/nodemesh/node.key", "/etc/nodemesh/node.key"},
	}
	for _, tt := range tests {
		got := redactSensitive(slog.String(tt.key, tt.value))
		if got.Value.String() != tt.want {
			t.Errorf("redact(%s=%q) = %q, want %q", tt.key, tt.value, got.Value.String(), tt.want)
		}
	}
}

func TestRedactSensitive_Group(t *testing.T) {
	a := slog.Group("auth", slog.String("secret", "x"), slog.String("service", "render"))
	got := redactSensitive(a).Value.Group()
	if got[0].Value.String() != redactedValue {
		t.Errorf("group member not redacted: %v", got[0])
	}
	if got[1].Value.String() != "render" {
		t.Errorf("group member altered: %v", got[1])
	}
}

func TestRedactSensitive_NonString(t *testing.T) {
	a := slog.Int("secret", 42)
	if got := redactSensitive(a); got.Value.Int64() != 42 {
		t.Errorf("non-string value altered: %v", got)
	}
}

func TestMaskValue(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"nmcs_", "nmcs_***"},
		{"nmcs_abcdef", "nmcs_***"},
		{"nmcs_abcdefg", "nmcs_abc...efg"},
	}
	for _, tt := range tests {
		if got := maskValue(tt.in, "nmcs_"); got != tt.want {
			t.Errorf("maskValue(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestRedactString(t *testing.T) {
	if got := RedactString("nmcs_0123456789"); got != "nmcs_012...789" {
		t.Errorf("RedactString() = %q", got)
	}
	if got := RedactString("plain"); got != "plain" {
		t.Errorf("RedactString(plain) = %q", got)
	}
}

func TestIsSensitive(t *testing.T) {
	if !IsSensitiveKey("Connection_Secret") || IsSensitiveKey("unique_id") {
		t.Error("IsSensitiveKey mismatch")
	}
	if !IsSensitiveValue("nmcs_x") || IsSensitiveValue("tmtk_x") {
		t.Error("IsSensitiveValue mismatch")
	}
}
