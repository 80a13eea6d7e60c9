package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSetupAndSetLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "warn", "json")
	slog.Info("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info logged at warn level: %s", buf.String())
	}

	SetLevel("debug")
	if Level() != slog.LevelDebug {
		t.Fatalf("level = %v", Level())
	}
	slog.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Fatalf("debug not logged after SetLevel: %q", buf.String())
	}
}

func TestFromContextAddsCallID(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	SetupWriter(&buf, "info", "json")
	ctx := WithCallID(context.Background(), "call-123")
	FromContext(ctx).Info("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decoding log line: %v", err)
	}
	if entry["call_id"] != "call-123" {
		t.Errorf("call_id = %v", entry["call_id"])
	}
	if CallIDFromContext(context.Background()) != "" {
		t.Error("empty context must not carry a call id")
	}
}

func TestNewSecureWritesToFileOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.log")
	secure, closer, err := NewSecure(path, "debug")
	if err != nil {
		t.Fatalf("NewSecure: %v", err)
	}
	secure.Debug("raw body", "personident", "12345678901")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading secure log: %v", err)
	}
	if !strings.Contains(string(data), "12345678901") || !strings.Contains(string(data), `"channel":"secure"`) {
		t.Errorf("secure log = %s", data)
	}
}

func TestNewSecureWithoutPathDiscards(t *testing.T) {
	secure, closer, err := NewSecure("", "debug")
	if err != nil {
		t.Fatalf("NewSecure: %v", err)
	}
	defer closer.Close()
	if secure.Enabled(context.Background(), slog.LevelError) {
		t.Error("discarding secure logger should not be enabled")
	}
}

func TestSetSecureLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "secure.log")
	secure, closer, err := NewSecure(path, "info")
	if err != nil {
		t.Fatalf("NewSecure: %v", err)
	}
	defer closer.Close()
	prev := Level()
	t.Cleanup(func() {
		SetSecureLevel("info")
		level.Set(prev)
	})

	secure.Debug("before")
	SetSecureLevel("debug")
	secure.Debug("after")
	SetLevel("error")
	secure.Debug("independent of default level")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading secure log: %v", err)
	}
	if strings.Contains(string(data), `"msg":"before"`) {
		t.Errorf("debug logged at info level: %s", data)
	}
	if !strings.Contains(string(data), `"msg":"after"`) || !strings.Contains(string(data), "independent of default level") {
		t.Errorf("debug not logged after SetSecureLevel: %s", data)
	}
}
