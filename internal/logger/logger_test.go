package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

const fakeToken = "123456789:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsawQ"

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"debug", slog.LevelDebug, false},
		{"INFO", slog.LevelInfo, false},
		{"", slog.LevelInfo, false},
		{"warning", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("info", "json", &buf)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	log.Debug("hidden")
	log.Info("delivered", "provider", "snaptik", "items", 3)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 record, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("record is not JSON: %v", err)
	}
	if rec["msg"] != "delivered" || rec["provider"] != "snaptik" {
		t.Errorf("unexpected record %v", rec)
	}
}

func TestNew_Rejects(t *testing.T) {
	if _, err := New("loud", "text", &bytes.Buffer{}); err == nil {
		t.Error("expected error for bad level")
	}
	if _, err := New("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for bad format")
	}
}

func TestRedact(t *testing.T) {
	in := "Post https://api.telegram.org/bot" + fakeToken + "/sendVideo: EOF"
	got := Redact(in)
	if strings.Contains(got, "AAHdq") {
		t.Errorf("token leaked: %q", got)
	}
	if !strings.Contains(got, "123456789:[REDACTED]") {
		t.Errorf("Redact() = %q", got)
	}
	if Redact("no secrets here") != "no secrets here" {
		t.Error("Redact() changed a clean string")
	}
}

func TestHandlerRedactsAttrs(t *testing.T) {
	var buf bytes.Buffer
	log, err := New("debug", "text", &buf)
	if err != nil {
		t.Fatal(err)
	}

	log.Error("send failed",
		"url", "https://api.telegram.org/bot"+fakeToken+"/getMe",
		"error", errors.New("bad token "+fakeToken))

	if strings.Contains(buf.String(), "AAHdq") {
		t.Errorf("token leaked into log output: %s", buf.String())
	}
}
