package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestLoggerInit(t *testing.T) {
	err := Init()
	if err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	defer func() {
		if err := Sync(); err != nil {
			t.Errorf("failed to sync logger: %v", err)
		}
	}()

	if Get() == nil {
		t.Fatal("logger is nil after initialization")
	}
}

func TestLoggerUnknownFormat(t *testing.T) {
	if err := InitWithOptions(Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestLoggerJSONOutput(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Format: "json", Writer: &buf}); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Get().Info(context.Background(), "lead synced", String("email", "a@b.com"), Error(errors.New("boom")))

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("output is not json: %v (%q)", err, buf.String())
	}
	if rec["msg"] != "lead synced" {
		t.Errorf("unexpected msg: %v", rec["msg"])
	}
	if rec["email"] != "a@b.com" {
		t.Errorf("unexpected email: %v", rec["email"])
	}
	src, _ := rec["source"].(string)
	if !strings.Contains(src, "logger_test.go") {
		t.Errorf("source should point at the caller, got %q", src)
	}
}

func TestLoggerWithAndNamed(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Writer: &buf}); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}

	Named("quotes").With(String("quote_id", "q1")).Warn(context.Background(), "render slow")

	out := buf.String()
	if !strings.Contains(out, "quotes.quote_id=q1") {
		t.Errorf("expected grouped field in output, got %q", out)
	}
}

func TestLoggerLevel(t *testing.T) {
	var buf bytes.Buffer
	if err := InitWithOptions(Options{Writer: &buf}); err != nil {
		t.Fatalf("failed to initialize logger: %v", err)
	}
	if err := SetLevelString("warn"); err != nil {
		t.Fatalf("set level: %v", err)
	}
	defer func() { _ = SetLevelString("info") }()

	Get().Info(context.Background(), "hidden")
	if buf.Len() != 0 {
		t.Errorf("info should be filtered at warn level, got %q", buf.String())
	}
	if err := SetLevelString("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestDiscard(t *testing.T) {
	l := Discard()
	l.Info(context.Background(), "nothing")
	l.Named("x").With(Int("n", 1)).Debug(nil, "nothing") //nolint:staticcheck // nil ctx tolerated
}
