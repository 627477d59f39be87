package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestPreInitLoggerUsesConfiguredHandler(t *testing.T) {
	logger := L("collectors")

	var buf bytes.Buffer
	Init("text", "info", &buf)

	logger.Info("source collected", "source", "autorun")

	out := buf.String()
	if !strings.Contains(out, `msg="source collected"`) {
		t.Fatalf("expected message, got: %s", out)
	}
	if !strings.Contains(out, "component=collectors") {
		t.Fatalf("expected component field, got: %s", out)
	}
	if !strings.Contains(out, "source=autorun") {
		t.Fatalf("expected source field, got: %s", out)
	}
}

func TestPreInitLoggerRespectsConfiguredLevel(t *testing.T) {
	logger := L("engine")

	var buf bytes.Buffer
	Init("text", "warn", &buf)

	logger.Info("hidden")
	logger.Warn("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info log should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn log should be emitted: %s", out)
	}
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	Init("json", "debug", &buf)

	WithEntry(L("optimizer"), "autorun:hkcu|x", "disable").Debug("applied")

	out := buf.String()
	for _, want := range []string{`"component":"optimizer"`, `"entryId":"autorun:hkcu|x"`, `"action":"disable"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestInitSwitchesFormats(t *testing.T) {
	logger := L("engine")

	var text1, js, text2 bytes.Buffer
	Init("text", "info", &text1)
	logger.Info("first")
	Init("json", "info", &js)
	logger.Info("second")
	Init("text", "info", &text2)
	logger.Info("third")

	if !strings.Contains(text1.String(), "msg=first") {
		t.Fatalf("expected text output, got: %s", text1.String())
	}
	if !strings.Contains(js.String(), `"msg":"second"`) {
		t.Fatalf("expected json output, got: %s", js.String())
	}
	if !strings.Contains(text2.String(), "msg=third") {
		t.Fatalf("expected text output after json, got: %s", text2.String())
	}
}

func TestContextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	fallback := L("collectors")
	ctx := NewContext(context.Background(), logger)
	if FromContext(ctx, fallback) != logger {
		t.Fatal("FromContext did not return the stored logger")
	}
	if FromContext(context.Background(), fallback) != fallback {
		t.Fatal("FromContext without a logger should return the fallback")
	}
	if FromContext(context.Background(), nil) == nil {
		t.Fatal("FromContext without any logger should return the default")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"WARNING": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
