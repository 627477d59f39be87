package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "startup-optimizer.log")
	w, err := OpenFile(path, 1, 2)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer w.Close()
	w.maxSize = 16

	for _, line := range []string{"first line 01\n", "second line 2\n", "third line 03\n", "fourth line 4\n"} {
		if _, err := w.Write([]byte(line)); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}

	cur, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read current: %v", err)
	}
	if string(cur) != "fourth line 4\n" {
		t.Fatalf("current file = %q", cur)
	}
	b1, _ := os.ReadFile(path + ".1")
	b2, _ := os.ReadFile(path + ".2")
	if string(b1) != "third line 03\n" || string(b2) != "second line 2\n" {
		t.Fatalf("backups = %q, %q", b1, b2)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Fatalf("expected at most 2 backups, stat .3: %v", err)
	}
}

func TestFileWriterAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "app.log")
	if err := os.WriteFile(path, []byte("old\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	w, err := OpenFile(path, 1, 1)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	w.Write([]byte("new\n"))
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	data, _ := os.ReadFile(path)
	if string(data) != "old\nnew\n" {
		t.Fatalf("file = %q", data)
	}
}

func TestTeeWritesBoth(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tee.log")
	fw, err := OpenFile(path, 1, 1)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer fw.Close()

	var console bytes.Buffer
	Init("text", "info", Tee(&console, fw))
	defer Init("text", "warn", os.Stderr)

	L("engine").Info("scan complete")

	data, _ := os.ReadFile(path)
	if !strings.Contains(console.String(), "scan complete") || !strings.Contains(string(data), "scan complete") {
		t.Fatalf("console=%q file=%q", console.String(), data)
	}
}
