package collectors

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// maxToolOutput caps the stdout and stderr captured from an external tool.
const maxToolOutput = 4 * 1024 * 1024

// commandRunner runs an external tool and returns its stdout. Platform
// capabilities take one so tests can substitute canned output.
type commandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// runCommand is the commandRunner backed by os/exec.
func runCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &limitedWriter{buf: &stdout, limit: maxToolOutput}
	cmd.Stderr = &limitedWriter{buf: &stderr, limit: maxToolOutput}

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return stdout.Bytes(), fmt.Errorf("%s %s: %w: %s", name, strings.Join(args, " "), err, msg)
		}
		return stdout.Bytes(), fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return stdout.Bytes(), nil
}

// limitedWriter keeps the first limit bytes and silently drops the rest.
type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.written >= w.limit {
		return len(p), nil
	}

	keep := p
	if remaining := w.limit - w.written; len(keep) > remaining {
		keep = keep[:remaining]
	}
	n, err := w.buf.Write(keep)
	w.written += n
	if err != nil {
		return n, err
	}
	return len(p), nil
}
