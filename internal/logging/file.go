package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// FileWriter appends log lines to a file and rotates it by size. It is safe
// for concurrent use.
type FileWriter struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	maxSize    int64
	maxBackups int
	written    int64
}

// OpenFile opens path for appending, creating its directory. The file is
// rotated to path.1 (shifting older backups) once it would exceed maxSizeMB.
func OpenFile(path string, maxSizeMB, maxBackups int) (*FileWriter, error) {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	if maxBackups <= 0 {
		maxBackups = 2
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	w := &FileWriter{
		path:       path,
		maxSize:    int64(maxSizeMB) * 1024 * 1024,
		maxBackups: maxBackups,
	}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *FileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.written > 0 && w.written+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, fmt.Errorf("log rotation: %w", err)
		}
	}
	n, err := w.file.Write(p)
	w.written += int64(n)
	return n, err
}

// Close closes the underlying file.
func (w *FileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Tee returns a writer that duplicates every write to console and file.
func Tee(console, file io.Writer) io.Writer {
	return io.MultiWriter(console, file)
}

func (w *FileWriter) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat log file: %w", err)
	}
	w.file = f
	w.written = info.Size()
	return nil
}

func (w *FileWriter) rotate() error {
	if w.file != nil {
		w.file.Close()
	}
	for i := w.maxBackups; i >= 2; i-- {
		if i == w.maxBackups {
			os.Remove(w.backup(i))
		}
		os.Rename(w.backup(i-1), w.backup(i))
	}
	os.Rename(w.path, w.backup(1))
	return w.open()
}

func (w *FileWriter) backup(index int) string {
	return fmt.Sprintf("%s.%d", w.path, index)
}
