// Package audit keeps a hash-chained JSONL trail of optimization attempts.
//
// Every record carries the hash of the record before it. The chain spans
// process runs and rotated files: a new run links to the last record already
// on disk, and the first record of a rotated file links to the last record
// of the file it replaced.
package audit

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/breeze-rmm/startup-optimizer/internal/config"
	"github.com/breeze-rmm/startup-optimizer/internal/logging"
)

var log = logging.L("audit")

// Event types.
const (
	EventOptimizeRequested = "optimize_requested"
	EventOptimizeApplied   = "optimize_applied"
	EventOptimizeNoop      = "optimize_noop"
	EventOptimizeRejected  = "optimize_rejected"
	EventOptimizeFailed    = "optimize_failed"
	EventLogRotated        = "log_rotated"
	EventChainReset        = "chain_reset"
)

// criticalEvents are fsynced: they record a change reaching, or failing to
// reach, the OS.
var criticalEvents = map[string]bool{
	EventOptimizeApplied: true,
	EventOptimizeFailed:  true,
}

const (
	// FileName is the active log inside the audit directory.
	FileName = "audit.jsonl"

	genesisHash       = "genesis"
	defaultMaxSizeMB  = 10
	defaultMaxBackups = 3

	// tailWindow bounds how much of an existing log is read to find its
	// last record.
	tailWindow = 64 * 1024
)

var errEmptyLog = errors.New("audit log has no records")

// Entry is one audit record.
type Entry struct {
	Timestamp   string         `json:"timestamp"`
	EventType   string         `json:"eventType"`
	OperationID string         `json:"operationId,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	PrevHash    string         `json:"prevHash"`
	EntryHash   string         `json:"entryHash"`
}

// digest hashes every field except EntryHash. Fields are length-prefixed so
// a "|" or ":" inside one cannot be shifted into its neighbour.
func (e Entry) digest() (string, error) {
	h := sha256.New()
	for _, field := range []string{e.Timestamp, e.EventType, e.OperationID, e.PrevHash} {
		fmt.Fprintf(h, "%d:%s", len(field), field)
	}
	if e.Details != nil {
		details, err := json.Marshal(e.Details)
		if err != nil {
			return "", fmt.Errorf("marshal details: %w", err)
		}
		fmt.Fprintf(h, "%d:", len(details))
		h.Write(details)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// NewOperationID returns a fresh id tying together the records of one
// optimization attempt.
func NewOperationID() string {
	return uuid.NewString()
}

// FilePath returns the active log path inside dir.
func FilePath(dir string) string {
	return filepath.Join(dir, FileName)
}

// Logger appends records to the audit log. A nil *Logger discards
// everything, so callers never need to check whether auditing is on.
type Logger struct {
	mu      sync.Mutex
	path    string
	file    *os.File
	size    int64
	limit   int64
	backups int
	head    string // EntryHash of the last record written
	dropped atomic.Int64
}

// NewLogger opens the audit log configured in cfg. It returns (nil, nil)
// when auditing is disabled.
func NewLogger(cfg *config.Config) (*Logger, error) {
	if !cfg.AuditEnabled {
		return nil, nil
	}
	return Open(cfg.GetAuditDir(), cfg.AuditMaxSizeMB, cfg.AuditMaxBackups)
}

// Open appends to {dir}/audit.jsonl, continuing the chain from its last
// record. A last record that is unreadable or fails its hash check starts
// a new chain behind a chain_reset record.
func Open(dir string, maxSizeMB, maxBackups int) (*Logger, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = defaultMaxSizeMB
	}
	if maxBackups <= 0 {
		maxBackups = defaultMaxBackups
	}

	l := &Logger{
		path:    FilePath(dir),
		limit:   int64(maxSizeMB) * 1024 * 1024,
		backups: maxBackups,
		head:    genesisHash,
	}

	head, resumeErr := lastHash(l.path)
	if resumeErr == nil {
		l.head = head
	}
	if err := l.openFile(); err != nil {
		return nil, err
	}

	if resumeErr != nil && !errors.Is(resumeErr, errEmptyLog) {
		log.Warn("audit chain cannot be resumed, starting a new one", "path", l.path, logging.KeyError, resumeErr)
		if err := l.append(Entry{EventType: EventChainReset, Details: map[string]any{"reason": resumeErr.Error()}}, true); err != nil {
			l.file.Close()
			return nil, fmt.Errorf("write chain reset: %w", err)
		}
	}

	log.Debug("audit logger opened", "path", l.path, "resumed", resumeErr == nil)
	return l, nil
}

// Log records one event. Write failures are logged and counted, never
// returned: the optimization itself has already happened or been refused.
func (l *Logger) Log(eventType, operationID string, details map[string]any) {
	if l == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	err := l.append(Entry{EventType: eventType, OperationID: operationID, Details: details}, criticalEvents[eventType])
	if err != nil {
		l.dropped.Add(1)
		log.Error("audit record dropped", "eventType", eventType, logging.KeyError, err)
	}
}

// append links e to the chain and writes it, rotating first when e would
// push the file past its limit. The rotation record itself never rotates.
// The head only moves after a full write. Callers hold l.mu.
func (l *Logger) append(e Entry, sync bool) error {
	if l.file == nil {
		return errors.New("audit log is closed")
	}
	if e.Timestamp == "" {
		e.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	data, err := l.seal(&e)
	if err != nil {
		return err
	}
	if e.EventType != EventLogRotated && l.size > 0 && l.size+int64(len(data)) > l.limit {
		if err := l.rotate(); err != nil {
			return fmt.Errorf("rotate: %w", err)
		}
		// The rotation record moved the head; relink.
		if data, err = l.seal(&e); err != nil {
			return err
		}
	}

	n, err := l.file.Write(data)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("write: %w", err)
	}
	l.head = e.EntryHash

	if sync {
		if err := l.file.Sync(); err != nil {
			log.Error("failed to fsync audit record", "eventType", e.EventType, logging.KeyError, err)
		}
	}
	return nil
}

// seal sets PrevHash and EntryHash on e and returns its JSONL line.
func (l *Logger) seal(e *Entry) ([]byte, error) {
	e.PrevHash = l.head
	hash, err := e.digest()
	if err != nil {
		return nil, err
	}
	e.EntryHash = hash
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal: %w", err)
	}
	return append(data, '\n'), nil
}

// rotate shifts audit.jsonl to audit.jsonl.1 (dropping the oldest backup)
// and opens a fresh file whose first record points back at the old one.
func (l *Logger) rotate() error {
	l.file.Close()

	for i := l.backups; i >= 2; i-- {
		if i == l.backups {
			if err := os.Remove(l.backupName(i)); err != nil && !os.IsNotExist(err) {
				log.Warn("cannot remove oldest audit backup", "path", l.backupName(i), logging.KeyError, err)
			}
		}
		if err := os.Rename(l.backupName(i-1), l.backupName(i)); err != nil && !os.IsNotExist(err) {
			log.Warn("cannot shift audit backup", "path", l.backupName(i-1), logging.KeyError, err)
		}
	}
	if err := os.Rename(l.path, l.backupName(1)); err != nil && !os.IsNotExist(err) {
		log.Warn("cannot rename audit log", "path", l.path, logging.KeyError, err)
	}

	if err := l.openFile(); err != nil {
		return err
	}
	return l.append(Entry{EventType: EventLogRotated, Details: map[string]any{"previousFile": l.backupName(1)}}, true)
}

func (l *Logger) openFile() error {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return fmt.Errorf("stat audit log: %w", err)
	}
	l.file = f
	l.size = info.Size()
	return nil
}

func (l *Logger) backupName(index int) string {
	return fmt.Sprintf("%s.%d", l.path, index)
}

// Close closes the log file. Safe on a nil receiver.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// DroppedCount returns how many records could not be written, or -1 on a
// nil logger so "no audit log" is distinguishable from "no drops".
func (l *Logger) DroppedCount() int64 {
	if l == nil {
		return -1
	}
	return l.dropped.Load()
}

// lastHash returns the EntryHash of the last record in path after checking
// that record against its own digest.
func lastHash(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", errEmptyLog
		}
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	offset := max(info.Size()-tailWindow, 0)
	tail := make([]byte, info.Size()-offset)
	if _, err := f.ReadAt(tail, offset); err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}

	tail = bytes.TrimRight(tail, "\r\n")
	if len(tail) == 0 {
		return "", errEmptyLog
	}
	line := tail
	if i := bytes.LastIndexByte(tail, '\n'); i >= 0 {
		line = tail[i+1:]
	}

	var e Entry
	if err := json.Unmarshal(line, &e); err != nil {
		return "", fmt.Errorf("last record is not valid JSON: %w", err)
	}
	want, err := e.digest()
	if err != nil {
		return "", err
	}
	if e.EntryHash != want {
		return "", fmt.Errorf("last record hash mismatch")
	}
	return e.EntryHash, nil
}

// Verify walks the log at path and checks every record's hash and its link
// to the record before it. The first record may link anywhere: to genesis,
// to a rotated file or to a reset chain. It returns the number of records
// that verified before the first break.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	count := 0
	prev := ""
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var e Entry
		if err := json.Unmarshal(line, &e); err != nil {
			return count, fmt.Errorf("record %d: %w", count+1, err)
		}
		want, err := e.digest()
		if err != nil {
			return count, fmt.Errorf("record %d: %w", count+1, err)
		}
		if e.EntryHash != want {
			return count, fmt.Errorf("record %d: hash mismatch", count+1)
		}
		if count > 0 && e.PrevHash != prev && e.EventType != EventChainReset {
			return count, fmt.Errorf("record %d: does not link to record %d", count+1, count)
		}
		prev = e.EntryHash
		count++
	}
	if err := scanner.Err(); err != nil {
		return count, err
	}
	return count, nil
}
