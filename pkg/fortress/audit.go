package fortress

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
)

// Audit log rotation defaults.
const (
	DefaultAuditMaxBytes = 10 * 1024 * 1024
	DefaultAuditBackups  = 10
)

// AuditLog appends HMAC-tagged lines of the form
// "timestamp|LEVEL|message|hmac" and rotates the file by size.
type AuditLog struct {
	path     string
	key      []byte
	maxBytes int64
	backups  int

	mu sync.Mutex
}

// NewAuditLog creates an audit log at path. key signs every line.
func NewAuditLog(path string, key []byte, maxBytes int64, backups int) *AuditLog {
	if maxBytes <= 0 {
		maxBytes = DefaultAuditMaxBytes
	}
	if backups <= 0 {
		backups = DefaultAuditBackups
	}
	return &AuditLog{path: path, key: key, maxBytes: maxBytes, backups: backups}
}

func sign(key []byte, entry string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(entry))
	return hex.EncodeToString(mac.Sum(nil))
}

// Write appends one signed entry.
func (a *AuditLog) Write(ts time.Time, level, message string) error {
	message = strings.NewReplacer("\n", `\n`, "\r", `\r`).Replace(message)
	entry := ts.UTC().Format(time.RFC3339Nano) + "|" + level + "|" + message
	line := entry + "|" + sign(a.key, entry) + "\n"

	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.rotateIfNeeded(int64(len(line))); err != nil {
		return err
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("opening audit log: %w", err)
	}
	defer f.Close()
	_, err = f.WriteString(line)
	return err
}

// rotateIfNeeded shifts audit.log.N-1 to audit.log.N down to audit.log to
// audit.log.1 when the next write would exceed maxBytes.
func (a *AuditLog) rotateIfNeeded(next int64) error {
	info, err := os.Stat(a.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if info.Size()+next <= a.maxBytes {
		return nil
	}

	for i := a.backups - 1; i >= 1; i-- {
		src := fmt.Sprintf("%s.%d", a.path, i)
		if _, err := os.Stat(src); err == nil {
			if err := os.Rename(src, fmt.Sprintf("%s.%d", a.path, i+1)); err != nil {
				return fmt.Errorf("rotating audit log: %w", err)
			}
		}
	}
	if err := os.Rename(a.path, a.path+".1"); err != nil {
		return fmt.Errorf("rotating audit log: %w", err)
	}
	log.Debug("rotated audit log", "path", a.path)
	return nil
}

// AuditEntry is one parsed audit line.
type AuditEntry struct {
	Line      int
	Timestamp string
	Level     string
	Message   string
	Valid     bool
}

// VerifyAuditLog parses the log at path and checks every line's HMAC.
// Lines that cannot be parsed are reported as invalid.
func VerifyAuditLog(path string, key []byte) ([]AuditEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []AuditEntry
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for n := 1; scanner.Scan(); n++ {
		line := scanner.Text()
		if line == "" {
			continue
		}
		e := AuditEntry{Line: n}
		cut := strings.LastIndexByte(line, '|')
		if cut < 0 {
			entries = append(entries, e)
			continue
		}
		entry, tag := line[:cut], line[cut+1:]
		if parts := strings.SplitN(entry, "|", 3); len(parts) == 3 {
			e.Timestamp, e.Level, e.Message = parts[0], parts[1], parts[2]
			e.Valid = hmac.Equal([]byte(sign(key, entry)), []byte(tag))
		}
		entries = append(entries, e)
	}
	return entries, scanner.Err()
}
