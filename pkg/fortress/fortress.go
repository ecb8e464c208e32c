// Package fortress guards the Claude settings files: it keeps the local
// settings linked to the global ones, enforces the required allow and deny
// permission lists, tracks file checksums and writes a signed audit log.
package fortress

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/swm-sink/promptaudit/pkg/logging"
	"github.com/swm-sink/promptaudit/pkg/vault"
)

var log = logging.New("fortress")

var (
	// ErrIntegrity reports a checksum mismatch or tampered integrity data.
	ErrIntegrity = errors.New("integrity check failed")
	// ErrSecurity reports a settings or symlink security violation.
	ErrSecurity = errors.New("security violation")
)

// DefaultMasterKey is the password used when none is configured.
const DefaultMasterKey = "default_dev_key"

// Security log levels.
const (
	LevelInfo     = "INFO"
	LevelSuccess  = "SUCCESS"
	LevelWarning  = "WARNING"
	LevelError    = "ERROR"
	LevelCritical = "CRITICAL"
)

var levelColors = map[string]*color.Color{
	LevelInfo:     color.New(color.FgHiBlue),
	LevelSuccess:  color.New(color.FgHiGreen),
	LevelWarning:  color.New(color.FgHiYellow),
	LevelError:    color.New(color.FgHiRed),
	LevelCritical: color.New(color.FgHiMagenta),
}

// Options configure a Fortress.
type Options struct {
	ProjectRoot string // directory holding .claude; defaults to the working directory
	HomeDir     string // directory holding the global .claude; defaults to the user's home
	MasterKey   string
	TestMode    bool      // allow symlinks into temporary directories
	Console     io.Writer // colored security log lines; nil discards them
	Now         func() time.Time

	AuditMaxBytes int64
	AuditBackups  int
}

// Fortress holds the resolved paths and crypto state.
type Fortress struct {
	ClaudeDir      string
	GlobalSettings string
	LocalSettings  string
	BackupDir      string
	SecurityDir    string
	LogFile        string
	IntegrityFile  string
	AuditLogFile   string

	cipher   *vault.Cipher
	hmacKey  []byte
	audit    *AuditLog
	console  io.Writer
	testMode bool
	now      func() time.Time

	logMu sync.Mutex
}

// New prepares the security directories (0700), derives the key from the
// master key and a persisted salt, and opens the audit log.
func New(opts Options) (*Fortress, error) {
	root := opts.ProjectRoot
	if root == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		root = wd
	}
	home := opts.HomeDir
	if home == "" {
		h, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		home = h
	}
	masterKey := opts.MasterKey
	if masterKey == "" {
		masterKey = DefaultMasterKey
	}

	claudeDir := filepath.Join(root, ".claude")
	f := &Fortress{
		ClaudeDir:      claudeDir,
		GlobalSettings: filepath.Join(home, ".claude", "settings.json"),
		LocalSettings:  filepath.Join(claudeDir, "settings.local.json"),
		BackupDir:      filepath.Join(claudeDir, "permission_backups"),
		SecurityDir:    filepath.Join(claudeDir, "security"),
		LogFile:        filepath.Join(claudeDir, "permission_fortress.log"),
		console:        opts.Console,
		testMode:       opts.TestMode,
		now:            opts.Now,
	}
	f.IntegrityFile = filepath.Join(f.SecurityDir, "integrity.json")
	f.AuditLogFile = filepath.Join(f.SecurityDir, "audit.log")
	if f.now == nil {
		f.now = time.Now
	}
	if f.console == nil {
		f.console = io.Discard
	}

	for _, dir := range []string{f.BackupDir, f.SecurityDir} {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("creating %s: %w", dir, err)
		}
	}
	if _, err := os.Stat(f.LogFile); err == nil {
		os.Chmod(f.LogFile, 0o600)
	}

	salt, err := vault.LoadOrCreateSalt(filepath.Join(f.SecurityDir, ".crypto_salt"))
	if err != nil {
		return nil, err
	}
	key := vault.DeriveKey([]byte(masterKey), salt)
	if f.cipher, err = vault.NewCipher(key); err != nil {
		return nil, err
	}
	f.hmacKey = key[:16]
	f.audit = NewAuditLog(f.AuditLogFile, f.hmacKey, opts.AuditMaxBytes, opts.AuditBackups)

	log.Debug("fortress ready", "claudeDir", claudeDir, "global", f.GlobalSettings, "testMode", f.testMode)
	return f, nil
}

// SecurityLog writes message to the console, the signed audit log and the
// plain fortress log.
func (f *Fortress) SecurityLog(level, message string) {
	ts := f.now().UTC()
	stamp := ts.Format(time.RFC3339Nano)

	f.logMu.Lock()
	defer f.logMu.Unlock()

	c := levelColors[level]
	if c == nil {
		c = color.New(color.Reset)
	}
	c.Fprintf(f.console, "[%s] [%s] %s\n", stamp, level, message)

	if err := f.audit.Write(ts, level, message); err != nil {
		log.Warn("failed to write audit log", "error", err)
	}

	plain, err := os.OpenFile(f.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		log.Warn("failed to open fortress log", "error", err)
		return
	}
	fmt.Fprintf(plain, "[%s] [%s] %s\n", stamp, level, message)
	plain.Close()
}

// VerifyAudit checks every line of the current audit log.
func (f *Fortress) VerifyAudit() ([]AuditEntry, error) {
	return VerifyAuditLog(f.AuditLogFile, f.hmacKey)
}

// Check runs the full security check: integrity, symlink health (repairing
// it when broken) and global permission validation (repairing missing
// entries). It returns nil when everything is secure.
func (f *Fortress) Check() error {
	f.SecurityLog(LevelInfo, "FORTRESS SECURITY CHECK")

	if err := f.VerifyIntegrity(); err != nil {
		return f.checkFailed(err)
	}

	if err := f.CheckSymlink(); err != nil {
		f.SecurityLog(LevelWarning, "Initiating atomic symlink repair")
		if rerr := f.RepairSymlink(); rerr != nil {
			f.SecurityLog(LevelCritical, "CRITICAL: Atomic symlink repair failed")
			return f.checkFailed(fmt.Errorf("%w: symlink repair failed: %v", ErrSecurity, rerr))
		}
	}

	v := f.ValidatePermissions(f.GlobalSettings)
	switch {
	case v.SecurityViolation:
		f.SecurityLog(LevelCritical, "CRITICAL SECURITY VIOLATION in permissions")
		return f.checkFailed(fmt.Errorf("%w: dangerous permissions allowed: %v", ErrSecurity, v.DangerousAllowed))
	case !v.Valid:
		f.SecurityLog(LevelError, "Global permissions incomplete, initiating secure repair")
		if err := f.RepairPermissions(f.GlobalSettings, v); err != nil {
			return f.checkFailed(err)
		}
	default:
		f.SecurityLog(LevelSuccess, "Global permissions validated")
	}

	if err := f.VerifyIntegrity(); err != nil {
		return f.checkFailed(err)
	}
	f.SecurityLog(LevelSuccess, "FORTRESS SECURE - all systems operational")
	return nil
}

func (f *Fortress) checkFailed(err error) error {
	f.SecurityLog(LevelCritical, fmt.Sprintf("SECURITY_CHECK_FAILED: %v", err))
	return err
}
