package fortress

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/vault"
)

// suspiciousTargets are link target fragments that point into temporary
// directories.
var suspiciousTargets = []string{"/tmp/", "/T/"}

// VerifySymlink checks that path is a symlink resolving to the global
// settings file.
func (f *Fortress) VerifySymlink(path string) error {
	info, err := os.Lstat(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if info.Mode()&fs.ModeSymlink == 0 {
		f.SecurityLog(LevelCritical, "SECURITY_VIOLATION: Expected symlink, found regular file: "+path)
		return fmt.Errorf("%w: %s is not a symlink", ErrSecurity, path)
	}

	raw, err := os.Readlink(path)
	if err != nil {
		return err
	}
	if !f.testMode {
		for _, s := range suspiciousTargets {
			if strings.Contains(raw, s) {
				f.SecurityLog(LevelCritical, "SECURITY_VIOLATION: Symlink points to temporary directory: "+raw)
				return fmt.Errorf("%w: %s points into a temporary directory", ErrSecurity, path)
			}
		}
	}

	expected, err := filepath.EvalSymlinks(f.GlobalSettings)
	if err != nil {
		f.SecurityLog(LevelError, "SYMLINK_ERROR: Target file does not exist: "+f.GlobalSettings)
		return fmt.Errorf("global settings: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(path)
	if err != nil {
		return fmt.Errorf("resolving %s: %w", path, err)
	}
	if resolved != expected {
		f.SecurityLog(LevelCritical, fmt.Sprintf("SECURITY_VIOLATION: Symlink target mismatch. Got: %s, Expected: %s", resolved, expected))
		return fmt.Errorf("%w: %s resolves to %s, want %s", ErrSecurity, path, resolved, expected)
	}

	if st, err := os.Stat(expected); err == nil {
		if mode := st.Mode().Perm(); mode&0o077 != 0 {
			f.SecurityLog(LevelWarning, fmt.Sprintf("SECURITY_WARNING: Insecure permissions on target file: %#o", mode))
		}
	}
	return nil
}

// CheckSymlink reports whether the local settings link is healthy.
func (f *Fortress) CheckSymlink() error {
	f.SecurityLog(LevelInfo, "Performing symlink health check")
	if _, err := os.Stat(f.LocalSettings); err != nil {
		f.SecurityLog(LevelError, "Local settings file missing")
		return fmt.Errorf("local settings: %w", err)
	}
	return f.VerifySymlink(f.LocalSettings)
}

// RepairSymlink replaces the local settings with a symlink to the global
// settings. A temporary link is verified first and renamed into place; a
// regular file in the way is moved to the backup directory. Concurrent
// repairs fail fast on an exclusive lock.
func (f *Fortress) RepairSymlink() error {
	f.SecurityLog(LevelWarning, "Starting atomic symlink repair")
	if err := f.repairSymlink(); err != nil {
		f.SecurityLog(LevelError, fmt.Sprintf("Atomic symlink repair failed: %v", err))
		return err
	}
	f.SecurityLog(LevelSuccess, "Atomic symlink repair completed successfully")
	return f.UpdateBaseline()
}

func (f *Fortress) repairSymlink() error {
	lock, err := vault.TryLock(filepath.Join(f.ClaudeDir, ".symlink_repair.lock"))
	if err != nil {
		return err
	}
	defer lock.Unlock()

	tmp := strings.TrimSuffix(f.LocalSettings, filepath.Ext(f.LocalSettings)) + ".tmp"
	if err := os.Remove(tmp); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	if err := os.Symlink(f.GlobalSettings, tmp); err != nil {
		return err
	}
	if err := f.VerifySymlink(tmp); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("temporary symlink failed verification: %w", err)
	}

	// An existing link is replaced by the rename; a regular file is kept.
	if info, err := os.Lstat(f.LocalSettings); err == nil && info.Mode()&fs.ModeSymlink == 0 {
		backup := filepath.Join(f.BackupDir, fmt.Sprintf("local_settings_backup_%d.json", f.now().Unix()))
		if err := os.Rename(f.LocalSettings, backup); err != nil {
			os.Remove(tmp)
			return err
		}
		f.SecurityLog(LevelInfo, "Backed up non-symlink file to "+backup)
	}

	if err := os.Rename(tmp, f.LocalSettings); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := f.VerifySymlink(f.LocalSettings); err != nil {
		return fmt.Errorf("final symlink verification failed: %w", err)
	}
	return nil
}
