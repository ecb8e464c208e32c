package fortress

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/swm-sink/promptaudit/pkg/vault"
	"golang.org/x/sys/unix"
)

// RequiredPermissions must always be in the allow list.
var RequiredPermissions = []string{
	"Bash(*)", "Read(*)", "Edit(*)", "Write(*)", "MultiEdit(*)",
	"Glob(*)", "Grep(*)", "LS(*)", "Task(*)", "WebFetch(*)",
	"WebSearch(*)", "TodoRead(*)", "TodoWrite(*)",
	"NotebookRead(*)", "NotebookEdit(*)", "exit_plan_mode(*)",
	"mcp__ide__getDiagnostics(*)", "mcp__ide__executeCode(*)", "mcp__*",
}

// DenyPermissions must always be in the deny list and never allowed.
var DenyPermissions = []string{
	"Bash(rm -rf /:*)", "Bash(sudo su:*)", "Bash(dd:*)", "Bash(mkfs:*)",
}

// Version is written into the _security block of repaired settings.
const Version = "2.0.0-enterprise"

// Validation is the result of checking a settings file.
type Validation struct {
	Path              string
	Valid             bool
	SecurityViolation bool
	MissingAllow      []string
	MissingDeny       []string
	DangerousAllowed  []string
	Err               error

	settings map[string]any
	allow    []string
	deny     []string
}

func missing(required []string, have map[string]bool) []string {
	var out []string
	for _, p := range required {
		if !have[p] {
			out = append(out, p)
		}
	}
	return out
}

func stringSet(v any) ([]string, map[string]bool) {
	set := make(map[string]bool)
	var list []string
	items, _ := v.([]any)
	for _, item := range items {
		if s, ok := item.(string); ok && !set[s] {
			set[s] = true
			list = append(list, s)
		}
	}
	return list, set
}

// checkFileSecurity logs loose permission bits and foreign ownership.
func (f *Fortress) checkFileSecurity(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return err
	}
	if mode := st.Mode & 0o777; mode&0o077 != 0 {
		f.SecurityLog(LevelWarning, fmt.Sprintf("SECURITY_WARNING: Overly permissive file permissions: %s (%#o)", path, mode))
	}
	if int(st.Uid) != os.Getuid() {
		f.SecurityLog(LevelWarning, "SECURITY_WARNING: File not owned by current user: "+path)
	}
	return nil
}

// ValidatePermissions checks the allow and deny lists of a settings file.
func (f *Fortress) ValidatePermissions(path string) *Validation {
	v := &Validation{Path: path}
	fail := func(err error) *Validation {
		f.SecurityLog(LevelError, fmt.Sprintf("PERMISSION_VALIDATION_FAILED: %v", err))
		v.Err = err
		v.MissingAllow = RequiredPermissions
		v.MissingDeny = DenyPermissions
		return v
	}

	if err := f.checkFileSecurity(path); err != nil {
		return fail(fmt.Errorf("file security validation failed: %w", err))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fail(err)
	}
	if err := json.Unmarshal(data, &v.settings); err != nil {
		return fail(fmt.Errorf("parsing %s: %w", path, err))
	}

	perms, _ := v.settings["permissions"].(map[string]any)
	var allowSet, denySet map[string]bool
	v.allow, allowSet = stringSet(perms["allow"])
	v.deny, denySet = stringSet(perms["deny"])

	for _, p := range DenyPermissions {
		if allowSet[p] {
			v.DangerousAllowed = append(v.DangerousAllowed, p)
		}
	}
	if len(v.DangerousAllowed) > 0 {
		v.SecurityViolation = true
		f.SecurityLog(LevelCritical, "SECURITY_VIOLATION: Dangerous permissions found in allow list: "+strings.Join(v.DangerousAllowed, ", "))
		return v
	}

	v.MissingAllow = missing(RequiredPermissions, allowSet)
	v.MissingDeny = missing(DenyPermissions, denySet)
	v.Valid = len(v.MissingAllow) == 0 && len(v.MissingDeny) == 0
	return v
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, list := range [][]string{a, b} {
		for _, s := range list {
			if !seen[s] {
				seen[s] = true
				out = append(out, s)
			}
		}
	}
	sort.Strings(out)
	return out
}

type backupRecord struct {
	Timestamp    string `json:"timestamp"`
	OriginalPath string `json:"original_path"`
	OriginalHash string `json:"original_hash"`
	Data         string `json:"data"`
}

// RepairPermissions backs up the settings file encrypted, then rewrites it
// with every required allow and deny entry merged in. Other settings are
// kept; env and model get defaults when absent.
func (f *Fortress) RepairPermissions(path string, v *Validation) error {
	f.SecurityLog(LevelWarning, "Starting secure permissions repair for "+path)
	if err := f.repairPermissions(path, v); err != nil {
		f.SecurityLog(LevelError, fmt.Sprintf("SECURE_REPAIR_FAILED: %v", err))
		return fmt.Errorf("%w: permissions repair failed: %v", ErrSecurity, err)
	}
	f.SecurityLog(LevelSuccess, "Secure permissions repair completed")
	return nil
}

func (f *Fortress) repairPermissions(path string, v *Validation) error {
	now := f.now().UTC()

	if data, err := os.ReadFile(path); err == nil {
		stamp := now.Format("20060102_150405")
		record, err := json.Marshal(backupRecord{
			Timestamp:    stamp,
			OriginalPath: path,
			OriginalHash: hashBytes(data),
			Data:         string(data),
		})
		if err != nil {
			return err
		}
		sealed, err := f.cipher.Seal(record)
		if err != nil {
			return err
		}
		backup := filepath.Join(f.BackupDir, "backup_"+stamp+".json")
		if err := vault.WriteFileAtomic(backup, sealed, 0o600); err != nil {
			return err
		}
		f.SecurityLog(LevelInfo, "Secure backup created: "+backup)
	}

	settings := v.settings
	if settings == nil {
		settings = make(map[string]any)
	}
	perms, _ := settings["permissions"].(map[string]any)
	if perms == nil {
		perms = make(map[string]any)
	}

	allow := make([]string, 0, len(v.allow))
	for _, p := range v.allow {
		if !contains(DenyPermissions, p) {
			allow = append(allow, p)
		}
	}
	perms["allow"] = union(allow, RequiredPermissions)
	perms["deny"] = union(v.deny, DenyPermissions)
	settings["permissions"] = perms

	if _, ok := settings["env"]; !ok {
		settings["env"] = map[string]string{"CLAUDE_CODE_ENABLE_TELEMETRY": "1"}
	}
	if _, ok := settings["model"]; !ok {
		settings["model"] = "opus"
	}
	settings["_security"] = map[string]string{
		"last_modified": now.Format(time.RFC3339),
		"modified_by":   "promptaudit fortress",
		"version":       Version,
	}

	data, err := json.MarshalIndent(settings, "", "  ")
	if err != nil {
		return err
	}
	if err := vault.WriteFileAtomic(path, data, 0o600); err != nil {
		return err
	}
	return f.UpdateBaseline()
}

// OpenBackup decrypts a settings backup written by RepairPermissions and
// returns the original file content.
func (f *Fortress) OpenBackup(path string) (string, error) {
	sealed, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	plain, err := f.cipher.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: backup %s: %v", ErrIntegrity, path, err)
	}
	var rec backupRecord
	if err := json.Unmarshal(plain, &rec); err != nil {
		return "", err
	}
	if hashBytes([]byte(rec.Data)) != rec.OriginalHash {
		return "", fmt.Errorf("%w: backup %s content does not match its hash", ErrIntegrity, path)
	}
	return rec.Data, nil
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
