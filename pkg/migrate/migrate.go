package migrate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupSuffix is appended to an existing configuration before it is
// overwritten.
const BackupSuffix = ".backup"

// Options control a migration.
type Options struct {
	ProjectName string
	DryRun      bool
	Force       bool // overwrite an existing configuration
}

// Result is the outcome of a migration.
type Result struct {
	Success          bool      `json:"success"`
	Analysis         *Analysis `json:"analysis"`
	ConfigPath       string    `json:"configPath"`
	Content          string    `json:"-"`
	ConfigCreated    bool      `json:"configCreated"`
	BackupCreated    bool      `json:"backupCreated"`
	ValidationPassed bool      `json:"validationPassed"`
	Errors           []string  `json:"errors,omitempty"`
	Warnings         []string  `json:"warnings,omitempty"`
}

// Migrate analyzes root and writes PROJECT_CONFIG.xml. An existing
// configuration is kept unless Force is set, in which case it is backed up
// first. A dry run renders and validates without touching the filesystem.
func Migrate(root string, opts Options) (*Result, error) {
	log.Info("analyzing project structure", "root", root)
	a, err := Analyze(root)
	if err != nil {
		return nil, fmt.Errorf("analyzing %s: %w", root, err)
	}

	res := &Result{Analysis: a, ConfigPath: filepath.Join(a.Root, ConfigFile)}
	if a.ExistingConfig {
		res.Warnings = append(res.Warnings, ConfigFile+" already exists")
		if !opts.DryRun && !opts.Force {
			return res, nil
		}
	}

	res.Content, err = Generate(a, opts.ProjectName)
	if err != nil {
		return nil, err
	}

	errs, warnings := Validate([]byte(res.Content))
	res.Errors = append(res.Errors, errs...)
	res.Warnings = append(res.Warnings, warnings...)
	res.ValidationPassed = len(errs) == 0

	if opts.DryRun {
		res.Success = res.ValidationPassed
		return res, nil
	}

	if a.ExistingConfig {
		backup := res.ConfigPath + BackupSuffix
		if err := copyFile(res.ConfigPath, backup); err != nil {
			return nil, fmt.Errorf("backing up %s: %w", res.ConfigPath, err)
		}
		res.BackupCreated = true
		log.Info("created backup", "path", backup)
	}

	if err := os.WriteFile(res.ConfigPath, []byte(res.Content), 0o644); err != nil {
		return nil, fmt.Errorf("writing %s: %w", res.ConfigPath, err)
	}
	res.ConfigCreated = true
	res.Success = res.ValidationPassed
	log.Info("created configuration", "path", res.ConfigPath, "valid", res.ValidationPassed)
	return res, nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, info.Mode().Perm())
}

func mark(ok bool) string {
	if ok {
		return "✅"
	}
	return "❌"
}

// Report renders a markdown migration report.
func Report(res *Result, now time.Time) string {
	var b strings.Builder
	a := res.Analysis

	status := "✅ SUCCESS"
	if !res.Success {
		status = "❌ FAILED"
	}
	language := a.Language
	if language == "" {
		language = "Unknown"
	}

	fmt.Fprintf(&b, "# Project Migration Report\n\n")
	fmt.Fprintf(&b, "**Project:** %s  \n", filepath.Base(a.Root))
	fmt.Fprintf(&b, "**Date:** %s  \n", now.Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "**Status:** %s\n\n", status)

	fmt.Fprintf(&b, "## Project Analysis\n\n")
	fmt.Fprintf(&b, "**Detected Language:** %s  \n", language)
	fmt.Fprintf(&b, "**Detected Frameworks:** %s  \n\n", strings.Join(a.Frameworks, ", "))

	fmt.Fprintf(&b, "### Directory Structure\n\n")
	for _, role := range DirRoles() {
		dir := a.Directories[role]
		shown := dir
		if shown == "" {
			shown = "Not found"
		}
		fmt.Fprintf(&b, "- **%s%s:** %s %s\n", strings.ToUpper(role[:1]), role[1:], mark(dir != ""), shown)
	}

	fmt.Fprintf(&b, "\n## Migration Results\n\n")
	fmt.Fprintf(&b, "- **Configuration Created:** %s\n", mark(res.ConfigCreated))
	fmt.Fprintf(&b, "- **Backup Created:** %s\n", mark(res.BackupCreated))
	fmt.Fprintf(&b, "- **Validation Passed:** %s\n", mark(res.ValidationPassed))

	if len(res.Errors) > 0 {
		fmt.Fprintf(&b, "\n### Errors\n\n")
		for _, e := range res.Errors {
			fmt.Fprintf(&b, "- ❌ %s\n", e)
		}
	}
	if len(res.Warnings) > 0 {
		fmt.Fprintf(&b, "\n### Warnings\n\n")
		for _, w := range res.Warnings {
			fmt.Fprintf(&b, "- ⚠️ %s\n", w)
		}
	}
	if len(a.Recommendations) > 0 {
		fmt.Fprintf(&b, "\n### Recommendations\n\n")
		for _, r := range a.Recommendations {
			fmt.Fprintf(&b, "- 💡 %s\n", r)
		}
	}

	fmt.Fprintf(&b, "\n## Next Steps\n\n")
	fmt.Fprintf(&b, "1. **Review Configuration:** Check %s and adjust values as needed\n", ConfigFile)
	fmt.Fprintf(&b, "2. **Test Framework:** Run framework commands to ensure they work with the new configuration\n")
	fmt.Fprintf(&b, "3. **Update Documentation:** Document any project-specific configuration requirements\n")
	fmt.Fprintf(&b, "4. **Commit Changes:** Add %s to version control\n", ConfigFile)

	fmt.Fprintf(&b, "\n## Configuration File\n\n`%s`\n", res.ConfigPath)
	return b.String()
}
