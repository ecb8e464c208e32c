package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/fortress"
)

// fortressCmd groups the settings fortress commands.
var fortressCmd = &cobra.Command{
	Use:   "fortress",
	Short: "Guard the Claude settings files",
	Long: `The fortress keeps the global and local Claude settings consistent: the
local settings must link to the global ones, the permission allow and deny
lists must contain the required entries, and checksums of both files are
tracked so tampering is detected. Every action is written to an
HMAC-signed audit log.`,
}

var fortressCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Run the full security check, repairing what is safe to repair",
	Args:  noArgs,
	RunE:  runFortressCheck,
}

var fortressVerifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Verify integrity, permissions and the audit log without changing anything",
	Args:  noArgs,
	RunE:  runFortressVerify,
}

var fortressRepairCmd = &cobra.Command{
	Use:   "repair",
	Short: "Repair the settings symlink and permissions, then record a new baseline",
	Args:  noArgs,
	RunE:  runFortressRepair,
}

func init() {
	pf := fortressCmd.PersistentFlags()
	pf.String("home", "", "Directory holding the global .claude (default: user home)")
	pf.String("settings", "", "Settings file to validate (default: global settings)")
	pf.Bool("fortress-test-mode", false, "Allow symlinks into temporary directories")

	fortressCmd.AddCommand(fortressCheckCmd, fortressVerifyCmd, fortressRepairCmd)
}

func openFortress(cmd *cobra.Command) (*fortress.Fortress, string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, "", err
	}
	home, _ := cmd.Flags().GetString("home")

	f, err := fortress.New(fortress.Options{
		ProjectRoot: cfg.Root,
		HomeDir:     home,
		MasterKey:   cfg.FortressMasterKey,
		TestMode:    cfg.FortressTestMode,
		Console:     cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, "", err
	}

	settings := cfg.SettingsPath
	if settings == "" {
		settings = f.GlobalSettings
	}
	return f, settings, nil
}

func runFortressCheck(cmd *cobra.Command, args []string) error {
	f, _, err := openFortress(cmd)
	if err != nil {
		return err
	}
	if err := f.Check(); err != nil {
		return securityFailure(err)
	}
	color.New(color.FgGreen, color.Bold).Fprintln(cmd.OutOrStdout(), "🛡️  Fortress secure")
	return nil
}

func runFortressVerify(cmd *cobra.Command, args []string) error {
	f, settings, err := openFortress(cmd)
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	problems := 0

	if err := f.VerifyIntegrity(); err != nil {
		bad.Fprintf(w, "❌ Integrity: %v\n", err)
		problems++
	} else {
		ok.Fprintln(w, "✅ Integrity")
	}

	if err := f.CheckSymlink(); err != nil {
		bad.Fprintf(w, "❌ Symlink: %v\n", err)
		problems++
	} else {
		ok.Fprintln(w, "✅ Symlink")
	}

	v := f.ValidatePermissions(settings)
	switch {
	case v.Err != nil:
		bad.Fprintf(w, "❌ Permissions: %v\n", v.Err)
		problems++
	case v.SecurityViolation:
		bad.Fprintf(w, "❌ Permissions: dangerous entries allowed: %v\n", v.DangerousAllowed)
		problems++
	case !v.Valid:
		bad.Fprintf(w, "❌ Permissions: missing allow %v, missing deny %v\n", v.MissingAllow, v.MissingDeny)
		problems++
	default:
		ok.Fprintln(w, "✅ Permissions")
	}

	entries, err := f.VerifyAudit()
	if err != nil {
		bad.Fprintf(w, "❌ Audit log: %v\n", err)
		problems++
	} else {
		tampered := 0
		for _, e := range entries {
			if !e.Valid {
				bad.Fprintf(w, "   line %d failed verification: %s\n", e.Line, e.Message)
				tampered++
			}
		}
		if tampered > 0 {
			bad.Fprintf(w, "❌ Audit log: %d of %d entries tampered\n", tampered, len(entries))
			problems++
		} else {
			ok.Fprintf(w, "✅ Audit log (%d entries)\n", len(entries))
		}
	}

	if problems > 0 {
		return failed("%d fortress checks failed", problems)
	}
	return nil
}

func runFortressRepair(cmd *cobra.Command, args []string) error {
	f, settings, err := openFortress(cmd)
	if err != nil {
		return err
	}

	if err := f.CheckSymlink(); err != nil {
		if err := f.RepairSymlink(); err != nil {
			return securityFailure(err)
		}
	}

	v := f.ValidatePermissions(settings)
	if v.SecurityViolation {
		return failed("%w: dangerous entries allowed: %v", fortress.ErrSecurity, v.DangerousAllowed)
	}
	if !v.Valid {
		if err := f.RepairPermissions(settings, v); err != nil {
			return securityFailure(err)
		}
	}

	if err := f.UpdateBaseline(); err != nil {
		return err
	}
	color.New(color.FgGreen, color.Bold).Fprintln(cmd.OutOrStdout(), "🛡️  Fortress repaired")
	return nil
}

// securityFailure makes integrity and security errors failed checks; other
// errors keep their default exit code.
func securityFailure(err error) error {
	if errors.Is(err, fortress.ErrIntegrity) || errors.Is(err, fortress.ErrSecurity) {
		return &exitError{code: exitFailed, err: err}
	}
	return fmt.Errorf("fortress: %w", err)
}
