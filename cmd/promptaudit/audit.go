package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/handoff"
	"github.com/swm-sink/promptaudit/pkg/inventory"
)

// auditCmd checks the inventory against configuration and documentation.
var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Check command and component counts against README and config",
	Long: `Count the commands and components under the prompt directory, compare the
counts with --expected-commands/--expected-components and with the numbers
claimed in the README, and audit the directories the documentation names.
Results are saved as stage files for later runs of refs.
Exits 1 on any mismatch or missing claimed directory.`,
	Args: noArgs,
	RunE: runAudit,
}

func init() {
	f := auditCmd.Flags()
	f.Int("expected-commands", 0, "Expected number of commands (0 = unchecked)")
	f.Int("expected-components", 0, "Expected number of components (0 = unchecked)")
	f.String("handoff-dir", ".", "Directory for stage result files")
}

// auditResult is the inventory stage file.
type auditResult struct {
	Inventory  *inventory.Inventory `json:"inventory"`
	Mismatches []inventory.Mismatch `json:"mismatches"`
	Claims     []inventory.Claim    `json:"claims"`

	// ReadmeOmitsCommands is set when the README never states the
	// discovered command count.
	ReadmeOmitsCommands bool `json:"readme_omits_commands,omitempty"`
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	inv, err := inventory.Take(cfg.Root, cfg.ClaudeDir)
	if err != nil {
		return err
	}

	expected := map[string]int{}
	if cfg.ExpectedCommands > 0 {
		expected["commands"] = cfg.ExpectedCommands
	}
	if cfg.ExpectedComponents > 0 {
		expected["components"] = cfg.ExpectedComponents
	}
	res := auditResult{
		Inventory:  inv,
		Mismatches: inventory.CheckExpectedCounts(inv, expected),
	}

	readme := filepath.Join(cfg.Root, "README.md")
	claims, err := inventory.CheckReadmeClaims(readme, inv)
	if err != nil {
		log.Warn("skipping README claims", "path", readme, "error", err)
	}
	res.Claims = claims
	if content, err := os.ReadFile(readme); err == nil {
		res.ReadmeOmitsCommands = !inventory.MentionsCount(content, "commands", inv.Commands)
	}

	dirs, err := inventory.AuditDirectories(cfg.Root, cfg.ClaudeDir, "README.md", "CLAUDE.md")
	if err != nil {
		return err
	}

	if err := handoff.Save(filepath.Join(cfg.HandoffDir, handoff.InventoryFile), res); err != nil {
		log.Warn("could not save stage results", "error", err)
	}
	if err := handoff.Save(filepath.Join(cfg.HandoffDir, handoff.DirectoryAuditFile), dirs); err != nil {
		log.Warn("could not save stage results", "error", err)
	}

	problems := printAudit(cmd.OutOrStdout(), res, dirs)
	if problems > 0 {
		return failed("%d inventory problems found", problems)
	}
	return nil
}

// printAudit writes the audit summary and returns the number of failing
// checks.
func printAudit(w io.Writer, res auditResult, dirs *inventory.DirectoryAudit) int {
	bold := color.New(color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	bold.Fprintln(w, "📦 Inventory")
	fmt.Fprintf(w, "  Commands:   %d\n", res.Inventory.Commands)
	fmt.Fprintf(w, "  Components: %d\n", res.Inventory.Components)
	fmt.Fprintf(w, "  Contexts:   %d\n", res.Inventory.Contexts)

	problems := 0
	for _, m := range res.Mismatches {
		red.Fprintf(w, "  ❌ %s: expected %d, found %d\n", m.Noun, m.Expected, m.Actual)
		problems++
	}
	for _, c := range res.Claims {
		if c.OK() {
			green.Fprintf(w, "  ✅ README line %d: %d %s\n", c.Line, c.Claimed, c.Noun)
			continue
		}
		red.Fprintf(w, "  ❌ README line %d claims %d %s, found %d\n", c.Line, c.Claimed, c.Noun, c.Actual)
		problems++
	}
	if res.ReadmeOmitsCommands {
		red.Fprintf(w, "  ❌ README does not state the %d commands found\n", res.Inventory.Commands)
		problems++
	}

	fmt.Fprintln(w)
	bold.Fprintln(w, "📁 Directories")
	fmt.Fprintf(w, "  Directories: %d\n", len(dirs.Directories))
	fmt.Fprintf(w, "  Documented:  %d\n", len(dirs.Claims))
	for _, inc := range dirs.Inconsistencies {
		if inc.Type == inventory.MissingClaimedDirectory {
			red.Fprintf(w, "  ❌ %s\n", inc.Message)
			problems++
			continue
		}
		yellow.Fprintf(w, "  ⚠️  %s\n", inc.Message)
	}
	for _, o := range dirs.Overlaps {
		yellow.Fprintf(w, "  ⚠️  %s\n", o.Message)
	}
	for _, r := range dirs.Recommendations {
		fmt.Fprintf(w, "  • [%s] %s\n", r.Priority, r.Description)
	}
	return problems
}
