package main

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/migrate"
	"github.com/swm-sink/promptaudit/pkg/placeholder"
	"github.com/swm-sink/promptaudit/pkg/scripts"
)

// placeholdersCmd fills [INSERT_*] placeholders from the detected project.
var placeholdersCmd = &cobra.Command{
	Use:   "placeholders",
	Short: "Fill [INSERT_*] template placeholders from project context",
	Long: `Detect the project's metadata and tech stack, build the placeholder
replacements and apply them to every template under --dir. With --out-dir
the filled copies are written there; otherwise only the automation rate is
reported. Exits 1 when less than 70% of the placeholders were filled.`,
	Args: noArgs,
	RunE: runPlaceholders,
}

// migrateCmd generates PROJECT_CONFIG.xml.
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Generate PROJECT_CONFIG.xml for the project at --root",
	Args:  noArgs,
	RunE:  runMigrate,
}

// scriptsCmd looks for duplicated code across Python helper scripts.
var scriptsCmd = &cobra.Command{
	Use:   "scripts",
	Short: "Find duplicate functions and classes across Python scripts",
	Long: `Parse every Python script under --scripts-dir and report identical
scripts, function signatures and classes defined in more than one script,
and naming conflicts. Exits 1 when duplicates are found.`,
	Args: noArgs,
	RunE: runScripts,
}

func init() {
	f := placeholdersCmd.Flags()
	f.String("dir", "", "Template directory (default <root>/<claude-dir>)")
	f.StringSlice("pattern", []string{"*.md"}, "File name patterns to process")
	f.String("out-dir", "", "Write filled copies here")
	f.Bool("show-context", false, "Print the detected project context")

	f = migrateCmd.Flags()
	f.String("project-name", "", "Project name (default: detected)")
	f.Bool("dry-run", false, "Render and validate without writing")
	f.Bool("force", false, "Overwrite an existing configuration (a backup is kept)")
	f.StringP("output", "o", "", "Write the migration report to this file")

	f = scriptsCmd.Flags()
	f.String("scripts-dir", "", "Script directory (default <root>/scripts)")
	f.StringP("output", "o", "", "Also write the report to this file (.json or .md)")
}

func runPlaceholders(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir, _ := cmd.Flags().GetString("dir")
	if dir == "" {
		dir = filepath.Join(cfg.Root, cfg.ClaudeDir)
	}
	patterns, _ := cmd.Flags().GetStringSlice("pattern")
	showContext, _ := cmd.Flags().GetBool("show-context")

	pc, err := placeholder.NewDetector(cfg.Root, placeholder.NewExecutor()).Detect(cmd.Context())
	if err != nil {
		return err
	}
	repl := placeholder.BuildReplacements(pc)

	s, err := placeholder.Apply(dir, patterns, cfg.OutDir, repl)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if showContext {
		printContext(w, pc)
	}
	printAutomation(w, s)

	if !s.TargetAchieved {
		return failed("automation %.1f%% is below the %d%% target", s.Percent, placeholder.TargetPercent)
	}
	return nil
}

func printContext(w io.Writer, pc *placeholder.ProjectContext) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "🔍 Project context")
	fmt.Fprintf(w, "  Project:      %s\n", pc.Metadata.ProjectName)
	if pc.Metadata.Organization != "" {
		fmt.Fprintf(w, "  Organization: %s\n", pc.Metadata.Organization)
	}
	fmt.Fprintf(w, "  Languages:    %s\n", joinOrNone(pc.TechStack.Languages))
	fmt.Fprintf(w, "  Frameworks:   %s\n", joinOrNone(pc.TechStack.Frameworks))
	fmt.Fprintf(w, "  Testing:      %s\n", joinOrNone(pc.TechStack.TestingFrameworks))
	if pc.TechStack.CIPlatform != "" {
		fmt.Fprintf(w, "  CI:           %s\n", pc.TechStack.CIPlatform)
	}
	fmt.Fprintln(w)
}

func printAutomation(w io.Writer, s placeholder.Summary) {
	bold := color.New(color.Bold)
	bold.Fprintln(w, "🤖 Placeholder automation")
	fmt.Fprintf(w, "  Files:        %d\n", len(s.Files))
	fmt.Fprintf(w, "  Placeholders: %d\n", s.TotalPlaceholders)
	fmt.Fprintf(w, "  Replaced:     %d\n", s.TotalReplacements)
	fmt.Fprintf(w, "  Fully / partially / not automated: %d / %d / %d\n",
		s.FullyAutomated, s.PartiallyAutomated, s.NotAutomated)

	c := color.New(color.FgGreen, color.Bold)
	if !s.TargetAchieved {
		c = color.New(color.FgRed, color.Bold)
	}
	c.Fprintf(w, "  Automation:   %.1f%% (target %d%%)\n", s.Percent, placeholder.TargetPercent)
	if len(s.Unresolved) > 0 {
		fmt.Fprintf(w, "  Unresolved:   %s\n", strings.Join(s.Unresolved, ", "))
	}
}

func joinOrNone(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	return strings.Join(items, ", ")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	res, err := migrate.Migrate(cfg.Root, migrate.Options{
		ProjectName: cfg.ProjectName,
		DryRun:      cfg.DryRun,
		Force:       cfg.Force,
	})
	if err != nil {
		return err
	}

	md := migrate.Report(res, time.Now())
	fmt.Fprint(cmd.OutOrStdout(), md)
	if cfg.DryRun && res.Content != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "\n```xml\n%s\n```\n", res.Content)
	}
	if err := saveReport(cfg.Output, res, md); err != nil {
		return err
	}

	if !res.Success {
		if !cfg.Force && !res.ConfigCreated && res.Analysis.ExistingConfig {
			return failed("%s already exists, use --force to replace it", migrate.ConfigFile)
		}
		return failed("migration failed: %s", strings.Join(res.Errors, "; "))
	}
	return nil
}

func runScripts(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	dir := cfg.ScriptsDir
	if dir == "" {
		dir = filepath.Join(cfg.Root, "scripts")
	}

	a, err := scripts.Validate(cmd.Context(), dir)
	if err != nil {
		return err
	}

	md := scripts.Report(a, time.Now())
	fmt.Fprint(cmd.OutOrStdout(), md)
	if err := saveReport(cfg.Output, a, md); err != nil {
		return err
	}

	if !a.Passed() {
		return failed("%d duplications found in %s", len(a.Duplications), dir)
	}
	return nil
}
