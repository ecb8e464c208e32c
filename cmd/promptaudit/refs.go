package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/config"
	"github.com/swm-sink/promptaudit/pkg/handoff"
	"github.com/swm-sink/promptaudit/pkg/inventory"
	"github.com/swm-sink/promptaudit/pkg/report"
)

const renderWidth = 100

// refsCmd validates cross references.
var refsCmd = &cobra.Command{
	Use:   "refs",
	Short: "Validate cross references between prompt files",
	Long: `Extract every reference from the library's markdown files, resolve it
against the file index, and report broken references, cycles and orphans.
Exits 1 when the validity rate is below --threshold.`,
	Args: noArgs,
	RunE: runRefs,
}

func init() {
	f := refsCmd.Flags()
	f.String("format", "text", "Output format: text, markdown or json")
	f.StringP("output", "o", "", "Also write the report to this file (.json or .md)")
	f.Bool("render", false, "Render markdown output for the terminal")
	f.Bool("xml-only", false, "Only analyze files carrying XML metadata")
	f.Int("cycle-limit", 100, "Maximum number of cycles to enumerate (0 = all)")
	f.Float64("threshold", 85, "Minimum validity rate in percent")
	f.String("handoff-dir", ".", "Directory for stage result files")
}

func runRefs(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	opts := analysis.Options{
		Root:       cfg.Root,
		ClaudeDir:  cfg.ClaudeDir,
		XMLOnly:    cfg.XMLOnly,
		CycleLimit: cfg.CycleLimit,
		Audit:      loadDirectoryAudit(cfg),
	}
	res, err := analysis.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}

	if err := writeResult(cmd.OutOrStdout(), cfg, res); err != nil {
		return err
	}
	if err := saveReport(cfg.Output, res, report.Markdown(res)); err != nil {
		return err
	}
	if err := handoff.Save(filepath.Join(cfg.HandoffDir, handoff.ReferenceFile), res); err != nil {
		log.Warn("could not save stage results", "error", err)
	}

	if !res.Passed(cfg.Threshold) {
		return failed("validity %.1f%% is below %.1f%%", res.Metrics.ValidityRate, cfg.Threshold)
	}
	return nil
}

// loadDirectoryAudit reads the directory audit left by a previous `audit`
// run. A missing file only costs the structural explanations.
func loadDirectoryAudit(cfg *config.Config) *inventory.DirectoryAudit {
	var audit inventory.DirectoryAudit
	err := handoff.Load(filepath.Join(cfg.HandoffDir, handoff.DirectoryAuditFile), &audit)
	switch {
	case errors.Is(err, handoff.ErrMissing):
		log.Warn("no directory audit found, run `promptaudit audit` first for structural causes")
		return nil
	case err != nil:
		log.Warn("ignoring directory audit", "error", err)
		return nil
	}
	return &audit
}

func writeResult(w io.Writer, cfg *config.Config, res *analysis.Result) error {
	switch cfg.Format {
	case "text", "":
		report.PrintConsole(w, res)
	case "markdown", "md":
		md := report.Markdown(res)
		if cfg.Render {
			out, err := report.Render(md, renderWidth)
			if err != nil {
				return err
			}
			md = out
		}
		fmt.Fprint(w, md)
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	default:
		return usageError(fmt.Errorf("unknown format %q", cfg.Format))
	}
	return nil
}

// saveReport writes v as JSON when path ends in .json and md otherwise.
// An empty path is a no-op.
func saveReport(path string, v any, md string) error {
	if path == "" {
		return nil
	}
	var err error
	if filepath.Ext(path) == ".json" {
		err = report.WriteJSON(path, v)
	} else {
		err = writeText(path, md)
	}
	if err != nil {
		return fmt.Errorf("writing report: %w", err)
	}
	log.Info("report written", "path", path)
	return nil
}

// writeText writes a text report, creating parent directories.
func writeText(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0644)
}
