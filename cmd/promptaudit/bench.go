package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/bench"
	"github.com/swm-sink/promptaudit/pkg/history"
	"github.com/swm-sink/promptaudit/pkg/quality"
	"github.com/swm-sink/promptaudit/pkg/report"
)

// benchCmd times file access patterns over the library.
var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Benchmark reading and parsing the prompt library",
	Long: `Measure file reads, front matter parsing, command discovery, component
loading, concurrent reads, disk scanning and memory, grade each category
and append the run to the history file. Exits 1 when the overall score is
below --threshold.`,
	Args: noArgs,
	RunE: runBench,
}

// qualityCmd scores the library's structure and reference health.
var qualityCmd = &cobra.Command{
	Use:   "quality",
	Short: "Score library quality from complexity and reference issues",
	Args:  noArgs,
	RunE:  runQuality,
}

func init() {
	f := benchCmd.Flags()
	f.Float64("threshold", bench.PassScore, "Minimum overall score")
	f.Int("workers", 4, "Concurrent read workers")
	f.String("history-path", "performance_history.json", "History file")
	addReportFlags(f)

	f = qualityCmd.Flags()
	f.Float64("threshold", quality.PassScore, "Minimum quality score")
	f.Int("stale-days", 0, "Flag timestamps older than this many days (0 = off)")
	f.String("quality-history-path", "quality_history.json", "History file")
	addReportFlags(f)
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	workers, _ := cmd.Flags().GetInt("workers")

	rep, err := bench.Run(cmd.Context(), bench.Options{
		Root:      cfg.Root,
		ClaudeDir: cfg.ClaudeDir,
		Workers:   workers,
	})
	if err != nil {
		return err
	}

	if err := emit(cmd.OutOrStdout(), cfg.Format, cfg.Render, rep, rep.Markdown()); err != nil {
		return err
	}
	if err := saveReport(cfg.Output, rep, rep.Markdown()); err != nil {
		return err
	}
	if err := history.Append(cfg.HistoryPath, rep.History(), cfg.HistoryLimit); err != nil {
		log.Warn("could not update history", "path", cfg.HistoryPath, "error", err)
	}

	if rep.OverallScore < cfg.Threshold {
		return failed("benchmark score %.1f is below %.1f", rep.OverallScore, cfg.Threshold)
	}
	return nil
}

func runQuality(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	staleDays, _ := cmd.Flags().GetInt("stale-days")

	res, err := analysis.Run(cmd.Context(), analysis.Options{
		Root:       cfg.Root,
		ClaudeDir:  cfg.ClaudeDir,
		CycleLimit: cfg.CycleLimit,
	})
	if err != nil {
		return err
	}

	opts := quality.Options{Root: cfg.Root, ClaudeDir: cfg.ClaudeDir, Analysis: res}
	if staleDays > 0 {
		opts.StaleBefore = time.Now().AddDate(0, 0, -staleDays)
	}
	rep, err := quality.Analyze(cmd.Context(), opts)
	if err != nil {
		return err
	}

	md := rep.Markdown()
	if err := emit(cmd.OutOrStdout(), cfg.Format, cfg.Render, rep, md); err != nil {
		return err
	}
	if err := saveReport(cfg.Output, rep, md); err != nil {
		return err
	}
	if err := history.Append(cfg.QualityHistoryPath, rep.History(), cfg.HistoryLimit); err != nil {
		log.Warn("could not update history", "path", cfg.QualityHistoryPath, "error", err)
	}

	if rep.Score < cfg.Threshold {
		return failed("quality score %.1f is below %.1f", rep.Score, cfg.Threshold)
	}
	return nil
}

func addReportFlags(f *pflag.FlagSet) {
	f.String("format", "markdown", "Output format: markdown or json")
	f.StringP("output", "o", "", "Also write the report to this file (.json or .md)")
	f.Bool("render", false, "Render markdown output for the terminal")
	f.Int("history-limit", 50, "Maximum history entries kept")
}

// emit writes v as JSON or md as (optionally rendered) markdown.
func emit(w io.Writer, format string, render bool, v any, md string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case "markdown", "md", "text", "":
		if render {
			out, err := report.Render(md, renderWidth)
			if err != nil {
				return err
			}
			md = out
		}
		_, err := fmt.Fprint(w, md)
		return err
	default:
		return usageError(fmt.Errorf("unknown format %q", format))
	}
}
