package main

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/swm-sink/promptaudit/pkg/analysis"
	"github.com/swm-sink/promptaudit/pkg/placeholder"
	"github.com/swm-sink/promptaudit/pkg/watcher"
	"github.com/swm-sink/promptaudit/pkg/web"
)

// Watch debounce windows.
const (
	watchQuiet   = 300 * time.Millisecond
	watchMaxWait = 2 * time.Second
)

// serveCmd runs the dashboard.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the reference dashboard",
	Long: `Start the dashboard HTTP server and run the reference analysis in the
background. Progress and results stream to the page over server-sent events.
With --watch, markdown changes under the root trigger a new analysis.`,
	Args: noArgs,
	RunE: runServe,
}

func init() {
	f := serveCmd.Flags()
	f.Int("port", 8080, "HTTP port")
	f.Bool("watch", false, "Re-run the analysis when markdown files change")
	f.Bool("open", false, "Open the dashboard in a browser")
	f.Bool("xml-only", false, "Only analyze files carrying XML metadata")
	f.Int("cycle-limit", 100, "Maximum number of cycles to enumerate (0 = all)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	publisher := web.NewPublisher()
	runner := analysis.NewRunner(analysis.Options{
		Root:       cfg.Root,
		ClaudeDir:  cfg.ClaudeDir,
		XMLOnly:    cfg.XMLOnly,
		CycleLimit: cfg.CycleLimit,
		Audit:      loadDirectoryAudit(cfg),
	}, publisher)

	// Placeholder previews use the same context the placeholders command
	// would detect. A failed detection only disables the preview defaults.
	var repl map[string]string
	if pc, err := placeholder.NewDetector(cfg.Root, placeholder.NewExecutor()).Detect(cmd.Context()); err != nil {
		log.Warn("project detection failed, previews use no replacements", "error", err)
	} else {
		repl = placeholder.BuildReplacements(pc)
	}

	server := web.NewServer(runner, publisher, repl)

	g, ctx := errgroup.WithContext(cmd.Context())
	g.Go(func() error {
		return server.Start(ctx, cfg.Port)
	})
	g.Go(func() error {
		if _, err := runner.Run(ctx, "initial analysis"); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("initial analysis failed", "error", err)
		}
		return nil
	})
	if cfg.Watch {
		g.Go(func() error {
			rerun := func(ctx context.Context, reason string) error {
				_, err := runner.Run(ctx, reason)
				return err
			}
			err := watcher.Watch(ctx, cfg.Root, watchQuiet, watchMaxWait, rerun)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}

	if cfg.OpenBrowser {
		openBrowser(fmt.Sprintf("http://localhost:%d", cfg.Port))
	}

	return g.Wait()
}

func openBrowser(url string) {
	var name string
	var args []string

	switch runtime.GOOS {
	case "darwin":
		name = "open"
		args = []string{url}
	case "linux":
		name = "xdg-open"
		args = []string{url}
	case "windows":
		name = "cmd"
		args = []string{"/c", "start", url}
	default:
		log.Warn("cannot open browser", "platform", runtime.GOOS)
		return
	}

	if err := exec.Command(name, args...).Start(); err != nil {
		log.Warn("failed to open browser", "error", err)
	}
}
