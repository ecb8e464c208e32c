// Command promptaudit audits a Claude Code prompt library: reference
// integrity, inventory and documentation claims, benchmarks, quality
// scoring, placeholder automation and the security tooling around it.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/swm-sink/promptaudit/pkg/config"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("cli")

// Exit codes.
const (
	exitOK     = 0
	exitFailed = 1
	exitUsage  = 2
)

// exitError carries a process exit code out of a RunE.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

// failed reports a check that ran but did not pass.
func failed(format string, args ...any) error {
	return &exitError{code: exitFailed, err: fmt.Errorf(format, args...)}
}

func usageError(err error) error {
	return &exitError{code: exitUsage, err: err}
}

// usageArgs turns positional argument errors into usage errors.
func usageArgs(check cobra.PositionalArgs) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if err := check(cmd, args); err != nil {
			return usageError(err)
		}
		return nil
	}
}

var noArgs = usageArgs(cobra.NoArgs)

// exitCode maps an error returned by Execute to a process exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitFailed
}

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "promptaudit",
	Short: "Audit a Claude Code prompt library",
	Long: `promptaudit checks a library of markdown prompts, commands and
components: broken cross references, dependency cycles, orphans, inventory
and README claims, performance and quality scores. It also fills template
placeholders, migrates project configuration and manages the settings
fortress and the encrypted API key store.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		level := logging.ParseLevel(cfg.Verbosity, cfg.VerboseCnt)
		if cfg.LogJSON {
			logging.SetJSONOutput(level)
		} else {
			logging.SetLevel(level)
		}
		return nil
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("root", ".", "Library root directory")
	pf.String("claude-dir", ".claude", "Prompt directory relative to the root")
	pf.String("verbosity", "", "Log level (trace, debug, info, warn, error)")
	pf.CountP("verbose", "v", "Increase log verbosity (repeatable)")
	pf.Bool("log-json", false, "Write logs as JSON lines")
	pf.String("config", config.FileName, "Config file")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return usageError(err)
	})

	rootCmd.AddCommand(refsCmd, auditCmd, benchCmd, qualityCmd,
		placeholdersCmd, migrateCmd, scriptsCmd, serveCmd,
		fortressCmd, keysCmd)
}

// loadConfig resolves the layered configuration for cmd. Errors are usage
// errors.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(path, cmd.Flags())
	if err != nil {
		return nil, usageError(err)
	}
	return cfg, nil
}

// execute runs the command tree with args and returns the exit code.
func execute(ctx context.Context, args []string) int {
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil {
		switch code {
		case exitFailed:
			log.Warn("check failed", "error", err)
		default:
			log.Error("command failed", "error", err)
		}
	}
	return code
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:])
	stop()
	os.Exit(code)
}
