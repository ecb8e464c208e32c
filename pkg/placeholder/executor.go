package placeholder

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Executor reads git configuration for a project directory.
type Executor interface {
	GitConfig(ctx context.Context, dir string, key string) (string, error)
}

// DefaultExecutor is the default implementation of Executor that runs git.
type DefaultExecutor struct{}

// NewExecutor creates a new default git executor
func NewExecutor() Executor {
	return &DefaultExecutor{}
}

// GitConfig runs `git config <key>` in dir and returns the trimmed value.
// It respects the provided context for cancellation.
func (e *DefaultExecutor) GitConfig(ctx context.Context, dir string, key string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", "config", key)
	cmd.Dir = dir

	output, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("git config %s failed: %w", key, err)
	}

	return strings.TrimSpace(string(output)), nil
}
