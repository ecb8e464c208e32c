package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := LoadFile("", nil)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Root != "." {
		t.Errorf("Root = %q, want %q", cfg.Root, ".")
	}
	if cfg.ClaudeDir != ".claude" {
		t.Errorf("ClaudeDir = %q, want %q", cfg.ClaudeDir, ".claude")
	}
	if cfg.HistoryLimit != 50 {
		t.Errorf("HistoryLimit = %d, want 50", cfg.HistoryLimit)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
}

func TestLoadPriority(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	content := "port = 9000\nclaude-dir = \"prompts\"\nhistory-limit = 10\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PROMPTAUDIT_CLAUDE_DIR", "from-env")
	t.Setenv("FORTRESS_MASTER_KEY", "s3cret")
	t.Setenv("FORTRESS_TEST_MODE", "1")

	f := pflag.NewFlagSet("test", pflag.ContinueOnError)
	f.Int("port", 8080, "")
	f.Float64("threshold", 85, "")
	if err := f.Parse([]string{"--port", "7000"}); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadFile(path, f)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	if cfg.Port != 7000 {
		t.Errorf("Port = %d, want flag value 7000", cfg.Port)
	}
	if cfg.ClaudeDir != "from-env" {
		t.Errorf("ClaudeDir = %q, want env value", cfg.ClaudeDir)
	}
	if cfg.HistoryLimit != 10 {
		t.Errorf("HistoryLimit = %d, want file value 10", cfg.HistoryLimit)
	}
	if cfg.Threshold != 85 {
		t.Errorf("Threshold = %v, want flag default 85", cfg.Threshold)
	}
	if cfg.FortressMasterKey != "s3cret" {
		t.Errorf("FortressMasterKey = %q, want s3cret", cfg.FortressMasterKey)
	}
	if !cfg.FortressTestMode {
		t.Error("FortressTestMode should be enabled by FORTRESS_TEST_MODE=1")
	}
}
