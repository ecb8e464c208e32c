package config

import (
	"fmt"
	"strings"

	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

// FileName is the optional project-level config file read from the working directory.
const FileName = "promptaudit.toml"

// Config holds all configuration for the application.
// Keys are flat and hyphenated so the same name works as a flag, a TOML key
// and (upper-cased, underscores for hyphens) an environment variable.
type Config struct {
	Root       string `koanf:"root"`
	ClaudeDir  string `koanf:"claude-dir"`
	Format     string `koanf:"format"`
	Output     string `koanf:"output"`
	Render     bool   `koanf:"render"`
	XMLOnly    bool   `koanf:"xml-only"`
	CycleLimit int    `koanf:"cycle-limit"`

	// Threshold gates the exit code. Each subcommand supplies its own default.
	Threshold float64 `koanf:"threshold"`

	HistoryPath        string `koanf:"history-path"`
	QualityHistoryPath string `koanf:"quality-history-path"`
	HistoryLimit       int    `koanf:"history-limit"`

	HandoffDir         string `koanf:"handoff-dir"`
	ExpectedComponents int    `koanf:"expected-components"`
	ExpectedCommands   int    `koanf:"expected-commands"`

	ScriptsDir  string `koanf:"scripts-dir"`
	OutDir      string `koanf:"out-dir"`
	ProjectName string `koanf:"project-name"`
	DryRun      bool   `koanf:"dry-run"`
	Force       bool   `koanf:"force"`

	Port        int  `koanf:"port"`
	Watch       bool `koanf:"watch"`
	OpenBrowser bool `koanf:"open"`

	SettingsPath      string `koanf:"settings"`
	FortressMasterKey string `koanf:"fortress-master-key"`
	FortressTestMode  bool   `koanf:"fortress-test-mode"`

	KeyStorePath    string `koanf:"keystore"`
	ClaudeMasterKey string `koanf:"claude-master-key"`

	Verbosity  string `koanf:"verbosity"`
	VerboseCnt int    `koanf:"verbose"`
	LogJSON    bool   `koanf:"log-json"`
}

// Load loads configuration from defaults, config file, environment variables, and flags.
// Priority: Flags > Env > Config File > Defaults
func Load(f *pflag.FlagSet) (*Config, error) {
	return LoadFile(FileName, f)
}

// LoadFile is Load with an explicit config file path.
func LoadFile(path string, f *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	// 1. Defaults
	defaults := map[string]interface{}{
		"root":                 ".",
		"claude-dir":           ".claude",
		"format":               "text",
		"output":               "",
		"render":               false,
		"xml-only":             false,
		"cycle-limit":          100,
		"history-path":         "performance_history.json",
		"quality-history-path": "quality_history.json",
		"history-limit":        50,
		"handoff-dir":          ".",
		"expected-components":  0,
		"expected-commands":    0,
		"out-dir":              "",
		"port":                 8080,
		"watch":                false,
		"open":                 false,
		"fortress-master-key":  "default_dev_key",
		"fortress-test-mode":   false,
		"keystore":             "encrypted_keys.json",
		"verbosity":            "",
		"verbose":              0,
		"log-json":             false,
	}
	if err := k.Load(makeMapProvider(defaults), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// 2. Config File (optional)
	// We ignore errors here as the file might not exist
	if path != "" {
		_ = k.Load(file.Provider(path), toml.Parser())
	}

	// 3. Environment Variables
	// PROMPTAUDIT_CLAUDE_DIR=.claude -> claude-dir
	// FORTRESS_MASTER_KEY, FORTRESS_TEST_MODE and CLAUDE_MASTER_KEY are read
	// under their historical names.
	for _, prefix := range []string{"PROMPTAUDIT_", "FORTRESS_", "CLAUDE_MASTER_KEY"} {
		trim := prefix
		if prefix != "PROMPTAUDIT_" {
			trim = ""
		}
		if err := k.Load(env.Provider(prefix, ".", func(s string) string {
			return strings.ReplaceAll(strings.ToLower(
				strings.TrimPrefix(s, trim)), "_", "-")
		}), nil); err != nil {
			return nil, fmt.Errorf("failed to load env vars: %w", err)
		}
	}

	// 4. Flags
	if f != nil {
		if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// Helper to use map as a provider
type mapProvider struct {
	m map[string]interface{}
}

func makeMapProvider(m map[string]interface{}) *mapProvider {
	return &mapProvider{m: m}
}

func (p *mapProvider) Read() (map[string]interface{}, error) {
	return p.m, nil
}

func (p *mapProvider) ReadBytes() ([]byte, error) {
	return nil, fmt.Errorf("not implemented")
}
