package migrate

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"text/template"
)

// Commands are the development workflow commands of a language.
type Commands struct {
	Install string
	Test    string
	Lint    string
	Build   string
	Run     string
	Format  string
}

// Standards are the quality gates of a language.
type Standards struct {
	CoverageThreshold string
	CoverageTool      string
	ResponseTime      string
	MemoryLimit       string
	Linter            string
	Formatter         string
	TypeChecker       string
}

const defaultLanguage = "javascript"

var npmCommands = Commands{
	Install: "npm install",
	Test:    "npm test",
	Lint:    "npm run lint",
	Build:   "npm run build",
	Run:     "npm start",
	Format:  "npm run format",
}

var languageCommands = map[string]Commands{
	"javascript": npmCommands,
	"typescript": npmCommands,
	"python": {
		Install: "pip install -r requirements.txt",
		Test:    "pytest",
		Lint:    "pylint src/",
		Build:   "python setup.py build",
		Run:     "python -m src.main",
		Format:  "black .",
	},
	"java": {
		Install: "mvn install",
		Test:    "mvn test",
		Lint:    "mvn checkstyle:check",
		Build:   "mvn package",
		Run:     "mvn spring-boot:run",
		Format:  "mvn fmt:format",
	},
	"go": {
		Install: "go mod download",
		Test:    "go test ./...",
		Lint:    "golangci-lint run",
		Build:   "go build",
		Run:     "go run .",
		Format:  "gofmt -w .",
	},
}

var languageStandards = map[string]Standards{
	"javascript": {"85", "jest", "200ms", "512MB", "eslint", "prettier", "none"},
	"typescript": {"90", "jest", "200ms", "512MB", "eslint", "prettier", "typescript"},
	"python":     {"85", "pytest-cov", "500ms", "1GB", "pylint", "black", "mypy"},
	"java":       {"80", "jacoco", "300ms", "1GB", "checkstyle", "google-java-format", "javac"},
	"go":         {"90", "go-cover", "100ms", "256MB", "golangci-lint", "gofmt", "go"},
}

// CommandsFor returns the commands for language, falling back to npm.
func CommandsFor(language string) Commands {
	if c, ok := languageCommands[language]; ok {
		return c
	}
	return languageCommands[defaultLanguage]
}

// StandardsFor returns the quality standards for language, falling back to
// the javascript ones.
func StandardsFor(language string) Standards {
	if s, ok := languageStandards[language]; ok {
		return s
	}
	return languageStandards[defaultLanguage]
}

// Domain infers the project domain from frameworks, language and the
// project directory name.
func Domain(frameworks []string, language, root string) string {
	for _, f := range frameworks {
		switch f {
		case "react", "angular", "vue", "django", "flask", "rails":
			return "web-development"
		}
	}
	switch language {
	case "swift", "kotlin":
		return "mobile-engineering"
	case "go", "rust":
		return "platform-engineering"
	case "python":
		for _, word := range strings.FieldsFunc(strings.ToLower(filepath.Base(root)), isNameSeparator) {
			if word == "data" || word == "ml" || word == "ai" {
				return "data-analytics"
			}
		}
	}
	return "web-development"
}

func isNameSeparator(r rune) bool {
	return r == '-' || r == '_' || r == '.' || r == ' '
}

var configTemplate = template.Must(template.New(ConfigFile).Funcs(template.FuncMap{
	"x": xmlEscape,
}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!-- Generated {{ .File }} for {{ x .Name }} -->
<project_configuration version="1.0.0">
  <project_info>
    <name>{{ x .Name }}</name>
    <domain>{{ .Domain }}</domain>
    <description>Migrated configuration for {{ x .Name }}</description>
    <primary_language>{{ .Language }}</primary_language>
    <framework_stack>{{ .Stack }}</framework_stack>
  </project_info>

  <project_structure>
    <root_directory>.</root_directory>
    <source_directory>{{ x .Dirs.source }}</source_directory>
    <test_directory>{{ x .Dirs.test }}</test_directory>
    <docs_directory>{{ x .Dirs.docs }}</docs_directory>
    <scripts_directory>{{ x .Dirs.scripts }}</scripts_directory>
    <config_directory>{{ x .Dirs.config }}</config_directory>
  </project_structure>

  <quality_standards>
    <test_coverage>
      <threshold>{{ .Standards.CoverageThreshold }}</threshold>
      <enforcement>BLOCKING</enforcement>
      <tool>{{ .Standards.CoverageTool }}</tool>
    </test_coverage>
    <performance>
      <response_time_p95>{{ .Standards.ResponseTime }}</response_time_p95>
      <memory_limit>{{ .Standards.MemoryLimit }}</memory_limit>
    </performance>
    <code_quality>
      <linter>{{ .Standards.Linter }}</linter>
      <formatter>{{ .Standards.Formatter }}</formatter>
      <type_checker>{{ .Standards.TypeChecker }}</type_checker>
    </code_quality>
  </quality_standards>

  <development_workflow>
    <commands>
      <install>{{ x .Commands.Install }}</install>
      <test>{{ x .Commands.Test }}</test>
      <lint>{{ x .Commands.Lint }}</lint>
      <build>{{ x .Commands.Build }}</build>
      <run>{{ x .Commands.Run }}</run>
      <format>{{ x .Commands.Format }}</format>
    </commands>
    <git_workflow>
      <branch_pattern>feature/*</branch_pattern>
      <commit_style>conventional</commit_style>
      <pr_template>enabled</pr_template>
    </git_workflow>
  </development_workflow>

  <framework_behavior>
    <file_creation_policy>conservative</file_creation_policy>
    <documentation_generation>on-request</documentation_generation>
    <test_first_enforcement>strict</test_first_enforcement>
    <ai_temperature>
      <factual>0.2</factual>
      <analysis>0.3</analysis>
      <creative>0.7</creative>
    </ai_temperature>
  </framework_behavior>
</project_configuration>
`))

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var defaultDirs = map[string]string{
	DirSource:  "src",
	DirTest:    "tests",
	DirDocs:    "docs",
	DirScripts: "scripts",
	DirConfig:  "config",
}

// Generate renders PROJECT_CONFIG.xml for an analysis. An empty name uses
// the project directory name.
func Generate(a *Analysis, name string) (string, error) {
	if name == "" {
		name = filepath.Base(a.Root)
	}
	language := a.Language
	if language == "" {
		language = defaultLanguage
	}

	dirs := make(map[string]string, len(defaultDirs))
	for role, def := range defaultDirs {
		dirs[role] = def
		if d := a.Directories[role]; d != "" {
			dirs[role] = d
		}
	}

	stack := language
	if len(a.Frameworks) > 0 {
		stack += "+" + strings.Join(a.Frameworks, "+")
	}

	var buf bytes.Buffer
	err := configTemplate.Execute(&buf, struct {
		File      string
		Name      string
		Domain    string
		Language  string
		Stack     string
		Dirs      map[string]string
		Standards Standards
		Commands  Commands
	}{
		File:      ConfigFile,
		Name:      name,
		Domain:    Domain(a.Frameworks, language, a.Root),
		Language:  language,
		Stack:     stack,
		Dirs:      dirs,
		Standards: StandardsFor(language),
		Commands:  CommandsFor(language),
	})
	if err != nil {
		return "", fmt.Errorf("rendering %s: %w", ConfigFile, err)
	}
	return buf.String(), nil
}

type projectConfig struct {
	XMLName xml.Name `xml:"project_configuration"`
	Version string   `xml:"version,attr"`
	Info    struct {
		Name     string `xml:"name"`
		Domain   string `xml:"domain"`
		Language string `xml:"primary_language"`
	} `xml:"project_info"`
	Structure struct {
		Source string `xml:"source_directory"`
		Test   string `xml:"test_directory"`
	} `xml:"project_structure"`
	Quality struct {
		Threshold string `xml:"test_coverage>threshold"`
	} `xml:"quality_standards"`
	Commands struct {
		Install string `xml:"install"`
		Test    string `xml:"test"`
	} `xml:"development_workflow>commands"`
}

// Validate checks that content is a well-formed configuration with the
// required fields. Problems that do not stop the framework from loading
// the file are returned as warnings.
func Validate(content []byte) (errs, warnings []string) {
	var cfg projectConfig
	if err := xml.Unmarshal(content, &cfg); err != nil {
		return []string{fmt.Sprintf("invalid XML: %v", err)}, nil
	}

	required := []struct{ field, value string }{
		{"project_info/name", cfg.Info.Name},
		{"project_info/domain", cfg.Info.Domain},
		{"project_info/primary_language", cfg.Info.Language},
		{"development_workflow/commands/test", cfg.Commands.Test},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, "missing required element "+r.field)
		}
	}

	if t := strings.TrimSpace(cfg.Quality.Threshold); t != "" {
		n, err := strconv.Atoi(t)
		if err != nil || n < 0 || n > 100 {
			errs = append(errs, fmt.Sprintf("coverage threshold %q is not a percentage", t))
		} else if n < 80 {
			warnings = append(warnings, fmt.Sprintf("coverage threshold %d%% is below 80%%", n))
		}
	} else {
		warnings = append(warnings, "no coverage threshold set")
	}
	if cfg.Structure.Source == "" {
		warnings = append(warnings, "no source directory configured")
	}
	if cfg.Version == "" {
		warnings = append(warnings, "configuration has no version attribute")
	}
	return errs, warnings
}
