// Package refs extracts cross-file references from prompt markdown: XML
// attribute references, dependency elements, markdown links and bare .md
// path mentions.
package refs

import (
	"regexp"
	"sort"
	"strings"
)

// Kind says which pattern produced a reference.
type Kind string

const (
	KindFile         Kind = "file"
	KindComponent    Kind = "component"
	KindCommand      Kind = "command"
	KindXML          Kind = "xml"
	KindMarkdownLink Kind = "markdown_link"
	KindPathMention  Kind = "path_mention"
)

// Kinds lists every kind in extraction order.
var Kinds = []Kind{KindFile, KindComponent, KindCommand, KindXML, KindMarkdownLink, KindPathMention}

// Reference is one referenced path as written in the source file.
type Reference struct {
	Raw  string `json:"raw"`
	Kind Kind   `json:"kind"`
	Line int    `json:"line"`
}

type pattern struct {
	kind  Kind
	re    *regexp.Regexp
	group int
	split bool
}

// Patterns are applied in order. A raw value captured by an earlier pattern
// is not reported again by the generic ref= or path-mention patterns.
var patterns = []pattern{
	{KindFile, regexp.MustCompile(`(?i)<(?:file|context_file)\b[^>]*?\bref\s*=\s*"([^"]+)"`), 1, true},
	{KindComponent, regexp.MustCompile(`(?i)<component\b[^>]*?\bref\s*=\s*"([^"]+)"`), 1, true},
	{KindCommand, regexp.MustCompile(`(?i)<command\b[^>]*?\bref\s*=\s*"([^"]+)"`), 1, true},
	{KindXML, regexp.MustCompile(`(?i)<(?:requires|incompatible|depends_on|file)>\s*([^<]+?)\s*</(?:requires|incompatible|depends_on|file)>`), 1, true},
	{KindXML, regexp.MustCompile(`(?i)\bref\s*=\s*"([^"]+)"`), 1, true},
	{KindMarkdownLink, regexp.MustCompile(`\[[^\]]*\]\(\s*([^)\s#]+?\.md)(?:#[^)]*)?\s*\)`), 1, false},
	{KindPathMention, regexp.MustCompile(`[A-Za-z0-9_./\\-]+\.md\b`), 0, false},
}

// Extract returns every reference in content, ordered by line. Within a file
// each raw value is reported once, under the first pattern that matched it.
func Extract(content string) []Reference {
	lines := newLineIndex(content)
	seen := make(map[string]bool)
	var out []Reference

	for _, p := range patterns {
		for _, m := range p.re.FindAllStringSubmatchIndex(content, -1) {
			start, end := m[2*p.group], m[2*p.group+1]
			if start < 0 {
				continue
			}
			value := content[start:end]
			if p.kind == KindPathMention && partOfURL(content, start) {
				continue
			}

			values := []string{value}
			if p.split {
				values = strings.Split(value, ",")
			}
			for _, v := range values {
				raw := Normalize(v)
				if raw == "" || isExternal(raw) || seen[raw] {
					continue
				}
				seen[raw] = true
				out = append(out, Reference{Raw: raw, Kind: p.kind, Line: lines.lineOf(start)})
			}
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Line < out[j].Line })
	return out
}

// Normalize trims whitespace and converts backslashes to forward slashes.
func Normalize(raw string) string {
	return strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
}

// urlSchemes mark a token as a link rather than a file. Local names such as
// http-guide.md must not match.
var urlSchemes = []string{"http:", "https:", "mailto:"}

func hasURLScheme(lower string) bool {
	for _, scheme := range urlSchemes {
		if strings.HasPrefix(lower, scheme) {
			return true
		}
	}
	return strings.Contains(lower, "://")
}

func isExternal(raw string) bool {
	lower := strings.ToLower(raw)
	return strings.HasPrefix(lower, "#") || hasURLScheme(lower)
}

// partOfURL reports whether the token starting at pos continues a URL such
// as https://host/a.md.
func partOfURL(content string, pos int) bool {
	i := pos
	for i > 0 {
		c := content[i-1]
		if c == ' ' || c == '\t' || c == '\n' || c == '(' || c == '"' || c == '\'' || c == '`' || c == '<' || c == '[' {
			break
		}
		i--
	}
	return hasURLScheme(strings.ToLower(content[i:pos]))
}

// Shape classifies how a reference is written.
func Shape(raw string) string {
	switch {
	case strings.HasPrefix(raw, "../"):
		return "relative_parent"
	case strings.HasPrefix(raw, "./"):
		return "relative_current"
	case strings.HasPrefix(raw, "/"):
		return "absolute"
	case strings.HasPrefix(raw, "system/"):
		return "system_module"
	case strings.HasPrefix(raw, "patterns/"):
		return "pattern_module"
	case strings.HasPrefix(raw, "modules/"):
		return "module_reference"
	case strings.Contains(raw, "/"):
		return "path_reference"
	default:
		return "direct_reference"
	}
}

type lineIndex []int

func newLineIndex(s string) lineIndex {
	starts := lineIndex{0}
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// lineOf returns the 1-based line containing byte offset off.
func (l lineIndex) lineOf(off int) int {
	return sort.Search(len(l), func(i int) bool { return l[i] > off })
}
