// Package resolve maps reference strings to indexed files using a fixed
// sequence of path-rewriting heuristics. Matches are best effort: a hit means
// some plausible file exists, not that the author meant that file.
package resolve

import (
	"context"
	"path"
	"sort"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("resolve")

// Strategy names the heuristic that produced a match.
type Strategy string

const (
	StrategyRelative   Strategy = "relative"
	StrategyExact      Strategy = "exact"
	StrategyClaudeRoot Strategy = "claude_root"
	StrategyAbsolute   Strategy = "absolute"
	StrategyPrefixed   Strategy = "prefixed"
	StrategyFilename   Strategy = "filename"
	StrategySubstring  Strategy = "substring"
)

// BreakType classifies why a reference could not be resolved.
type BreakType string

const (
	RelativePathIssue        BreakType = "RELATIVE_PATH_ISSUE"
	StructuralReorganization BreakType = "STRUCTURAL_REORGANIZATION"
	MissingFile              BreakType = "MISSING_FILE"
	PathResolutionFailure    BreakType = "PATH_RESOLUTION_FAILURE"
)

// Resolution is the outcome of resolving one reference.
type Resolution struct {
	Target   string    `json:"target,omitempty"`
	Strategy Strategy  `json:"strategy,omitempty"`
	OK       bool      `json:"ok"`
	Break    BreakType `json:"break,omitempty"`
}

// Resolver resolves references against an index.
type Resolver struct {
	idx       *finder.Index
	claudeDir string
}

// New creates a resolver over idx. The index's claude directory is used by
// the claude_root and prefixed strategies.
func New(idx *finder.Index) *Resolver {
	claude := idx.ClaudeDir
	if claude == "" {
		claude = ".claude"
	}
	return &Resolver{idx: idx, claudeDir: claude}
}

// Resolve maps raw, as written in source, to an indexed path. Strategies are
// tried in order and the first hit wins.
func (r *Resolver) Resolve(source, raw string) Resolution {
	ref := strings.ReplaceAll(strings.TrimSpace(raw), `\`, "/")
	if ref == "" {
		return Resolution{Break: Classify(raw)}
	}

	for _, s := range []struct {
		name Strategy
		try  func(source, ref string) (string, bool)
	}{
		{StrategyRelative, r.relative},
		{StrategyExact, r.exact},
		{StrategyClaudeRoot, r.claudeRoot},
		{StrategyAbsolute, r.absolute},
		{StrategyPrefixed, r.prefixed},
		{StrategyFilename, r.filename},
		{StrategySubstring, r.substring},
	} {
		if target, ok := s.try(source, ref); ok {
			log.Log(context.Background(), logging.LevelTrace, "resolved reference", "source", source, "ref", raw, "target", target, "strategy", string(s.name))
			return Resolution{Target: target, Strategy: s.name, OK: true}
		}
	}

	return Resolution{Break: Classify(ref)}
}

// Classify returns the break type of an unresolved reference.
func Classify(ref string) BreakType {
	switch {
	case strings.HasPrefix(ref, "../"):
		return RelativePathIssue
	case strings.HasPrefix(ref, "system/"), strings.HasPrefix(ref, "patterns/"):
		return StructuralReorganization
	case !strings.Contains(ref, "/"):
		return MissingFile
	default:
		return PathResolutionFailure
	}
}

// lookup tries p and, when p has no .md suffix, p+".md".
func (r *Resolver) lookup(p string) (string, bool) {
	p = path.Clean(p)
	if p == "." || strings.HasPrefix(p, "../") || p == ".." {
		return "", false
	}
	if _, ok := r.idx.Lookup(p); ok {
		return p, true
	}
	if !strings.HasSuffix(strings.ToLower(p), ".md") {
		if _, ok := r.idx.Lookup(p + ".md"); ok {
			return p + ".md", true
		}
	}
	return "", false
}

func (r *Resolver) relative(source, ref string) (string, bool) {
	if !strings.HasPrefix(ref, "./") && !strings.HasPrefix(ref, "../") {
		return "", false
	}
	return r.lookup(path.Join(path.Dir(source), ref))
}

func (r *Resolver) exact(_, ref string) (string, bool) {
	if strings.HasPrefix(ref, "/") {
		return "", false
	}
	return r.lookup(ref)
}

func (r *Resolver) claudeRoot(_, ref string) (string, bool) {
	if strings.HasPrefix(ref, "../") {
		return "", false
	}
	return r.lookup(path.Join(r.claudeDir, ref))
}

func (r *Resolver) absolute(_, ref string) (string, bool) {
	if !strings.HasPrefix(ref, "/") {
		return "", false
	}
	return r.lookup(strings.TrimLeft(ref, "/"))
}

func (r *Resolver) prefixed(_, ref string) (string, bool) {
	trimmed := strings.TrimLeft(ref, "/")
	for _, dir := range []string{"commands", "components"} {
		if target, ok := r.lookup(path.Join(r.claudeDir, dir, trimmed)); ok {
			return target, true
		}
	}
	return "", false
}

// filename matches on base name. With several candidates the one sharing the
// longest trailing directory sequence with ref wins, then lexical order.
func (r *Resolver) filename(_, ref string) (string, bool) {
	name := path.Base(ref)
	candidates := r.idx.ByName(name)
	if len(candidates) == 0 && !strings.HasSuffix(strings.ToLower(name), ".md") {
		candidates = r.idx.ByName(name + ".md")
	}
	if len(candidates) == 0 {
		return "", false
	}

	refDirs := dirParts(path.Dir(ref))
	best, bestScore := candidates[0], -1
	for _, c := range candidates {
		score := commonSuffix(refDirs, dirParts(path.Dir(c)))
		if score > bestScore {
			best, bestScore = c, score
		}
	}
	return best, true
}

// substring matches any indexed path ending in ref once leading ./ and ../
// segments are stripped.
func (r *Resolver) substring(_, ref string) (string, bool) {
	stripped := stripLeadingDots(ref)
	if stripped == "" {
		return "", false
	}
	if !strings.HasSuffix(strings.ToLower(stripped), ".md") {
		stripped += ".md"
	}

	var matches []string
	for _, p := range r.idx.Paths() {
		if p == stripped || strings.HasSuffix(p, "/"+stripped) {
			matches = append(matches, p)
		}
	}
	if len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return matches[0], true
}

func stripLeadingDots(ref string) string {
	for {
		switch {
		case strings.HasPrefix(ref, "../"):
			ref = ref[3:]
		case strings.HasPrefix(ref, "./"):
			ref = ref[2:]
		case strings.HasPrefix(ref, "/"):
			ref = ref[1:]
		default:
			return ref
		}
	}
}

func dirParts(dir string) []string {
	if dir == "." || dir == "/" || dir == "" {
		return nil
	}
	var parts []string
	for _, p := range strings.Split(dir, "/") {
		if p != "" && p != "." && p != ".." {
			parts = append(parts, p)
		}
	}
	return parts
}

func commonSuffix(a, b []string) int {
	n := 0
	for i, j := len(a)-1, len(b)-1; i >= 0 && j >= 0 && a[i] == b[j]; i, j = i-1, j-1 {
		n++
	}
	return n
}
