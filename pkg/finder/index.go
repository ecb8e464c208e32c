package finder

import (
	"bytes"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("finder")

// Category labels inferred from a file's location.
const (
	CategoryCoreCommand       = "Core Command"
	CategoryMetaCommand       = "Meta Command"
	CategoryQualityCommand    = "Quality Command"
	CategoryOtherCommand      = "Other Command"
	CategoryAtomicComponent   = "Atomic Component"
	CategorySecurityComponent = "Security Component"
	CategoryOrchestrationComp = "Orchestration Component"
	CategoryIntelligenceComp  = "Intelligence Component"
	CategoryOtherComponent    = "Other Component"
	CategoryContext           = "Context File"
	CategoryXMLSchemaDoc      = "XML Schema Doc"
	CategoryRootDocumentation = "Root Documentation"
	xmlMetadataMarker         = "<ai_document_metadata>"
)

// categoryRules are checked in order; the first substring match wins.
// The claude directory name is substituted for "{claude}".
var categoryRules = []struct {
	substr   string
	category string
}{
	{"{claude}/commands/core", CategoryCoreCommand},
	{"{claude}/commands/meta", CategoryMetaCommand},
	{"{claude}/commands/quality", CategoryQualityCommand},
	{"{claude}/commands/", CategoryOtherCommand},
	{"{claude}/components/atomic", CategoryAtomicComponent},
	{"{claude}/components/security", CategorySecurityComponent},
	{"{claude}/components/orchestration", CategoryOrchestrationComp},
	{"{claude}/components/intelligence", CategoryIntelligenceComp},
	{"{claude}/components/", CategoryOtherComponent},
	{"{claude}/context", CategoryContext},
	{"docs/xml-schema", CategoryXMLSchemaDoc},
}

// Categorize infers a file's category from its root-relative path.
func Categorize(relPath, claudeDir string) string {
	p := "/" + strings.TrimPrefix(filepath.ToSlash(relPath), "/")
	claude := strings.Trim(filepath.ToSlash(claudeDir), "/")
	for _, rule := range categoryRules {
		if strings.Contains(p, "/"+strings.ReplaceAll(rule.substr, "{claude}", claude)) {
			return rule.category
		}
	}
	return CategoryRootDocumentation
}

// IsCommand reports whether the category is one of the command categories.
func IsCommand(category string) bool {
	return strings.HasSuffix(category, " Command")
}

// IsComponent reports whether the category is one of the component categories.
func IsComponent(category string) bool {
	return strings.HasSuffix(category, " Component")
}

// FileNode is one indexed markdown file. Content is read while indexing and
// then dropped.
type FileNode struct {
	Path        string       `json:"path"`
	Category    string       `json:"category"`
	Size        int64        `json:"size"`
	XMLTagged   bool         `json:"xmlTagged"`
	FrontMatter *FrontMatter `json:"frontMatter,omitempty"`
}

// SkippedFile records a file that could not be processed and why.
type SkippedFile struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Index is the set of markdown files under a root, addressable by relative
// path and by base filename.
type Index struct {
	Root      string        `json:"root"`
	ClaudeDir string        `json:"claudeDir"`
	Files     []*FileNode   `json:"files"`
	Skipped   []SkippedFile `json:"skipped,omitempty"`

	byPath map[string]*FileNode
	byName map[string][]string
}

// NewIndex walks root and indexes every markdown file. Unreadable files and
// malformed front matter are logged and recorded in Skipped; they do not fail
// the walk.
func NewIndex(root, claudeDir string) (*Index, error) {
	paths, err := FindMarkdownFiles(root)
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}

	idx := newIndex(root, claudeDir)
	for _, rel := range paths {
		content, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
		if err != nil {
			log.Warn("skipping unreadable file", "path", rel, "error", err)
			idx.Skipped = append(idx.Skipped, SkippedFile{Path: rel, Reason: err.Error()})
			continue
		}

		node := &FileNode{
			Path:      rel,
			Category:  Categorize(rel, claudeDir),
			Size:      int64(len(content)),
			XMLTagged: bytes.Contains(content, []byte(xmlMetadataMarker)),
		}
		fm, err := ParseFrontMatter(content)
		if err != nil {
			log.Warn("ignoring malformed front matter", "path", rel, "error", err)
			idx.Skipped = append(idx.Skipped, SkippedFile{Path: rel, Reason: err.Error()})
		}
		node.FrontMatter = fm
		idx.add(node)
	}

	log.Debug("indexed markdown files", "root", root, "files", len(idx.Files), "skipped", len(idx.Skipped))
	return idx, nil
}

// NewIndexFromPaths builds an index over already-known paths without touching
// the filesystem. Used by tests and by callers that enumerate files themselves.
func NewIndexFromPaths(claudeDir string, paths ...string) *Index {
	idx := newIndex("", claudeDir)
	for _, p := range paths {
		idx.add(&FileNode{Path: p, Category: Categorize(p, claudeDir)})
	}
	return idx
}

func newIndex(root, claudeDir string) *Index {
	return &Index{
		Root:      root,
		ClaudeDir: strings.Trim(filepath.ToSlash(claudeDir), "/"),
		byPath:    make(map[string]*FileNode),
		byName:    make(map[string][]string),
	}
}

func (idx *Index) add(n *FileNode) {
	if _, exists := idx.byPath[n.Path]; exists {
		return
	}
	idx.Files = append(idx.Files, n)
	idx.byPath[n.Path] = n
	name := path.Base(n.Path)
	idx.byName[name] = append(idx.byName[name], n.Path)
	sort.Strings(idx.byName[name])
}

// Lookup returns the node at a root-relative path.
func (idx *Index) Lookup(relPath string) (*FileNode, bool) {
	n, ok := idx.byPath[relPath]
	return n, ok
}

// ByName returns every indexed path whose base name equals name, sorted.
func (idx *Index) ByName(name string) []string {
	return idx.byName[name]
}

// Paths returns all indexed paths in walk order.
func (idx *Index) Paths() []string {
	out := make([]string, len(idx.Files))
	for i, n := range idx.Files {
		out[i] = n.Path
	}
	return out
}

// Len returns the number of indexed files.
func (idx *Index) Len() int {
	return len(idx.Files)
}
