// Package scripts checks a directory of Python helper scripts for duplicated
// functions, classes and files.
package scripts

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/python"
)

// ErrSyntax is returned for scripts tree-sitter could not parse cleanly.
var ErrSyntax = errors.New("syntax error")

// Function is a function or method definition.
type Function struct {
	Name         string   `json:"name"`
	Params       []string `json:"params"`
	Line         int      `json:"line"`
	Class        string   `json:"class,omitempty"`
	HasDocstring bool     `json:"hasDocstring"`
}

// Signature is the name and positional parameter names, e.g. "load(path)".
func (f Function) Signature() string {
	return f.Name + "(" + strings.Join(f.Params, ", ") + ")"
}

// Private reports whether the name starts with an underscore.
func (f Function) Private() bool {
	return strings.HasPrefix(f.Name, "_")
}

// Class is a class definition with its direct methods.
type Class struct {
	Name         string   `json:"name"`
	Line         int      `json:"line"`
	Methods      []string `json:"methods"`
	HasDocstring bool     `json:"hasDocstring"`
}

// Import is one imported name. Name is empty for plain "import x".
type Import struct {
	Module string `json:"module"`
	Name   string `json:"name,omitempty"`
	Alias  string `json:"alias,omitempty"`
}

// Key is the dotted path used to group imports across scripts.
func (i Import) Key() string {
	if i.Name == "" {
		return i.Module
	}
	return i.Module + "." + i.Name
}

// Script is what was extracted from one file.
type Script struct {
	Path      string     `json:"path"`
	Name      string     `json:"name"`
	Size      int        `json:"sizeBytes"`
	Lines     int        `json:"lines"`
	Hash      string     `json:"hash"`
	Docstring string     `json:"docstring,omitempty"`
	Purpose   string     `json:"purpose,omitempty"`
	Functions []Function `json:"functions"`
	Classes   []Class    `json:"classes"`
	Imports   []Import   `json:"imports"`
	HasMain   bool       `json:"hasMain"`
	CLI       bool       `json:"cli"`
}

// parser wraps a tree-sitter parser. It is not safe for concurrent use.
type parser struct {
	ts *sitter.Parser
}

func newParser() *parser {
	ts := sitter.NewParser()
	ts.SetLanguage(python.GetLanguage())
	return &parser{ts: ts}
}

// Parse extracts definitions and imports from Python source.
func (p *parser) Parse(ctx context.Context, path string, content []byte) (*Script, error) {
	tree, err := p.ts.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, err
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.HasError() {
		return nil, ErrSyntax
	}

	sum := sha256.Sum256(content)
	s := &Script{
		Path:  path,
		Size:  len(content),
		Lines: strings.Count(string(content), "\n") + 1,
		Hash:  hex.EncodeToString(sum[:]),
	}
	if doc, ok := docstring(root, content); ok {
		s.Docstring = doc
		s.Purpose = purpose(doc)
	}

	w := &walker{content: content, script: s}
	w.walk(root, "")

	for _, imp := range s.Imports {
		if imp.Module == "argparse" {
			s.CLI = true
		}
	}
	return s, nil
}

type walker struct {
	content []byte
	script  *Script
}

func (w *walker) text(n *sitter.Node) string {
	return string(w.content[n.StartByte():n.EndByte()])
}

// walk visits every definition in the tree, nested ones included. class is
// the enclosing class name for direct methods.
func (w *walker) walk(node *sitter.Node, class string) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				w.definition(def, class)
			}
		case "function_definition", "class_definition":
			w.definition(child, class)
		case "import_statement":
			w.importStatement(child)
		case "import_from_statement":
			w.importFrom(child)
		default:
			w.walk(child, "")
		}
	}
}

func (w *walker) definition(n *sitter.Node, class string) {
	name := n.ChildByFieldName("name")
	if name == nil {
		return
	}
	body := n.ChildByFieldName("body")
	_, hasDoc := docstring(body, w.content)
	line := int(n.StartPoint().Row) + 1

	if n.Type() == "class_definition" {
		c := Class{Name: w.text(name), Line: line, HasDocstring: hasDoc}
		if body != nil {
			c.Methods = w.methods(body)
		}
		w.script.Classes = append(w.script.Classes, c)
		if body != nil {
			w.walk(body, c.Name)
		}
		return
	}

	f := Function{
		Name:         w.text(name),
		Params:       w.params(n.ChildByFieldName("parameters")),
		Line:         line,
		Class:        class,
		HasDocstring: hasDoc,
	}
	w.script.Functions = append(w.script.Functions, f)
	if f.Name == "main" {
		w.script.HasMain = true
	}
	if body != nil {
		w.walk(body, "")
	}
}

func (w *walker) methods(body *sitter.Node) []string {
	var out []string
	for i := 0; i < int(body.NamedChildCount()); i++ {
		def := body.NamedChild(i)
		if def.Type() == "decorated_definition" {
			def = def.ChildByFieldName("definition")
		}
		if def == nil || def.Type() != "function_definition" {
			continue
		}
		if name := def.ChildByFieldName("name"); name != nil {
			out = append(out, w.text(name))
		}
	}
	return out
}

// params returns the positional parameter names. Splat parameters and
// keyword-only parameters after a bare "*" are left out.
func (w *walker) params(n *sitter.Node) []string {
	out := []string{}
	if n == nil {
		return out
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		p := n.NamedChild(i)
		switch p.Type() {
		case "identifier":
			out = append(out, w.text(p))
		case "default_parameter", "typed_default_parameter":
			if name := p.ChildByFieldName("name"); name != nil {
				out = append(out, w.text(name))
			}
		case "typed_parameter":
			for j := 0; j < int(p.NamedChildCount()); j++ {
				if id := p.NamedChild(j); id.Type() == "identifier" {
					out = append(out, w.text(id))
					break
				}
			}
		case "list_splat_pattern", "dictionary_splat_pattern", "keyword_separator":
			return out
		}
	}
	return out
}

func (w *walker) importStatement(n *sitter.Node) {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		switch c.Type() {
		case "dotted_name":
			w.script.Imports = append(w.script.Imports, Import{Module: w.text(c)})
		case "aliased_import":
			imp := Import{}
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Module = w.text(name)
			}
			if alias := c.ChildByFieldName("alias"); alias != nil {
				imp.Alias = w.text(alias)
			}
			w.script.Imports = append(w.script.Imports, imp)
		}
	}
}

func (w *walker) importFrom(n *sitter.Node) {
	mod := n.ChildByFieldName("module_name")
	if mod == nil {
		return
	}
	module := w.text(mod)
	for i := 0; i < int(n.NamedChildCount()); i++ {
		c := n.NamedChild(i)
		if c.StartByte() == mod.StartByte() {
			continue
		}
		switch c.Type() {
		case "dotted_name":
			w.script.Imports = append(w.script.Imports, Import{Module: module, Name: w.text(c)})
		case "aliased_import":
			imp := Import{Module: module}
			if name := c.ChildByFieldName("name"); name != nil {
				imp.Name = w.text(name)
			}
			if alias := c.ChildByFieldName("alias"); alias != nil {
				imp.Alias = w.text(alias)
			}
			w.script.Imports = append(w.script.Imports, imp)
		case "wildcard_import":
			w.script.Imports = append(w.script.Imports, Import{Module: module, Name: "*"})
		}
	}
}

// docstring returns the leading string literal of a module or block.
func docstring(block *sitter.Node, content []byte) (string, bool) {
	if block == nil || block.NamedChildCount() == 0 {
		return "", false
	}
	first := block.NamedChild(0)
	if first.Type() != "expression_statement" || first.NamedChildCount() == 0 {
		return "", false
	}
	str := first.NamedChild(0)
	if str.Type() != "string" {
		return "", false
	}
	return unquote(string(content[str.StartByte():str.EndByte()])), true
}

// unquote strips a string prefix and the surrounding quotes.
func unquote(s string) string {
	s = strings.TrimLeft(s, "rRuUbBfF")
	for _, q := range []string{`"""`, `'''`, `"`, `'`} {
		if len(s) >= 2*len(q) && strings.HasPrefix(s, q) && strings.HasSuffix(s, q) {
			return s[len(q) : len(s)-len(q)]
		}
	}
	return s
}

// purpose is the first docstring line longer than ten characters.
func purpose(doc string) string {
	for _, line := range strings.Split(doc, "\n") {
		line = strings.TrimSpace(line)
		if len(line) > 10 {
			return line
		}
	}
	return ""
}
