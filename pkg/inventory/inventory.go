// Package inventory counts the commands and components of a prompt library
// and checks documentation claims about them against the tree on disk.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/swm-sink/promptaudit/pkg/finder"
	"github.com/swm-sink/promptaudit/pkg/logging"
)

var log = logging.New("inventory")

// Inventory is the set of command, component and context files under the
// claude directory. README.md files are documentation and never counted.
type Inventory struct {
	ClaudeDir      string         `json:"claudeDir"`
	Commands       int            `json:"commands"`
	Components     int            `json:"components"`
	Contexts       int            `json:"contexts"`
	ByCategory     map[string]int `json:"byCategory"`
	CommandPaths   []string       `json:"commandPaths"`
	ComponentPaths []string       `json:"componentPaths"`
}

// Count returns the count for a noun: "command(s)", "component(s)" or
// "context(s)". Unknown nouns return -1.
func (inv *Inventory) Count(noun string) int {
	switch strings.TrimSuffix(strings.ToLower(noun), "s") {
	case "command":
		return inv.Commands
	case "component":
		return inv.Components
	case "context":
		return inv.Contexts
	}
	return -1
}

// Take inventories root/claudeDir. Missing subdirectories count as empty.
func Take(root, claudeDir string) (*Inventory, error) {
	inv := &Inventory{
		ClaudeDir:  claudeDir,
		ByCategory: make(map[string]int),
	}

	for _, sub := range []struct {
		dir   string
		count *int
		paths *[]string
	}{
		{"commands", &inv.Commands, &inv.CommandPaths},
		{"components", &inv.Components, &inv.ComponentPaths},
		{"context", &inv.Contexts, nil},
	} {
		rels, err := listMarkdown(root, path.Join(claudeDir, sub.dir))
		if err != nil {
			return nil, err
		}
		for _, rel := range rels {
			inv.ByCategory[finder.Categorize(rel, claudeDir)]++
		}
		*sub.count = len(rels)
		if sub.paths != nil {
			*sub.paths = rels
		}
	}

	log.Debug("inventory taken", "commands", inv.Commands, "components", inv.Components, "contexts", inv.Contexts)
	return inv, nil
}

// listMarkdown returns root-relative markdown paths under dir, README.md
// excluded.
func listMarkdown(root, dir string) ([]string, error) {
	abs := filepath.Join(root, filepath.FromSlash(dir))
	if _, err := os.Stat(abs); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	files, err := finder.FindMarkdownFiles(abs)
	if err != nil {
		return nil, fmt.Errorf("listing %s: %w", dir, err)
	}

	var out []string
	for _, f := range files {
		if strings.EqualFold(path.Base(f), "README.md") {
			continue
		}
		out = append(out, path.Join(dir, f))
	}
	sort.Strings(out)
	return out, nil
}

// Mismatch is an expected count that does not match the inventory.
type Mismatch struct {
	Noun     string `json:"noun"`
	Expected int    `json:"expected"`
	Actual   int    `json:"actual"`
}

// CheckExpectedCounts compares the inventory against configured expectations
// (for example {"components": 91}). Non-positive expectations are ignored.
func CheckExpectedCounts(inv *Inventory, expected map[string]int) []Mismatch {
	nouns := make([]string, 0, len(expected))
	for noun := range expected {
		nouns = append(nouns, noun)
	}
	sort.Strings(nouns)

	var out []Mismatch
	for _, noun := range nouns {
		want := expected[noun]
		if want <= 0 {
			continue
		}
		if got := inv.Count(noun); got != want {
			out = append(out, Mismatch{Noun: noun, Expected: want, Actual: got})
		}
	}
	return out
}
