package finder

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// skipDirs are never descended into.
var skipDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"__pycache__":  true,
	".venv":        true,
}

// SkipDir reports whether a directory with this name is left out of walks.
func SkipDir(name string) bool {
	return skipDirs[name] || strings.HasPrefix(name, ".backup")
}

// FindMarkdownFiles walks root and returns every .md file as a slash-separated
// path relative to root, sorted. VCS metadata, dependency caches and .backup*
// snapshot directories are skipped.
func FindMarkdownFiles(root string) ([]string, error) {
	return FindFiles(root, ".md")
}

// FindFiles is FindMarkdownFiles for an arbitrary extension (".py", ".md").
func FindFiles(root, ext string) ([]string, error) {
	var files []string

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if d.IsDir() {
			if path != root && SkipDir(d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}

		if !strings.EqualFold(filepath.Ext(path), ext) {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})

	sort.Strings(files)
	return files, err
}
