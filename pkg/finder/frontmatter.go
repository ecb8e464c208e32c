package finder

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// FrontMatter is the YAML header of a command or component file.
type FrontMatter struct {
	Name         string   `yaml:"name" json:"name,omitempty"`
	Description  string   `yaml:"description" json:"description,omitempty"`
	Category     string   `yaml:"category" json:"category,omitempty"`
	Version      string   `yaml:"version" json:"version,omitempty"`
	Tags         []string `yaml:"tags" json:"tags,omitempty"`
	Dependencies []string `yaml:"dependencies" json:"dependencies,omitempty"`
}

var fence = []byte("---")

// SplitFrontMatter returns the raw YAML between a leading pair of --- lines
// and the remaining body. ok is false when the content has no front matter.
func SplitFrontMatter(content []byte) (header, body []byte, ok bool) {
	content = bytes.TrimPrefix(content, []byte("\ufeff"))
	if !bytes.HasPrefix(content, fence) {
		return nil, content, false
	}
	rest := content[len(fence):]
	nl := bytes.IndexByte(rest, '\n')
	if nl < 0 || len(bytes.TrimSpace(rest[:nl])) != 0 {
		return nil, content, false
	}
	rest = rest[nl+1:]

	for off := 0; off < len(rest); {
		end := bytes.IndexByte(rest[off:], '\n')
		line := rest[off:]
		next := len(rest)
		if end >= 0 {
			line = rest[off : off+end]
			next = off + end + 1
		}
		if bytes.Equal(bytes.TrimRight(line, " \t\r"), fence) {
			return rest[:off], rest[next:], true
		}
		off = next
	}
	return nil, content, false
}

// ParseFrontMatter decodes the YAML header. It returns nil, nil when there is
// no header at all.
func ParseFrontMatter(content []byte) (*FrontMatter, error) {
	header, _, ok := SplitFrontMatter(content)
	if !ok {
		return nil, nil
	}

	var fm FrontMatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return nil, fmt.Errorf("frontmatter: parse yaml: %w", err)
	}
	return &fm, nil
}
