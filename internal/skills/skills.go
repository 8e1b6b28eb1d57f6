// Package skills loads auxiliary knowledge documents the agent can pull
// into context on demand: markdown files with YAML frontmatter under the
// workspace skills directory. A skill is either a flat <name>.md file or a
// <name>/SKILL.md folder. The pipeline stage lists what exists in the
// system prompt and serves bodies through the read_skill tool; a missing
// directory simply disables the stage.
package skills

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const skillFileName = "SKILL.md"

// Skill is one loaded knowledge document
type Skill struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Body        string `yaml:"-"`
	Path        string `yaml:"-"`
}

// Load reads every skill under dir, sorted by name. A missing directory
// returns (nil, nil): skills are optional workspace state. Malformed
// frontmatter is an error; silently dropping a file the user wrote would
// be worse than failing loud. When a folder skill and a flat file declare
// the same name, the later directory entry wins.
func Load(dir string) ([]Skill, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading skills dir: %w", err)
	}

	byName := make(map[string]Skill)
	for _, entry := range entries {
		var path string
		switch {
		case entry.IsDir():
			path = filepath.Join(dir, entry.Name(), skillFileName)
			if _, err := os.Stat(path); err != nil {
				continue // not a skill folder
			}
		case strings.HasSuffix(entry.Name(), ".md"):
			path = filepath.Join(dir, entry.Name())
		default:
			continue
		}

		skill, err := loadFile(path)
		if err != nil {
			return nil, err
		}
		byName[skill.Name] = *skill
	}

	out := make([]Skill, 0, len(byName))
	for _, s := range byName {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func loadFile(path string) (*Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading skill %s: %w", path, err)
	}

	meta, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, fmt.Errorf("skill %s: %w", path, err)
	}

	var skill Skill
	if err := yaml.Unmarshal(meta, &skill); err != nil {
		return nil, fmt.Errorf("skill %s: parsing frontmatter: %w", path, err)
	}
	if skill.Name == "" {
		skill.Name = deriveName(path)
	}
	skill.Body = strings.TrimSpace(string(body))
	skill.Path = path
	return &skill, nil
}

// splitFrontmatter separates the YAML block between the leading --- fences
// from the markdown body
func splitFrontmatter(data []byte) (meta, body []byte, err error) {
	const fence = "---"
	s := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(s, fence+"\n") {
		return nil, nil, fmt.Errorf("missing frontmatter fence")
	}
	rest := s[len(fence)+1:]
	end := strings.Index(rest, "\n"+fence)
	if end < 0 {
		return nil, nil, fmt.Errorf("unterminated frontmatter fence")
	}
	meta = []byte(rest[:end])
	after := rest[end+len("\n"+fence):]
	if i := strings.Index(after, "\n"); i >= 0 {
		after = after[i+1:]
	} else {
		after = ""
	}
	return meta, []byte(after), nil
}

// deriveName falls back to the file or folder name when the frontmatter
// does not declare one
func deriveName(path string) string {
	base := filepath.Base(path)
	if base == skillFileName {
		return filepath.Base(filepath.Dir(path))
	}
	return strings.TrimSuffix(base, ".md")
}
