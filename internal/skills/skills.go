// Package skills discovers SKILL.md instruction bundles the agent can follow.
package skills

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

const (
	SourceBuiltIn = "built-in"
	SourceUser    = "user"
	SourceProject = "project"

	skillFile = "SKILL.md"
)

//go:embed builtin
var builtinFS embed.FS

var ErrNoFrontmatter = errors.New("missing frontmatter")

type Skill struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Path        string `json:"path"`
	Source      string `json:"source"`

	rel string
}

type frontmatter struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
}

type source struct {
	label string
	fsys  fs.FS
	root  string // display prefix for paths
}

// Loader lists skills from built-in, user and project sources. Later
// sources override earlier ones by name.
type Loader struct {
	sources []source
	log     zerolog.Logger
}

type Option func(*Loader)

func WithLogger(l zerolog.Logger) Option {
	return func(ld *Loader) { ld.log = l }
}

// WithoutBuiltIn drops the embedded skills.
func WithoutBuiltIn() Option {
	return func(ld *Loader) {
		kept := ld.sources[:0]
		for _, s := range ld.sources {
			if s.label != SourceBuiltIn {
				kept = append(kept, s)
			}
		}
		ld.sources = kept
	}
}

func NewLoader(userDir, projectDir string, opts ...Option) *Loader {
	builtin, _ := fs.Sub(builtinFS, "builtin")
	ld := &Loader{
		sources: []source{{label: SourceBuiltIn, fsys: builtin, root: "builtin"}},
		log:     zerolog.Nop(),
	}
	if userDir != "" {
		ld.sources = append(ld.sources, source{label: SourceUser, fsys: os.DirFS(userDir), root: userDir})
	}
	if projectDir != "" {
		ld.sources = append(ld.sources, source{label: SourceProject, fsys: os.DirFS(projectDir), root: projectDir})
	}
	for _, opt := range opts {
		opt(ld)
	}
	return ld
}

// List returns the merged skills sorted by name. Missing directories and
// invalid SKILL.md files are skipped.
func (l *Loader) List() []Skill {
	merged := make(map[string]Skill)
	for _, src := range l.sources {
		for _, s := range l.scan(src) {
			merged[s.Name] = s
		}
	}
	out := make([]Skill, 0, len(merged))
	for _, s := range merged {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Read returns the body of a skill found by List.
func (l *Loader) Read(name string) (string, error) {
	for i := len(l.sources) - 1; i >= 0; i-- {
		src := l.sources[i]
		for _, s := range l.scan(src) {
			if s.Name != name {
				continue
			}
			data, err := fs.ReadFile(src.fsys, s.rel)
			if err != nil {
				return "", fmt.Errorf("read skill %s: %w", name, err)
			}
			_, body, err := Parse(data)
			if err != nil {
				return "", err
			}
			return body, nil
		}
	}
	return "", fmt.Errorf("skill %q not found", name)
}

func (l *Loader) scan(src source) []Skill {
	entries, err := fs.ReadDir(src.fsys, ".")
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.log.Warn().Err(err).Str("source", src.label).Msg("cannot read skills directory")
		}
		return nil
	}

	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		rel := path.Join(entry.Name(), skillFile)
		data, err := fs.ReadFile(src.fsys, rel)
		if err != nil {
			continue
		}
		meta, _, err := Parse(data)
		if err != nil {
			l.log.Debug().Err(err).Str("skill", rel).Str("source", src.label).Msg("skipping skill")
			continue
		}
		out = append(out, Skill{
			Name:        meta.Name,
			Description: meta.Description,
			Path:        filepath.Join(src.root, filepath.FromSlash(rel)),
			Source:      src.label,
			rel:         rel,
		})
	}
	return out
}

// Parse splits a SKILL.md into its frontmatter and body. Name and
// description are required.
func Parse(data []byte) (Skill, string, error) {
	data = bytes.TrimPrefix(data, []byte("\ufeff"))
	text := strings.ReplaceAll(string(data), "\r\n", "\n")
	if !strings.HasPrefix(text, "---\n") {
		return Skill{}, "", ErrNoFrontmatter
	}
	rest := text[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return Skill{}, "", ErrNoFrontmatter
	}

	var fm frontmatter
	if err := yaml.Unmarshal([]byte(rest[:end]), &fm); err != nil {
		return Skill{}, "", fmt.Errorf("parse frontmatter: %w", err)
	}
	fm.Name = strings.TrimSpace(fm.Name)
	fm.Description = strings.TrimSpace(fm.Description)
	if fm.Name == "" || fm.Description == "" {
		return Skill{}, "", errors.New("frontmatter needs name and description")
	}

	body := strings.TrimLeft(rest[end+len("\n---"):], "\n")
	return Skill{Name: fm.Name, Description: fm.Description}, body, nil
}
