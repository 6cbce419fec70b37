package skill

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
)

// Compile-time interface assertion.
var _ domain.SkillRegistry = (*FileRegistry)(nil)

// maxSkillFileSize is the maximum allowed skill file size (1 MiB).
const maxSkillFileSize = 1 << 20

// skillFileName is the document looked up inside a skill directory.
const skillFileName = "SKILL.md"

// FileRegistry indexes skills from markdown files with YAML frontmatter.
// It supports two layouts:
//   - Flat: skills/*.md (one file per skill)
//   - Subdirectory: skills/<name>/SKILL.md (one directory per skill)
//
// Only metadata and file paths are held in memory. Instructions are read
// from disk on every Load; callers cache them.
type FileRegistry struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	entries map[string]skillEntry

	watchMu sync.Mutex
	watchWg sync.WaitGroup
	cancel  context.CancelFunc
}

// NewFileRegistry creates a registry that reads from dir.
func NewFileRegistry(dir string, l *slog.Logger) *FileRegistry {
	return &FileRegistry{
		dir:    dir,
		logger:  logger.Component(l, "skills"),
		entries: make(map[string]skillEntry),
	}
}

type skillEntry struct {
	meta domain.SkillMetadata
	path string
}

// Dir returns the skill directory.
func (r *FileRegistry) Dir() string { return r.dir }

// Reload rescans the skill directory, reading only the frontmatter of each
// file. Files that fail to parse are skipped with a warning; a missing
// directory is an error.
func (r *FileRegistry) Reload(ctx context.Context) error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return domain.NewDomainError("FileRegistry.Reload", domain.ErrSkillRegistryUnavailable, err.Error())
	}

	loaded := make(map[string]skillEntry, len(entries))
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		path, ok := r.skillPath(entry)
		if !ok {
			continue
		}
		meta, err := readSkillHeader(path)
		if err != nil {
			r.logger.Warn("skipping skill file", "path", path, "error", err)
			continue
		}
		if prev, dup := loaded[meta.Name]; dup {
			r.logger.Warn("duplicate skill name", "name", meta.Name, "kept", prev.path, "skipped", path)
			continue
		}
		loaded[meta.Name] = skillEntry{meta: meta, path: path}
	}

	r.mu.Lock()
	r.entries = loaded
	r.mu.Unlock()

	r.logger.Debug("skills loaded", "dir", r.dir, "count", len(loaded))
	return nil
}

func (r *FileRegistry) skillPath(entry os.DirEntry) (string, bool) {
	if entry.IsDir() {
		candidate := filepath.Join(r.dir, entry.Name(), skillFileName)
		if _, err := os.Stat(candidate); err != nil {
			return "", false
		}
		return candidate, true
	}
	if strings.HasSuffix(entry.Name(), ".md") && !strings.HasPrefix(entry.Name(), ".") {
		return filepath.Join(r.dir, entry.Name()), true
	}
	return "", false
}

// List implements domain.SkillRegistry. The directory is rescanned on every
// call; results are sorted by name.
func (r *FileRegistry) List(ctx context.Context) ([]domain.SkillMetadata, error) {
	if err := r.Reload(ctx); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.SkillMetadata, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.meta)
	}
	slices.SortFunc(out, func(a, b domain.SkillMetadata) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// Load implements domain.SkillRegistry. The file is read from disk on
// every call; an unknown name triggers one rescan.
func (r *FileRegistry) Load(ctx context.Context, name string) (domain.Skill, error) {
	e, ok := r.entry(name)
	if !ok {
		if err := r.Reload(ctx); err != nil {
			return domain.Skill{}, err
		}
		if e, ok = r.entry(name); !ok {
			return domain.Skill{}, domain.NewDomainError("FileRegistry.Load", domain.ErrNotFound, name)
		}
	}

	s, err := readSkillFile(e.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Skill{}, domain.NewDomainError("FileRegistry.Load", domain.ErrNotFound, fmt.Sprintf("%s: %v", name, err))
	}
	if err != nil {
		return domain.Skill{}, domain.NewDomainError("FileRegistry.Load", domain.ErrSkillRegistryUnavailable, err.Error())
	}
	if s.Metadata.Name != name {
		return domain.Skill{}, domain.NewDomainError("FileRegistry.Load", domain.ErrNotFound,
			fmt.Sprintf("%s: %s now defines %q", name, e.path, s.Metadata.Name))
	}
	return s, nil
}

func (r *FileRegistry) entry(name string) (skillEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

func readSkillFile(path string) (domain.Skill, error) {
	info, err := os.Stat(path)
	if err != nil {
		return domain.Skill{}, fmt.Errorf("stat skill file: %w", err)
	}
	if info.Size() > maxSkillFileSize {
		return domain.Skill{}, fmt.Errorf("skill file too large (%d bytes, max %d)", info.Size(), maxSkillFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.Skill{}, fmt.Errorf("read skill file: %w", err)
	}
	s, err := parseSkillFile(data)
	if err != nil {
		return domain.Skill{}, err
	}
	s.Source = path
	return s, nil
}

// readSkillHeader reads a skill file up to the closing frontmatter
// delimiter and returns its metadata. The body is not read.
func readSkillHeader(path string) (domain.SkillMetadata, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.SkillMetadata{}, fmt.Errorf("open skill file: %w", err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return domain.SkillMetadata{}, fmt.Errorf("stat skill file: %w", err)
	}
	if info.Size() > maxSkillFileSize {
		return domain.SkillMetadata{}, fmt.Errorf("skill file too large (%d bytes, max %d)", info.Size(), maxSkillFileSize)
	}

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 4096), maxSkillFileSize)
	var header []string
	opened := false
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if !opened {
			if strings.TrimSpace(line) == "" {
				continue
			}
			if !strings.HasPrefix(line, "---") {
				return domain.SkillMetadata{}, fmt.Errorf("missing frontmatter delimiter")
			}
			opened = true
			continue
		}
		if strings.HasPrefix(line, "---") {
			return parseFrontmatter([]byte(strings.Join(header, "\n")))
		}
		header = append(header, line)
	}
	if err := sc.Err(); err != nil {
		return domain.SkillMetadata{}, fmt.Errorf("read skill file: %w", err)
	}
	if !opened {
		return domain.SkillMetadata{}, fmt.Errorf("missing frontmatter delimiter")
	}
	return domain.SkillMetadata{}, fmt.Errorf("missing closing frontmatter delimiter")
}

// frontmatter mirrors the YAML header. Enabled is a pointer so an absent
// key means enabled.
type frontmatter struct {
	Name         string   `yaml:"name"`
	Description  string   `yaml:"description"`
	Capabilities []string `yaml:"capabilities"`
	Tags         []string `yaml:"tags"`
	Enabled      *bool    `yaml:"enabled"`
}

// parseSkillFile parses a markdown document with a --- delimited YAML
// header.
func parseSkillFile(data []byte) (domain.Skill, error) {
	content := bytes.TrimSpace(bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n")))
	if !bytes.HasPrefix(content, []byte("---")) {
		return domain.Skill{}, fmt.Errorf("missing frontmatter delimiter")
	}
	header, body, ok := bytes.Cut(content[3:], []byte("\n---"))
	if !ok {
		return domain.Skill{}, fmt.Errorf("missing closing frontmatter delimiter")
	}

	meta, err := parseFrontmatter(header)
	if err != nil {
		return domain.Skill{}, err
	}

	// The closing delimiter line may carry trailing dashes or spaces.
	body = bytes.TrimLeft(body, "-")
	return domain.Skill{
		Metadata:     meta,
		Instructions: strings.TrimSpace(string(body)),
	}, nil
}

// parseFrontmatter decodes the YAML header. Tags are accepted as extra
// capabilities.
func parseFrontmatter(header []byte) (domain.SkillMetadata, error) {
	var fm frontmatter
	if err := yaml.Unmarshal(header, &fm); err != nil {
		return domain.SkillMetadata{}, fmt.Errorf("parse frontmatter: %w", err)
	}
	fm.Name = strings.TrimSpace(fm.Name)
	if fm.Name == "" {
		return domain.SkillMetadata{}, fmt.Errorf("skill missing name in frontmatter")
	}

	var caps []string
	for _, c := range slices.Concat(fm.Capabilities, fm.Tags) {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && !slices.Contains(caps, c) {
			caps = append(caps, c)
		}
	}
	return domain.SkillMetadata{
		Name:         fm.Name,
		Description:  strings.TrimSpace(fm.Description),
		Capabilities: caps,
		Enabled:      fm.Enabled == nil || *fm.Enabled,
	}, nil
}
