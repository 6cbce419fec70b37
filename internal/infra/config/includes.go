package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 5

// mergeIncludes overlays every file named in cfg.Includes onto cfg, in order.
// Patterns are globs relative to the including file and may not escape its
// directory. Nested includes are followed up to maxIncludeDepth.
func mergeIncludes(cfg *Config, mainPath string) error {
	visited := map[string]bool{mainPath: true}
	return includeFrom(cfg, filepath.Dir(mainPath), visited, 0)
}

func includeFrom(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if depth >= maxIncludeDepth {
		return fmt.Errorf("config includes: max depth %d exceeded", maxIncludeDepth)
	}
	patterns := cfg.Includes
	cfg.Includes = nil

	for _, pattern := range patterns {
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(baseDir, pattern)
		}
		pattern = filepath.Clean(pattern)
		if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
			return fmt.Errorf("config includes: path %q escapes config directory", pattern)
		}

		paths, err := filepath.Glob(pattern)
		if err != nil {
			return fmt.Errorf("config includes: glob %q: %w", pattern, err)
		}
		if len(paths) == 0 && !strings.ContainsAny(pattern, "*?[") {
			paths = []string{pattern}
		}

		for _, p := range paths {
			if visited[p] {
				return fmt.Errorf("config includes: circular include detected for %q", p)
			}
			visited[p] = true
			if err := overlayFile(cfg, p); err != nil {
				return err
			}
			if len(cfg.Includes) > 0 {
				if err := includeFrom(cfg, filepath.Dir(p), visited, depth+1); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func overlayFile(cfg *Config, path string) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	return nil
}
