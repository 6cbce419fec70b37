package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfigFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestIncludesGlobAndPrecedence(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "conf.d")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeConfigFile(t, sub, "skills.yaml", `
skills:
  dir: /srv/skills
  max_per_query: 2
`)
	writeConfigFile(t, sub, "tools.yaml", `
tools:
  repair_json: true
`)
	path := writeConfigFile(t, dir, "config.yaml", `
includes:
  - "conf.d/*.yaml"
skills:
  max_per_query: 4
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Skills.Dir != "/srv/skills" {
		t.Errorf("Skills.Dir = %q, want include value", cfg.Skills.Dir)
	}
	if !cfg.Tools.RepairJSON {
		t.Error("RepairJSON from include not applied")
	}
	if cfg.Skills.MaxPerQuery != 4 {
		t.Errorf("MaxPerQuery = %d, main file must win", cfg.Skills.MaxPerQuery)
	}
}

func TestIncludesNested(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "b.yaml", "logger:\n  format: json\n")
	writeConfigFile(t, dir, "a.yaml", "includes: [b.yaml]\n")
	path := writeConfigFile(t, dir, "config.yaml", "includes: [a.yaml]\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Format = %q, want json", cfg.Logger.Format)
	}
}

func TestIncludesCircular(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, "a.yaml", "includes: [config.yaml]\n")
	path := writeConfigFile(t, dir, "config.yaml", "includes: [a.yaml]\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "circular") {
		t.Fatalf("expected circular include error, got %v", err)
	}
}

func TestIncludesPathTraversal(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "includes: [../outside.yaml]\n")

	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "escapes") {
		t.Fatalf("expected traversal error, got %v", err)
	}
}

func TestIncludesMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfigFile(t, dir, "config.yaml", "includes: [nope.yaml]\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for missing literal include")
	}
}
