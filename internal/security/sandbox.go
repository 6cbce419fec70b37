package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"lumen-agent/internal/domain"
)

// Sandbox confines generated files to one directory tree. root has its
// symlinks resolved so prefix checks compare like with like.
type Sandbox struct {
	root string
}

// NewSandbox creates dir if needed and roots a sandbox there.
func NewSandbox(dir string) (*Sandbox, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve sandbox root: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("create sandbox root: %w", err)
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("eval symlinks for sandbox root: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, fmt.Errorf("stat sandbox root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("sandbox root %q is not a directory", resolved)
	}
	return &Sandbox{root: resolved}, nil
}

func (s *Sandbox) Root() string { return s.root }

// Resolve maps a relative name into the sandbox. Absolute names, traversal
// and symlinks escaping the root fail with ErrPathOutsideSandbox.
func (s *Sandbox) Resolve(name string) (string, error) {
	if name == "" || filepath.IsAbs(name) {
		return "", domain.NewDomainError("Sandbox.Resolve", domain.ErrPathOutsideSandbox, fmt.Sprintf("invalid name %q", name))
	}
	return s.ValidatePath(filepath.Join(s.root, name))
}

// ValidatePath returns the resolved form of requested when it lies inside
// the root. A path that does not exist yet is judged by its parent.
func (s *Sandbox) ValidatePath(requested string) (string, error) {
	abs, err := filepath.Abs(requested)
	if err != nil {
		return "", domain.NewDomainError("Sandbox.ValidatePath", domain.ErrPathOutsideSandbox, err.Error())
	}

	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		dir, derr := filepath.EvalSymlinks(filepath.Dir(abs))
		if derr != nil {
			return "", domain.NewDomainError("Sandbox.ValidatePath", domain.ErrPathOutsideSandbox, derr.Error())
		}
		resolved = filepath.Join(dir, filepath.Base(abs))
	}

	if !s.within(resolved) {
		return "", domain.NewDomainError("Sandbox.ValidatePath", domain.ErrPathOutsideSandbox,
			fmt.Sprintf("resolved %q is outside root %q", resolved, s.root))
	}
	return resolved, nil
}

func (s *Sandbox) within(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	return err == nil && rel != ".." && !strings.HasPrefix(rel, ".."+string(os.PathSeparator))
}
