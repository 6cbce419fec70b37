package security

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"lumen-agent/internal/domain"
)

func newTestSandbox(t *testing.T) (*Sandbox, string) {
	t.Helper()
	dir := t.TempDir()
	sb, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	return sb, sb.Root()
}

func TestSandboxCreatesRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "files")
	sb, err := NewSandbox(dir)
	if err != nil {
		t.Fatal(err)
	}
	if info, err := os.Stat(sb.Root()); err != nil || !info.IsDir() {
		t.Fatalf("root not created: %v", err)
	}
}

func TestSandboxRejectsFileRoot(t *testing.T) {
	f := filepath.Join(t.TempDir(), "plain")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := NewSandbox(f); err == nil {
		t.Fatal("expected error for file root")
	}
}

func TestSandboxResolve(t *testing.T) {
	sb, root := newTestSandbox(t)

	got, err := sb.Resolve("report.md")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if want := filepath.Join(root, "report.md"); got != want {
		t.Errorf("Resolve = %q, want %q", got, want)
	}
}

func TestSandboxTraversal(t *testing.T) {
	sb, root := newTestSandbox(t)

	for _, name := range []string{"../escape.txt", "a/../../escape.txt", "/etc/passwd", ""} {
		if _, err := sb.Resolve(name); !errors.Is(err, domain.ErrPathOutsideSandbox) {
			t.Errorf("Resolve(%q) err = %v, want ErrPathOutsideSandbox", name, err)
		}
	}
	if _, err := sb.ValidatePath(filepath.Join(root, "..", "x")); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("ValidatePath outside root err = %v", err)
	}
}

func TestSandboxSymlinkEscape(t *testing.T) {
	sb, root := newTestSandbox(t)
	outside := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if _, err := sb.Resolve("link/secret.txt"); !errors.Is(err, domain.ErrPathOutsideSandbox) {
		t.Errorf("symlink escape err = %v, want ErrPathOutsideSandbox", err)
	}
}
