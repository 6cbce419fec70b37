package tool

import (
	"context"
	"fmt"
	"log/slog"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"lumen-agent/internal/domain"
	"lumen-agent/internal/infra/logger"
	"lumen-agent/internal/security"
)

// Compile-time interface assertion.
var _ domain.FileCreator = (*LocalFileCreator)(nil)

const defaultMaxFileBytes = 1 << 20

// LocalFileCreator writes generated files into a sandbox directory.
type LocalFileCreator struct {
	sandbox  *security.Sandbox
	maxBytes int64
	logger   *slog.Logger
}

// NewLocalFileCreator creates a creator rooted at dir.
func NewLocalFileCreator(dir string, maxBytes int64, l *slog.Logger) (*LocalFileCreator, error) {
	sb, err := security.NewSandbox(dir)
	if err != nil {
		return nil, err
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxFileBytes
	}
	return &LocalFileCreator{sandbox: sb, maxBytes: maxBytes, logger: logger.Component(l, "files")}, nil
}

// Root returns the sandbox directory.
func (c *LocalFileCreator) Root() string { return c.sandbox.Root() }

// Create implements domain.FileCreator. Existing files are overwritten.
func (c *LocalFileCreator) Create(ctx context.Context, name, content string) (domain.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return domain.Artifact{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return domain.Artifact{}, domain.NewDomainError("Files.Create", domain.ErrInvalidInput, fmt.Sprintf("invalid file name %q", name))
	}
	if int64(len(content)) > c.maxBytes {
		return domain.Artifact{}, domain.NewDomainError("Files.Create", domain.ErrInvalidInput,
			fmt.Sprintf("content exceeds %d bytes", c.maxBytes))
	}

	path, err := c.sandbox.Resolve(name)
	if err != nil {
		return domain.Artifact{}, err
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return domain.Artifact{}, fmt.Errorf("write file: %w", err)
	}

	c.logger.Debug("file created", "path", path, "size", len(content))
	return domain.Artifact{
		Name:     name,
		Path:     path,
		Size:     int64(len(content)),
		MimeType: mime.TypeByExtension(filepath.Ext(name)),
	}, nil
}
