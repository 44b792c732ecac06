package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/nao1215/sitemirror/internal/model"
)

// File and directory permissions of exported mirrors. Mirrors are meant to
// be served or browsed, so files are world-readable.
const (
	dirPerm  = 0750
	filePerm = 0644
)

// Result summarizes an export.
type Result struct {
	// Files is the number of files written.
	Files int

	// Bytes is the total size of the files written.
	Bytes int64

	// Skipped is the number of resources without content.
	Skipped int
}

// Exporter writes resources below a root directory.
type Exporter struct {
	root   string
	logger *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		e.logger = logger
	}
}

// New creates an Exporter writing below root.
func New(root string, opts ...Option) (*Exporter, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrNoOutputDir
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve output directory: %w", err)
	}

	e := &Exporter{root: abs, logger: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Root returns the absolute output directory.
func (e *Exporter) Root() string {
	return e.root
}

// Export writes every resource of g that has content. A resource that cannot
// be written does not stop the export; all such errors are returned joined.
func (e *Exporter) Export(ctx context.Context, g *model.Graph) (Result, error) {
	var (
		result Result
		errs   []error
	)

	if err := os.MkdirAll(e.root, dirPerm); err != nil {
		return result, fmt.Errorf("create output directory: %w", err)
	}

	for _, res := range g.All() {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if !res.Status().HasContent() || res.LocalPath() == "" {
			result.Skipped++
			continue
		}

		n, err := e.WriteResource(res)
		if err != nil {
			errs = append(errs, err)
			e.logger.Warn("export failed", "url", res.URL, "local_path", res.LocalPath(), "error", err)
			continue
		}
		result.Files++
		result.Bytes += int64(n)
	}

	e.logger.Debug("export finished", "root", e.root, "files", result.Files, "bytes", result.Bytes)
	return result, errors.Join(errs...)
}

// WriteResource writes one resource and returns the number of bytes written.
func (e *Exporter) WriteResource(res *model.Resource) (int, error) {
	target, err := e.Target(res.LocalPath())
	if err != nil {
		return 0, err
	}

	if err := os.MkdirAll(filepath.Dir(target), dirPerm); err != nil {
		return 0, fmt.Errorf("create directory for %s: %w", res.LocalPath(), err)
	}

	data := res.Bytes()
	if err := os.WriteFile(target, data, filePerm); err != nil { //nolint:gosec // mirrors are meant to be readable
		return 0, fmt.Errorf("write %s: %w", res.LocalPath(), err)
	}
	return len(data), nil
}

// Target returns the absolute file path of localPath, or ErrPathEscape if it
// would end up outside the output directory.
func (e *Exporter) Target(localPath string) (string, error) {
	if localPath == "" || filepath.IsAbs(localPath) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, localPath)
	}

	target := filepath.Join(e.root, filepath.FromSlash(localPath))
	rel, err := filepath.Rel(e.root, target)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrPathEscape, localPath)
	}
	return target, nil
}
