// Package export renders pages to static HTML, writing them to disk and
// optionally publishing them to an S3 bucket.
package export

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/loomui/loom/pkg/element"
	"github.com/loomui/loom/pkg/render"
)

// Page names a route and the tree rendered for it.
type Page struct {
	// Path is the route path, e.g. "/" or "/about". It maps to
	// index.html under the corresponding directory.
	Path string
	Root *element.Element
	Cfg  render.PageConfig
}

// Exporter renders pages into an output directory.
type Exporter struct {
	renderer *render.Renderer
	outDir   string
	logger   *slog.Logger
}

// NewExporter creates an Exporter writing under outDir.
func NewExporter(renderer *render.Renderer, outDir string, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{renderer: renderer, outDir: outDir, logger: logger}
}

// Export renders every page and writes it to disk. It returns the list of
// files written, relative to the output directory.
func (e *Exporter) Export(ctx context.Context, pages []Page) ([]string, error) {
	var written []string
	for _, p := range pages {
		rel := pageFile(p.Path)
		dest := filepath.Join(e.outDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return written, fmt.Errorf("export: %w", err)
		}

		var buf bytes.Buffer
		if err := e.renderer.RenderPage(ctx, &buf, p.Root, p.Cfg); err != nil {
			return written, fmt.Errorf("export: render %s: %w", p.Path, err)
		}
		if err := os.WriteFile(dest, buf.Bytes(), 0o644); err != nil {
			return written, fmt.Errorf("export: %w", err)
		}

		e.logger.Info("exported page", "path", p.Path, "file", rel, "bytes", buf.Len())
		written = append(written, rel)
	}
	return written, nil
}

// pageFile maps a route path to its output file: "/" becomes index.html,
// "/about" becomes about/index.html, "/a.html" stays as-is.
func pageFile(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return "index.html"
	}
	if strings.HasSuffix(path, ".html") {
		return path
	}
	return path + "/index.html"
}
